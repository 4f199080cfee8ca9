package models

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned by stores when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session identifies one visitor of the therapist office. It is created on the first page load or chat
// request that arrives without a session cookie, and it pins the visitor to one therapist variant for
// its whole lifetime.
type Session struct {
	ID              string
	TherapistNumber int
	CreatedAt       time.Time
}

// Message represents an individual communication entry within a session. It contains the participant's
// role, the text exchanged and the time the message was stored.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleSystem is only used for the prompt prepended to every model request, it is never stored.
	RoleSystem Role = "system"
	// RoleUser represents a message typed by the visitor.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the therapist model.
	RoleAssistant Role = "assistant"
)

// ConversationLogEntry is one record of the conversation log. It captures what was sent to the model and
// what came back, so a session can be audited after the fact.
type ConversationLogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	MessagesSent []Message `json:"messages_sent"`
	History      []Message `json:"full_conversation_history"`
	Response     string    `json:"response"`
}
