// Package widget implements the chat widget of the therapist office: the session-scoped controller, the
// streamed reply dispatcher and the HTTP client they use to reach the server.
package widget

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
)

// View is the UI the controller drives. Implementations must tolerate being called from any goroutine,
// although the controller never calls them concurrently.
type View interface {
	SetDisclaimerVisible(visible bool)

	// AppendMessage adds a finished message to the transcript.
	AppendMessage(msg ChatMessage)
	// StartAssistantMessage opens the live assistant entry that UpdateAssistantMessage then fills.
	StartAssistantMessage()
	// UpdateAssistantMessage replaces the text of the live assistant entry with the text received so far.
	UpdateAssistantMessage(text string)
	// FinishAssistantMessage closes the live assistant entry with the complete reply text.
	FinishAssistantMessage(text string)

	SetInputEnabled(enabled bool)
	SetInputVisible(visible bool)
	FocusInput()

	SetFeedbackVisible(visible bool)
	SetThankYouVisible(visible bool)

	// SetCharacterImage shows the character image at the given asset path.
	SetCharacterImage(path string)
}

// ChatClient is the server API the controller needs.
type ChatClient interface {
	Session(ctx context.Context) (models.Session, error)
	Chat(ctx context.Context, message string) (iter.Seq2[[]byte, error], error)
}

// Prefs stores the widget preferences that outlive a session.
type Prefs interface {
	DisclaimerAccepted() bool
	AcceptDisclaimer() error
}

// ChatMessage is one entry of the transcript.
type ChatMessage struct {
	Sender models.Role
	Text   string
}

// Controller owns the state of one widget session: the transcript, the therapist variant and the
// request/response cycle. At most one cycle runs at a time.
type Controller struct {
	client     ChatClient
	view       View
	prefs      Prefs
	dispatcher Dispatcher

	logger *slog.Logger

	mu         sync.Mutex
	state      CycleState
	variant    int
	transcript []ChatMessage
	chatEnded  bool
	onState    func(CycleState)
}

// ErrorReplyText is shown as the assistant reply when a cycle fails.
const ErrorReplyText = "Sorry, I encountered an error. Please try again."

const errLoggerKey = "err"

var (
	// ErrCycleActive is returned by Send while another message is still being answered.
	ErrCycleActive = errors.New("a message is already being answered")
	// ErrChatEnded is returned by Send once the therapist ended the conversation.
	ErrChatEnded = errors.New("the conversation has ended")
)

// NewController creates a Controller. The variant starts at the default until Start fetched the session.
func NewController(client ChatClient, view View, prefs Prefs, dispatcher Dispatcher, logger *slog.Logger) *Controller {
	return &Controller{
		client:     client,
		view:       view,
		prefs:      prefs,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("module", "controller")),
		state:      StateIdle,
		variant:    models.DefaultTherapistNumber,
	}
}

// OnStateChange registers fn to be called after every cycle state transition.
func (c *Controller) OnStateChange(fn func(CycleState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Start prepares the widget: it shows the disclaimer unless it was acknowledged before, and fetches the
// session to learn the therapist variant. A failed fetch is logged and the default variant is kept.
func (c *Controller) Start(ctx context.Context) {
	c.view.SetDisclaimerVisible(!c.prefs.DisclaimerAccepted())

	sess, err := c.client.Session(ctx)
	if err != nil {
		c.logger.Error("Failed to initialize session", slog.String(errLoggerKey, err.Error()))
	} else if sess.TherapistNumber > 0 {
		c.mu.Lock()
		c.variant = sess.TherapistNumber
		c.mu.Unlock()
	}

	c.view.SetCharacterImage(models.CharacterImagePath(c.Variant(), models.EmotionIdle))
	c.view.FocusInput()
}

// AcceptDisclaimer records that the disclaimer was acknowledged and hides it. The disclaimer is hidden even
// if the acknowledgement could not be persisted.
func (c *Controller) AcceptDisclaimer() error {
	c.view.SetDisclaimerVisible(false)
	if err := c.prefs.AcceptDisclaimer(); err != nil {
		c.logger.Error("Failed to persist disclaimer acknowledgement", slog.String(errLoggerKey, err.Error()))
		return fmt.Errorf("failed to persist disclaimer acknowledgement: %w", err)
	}
	return nil
}

// Send runs one cycle for text: it shows the user message, streams the reply into the transcript and then
// applies the reply keywords. Blank text is ignored. Failures of the cycle itself are shown in the transcript
// and are not returned; the returned error only reports that the cycle could not start.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if err := c.begin(); err != nil {
		return err
	}
	c.appendMessage(ChatMessage{Sender: models.RoleUser, Text: text})
	c.view.SetInputEnabled(false)

	defer func() {
		c.transition(StateIdle)
		c.view.SetInputEnabled(true)
		c.view.FocusInput()
	}()

	chunks, err := c.client.Chat(ctx, text)
	if err != nil {
		c.fail(err)
		return nil
	}

	c.transition(StateStreamingVisibleText)
	c.view.StartAssistantMessage()
	cyc := &cycle{controller: c}
	reply, err := c.dispatcher.Consume(chunks, cyc)
	if err != nil {
		c.fail(err)
		return nil
	}

	c.transition(StateStreamEnded)
	c.mu.Lock()
	c.transcript = append(c.transcript, ChatMessage{Sender: models.RoleAssistant, Text: reply.Text})
	c.mu.Unlock()
	c.view.FinishAssistantMessage(reply.Text)

	c.applyDirectives(reply.Keywords)
	c.transition(StateDirectivesApplied)

	return nil
}

// SubmitFeedback closes the conversation after the visitor rated it: the feedback choices give way to a
// thank-you note and the therapist leaves.
func (c *Controller) SubmitFeedback(choice string) {
	c.logger.Info("Feedback submitted", slog.String("choice", choice))
	c.view.SetFeedbackVisible(false)
	c.view.SetThankYouVisible(true)
	c.view.SetCharacterImage(models.CharacterImagePath(c.Variant(), models.EmotionGone))
}

// Transcript returns a copy of the finished messages.
func (c *Controller) Transcript() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatMessage(nil), c.transcript...)
}

// State returns the current cycle state.
func (c *Controller) State() CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Variant returns the therapist variant used to pick character images.
func (c *Controller) Variant() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

// ChatEnded reports whether the therapist ended the conversation.
func (c *Controller) ChatEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatEnded
}

func (c *Controller) fail(err error) {
	c.logger.Error("Error sending message", slog.String(errLoggerKey, err.Error()))
	c.transition(StateErrored)
	c.appendMessage(ChatMessage{Sender: models.RoleAssistant, Text: ErrorReplyText})
}

func (c *Controller) appendMessage(msg ChatMessage) {
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()
	c.view.AppendMessage(msg)
}

func (c *Controller) applyDirectives(keywords []string) {
	for _, kw := range keywords {
		k := models.Keyword(kw)
		if k == models.KeywordEndChat {
			c.endChat()
			continue
		}
		emotion, ok := models.KeywordEmotions[k]
		if !ok {
			c.logger.Debug("Ignoring unknown keyword", slog.String("keyword", kw))
			continue
		}
		c.view.SetCharacterImage(models.CharacterImagePath(c.Variant(), emotion))
	}
}

func (c *Controller) endChat() {
	c.mu.Lock()
	if c.chatEnded {
		c.mu.Unlock()
		return
	}
	c.chatEnded = true
	c.mu.Unlock()

	c.view.SetInputVisible(false)
	c.view.SetFeedbackVisible(true)
}

// begin claims the cycle, checking and leaving Idle under one lock so two senders can never both start.
func (c *Controller) begin() error {
	c.mu.Lock()
	if c.chatEnded {
		c.mu.Unlock()
		return ErrChatEnded
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrCycleActive
	}
	c.state = StateAwaitingResponseHeaders
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(StateAwaitingResponseHeaders)
	}
	return nil
}

func (c *Controller) transition(next CycleState) {
	c.mu.Lock()
	prev := c.state
	if !prev.canTransition(next) {
		c.mu.Unlock()
		c.logger.Error("Invalid cycle transition",
			slog.String("from", prev.String()),
			slog.String("to", next.String()))
		return
	}
	c.state = next
	onState := c.onState
	c.mu.Unlock()

	c.logger.Debug("Cycle transition",
		slog.String("from", prev.String()),
		slog.String("to", next.String()))
	if onState != nil {
		onState(next)
	}
}

// cycle forwards dispatcher progress of one reply to the controller and its view.
type cycle struct {
	controller *Controller
	text       strings.Builder
}

func (cy *cycle) RenderVisible(text string) {
	cy.text.WriteString(text)
	cy.controller.view.UpdateAssistantMessage(cy.text.String())
}

func (cy *cycle) ControlSegment(inside bool) {
	if inside {
		cy.controller.transition(StateBufferingControlSegment)
		return
	}
	cy.controller.transition(StateStreamingVisibleText)
}
