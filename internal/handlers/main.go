package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"iter"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	elftherapist "github.com/MegaGrindStone/elf-therapist"
	"github.com/MegaGrindStone/elf-therapist/internal/models"
	"github.com/yuin/goldmark"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context
// and a sequence of messages, returning an iterator that yields response chunks and potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Store defines the interface for managing session and message persistence. Session returns
// models.ErrSessionNotFound for unknown IDs.
type Store interface {
	Session(ctx context.Context, id string) (models.Session, error)
	AddSession(ctx context.Context, sess models.Session) error

	Messages(ctx context.Context, sessionID string) ([]models.Message, error)
	AddMessage(ctx context.Context, sessionID string, message models.Message) (string, error)

	AddConversationLog(ctx context.Context, entry models.ConversationLogEntry) error
}

// Options tune the behaviour of Main.
type Options struct {
	// SystemPrompt is prepended to every conversation sent to the LLM.
	SystemPrompt string
	// Therapists is the number of therapist variants a new session is assigned from.
	Therapists int
	// Provider names the LLM provider in logs and metrics.
	Provider string
	// Timeout bounds one chat request to the LLM.
	Timeout time.Duration
}

// Main handles the core functionality of the therapist office, managing sessions, HTML templates, and
// interactions between the LLM and Store components.
type Main struct {
	templates *template.Template
	markdown  goldmark.Markdown

	llm   LLM
	store Store
	opts  Options

	logger *slog.Logger
}

const (
	errLoggerKey = "err"

	defaultTimeout = 90 * time.Second

	// maxRequestBodySize is the maximum allowed chat request body size (1MB).
	maxRequestBodySize = 1 << 20
)

// NewMain creates a new Main instance with the provided LLM and Store implementations. It parses the
// required HTML templates from the embedded filesystem.
func NewMain(llm LLM, store Store, opts Options, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		elftherapist.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	if opts.Therapists < 1 {
		opts.Therapists = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return Main{
		templates: tmpl,
		markdown:  newMarkdown(),
		llm:       llm,
		store:     store,
		opts:      opts,
		logger:    logger.With(slog.String("module", "handlers")),
	}, nil
}

func (m Main) pickTherapist() int {
	return rand.IntN(m.opts.Therapists) + 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
