package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/elf-therapist/internal/metrics"
	"github.com/MegaGrindStone/elf-therapist/internal/models"
	"github.com/google/uuid"
)

type chatRequest struct {
	Message string `json:"message"`
}

// HandleChat answers one user message with a streamed plain-text reply from the LLM.
//
// The handler expects a JSON body with a "message" field. It starts a session when the request carries
// none, stores the message, and sends the session history behind the system prompt to the LLM. Keyword
// tokens are stripped from the chunks as they are relayed, and once the model is done the detected
// keywords are appended as a single "\n\n<keywords>[...]</keywords>" trailer.
//
// Failures before any reply text was written are answered with a JSON error. A failure mid-stream ends
// the response without a trailer.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.logger.Error("Failed to decode chat request", slog.String(errLoggerKey, err.Error()))
		metrics.ObserveChat(m.opts.Provider, metrics.StatusBadRequest, time.Since(start))
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		metrics.ObserveChat(m.opts.Provider, metrics.StatusBadRequest, time.Since(start))
		writeJSONError(w, http.StatusBadRequest, "No message provided")
		return
	}

	sess, err := m.ensureSession(w, r)
	if err != nil {
		m.logger.Error("Failed to ensure session", slog.String(errLoggerKey, err.Error()))
		metrics.ObserveChat(m.opts.Provider, metrics.StatusStoreError, time.Since(start))
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := m.store.Messages(r.Context(), sess.ID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
		metrics.ObserveChat(m.opts.Provider, metrics.StatusStoreError, time.Since(start))
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	userMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
	if _, err := m.store.AddMessage(r.Context(), sess.ID, userMsg); err != nil {
		m.logger.Error("Failed to add user message",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
		metrics.ObserveChat(m.opts.Provider, metrics.StatusStoreError, time.Since(start))
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	history = append(history, userMsg)

	sent := make([]models.Message, 0, len(history)+1)
	sent = append(sent, models.Message{Role: models.RoleSystem, Content: m.opts.SystemPrompt})
	sent = append(sent, history...)

	ctx, cancel := context.WithTimeout(r.Context(), m.opts.Timeout)
	defer cancel()

	rc := http.NewResponseController(w)
	started := false
	write := func(s string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if s == "" {
			return nil
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
		return rc.Flush()
	}

	var filter models.TokenFilter
	var full strings.Builder
	for chunk, err := range m.llm.Chat(ctx, sent) {
		if err != nil {
			m.logger.Error("Failed to get response from model",
				slog.String("sessionID", sess.ID),
				slog.Bool("midStream", started),
				slog.String(errLoggerKey, err.Error()))
			if !started {
				metrics.ObserveChat(m.opts.Provider, metrics.StatusLLMError, time.Since(start))
				writeJSONError(w, http.StatusInternalServerError, "Failed to get response from model: "+err.Error())
				return
			}
			metrics.ObserveChat(m.opts.Provider, metrics.StatusAborted, time.Since(start))
			return
		}

		full.WriteString(chunk)
		visible := filter.Filter(chunk)
		if visible == "" {
			continue
		}
		if err := write(visible); err != nil {
			m.logger.Warn("Client went away mid-stream",
				slog.String("sessionID", sess.ID),
				slog.String(errLoggerKey, err.Error()))
			metrics.ObserveChat(m.opts.Provider, metrics.StatusAborted, time.Since(start))
			return
		}
	}

	response := full.String()
	keywords, _ := models.DetectKeywords(response)

	// The exchange is recorded even if the client disconnects while the trailer is written.
	storeCtx := context.WithoutCancel(r.Context())
	assistantMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   response,
		Timestamp: time.Now(),
	}
	if _, err := m.store.AddMessage(storeCtx, sess.ID, assistantMsg); err != nil {
		m.logger.Error("Failed to add assistant message",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
	}
	if err := m.store.AddConversationLog(storeCtx, models.ConversationLogEntry{
		Timestamp:    time.Now(),
		SessionID:    sess.ID,
		MessagesSent: sent,
		History:      append(history, assistantMsg),
		Response:     response,
	}); err != nil {
		m.logger.Error("Failed to add conversation log",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
	}

	trailer, err := models.KeywordsTrailer(keywords)
	if err != nil {
		m.logger.Error("Failed to encode keywords", slog.String(errLoggerKey, err.Error()))
		trailer = ""
	}
	if err := write(filter.Flush() + trailer); err != nil {
		m.logger.Warn("Client went away before the keywords were sent",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
		metrics.ObserveChat(m.opts.Provider, metrics.StatusAborted, time.Since(start))
		return
	}

	for _, k := range keywords {
		metrics.KeywordEmitted(string(k))
	}
	metrics.ObserveChat(m.opts.Provider, metrics.StatusOK, time.Since(start))
	m.logger.Debug("Chat reply sent",
		slog.String("sessionID", sess.ID),
		slog.Int("keywords", len(keywords)),
		slog.Duration("elapsed", time.Since(start)))
}
