package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/elf-therapist/internal/metrics"
	"github.com/MegaGrindStone/elf-therapist/internal/models"
	"github.com/google/uuid"
)

const sessionCookieName = "elf_session"

type sessionResponse struct {
	SessionID       string `json:"session_id"`
	TherapistNumber int    `json:"therapist_number"`
}

// HandleSession reports the session of the caller as JSON. It answers 400 when the request carries no
// known session, the page load or the first chat message is what starts one.
func (m Main) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, err := m.currentSession(r)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONError(w, http.StatusBadRequest, "No session found")
			return
		}
		m.logger.Error("Failed to get session", slog.String(errLoggerKey, err.Error()))
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:       sess.ID,
		TherapistNumber: sess.TherapistNumber,
	})
}

func (m Main) currentSession(r *http.Request) (models.Session, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return models.Session{}, models.ErrSessionNotFound
	}
	return m.store.Session(r.Context(), c.Value)
}

// ensureSession returns the session of the caller, starting a new one when the request has none. A new
// session is announced to the client with a cookie, so it must run before anything is written to w.
func (m Main) ensureSession(w http.ResponseWriter, r *http.Request) (models.Session, error) {
	sess, err := m.currentSession(r)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, models.ErrSessionNotFound) {
		return models.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	sess = models.Session{
		ID:              uuid.New().String(),
		TherapistNumber: m.pickTherapist(),
		CreatedAt:       time.Now(),
	}
	if err := m.store.AddSession(r.Context(), sess); err != nil {
		return models.Session{}, fmt.Errorf("failed to add session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	metrics.SessionCreated()
	m.logger.Info("Initialized new session",
		slog.String("sessionID", sess.ID),
		slog.Int("therapistNumber", sess.TherapistNumber))

	return sess, nil
}
