package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type message struct {
	Role    string
	Content template.HTML
}

type homePageData struct {
	SessionID       string
	TherapistNumber int
	CharacterImage  string
	Messages        []message
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(highlighting.WithStyle("monokai")),
		),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
}

// HandleHome renders the office page. It starts a session for first-time visitors and replays the
// conversation so far, with assistant replies rendered from markdown and their keyword tokens removed.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, err := m.ensureSession(w, r)
	if err != nil {
		m.logger.Error("Failed to ensure session", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	history, err := m.store.Messages(r.Context(), sess.ID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	msgs := make([]message, 0, len(history))
	for _, h := range history {
		content, err := m.renderContent(h)
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("message", fmt.Sprintf("%+v", h)),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		msgs = append(msgs, message{Role: string(h.Role), Content: content})
	}

	data := homePageData{
		SessionID:       sess.ID,
		TherapistNumber: sess.TherapistNumber,
		CharacterImage:  models.CharacterImagePath(sess.TherapistNumber, models.EmotionIdle),
		Messages:        msgs,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m Main) renderContent(msg models.Message) (template.HTML, error) {
	if msg.Role != models.RoleAssistant {
		// #nosec G203 -- the text is escaped right here.
		return template.HTML(template.HTMLEscapeString(msg.Content)), nil
	}

	_, cleaned := models.DetectKeywords(msg.Content)
	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(cleaned), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	// #nosec G203 -- goldmark escapes raw HTML unless WithUnsafe is set.
	return template.HTML(buf.String()), nil
}
