// Package tui is a terminal front end for the therapist widget, built on bubbletea.
package tui

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
	"github.com/MegaGrindStone/elf-therapist/internal/widget"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of widget.Controller the model drives.
type Controller interface {
	Start(ctx context.Context)
	AcceptDisclaimer() error
	Send(ctx context.Context, text string) error
	SubmitFeedback(choice string)
}

// Feedback choices offered once the elf ends the session.
const (
	FeedbackHelpful   = "helpful"
	FeedbackNeutral   = "neutral"
	FeedbackUnhelpful = "unhelpful"
)

type Model struct {
	ctx        context.Context
	controller Controller

	input    textinput.Model
	viewport viewport.Model
	keys     keyMap
	styles   styles

	width  int
	height int

	renderer   *glamour.TermRenderer
	transcript []entry
	live       string
	liveOpen   bool

	disclaimer   bool
	inputEnabled bool
	inputVisible bool
	feedback     bool
	thankYou     bool
	image        string
	state        widget.CycleState

	status string
}

// entry is a finished transcript message. Assistant replies keep their markdown rendering.
type entry struct {
	msg      widget.ChatMessage
	rendered string
}

const glamourStyle = "dark"

type sendDoneMsg struct{ err error }
type acceptDoneMsg struct{ err error }
type startedMsg struct{}

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	elf       lipgloss.Style
	character lipgloss.Style
	box       lipgloss.Style
	status    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#F4F1E8")).
			Background(lipgloss.Color("#1F4D36")).
			Padding(0, 1),
		user: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0474C")),
		elf:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF7A")),
		character: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4CAF7A")).
			Padding(0, 1),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#B3262E")).
			Padding(1, 2),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

var faces = map[models.Emotion]string{
	models.EmotionIdle:     "(^-^)",
	models.EmotionConfused: "(o_O)?",
	models.EmotionThinking: "(-_-) ...",
	models.EmotionCalm:     "(u_u)",
	models.EmotionGone:     "(    )",
}

// NewModel returns the model of the terminal widget. ctx bounds every chat request the model starts.
func NewModel(ctx context.Context, controller Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "Tell the elf what is on your mind..."
	ti.Prompt = "> "
	ti.CharLimit = 2000

	vp := viewport.New(80, 16)

	m := Model{
		ctx:          ctx,
		controller:   controller,
		input:        ti,
		viewport:     vp,
		keys:         defaultKeys(),
		styles:       defaultStyles(),
		inputEnabled: true,
		inputVisible: true,
		image:        models.CharacterImagePath(models.DefaultTherapistNumber, models.EmotionIdle),
		state:        widget.StateIdle,
	}
	m.renderer = newRenderer(vp.Width)
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.startCmd())
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		m.controller.Start(m.ctx)
		return startedMsg{}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.controller.Send(m.ctx, text)}
	}
}

func (m Model) acceptCmd() tea.Cmd {
	return func() tea.Msg {
		return acceptDoneMsg{err: m.controller.AcceptDisclaimer()}
	}
}

func (m Model) feedbackCmd(choice string) tea.Cmd {
	return func() tea.Msg {
		m.controller.SubmitFeedback(choice)
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshViewport()

	case startedMsg:
		m.status = ""

	case disclaimerMsg:
		m.disclaimer = msg.visible
	case appendMessageMsg:
		m.commitLive()
		m.addEntry(msg.msg)
		m.refreshViewport()
	case startAssistantMsg:
		m.commitLive()
		m.liveOpen = true
		m.refreshViewport()
	case updateAssistantMsg:
		m.live = msg.text
		m.refreshViewport()
	case finishAssistantMsg:
		m.liveOpen = true
		m.live = msg.text
		m.commitLive()
		m.refreshViewport()
	case inputEnabledMsg:
		m.inputEnabled = msg.enabled
		if !msg.enabled {
			m.input.Blur()
		}
	case inputVisibleMsg:
		m.inputVisible = msg.visible
		if !msg.visible {
			m.input.Blur()
		}
	case focusInputMsg:
		if m.inputEnabled && m.inputVisible {
			cmds = append(cmds, m.input.Focus())
		}
	case feedbackVisibleMsg:
		m.feedback = msg.visible
	case thankYouVisibleMsg:
		m.thankYou = msg.visible
	case characterImageMsg:
		m.image = msg.path
	case stateMsg:
		m.state = msg.state

	case sendDoneMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, widget.ErrCycleActive):
			m.status = "The elf is still answering."
		case errors.Is(msg.err, widget.ErrChatEnded):
			m.status = "The session is over."
		default:
			m.status = msg.err.Error()
		}
	case acceptDoneMsg:
		if msg.err != nil {
			m.status = "Could not save the disclaimer: " + msg.err.Error()
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	default:
		// Cursor blinks.
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch {
	case m.disclaimer:
		if key.Matches(msg, m.keys.Submit) {
			return m, m.acceptCmd()
		}
		return m, nil

	case m.feedback:
		switch {
		case key.Matches(msg, m.keys.Helpful):
			return m, m.feedbackCmd(FeedbackHelpful)
		case key.Matches(msg, m.keys.Neutral):
			return m, m.feedbackCmd(FeedbackNeutral)
		case key.Matches(msg, m.keys.Unhelpful):
			return m, m.feedbackCmd(FeedbackUnhelpful)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if !m.inputVisible || !m.inputEnabled {
		return m, nil
	}

	if key.Matches(msg, m.keys.Submit) {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.sendCmd(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	// Title, character panel, input and status take roughly ten rows.
	h := m.height - 10
	if h < 4 {
		h = 4
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
	m.renderer = newRenderer(w)
}

// commitLive moves the live assistant entry into the transcript. The controller keeps a finished reply in
// the live entry, and a reply cut short by an error stays above the error message.
func (m *Model) commitLive() {
	if m.liveOpen && m.live != "" {
		m.addEntry(widget.ChatMessage{Sender: models.RoleAssistant, Text: m.live})
	}
	m.liveOpen = false
	m.live = ""
}

func (m *Model) addEntry(msg widget.ChatMessage) {
	e := entry{msg: msg}
	if msg.Sender == models.RoleAssistant && m.renderer != nil {
		if out, err := m.renderer.Render(msg.Text); err == nil {
			e.rendered = strings.Trim(out, "\n")
		}
	}
	m.transcript = append(m.transcript, e)
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	for _, e := range m.transcript {
		text := e.msg.Text
		if e.rendered != "" {
			text = e.rendered
		}
		m.writeEntry(&b, e.msg.Sender, text)
	}
	if m.liveOpen {
		m.writeEntry(&b, models.RoleAssistant, m.live)
	}
	return b.String()
}

func (m Model) writeEntry(b *strings.Builder, sender models.Role, text string) {
	if sender == models.RoleUser {
		b.WriteString(m.styles.user.Render("You: "))
	} else {
		b.WriteString(m.styles.elf.Render("Elf: "))
	}
	b.WriteString(text)
	b.WriteString("\n\n")
}

// emotion recovers the image state from an asset path like /static/images/therapist_1_calm.webp.
func emotion(imagePath string) models.Emotion {
	name := strings.TrimSuffix(path.Base(imagePath), path.Ext(imagePath))
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		return models.Emotion(name[i+1:])
	}
	return models.EmotionIdle
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Elf Therapist"))
	b.WriteString("\n")

	e := emotion(m.image)
	b.WriteString(m.styles.character.Render(faces[e] + "  " + string(e) + "  " + m.styles.status.Render(path.Base(m.image))))
	b.WriteString("\n")

	if m.disclaimer {
		b.WriteString(m.styles.box.Render(
			"The elf is not a licensed therapist.\n" +
				"If you are in crisis, please reach out to a professional (in the U.S. dial 9-8-8).\n\n" +
				"Press enter to continue."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.thankYou:
		b.WriteString(m.styles.elf.Render("Thank you. The elf has gone back to the workshop."))
	case m.feedback:
		b.WriteString("How was your session?  [1] helpful  [2] neutral  [3] not helpful")
	case m.inputVisible:
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	status := m.status
	if m.state != widget.StateIdle {
		status = m.state.String()
	}
	b.WriteString(m.styles.status.Render(status))
	return b.String()
}
