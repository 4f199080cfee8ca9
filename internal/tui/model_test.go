package tui

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
	"github.com/MegaGrindStone/elf-therapist/internal/widget"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	mu       sync.Mutex
	started  bool
	accepted bool
	sent     []string
	feedback []string
	sendErr  error
}

func (f *fakeController) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
}

func (f *fakeController) AcceptDisclaimer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = true
	return nil
}

func (f *fakeController) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeController) SubmitFeedback(choice string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, choice)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update() returned %T, want Model", next)
	}
	return nm, cmd
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestDisclaimerEnterAccepts(t *testing.T) {
	fc := &fakeController{}
	m := NewModel(context.Background(), fc)

	m, _ = update(t, m, disclaimerMsg{visible: true})
	if !strings.Contains(m.View(), "not a licensed therapist") {
		t.Fatalf("View() does not show the disclaimer")
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on the disclaimer returned no command")
	}
	if _, ok := cmd().(acceptDoneMsg); !ok {
		t.Error("accept command did not report back")
	}
	if !fc.accepted {
		t.Error("AcceptDisclaimer was not called")
	}

	m, _ = update(t, m, disclaimerMsg{visible: false})
	if strings.Contains(m.View(), "not a licensed therapist") {
		t.Error("View() still shows the disclaimer")
	}
}

func TestEnterSendsInput(t *testing.T) {
	fc := &fakeController{}
	m := NewModel(context.Background(), fc)

	m.input.SetValue("I feel stressed")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q, want it cleared", m.input.Value())
	}
	if _, ok := cmd().(sendDoneMsg); !ok {
		t.Error("send command did not report back")
	}
	if !reflect.DeepEqual(fc.sent, []string{"I feel stressed"}) {
		t.Errorf("sent = %v", fc.sent)
	}

	t.Run("blank input", func(t *testing.T) {
		m.input.SetValue("   ")
		if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
			t.Error("blank input started a send")
		}
	})

	t.Run("disabled input", func(t *testing.T) {
		disabled, _ := update(t, m, inputEnabledMsg{enabled: false})
		disabled.input.SetValue("again")
		if _, cmd := update(t, disabled, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
			t.Error("disabled input started a send")
		}
	})
}

func TestStreamingTranscript(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	for _, msg := range []tea.Msg{
		appendMessageMsg{msg: widget.ChatMessage{Sender: models.RoleUser, Text: "Hi"}},
		startAssistantMsg{},
		updateAssistantMsg{text: "Hello, "},
		updateAssistantMsg{text: "Hello, how are you? "},
	} {
		m, _ = update(t, m, msg)
	}

	if got := m.renderTranscript(); !strings.Contains(got, "Hello, how are you? ") {
		t.Errorf("renderTranscript() = %q", got)
	}

	m, _ = update(t, m, appendMessageMsg{msg: widget.ChatMessage{Sender: models.RoleUser, Text: "Fine"}})
	want := []string{"Hi", "Hello, how are you? ", "Fine"}
	var got []string
	for _, e := range m.transcript {
		got = append(got, e.msg.Text)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestPartialReplyStaysAboveError(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	for _, msg := range []tea.Msg{
		startAssistantMsg{},
		updateAssistantMsg{text: "Partial"},
		appendMessageMsg{msg: widget.ChatMessage{Sender: models.RoleAssistant, Text: widget.ErrorReplyText}},
	} {
		m, _ = update(t, m, msg)
	}

	if len(m.transcript) != 2 || m.transcript[0].msg.Text != "Partial" || m.transcript[1].msg.Text != widget.ErrorReplyText {
		t.Errorf("transcript = %+v", m.transcript)
	}
	if m.liveOpen {
		t.Error("live entry is still open")
	}
}

func TestFeedbackKeys(t *testing.T) {
	tests := []struct {
		key  rune
		want string
	}{
		{key: '1', want: FeedbackHelpful},
		{key: '2', want: FeedbackNeutral},
		{key: '3', want: FeedbackUnhelpful},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			fc := &fakeController{}
			m := NewModel(context.Background(), fc)
			m, _ = update(t, m, inputVisibleMsg{visible: false})
			m, _ = update(t, m, feedbackVisibleMsg{visible: true})

			_, cmd := update(t, m, keyRune(tt.key))
			if cmd == nil {
				t.Fatal("feedback key returned no command")
			}
			cmd()
			if !reflect.DeepEqual(fc.feedback, []string{tt.want}) {
				t.Errorf("feedback = %v, want [%s]", fc.feedback, tt.want)
			}
		})
	}
}

func TestQuit(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}
}

func TestSendErrorsBecomeStatus(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	m, _ = update(t, m, sendDoneMsg{err: widget.ErrCycleActive})
	if m.status != "The elf is still answering." {
		t.Errorf("status = %q", m.status)
	}
	m, _ = update(t, m, sendDoneMsg{err: widget.ErrChatEnded})
	if m.status != "The session is over." {
		t.Errorf("status = %q", m.status)
	}
}

func TestCharacterPanel(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	m, _ = update(t, m, characterImageMsg{path: models.CharacterImagePath(2, models.EmotionCalm)})
	if got := emotion(m.image); got != models.EmotionCalm {
		t.Errorf("emotion() = %q, want %q", got, models.EmotionCalm)
	}
	if !strings.Contains(m.View(), "therapist_2_calm.webp") {
		t.Error("View() does not name the current image")
	}
}

func TestProgramView(t *testing.T) {
	var got []tea.Msg
	v := NewProgramView(func(msg tea.Msg) { got = append(got, msg) })

	var _ widget.View = v

	v.SetDisclaimerVisible(true)
	v.StartAssistantMessage()
	v.UpdateAssistantMessage("hi")
	v.FinishAssistantMessage("hi there")
	v.SetInputVisible(false)
	v.SetFeedbackVisible(true)
	v.StateChanged(widget.StateStreamingVisibleText)

	want := []tea.Msg{
		disclaimerMsg{visible: true},
		startAssistantMsg{},
		updateAssistantMsg{text: "hi"},
		finishAssistantMsg{text: "hi there"},
		inputVisibleMsg{visible: false},
		feedbackVisibleMsg{visible: true},
		stateMsg{state: widget.StateStreamingVisibleText},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("posted %#v, want %#v", got, want)
	}
}

func TestAssistantMarkdownRendered(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	m, _ = update(t, m, appendMessageMsg{msg: widget.ChatMessage{Sender: models.RoleAssistant, Text: "You are a **good** elf."}})

	got := m.renderTranscript()
	if !strings.Contains(got, "good") || strings.Contains(got, "**") {
		t.Errorf("renderTranscript() = %q, want rendered markdown", got)
	}
}

func TestFinishedReplyRenderedAsMarkdown(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	for _, msg := range []tea.Msg{
		startAssistantMsg{},
		updateAssistantMsg{text: "Be **brave**"},
		finishAssistantMsg{text: "Be **brave**, little elf."},
	} {
		m, _ = update(t, m, msg)
	}

	if m.liveOpen || m.live != "" {
		t.Errorf("live entry still open: %q", m.live)
	}
	if len(m.transcript) != 1 || m.transcript[0].msg.Text != "Be **brave**, little elf." {
		t.Fatalf("transcript = %+v, want the finished reply", m.transcript)
	}
	got := m.renderTranscript()
	if !strings.Contains(got, "brave") || strings.Contains(got, "**") {
		t.Errorf("renderTranscript() = %q, want rendered markdown", got)
	}
}
