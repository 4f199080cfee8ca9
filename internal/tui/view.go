package tui

import (
	"github.com/MegaGrindStone/elf-therapist/internal/widget"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages posted by the controller through ProgramView. They are applied to the model on the event loop.
type (
	disclaimerMsg      struct{ visible bool }
	appendMessageMsg   struct{ msg widget.ChatMessage }
	startAssistantMsg  struct{}
	updateAssistantMsg struct{ text string }
	finishAssistantMsg struct{ text string }
	inputEnabledMsg    struct{ enabled bool }
	inputVisibleMsg    struct{ visible bool }
	focusInputMsg      struct{}
	feedbackVisibleMsg struct{ visible bool }
	thankYouVisibleMsg struct{ visible bool }
	characterImageMsg  struct{ path string }
	stateMsg           struct{ state widget.CycleState }
)

// ProgramView implements widget.View by posting every change to a bubbletea program, so the model stays
// the only writer of UI state. Its methods block until the program takes the message and must not be
// called from inside Update.
type ProgramView struct {
	send func(tea.Msg)
}

// NewProgramView returns a view posting to send, usually (*tea.Program).Send.
func NewProgramView(send func(tea.Msg)) ProgramView {
	return ProgramView{send: send}
}

func (v ProgramView) SetDisclaimerVisible(visible bool) { v.send(disclaimerMsg{visible: visible}) }

func (v ProgramView) AppendMessage(msg widget.ChatMessage) { v.send(appendMessageMsg{msg: msg}) }

func (v ProgramView) StartAssistantMessage() { v.send(startAssistantMsg{}) }

func (v ProgramView) UpdateAssistantMessage(text string) { v.send(updateAssistantMsg{text: text}) }

func (v ProgramView) FinishAssistantMessage(text string) { v.send(finishAssistantMsg{text: text}) }

func (v ProgramView) SetInputEnabled(enabled bool) { v.send(inputEnabledMsg{enabled: enabled}) }

func (v ProgramView) SetInputVisible(visible bool) { v.send(inputVisibleMsg{visible: visible}) }

func (v ProgramView) FocusInput() { v.send(focusInputMsg{}) }

func (v ProgramView) SetFeedbackVisible(visible bool) { v.send(feedbackVisibleMsg{visible: visible}) }

func (v ProgramView) SetThankYouVisible(visible bool) { v.send(thankYouVisibleMsg{visible: visible}) }

func (v ProgramView) SetCharacterImage(path string) { v.send(characterImageMsg{path: path}) }

// StateChanged reports a cycle state change, it is meant for widget.Controller.OnStateChange.
func (v ProgramView) StateChanged(state widget.CycleState) { v.send(stateMsg{state: state}) }
