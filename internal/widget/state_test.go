package widget

import "testing"

func TestCycleStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from CycleState
		to   CycleState
		want bool
	}{
		{name: "Send starts a cycle", from: StateIdle, to: StateAwaitingResponseHeaders, want: true},
		{name: "Idle cannot stream", from: StateIdle, to: StateStreamingVisibleText, want: false},
		{name: "Idle cannot error", from: StateIdle, to: StateErrored, want: false},
		{name: "Headers then text", from: StateAwaitingResponseHeaders, to: StateStreamingVisibleText, want: true},
		{name: "Enter control segment", from: StateStreamingVisibleText, to: StateBufferingControlSegment, want: true},
		{name: "Leave control segment", from: StateBufferingControlSegment, to: StateStreamingVisibleText, want: true},
		{name: "Stream ends inside segment", from: StateBufferingControlSegment, to: StateStreamEnded, want: true},
		{name: "Directives after end", from: StateStreamEnded, to: StateDirectivesApplied, want: true},
		{name: "Directives skip end", from: StateStreamingVisibleText, to: StateDirectivesApplied, want: false},
		{name: "Back to idle", from: StateDirectivesApplied, to: StateIdle, want: true},
		{name: "Applied cannot error", from: StateDirectivesApplied, to: StateErrored, want: false},
		{name: "Error recovers", from: StateErrored, to: StateIdle, want: true},
		{name: "Error mid-stream", from: StateStreamingVisibleText, to: StateErrored, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.canTransition(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCycleStateString(t *testing.T) {
	if got := StateBufferingControlSegment.String(); got != "buffering_control_segment" {
		t.Errorf("String() = %q", got)
	}
	if got := CycleState(42).String(); got != "cycle_state(42)" {
		t.Errorf("String() = %q", got)
	}
}
