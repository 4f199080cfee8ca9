package widget

import (
	"fmt"
	"slices"
)

// CycleState is the state of one request/response cycle of the widget.
type CycleState int

const (
	StateIdle CycleState = iota
	StateAwaitingResponseHeaders
	StateStreamingVisibleText
	StateBufferingControlSegment
	StateStreamEnded
	StateDirectivesApplied
	StateErrored
)

var cycleStateNames = map[CycleState]string{
	StateIdle:                    "idle",
	StateAwaitingResponseHeaders: "awaiting_response_headers",
	StateStreamingVisibleText:    "streaming_visible_text",
	StateBufferingControlSegment: "buffering_control_segment",
	StateStreamEnded:             "stream_ended",
	StateDirectivesApplied:       "directives_applied",
	StateErrored:                 "errored",
}

// Errored is reachable from every state except Idle and Errored itself.
var cycleTransitions = map[CycleState][]CycleState{
	StateIdle:                    {StateAwaitingResponseHeaders},
	StateAwaitingResponseHeaders: {StateStreamingVisibleText, StateErrored},
	StateStreamingVisibleText:    {StateBufferingControlSegment, StateStreamEnded, StateErrored},
	StateBufferingControlSegment: {StateStreamingVisibleText, StateStreamEnded, StateErrored},
	StateStreamEnded:             {StateDirectivesApplied, StateErrored},
	StateDirectivesApplied:       {StateIdle},
	StateErrored:                 {StateIdle},
}

func (s CycleState) String() string {
	if name, ok := cycleStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("cycle_state(%d)", int(s))
}

// canTransition reports whether the cycle may move from s to next.
func (s CycleState) canTransition(next CycleState) bool {
	return slices.Contains(cycleTransitions[s], next)
}
