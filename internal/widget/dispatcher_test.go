package widget_test

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/MegaGrindStone/elf-therapist/internal/widget"
)

type recordingSink struct {
	rendered []string
	segments []bool
}

func TestConsumeWithoutMarkers(t *testing.T) {
	sink := &recordingSink{}
	d := widget.NewDispatcher(false, discardLogger())

	reply, err := d.Consume(chunksOf("Hello, ", "how are ", "you?"), sink)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if reply.Text != "Hello, how are you?" {
		t.Errorf("Consume() text = %q, want %q", reply.Text, "Hello, how are you?")
	}
	if len(reply.Keywords) != 0 {
		t.Errorf("Consume() keywords = %v, want none", reply.Keywords)
	}
	if !slices.Equal(sink.rendered, []string{"Hello, ", "how are ", "you?"}) {
		t.Errorf("rendered = %q, want chunks in arrival order", sink.rendered)
	}
}

func TestConsumeKeywords(t *testing.T) {
	tests := []struct {
		name         string
		spanChunks   bool
		chunks       []string
		wantText     string
		wantKeywords []string
		wantSegments []bool
	}{
		{
			name:         "Segment in its own chunk",
			chunks:       []string{"Hello, ", "how are you? ", `<keywords>["EMOTE_CALM"]</keywords>`},
			wantText:     "Hello, how are you? ",
			wantKeywords: []string{"EMOTE_CALM"},
		},
		{
			name:         "Visible text before the marker in the same chunk",
			chunks:       []string{"Rest now.\n\n<keywords>[\"END_CHAT\",\"EMOTE_IDLE\"]</keywords>"},
			wantText:     "Rest now.\n\n",
			wantKeywords: []string{"END_CHAT", "EMOTE_IDLE"},
		},
		{
			name:         "Empty keyword list",
			chunks:       []string{"Hi", "<keywords>[]</keywords>"},
			wantText:     "Hi",
			wantKeywords: []string{},
		},
		{
			name:         "Malformed payload",
			chunks:       []string{"Still here.", "<keywords>not-json</keywords>"},
			wantText:     "Still here.",
			wantKeywords: nil,
		},
		{
			name:         "Markers split across chunks are dropped",
			chunks:       []string{"Bye.", `<keywords>["END_`, `CHAT"]</keywords>`},
			wantText:     "Bye.",
			wantKeywords: nil,
			wantSegments: []bool{true, false},
		},
		{
			name:         "Markers split across chunks with SpanChunks",
			spanChunks:   true,
			chunks:       []string{"Bye.", `<keywords>["END_`, `CHAT"]</keywords>`},
			wantText:     "Bye.",
			wantKeywords: []string{"END_CHAT"},
			wantSegments: []bool{true, false},
		},
		{
			name:         "Closing marker split with SpanChunks",
			spanChunks:   true,
			chunks:       []string{"Hi ", `<keywords>["EMOTE_CALM"]</keyw`, "ords>"},
			wantText:     "Hi ",
			wantKeywords: []string{"EMOTE_CALM"},
			wantSegments: []bool{true, false},
		},
		{
			name:         "Opening marker split with SpanChunks",
			spanChunks:   true,
			chunks:       []string{"Hi ", "<keyw", `ords>["EMOTE_CALM"]</keywords>`},
			wantText:     "Hi ",
			wantKeywords: []string{"EMOTE_CALM"},
		},
		{
			name:         "Both markers split with SpanChunks",
			spanChunks:   true,
			chunks:       []string{"Hi <", `keywords>["END_CHAT"]<`, "/keywords> ok"},
			wantText:     "Hi  ok",
			wantKeywords: []string{"END_CHAT"},
			wantSegments: []bool{true, false},
		},
		{
			name:       "Held back fragment that is not a marker",
			spanChunks: true,
			chunks:     []string{"a <k", "ite", " <ke"},
			wantText:   "a <kite <ke",
		},
		{
			name:         "Unterminated segment",
			chunks:       []string{"Bye.", `<keywords>["END_CHAT"]`},
			wantText:     "Bye.",
			wantKeywords: nil,
			wantSegments: []bool{true, false},
		},
		{
			name:         "Text after the closing marker stays visible",
			chunks:       []string{`a<keywords>["EMOTE_THINKING"]</keywords>b`},
			wantText:     "ab",
			wantKeywords: []string{"EMOTE_THINKING"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			d := widget.NewDispatcher(tt.spanChunks, discardLogger())

			reply, err := d.Consume(chunksOf(tt.chunks...), sink)
			if err != nil {
				t.Fatalf("Consume() error = %v", err)
			}

			if reply.Text != tt.wantText {
				t.Errorf("Consume() text = %q, want %q", reply.Text, tt.wantText)
			}
			if strings.Join(sink.rendered, "") != tt.wantText {
				t.Errorf("rendered = %q, want %q", strings.Join(sink.rendered, ""), tt.wantText)
			}
			if !slices.Equal(reply.Keywords, tt.wantKeywords) {
				t.Errorf("Consume() keywords = %q, want %q", reply.Keywords, tt.wantKeywords)
			}
			if !slices.Equal(sink.segments, tt.wantSegments) {
				t.Errorf("segments = %v, want %v", sink.segments, tt.wantSegments)
			}
			for _, r := range sink.rendered {
				if strings.Contains(r, "keywords>") {
					t.Errorf("marker text rendered: %q", r)
				}
			}
		})
	}
}

func TestConsumeSplitMultiByteCharacter(t *testing.T) {
	sink := &recordingSink{}
	d := widget.NewDispatcher(false, discardLogger())

	elf := []byte("Cozy ❄ sweater")
	// Split inside the three byte snowflake.
	seq := func(yield func([]byte, error) bool) {
		if !yield(elf[:6], nil) {
			return
		}
		yield(elf[6:], nil)
	}

	reply, err := d.Consume(seq, sink)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if reply.Text != "Cozy ❄ sweater" {
		t.Errorf("Consume() text = %q, want %q", reply.Text, "Cozy ❄ sweater")
	}
	if strings.ContainsRune(strings.Join(sink.rendered, ""), '�') {
		t.Errorf("rendered replacement character: %q", sink.rendered)
	}
}

func TestConsumeStreamError(t *testing.T) {
	sink := &recordingSink{}
	d := widget.NewDispatcher(false, discardLogger())

	readErr := errors.New("connection reset")
	seq := func(yield func([]byte, error) bool) {
		if !yield([]byte(`partial <keywords>["END_CHAT"]</keywords>`), nil) {
			return
		}
		yield(nil, readErr)
	}

	reply, err := d.Consume(seq, sink)
	if !errors.Is(err, readErr) {
		t.Fatalf("Consume() error = %v, want %v", err, readErr)
	}
	if len(reply.Keywords) != 0 {
		t.Errorf("Consume() keywords = %v, want none on error", reply.Keywords)
	}
	if reply.Text != "partial " {
		t.Errorf("Consume() text = %q, want %q", reply.Text, "partial ")
	}
}

func (s *recordingSink) RenderVisible(text string) {
	s.rendered = append(s.rendered, text)
}

func (s *recordingSink) ControlSegment(inside bool) {
	s.segments = append(s.segments, inside)
}

func chunksOf(chunks ...string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range chunks {
			if !yield([]byte(c), nil) {
				return
			}
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
