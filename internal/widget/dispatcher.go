package widget

import (
	"encoding/json"
	"iter"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
)

// Reply is the outcome of consuming one streamed chat response.
type Reply struct {
	// Text is all the visible text that was rendered, in arrival order.
	Text string
	// Keywords are the directives parsed from the control segment. It is empty when the reply carried no
	// segment, when the segment was malformed, or when the segment spanned chunks and SpanChunks is off.
	Keywords []string
}

// ReplySink receives the progress of a reply while it is being consumed.
type ReplySink interface {
	// RenderVisible is called with every new piece of visible text, never with an empty string.
	RenderVisible(text string)
	// ControlSegment is called when the dispatcher enters (true) or leaves (false) a control segment that
	// was not closed within the chunk it started in.
	ControlSegment(inside bool)
}

// Dispatcher turns a raw streamed chat response into visible text and keyword directives.
//
// Marker detection is chunk-local: the control segment is parsed only if its opening and closing markers
// arrive within the same decoded chunk. A segment split across chunks is buffered and kept out of the
// visible text, but its keywords are dropped. Setting SpanChunks parses such a segment too, and also
// recognizes markers that are themselves split between chunks.
type Dispatcher struct {
	SpanChunks bool

	logger *slog.Logger
}

// streamState is the transient state of one Consume call.
type streamState struct {
	visible    strings.Builder
	controlRaw strings.Builder
	inControl  bool
	keywords   []string
	// pending holds a trailing fragment that may be the start of an opening marker. Only used with
	// SpanChunks.
	pending string
}

// NewDispatcher creates a Dispatcher logging malformed control segments to logger.
func NewDispatcher(spanChunks bool, logger *slog.Logger) Dispatcher {
	return Dispatcher{
		SpanChunks: spanChunks,
		logger:     logger.With(slog.String("module", "dispatcher")),
	}
}

// Consume reads chunks until the sequence ends, rendering visible text to sink as it arrives. The first
// error yielded by chunks aborts consumption and is returned together with the reply collected so far,
// whose keywords are then always empty.
func (d Dispatcher) Consume(chunks iter.Seq2[[]byte, error], sink ReplySink) (Reply, error) {
	st := &streamState{}
	dec := newChunkDecoder()

	for chunk, err := range chunks {
		if err != nil {
			return Reply{Text: st.visible.String()}, err
		}
		if text := dec.decode(chunk, false); text != "" {
			d.scan(st, text, sink)
		}
	}
	if text := dec.decode(nil, true); text != "" {
		d.scan(st, text, sink)
	}

	if st.pending != "" {
		d.render(st, st.pending, sink)
		st.pending = ""
	}
	if st.inControl {
		d.logger.Warn("Reply ended inside an unterminated control segment",
			slog.Int("segmentLength", st.controlRaw.Len()))
		sink.ControlSegment(false)
	}

	return Reply{Text: st.visible.String(), Keywords: st.keywords}, nil
}

func (d Dispatcher) scan(st *streamState, text string, sink ReplySink) {
	if d.SpanChunks {
		text = st.pending + text
		st.pending = ""
	}

	if st.inControl {
		d.closeSegment(st, text, sink)
		return
	}

	start := strings.Index(text, models.KeywordsOpenMarker)
	if start < 0 {
		if d.SpanChunks {
			if i := partialMarkerStart(text, models.KeywordsOpenMarker); i >= 0 {
				st.pending = text[i:]
				text = text[:i]
			}
		}
		d.render(st, text, sink)
		return
	}
	d.render(st, text[:start], sink)

	rest := text[start+len(models.KeywordsOpenMarker):]
	end := strings.Index(rest, models.KeywordsCloseMarker)
	if end < 0 {
		st.inControl = true
		st.controlRaw.Reset()
		st.controlRaw.WriteString(rest)
		sink.ControlSegment(true)
		return
	}

	st.keywords = d.parseKeywords(rest[:end])
	d.render(st, rest[end+len(models.KeywordsCloseMarker):], sink)
}

// closeSegment continues a control segment left open by an earlier chunk. Under SpanChunks the closing
// marker is searched in the whole buffered segment, so a marker split between chunks is still found.
func (d Dispatcher) closeSegment(st *streamState, text string, sink ReplySink) {
	segment := text
	if d.SpanChunks {
		segment = st.controlRaw.String() + text
		st.controlRaw.Reset()
	}

	end := strings.Index(segment, models.KeywordsCloseMarker)
	if end < 0 {
		st.controlRaw.WriteString(segment)
		return
	}
	st.controlRaw.WriteString(segment[:end])
	st.inControl = false
	sink.ControlSegment(false)

	if d.SpanChunks {
		st.keywords = d.parseKeywords(st.controlRaw.String())
	} else {
		d.logger.Warn("Control segment spanned chunks, keywords dropped",
			slog.String("segment", st.controlRaw.String()))
	}
	d.render(st, segment[end+len(models.KeywordsCloseMarker):], sink)
}

// partialMarkerStart returns the index of the longest suffix of text that is a proper prefix of marker,
// or -1.
func partialMarkerStart(text, marker string) int {
	for i := max(0, len(text)-len(marker)+1); i < len(text); i++ {
		if strings.HasPrefix(marker, text[i:]) {
			return i
		}
	}
	return -1
}

func (d Dispatcher) render(st *streamState, text string, sink ReplySink) {
	if text == "" {
		return
	}
	st.visible.WriteString(text)
	sink.RenderVisible(text)
}

func (d Dispatcher) parseKeywords(payload string) []string {
	var keywords []string
	if err := json.Unmarshal([]byte(payload), &keywords); err != nil {
		d.logger.Error("Failed to parse keywords",
			slog.String("payload", payload),
			slog.String(errLoggerKey, err.Error()))
		return nil
	}
	return keywords
}
