package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keyword is a control directive the therapist model may emit inside its reply. The server strips it from
// the visible text and reports it to the widget in the trailing keywords segment.
type Keyword string

// Emotion names one of the character image states.
type Emotion string

const (
	KeywordEndChat       Keyword = "END_CHAT"
	KeywordEmoteIdle     Keyword = "EMOTE_IDLE"
	KeywordEmoteConfused Keyword = "EMOTE_CONFUSED"
	KeywordEmoteThinking Keyword = "EMOTE_THINKING"
	KeywordEmoteCalm     Keyword = "EMOTE_CALM"

	EmotionIdle     Emotion = "idle"
	EmotionConfused Emotion = "confused"
	EmotionThinking Emotion = "thinking"
	EmotionCalm     Emotion = "calm"
	EmotionGone     Emotion = "gone"

	// KeywordsOpenMarker and KeywordsCloseMarker delimit the control segment at the end of a chat reply.
	KeywordsOpenMarker  = "<keywords>"
	KeywordsCloseMarker = "</keywords>"

	// DefaultTherapistNumber is the variant used when none could be determined.
	DefaultTherapistNumber = 1
)

// Keywords lists every known keyword in detection order.
var Keywords = []Keyword{
	KeywordEndChat,
	KeywordEmoteIdle,
	KeywordEmoteConfused,
	KeywordEmoteThinking,
	KeywordEmoteCalm,
}

// KeywordEmotions maps the EMOTE_* keywords to the image state they select.
var KeywordEmotions = map[Keyword]Emotion{
	KeywordEmoteIdle:     EmotionIdle,
	KeywordEmoteConfused: EmotionConfused,
	KeywordEmoteThinking: EmotionThinking,
	KeywordEmoteCalm:     EmotionCalm,
}

// Token returns the inline form of the keyword as written by the model, e.g. "<END_CHAT>".
func (k Keyword) Token() string {
	return "<" + string(k) + ">"
}

// CharacterImagePath returns the static asset path of the therapist image for the given variant and state.
func CharacterImagePath(variant int, emotion Emotion) string {
	return fmt.Sprintf("/static/images/therapist_%d_%s.webp", variant, emotion)
}

// DetectKeywords reports which keyword tokens appear in text, in detection order, and returns the text with
// every token removed and surrounding whitespace trimmed.
func DetectKeywords(text string) ([]Keyword, string) {
	found := []Keyword{}
	cleaned := text
	for _, k := range Keywords {
		if !strings.Contains(text, k.Token()) {
			continue
		}
		found = append(found, k)
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, k.Token(), ""))
	}
	return found, cleaned
}

// KeywordsTrailer formats the control segment appended after the visible reply.
func KeywordsTrailer(keywords []Keyword) (string, error) {
	if keywords == nil {
		keywords = []Keyword{}
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return "\n\n" + KeywordsOpenMarker + string(b) + KeywordsCloseMarker, nil
}

// TokenFilter removes keyword tokens from a stream of text chunks. A chunk ending with what could be the
// beginning of a token is held back until the next chunk decides it, so a token split by the model
// across two chunks never reaches the visitor.
type TokenFilter struct {
	pending string
}

// Filter returns the part of chunk that is safe to show.
func (f *TokenFilter) Filter(chunk string) string {
	s := f.pending + chunk
	f.pending = ""
	for _, k := range Keywords {
		s = strings.ReplaceAll(s, k.Token(), "")
	}

	if i := strings.LastIndexByte(s, '<'); i >= 0 && isTokenPrefix(s[i:]) {
		f.pending = s[i:]
		s = s[:i]
	}
	return s
}

// Flush returns whatever is still held back. It should be called once the stream is over.
func (f *TokenFilter) Flush() string {
	p := f.pending
	f.pending = ""
	return p
}

func isTokenPrefix(fragment string) bool {
	for _, k := range Keywords {
		tok := k.Token()
		if len(fragment) < len(tok) && strings.HasPrefix(tok, fragment) {
			return true
		}
	}
	return false
}
