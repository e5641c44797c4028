package tts

import (
	"regexp"
	"strings"
)

// speakable matches every character the synthesizer is allowed to see:
// CJK unified ideographs, CJK symbol and fullwidth punctuation blocks,
// ASCII letters/digits/whitespace and common sentence punctuation. Emoji,
// markdown markers and control characters all fall outside it.
var speakable = regexp.MustCompile(`[^\x{4e00}-\x{9fff}\x{3000}-\x{303f}\x{ff00}-\x{ffef}` +
	`a-zA-Z0-9\s.,!?;:'"()\-。，！？；：“”‘’]`)

// Sanitize strips non-speakable characters from reply text and trims the
// result. An empty return means nothing worth synthesizing survived.
func Sanitize(text string) string {
	return strings.TrimSpace(speakable.ReplaceAllString(text, ""))
}

// SpeakableOrAck sanitizes text, substituting the fixed acknowledgment
// phrase when nothing speakable remains.
func SpeakableOrAck(text string) string {
	if clean := Sanitize(text); clean != "" {
		return clean
	}
	return ackPhrase
}
