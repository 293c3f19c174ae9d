package conversation

import (
	"regexp"
	"strings"
)

var (
	turnMarkers   = regexp.MustCompile(`</?start_of_turn>|</?end_of_turn>`)
	specialTokens = regexp.MustCompile(`<\|[^>]*\|>`)
)

// placeholders are transcripts the recognizer emits for non-speech.
var placeholders = map[string]bool{
	"*music*": true,
	"(empty)": true,
	"[empty]": true,
}

// emojiRanges are stripped from replies before they are spoken.
var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // symbols and pictographs
	{0x1F680, 0x1F6FF}, // transport and map
	{0x1F1E0, 0x1F1FF}, // flags
	{0x1F900, 0x1F9FF},
	{0x1FA70, 0x1FAFF},
	{0x2600, 0x26FF},
	{0x2702, 0x27B0},
	{0xFE0F, 0xFE0F},
	{0x200D, 0x200D},
}

func isEmoji(r rune) bool {
	for _, rg := range emojiRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

// StripEmoji removes emoji and pictographs.
func StripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
}

// Sanitize removes chat template markers, special tokens, NUL bytes and
// emoji so the text can be handed to a speech engine.
func Sanitize(s string) string {
	s = turnMarkers.ReplaceAllString(s, "")
	s = specialTokens.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = StripEmoji(s)
	return strings.TrimSpace(s)
}

// IsPlaceholder reports whether a transcript is a non-speech marker.
func IsPlaceholder(text string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(text))]
}
