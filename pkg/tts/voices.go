package tts

import "strings"

// GoogleVoices maps the macOS voice names used by personalities to
// comparable Google Cloud voices.
var GoogleVoices = map[string]string{
	"samantha": "en-US-Neural2-F",
	"alex":     "en-US-Neural2-D",
	"victoria": "en-US-Neural2-C",
	"daniel":   "en-GB-Neural2-B",
	"karen":    "en-AU-Neural2-C",
	"moira":    "en-GB-Neural2-A",
	"fred":     "en-US-Neural2-J",
}

// ResolveGoogleVoice returns the Google voice for a preset name,
// or the input unchanged if it is already a voice name.
func ResolveGoogleVoice(name string) string {
	if id, ok := GoogleVoices[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// IsGooglePreset reports whether name is a known preset.
func IsGooglePreset(name string) bool {
	_, ok := GoogleVoices[strings.ToLower(name)]
	return ok
}
