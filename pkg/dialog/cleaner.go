package dialog

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reHeading = regexp.MustCompile(`(?m)^\s*#{1,6}\s*`)
	reBullet  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// cleanKeepPunct is the punctuation that survives into speech.
const cleanKeepPunct = `.,!?;:'"-/()`

// CleanForSpeech strips markdown markers, emoji and stray symbols from a
// model reply so the TTS engine reads plain sentences. Link syntax is
// reduced to its anchor text; basic punctuation is kept.
func CleanForSpeech(text string) string {
	text = reLink.ReplaceAllString(text, "$1")
	text = reHeading.ReplaceAllString(text, "")
	text = reBullet.ReplaceAllString(text, "")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune(cleanKeepPunct, r):
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(reSpaces.ReplaceAllString(b.String(), " "))
}
