// Package formatter turns raw analysis text into Telegram-ready message chunks.
package formatter

import (
	"strings"
	"unicode/utf8"
)

// MaxChunkLength is the per-message budget in code points, below Telegram's 4096 limit.
const MaxChunkLength = 4000

const (
	Header     = "🌿 *Plant Analysis Results*"
	Disclaimer = "💡 *Remember*: This is an AI analysis. For serious plant issues, consider consulting a local gardening expert or agricultural extension service."
)

var escaper = strings.NewReplacer(
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
)

// Escape prefixes each legacy-markdown control character with a backslash.
// Backslashes already present are left alone.
func Escape(text string) string {
	return escaper.Replace(text)
}

// Render wraps the escaped analysis in the header and disclaimer.
func Render(analysis string) string {
	return Header + "\n\n" + Escape(analysis) + "\n\n" + Disclaimer
}

// Chunk splits text into consecutive slices of at most MaxChunkLength code points.
// Concatenating the chunks yields text exactly.
func Chunk(text string) []string {
	if utf8.RuneCountInString(text) <= MaxChunkLength {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		end, count := 0, 0
		for end < len(text) && count < MaxChunkLength {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			count++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}

// Format renders and chunks an analysis in one step.
func Format(analysis string) []string {
	return Chunk(Render(analysis))
}
