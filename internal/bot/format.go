package bot

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLineLength is the longest PRIVMSG text sent in one line, in bytes.
const MaxLineLength = 400

var (
	paragraphRe  = regexp.MustCompile(`\n\s*\n`)
	spacesRe     = regexp.MustCompile(`\s+`)
	codeFenceRe  = regexp.MustCompile("```[a-zA-Z]*\n?")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__([^_]+)__`)
	bulletRe     = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+(.+)$`)
	numberedRe   = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+(.+)$`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// FormatReply turns an assistant reply into IRC lines of at most
// MaxLineLength bytes. Paragraph breaks become " | ".
func FormatReply(reply string) []string {
	text := cleanMarkdown(reply)
	text = paragraphRe.ReplaceAllString(text, "\x00")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\x00", " | ")
	text = strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))

	return SplitLines(text, MaxLineLength)
}

func cleanMarkdown(text string) string {
	text = codeFenceRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "'$1'")
	text = boldRe.ReplaceAllString(text, "*$1*")
	text = boldUnderRe.ReplaceAllString(text, "*$1*")
	// after bold, which would otherwise eat the inner ** of the header marker
	text = headerRe.ReplaceAllString(text, "*** $1 ***")
	text = bulletRe.ReplaceAllString(text, "• $1")
	text = numberedRe.ReplaceAllString(text, "• $1")
	text = linkRe.ReplaceAllString(text, "$1 $2")
	return text
}

// SplitLines cuts text into chunks of at most max bytes, preferring sentence
// ends, then other punctuation, then spaces. Runes are never split.
func SplitLines(text string, max int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= max {
			chunks = append(chunks, text)
			break
		}

		cut := breakPoint(text, max)
		if chunk := strings.TrimSpace(text[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[cut:])
	}
	return chunks
}

// breakPoint returns n with 0 < n <= max such that text[:n] is a good chunk.
// len(text) must be greater than max.
func breakPoint(text string, max int) int {
	lowest := max - 50
	if lowest < 1 {
		lowest = 1
	}

	for _, set := range []string{".!?", ",;:", " "} {
		for i := max - 1; i >= lowest; i-- {
			if strings.IndexByte(set, text[i]) >= 0 && (set == " " || text[i+1] == ' ') {
				return i + 1
			}
		}
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		// a single rune wider than max
		_, size := utf8.DecodeRuneInString(text)
		return size
	}
	return cut
}
