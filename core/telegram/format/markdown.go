package format

import (
	"fmt"
	"regexp"
)

// MarkdownV1 denotes legacy Telegram markdown, the only parse mode the bot sends.
const MarkdownV1 = 1

var mdV1Re = regexp.MustCompile("([_*`\\[])")

// EscapeMarkdown escapes special characters for the given markdown version.
func EscapeMarkdown(text string, version int) (string, error) {
	if version != MarkdownV1 {
		return "", fmt.Errorf("unsupported markdown version: %d", version)
	}
	return mdV1Re.ReplaceAllString(text, `\$1`), nil
}

// MustEscapeV1 escapes text for legacy Markdown.
func MustEscapeV1(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV1)
	return out
}
