package validator

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const MaxContentLength = 4000

var strictPolicy = bluemonday.StrictPolicy()

// CleanContent strips markup from message text, restores the plain
// characters bluemonday escaped and trims surrounding whitespace.
// Empty results are allowed; the caller decides whether attachments make
// up for it.
func CleanContent(content string) (string, error) {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(content))
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) > MaxContentLength {
		return "", fmt.Errorf("long_content")
	}
	return cleaned, nil
}
