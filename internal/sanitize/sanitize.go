// Package sanitize cleans user-supplied questions before they reach a prompt.
package sanitize

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxQuestionSize is 4KB.
	DefaultMaxQuestionSize = 4096
	// EnvMaxQuestionSize overrides the default limit.
	EnvMaxQuestionSize = "TABLOOP_MAX_QUESTION_SIZE"
)

var (
	ErrTooLarge    = errors.New("question exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("question contains invalid UTF-8 sequences")
)

// Question enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return.
func Question(input string) (string, error) {
	limit := maxQuestionSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(input, unsafeControl) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if unsafeControl(r) {
			return -1
		}
		return r
	}, input), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

func maxQuestionSize() int {
	if val := os.Getenv(EnvMaxQuestionSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxQuestionSize
}
