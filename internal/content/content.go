package content

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxLength is the tweet limit in Unicode code points, measured after trimming.
const MaxLength = 280

var (
	ErrEmpty   = errors.New("content is empty")
	ErrTooLong = errors.New("content is too long")
)

// Reason codes returned to clients in 400 responses.
const (
	ReasonEmpty   = "empty"
	ReasonTooLong = "too_long"
)

// Valid is trimmed content that passed Validate. The zero value is not valid.
type Valid struct {
	text string
}

func (v Valid) String() string { return v.text }

// Validate trims raw and checks 1 <= code points <= MaxLength.
func Validate(raw string) (Valid, error) {
	trimmed := strings.TrimSpace(raw)

	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return Valid{}, ErrEmpty
	case n > MaxLength:
		return Valid{}, ErrTooLong
	}

	return Valid{text: trimmed}, nil
}

var escaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// Sanitize escapes angle brackets only. Quotes and ampersands are left as is,
// which keeps Sanitize idempotent.
func Sanitize(raw string) string {
	return escaper.Replace(raw)
}

func Reason(err error) string {
	switch {
	case errors.Is(err, ErrEmpty):
		return ReasonEmpty
	case errors.Is(err, ErrTooLong):
		return ReasonTooLong
	default:
		return ""
	}
}
