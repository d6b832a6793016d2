package format

import (
	"errors"
	"fmt"
)

// Configuration errors, returned while compiling a format.
var (
	ErrInvalidPattern  = errors.New("invalid pattern")
	ErrUnknownRounding = errors.New("unknown rounding mode")
	ErrUnknownLocale   = errors.New("unknown locale")
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrUnknownTimezone = errors.New("unknown timezone")
)

// Runtime errors, returned while parsing or formatting a value.
var (
	ErrUnparseable       = errors.New("unparseable text")
	ErrRoundingNecessary = errors.New("rounding necessary")
)

// ParseError reports text that does not match a format. Offset is the byte
// position at which matching stopped.
type ParseError struct {
	Text    string
	Pattern string
	Offset  int
	Reason  string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("cannot parse %q with pattern %q at offset %d", e.Text, e.Pattern, e.Offset)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap makes errors.Is(err, ErrUnparseable) hold for every ParseError.
func (*ParseError) Unwrap() error {
	return ErrUnparseable
}

func patternError(pattern, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidPattern, pattern, reason)
}
