package replication

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrInvalidConfig = errors.New("invalid replication configuration")
	// ErrUnknownTable means a requested table has no canonical definition.
	ErrUnknownTable = errors.New("unknown table")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

// truncateError keeps row failure messages within maxBytes without splitting
// a rune.
func truncateError(err error, maxBytes int) string {
	if err == nil || maxBytes <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s[:maxBytes])
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}
