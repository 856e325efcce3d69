package birdc

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural marks a reply whose shape does not match the grammar:
	// truncated input, a missing continuation line, no terminal code.
	ErrStructural = errors.New("birdc: malformed reply")
	// ErrTimestamp marks a time value none of the known spellings accept.
	ErrTimestamp = errors.New("birdc: unparseable timestamp")
	// ErrReply marks a query the daemon itself rejected.
	ErrReply = errors.New("birdc: daemon reported an error")
)

// StructuralError describes where a reply stopped following the grammar.
type StructuralError struct {
	Op     string // decoder name, e.g. "routes"
	Line   string // offending cleaned line, empty when input ran out
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("birdc: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("birdc: %s: %s: %q", e.Op, e.Reason, e.Line)
}

func (e *StructuralError) Unwrap() error {
	return ErrStructural
}

func structural(op, line, reason string) *StructuralError {
	return &StructuralError{Op: op, Line: line, Reason: reason}
}

// TimeError carries the raw value the resolver gave up on.
type TimeError struct {
	Raw string
}

func (e *TimeError) Error() string {
	return fmt.Sprintf("birdc: can not parse datetime: [%s]", e.Raw)
}

func (e *TimeError) Unwrap() error {
	return ErrTimestamp
}

// ReplyError is an error-class reply code returned for a query.
type ReplyError struct {
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("birdc: reply %04d: %s", e.Code, e.Message)
}

func (e *ReplyError) Unwrap() error {
	return ErrReply
}
