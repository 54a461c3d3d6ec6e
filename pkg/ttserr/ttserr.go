// Package ttserr defines the error taxonomy shared across the TT
// datapath core's components.
package ttserr

import "fmt"

// Kind classifies a datapath error so callers can branch on it with
// errors.Is rather than string matching.
type Kind int

const (
	// Invalid marks a bad argument, such as a flow id too large for a flow
	// table to grow to.
	Invalid Kind = iota
	// OutOfMemory marks an allocation failure during table growth or planning.
	OutOfMemory
	// NotWritable marks a frame that can't be made unique for in-place editing.
	NotWritable
	// Busy marks a mutation attempted while the port scheduler is Running.
	Busy
	// NotFound marks a lookup or delete against an empty slot.
	NotFound
	// MissedDeadline is a diagnostic: the send loop fired too late for its slot.
	MissedDeadline
	// Collision is a diagnostic: two flows share an identical send offset.
	Collision
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case OutOfMemory:
		return "out-of-memory"
	case NotWritable:
		return "not-writable"
	case Busy:
		return "busy"
	case NotFound:
		return "not-found"
	case MissedDeadline:
		return "missed-deadline"
	case Collision:
		return "collision"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with context. The zero value is not valid; use New.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is makes errors.Is(err, ttserr.ErrBusy) etc. work against any *Error
// sharing the same Kind, without requiring identical Message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message}
}

func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Sentinel values for errors.Is comparisons against a bare Kind.
var (
	ErrInvalid        = &Error{Kind: Invalid}
	ErrOutOfMemory    = &Error{Kind: OutOfMemory}
	ErrNotWritable    = &Error{Kind: NotWritable}
	ErrBusy           = &Error{Kind: Busy}
	ErrNotFound       = &Error{Kind: NotFound}
	ErrMissedDeadline = &Error{Kind: MissedDeadline}
	ErrCollision      = &Error{Kind: Collision}
)
