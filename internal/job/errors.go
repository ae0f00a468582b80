package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolTimeout       = errors.New("tool timeout")
	ErrToolFailed        = errors.New("tool failed")
	ErrToolSilentFailure = errors.New("tool produced no output")
	ErrWorkspace         = errors.New("workspace error")
	ErrCancelled         = errors.New("cancelled")

	// ErrRedactionIncomplete is a cause, not a kind: it is carried under
	// ErrToolFailed when redacted text is still extractable.
	ErrRedactionIncomplete = errors.New("redaction incomplete")
)

// stderrLimit bounds the diagnostic tail carried in an Error message.
const stderrLimit = 512

// Error is a classified pipeline failure.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error
	// Op names the stage or tool that failed (e.g. "soffice", "split").
	Op  string
	Msg string

	// ExitCode and Stderr are set for failures of external invocations.
	ExitCode int
	Stderr   string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		if len(tail) > stderrLimit {
			tail = "..." + tail[len(tail)-stderrLimit:]
		}
		b.WriteString(": ")
		b.WriteString(tail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A nil cause returns nil.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	var je *Error
	if errors.As(cause, &je) {
		return cause
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the sentinel classifying err. Context errors map to
// ErrToolTimeout and ErrCancelled; unclassified errors map to ErrToolFailed.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var je *Error
	if errors.As(err, &je) {
		return je.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrToolTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	}
	return ErrToolFailed
}

// IsKind reports whether err is classified as kind.
func IsKind(err, kind error) bool {
	return err != nil && KindOf(err) == kind
}

// KindName returns a stable snake_case token for the kind of err.
func KindName(err error) string {
	switch KindOf(err) {
	case nil:
		return ""
	case ErrInvalidInput:
		return "invalid_input"
	case ErrToolNotFound:
		return "tool_not_found"
	case ErrToolTimeout:
		return "tool_timeout"
	case ErrToolSilentFailure:
		return "tool_silent_failure"
	case ErrWorkspace:
		return "workspace_error"
	case ErrCancelled:
		return "cancelled"
	default:
		return "tool_failed"
	}
}

// Status maps err to an HTTP-style status code.
func Status(err error) int {
	switch KindOf(err) {
	case nil:
		return http.StatusOK
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrToolTimeout:
		return http.StatusGatewayTimeout
	case ErrCancelled:
		// nginx convention for client closed request
		return 499
	default:
		return http.StatusInternalServerError
	}
}
