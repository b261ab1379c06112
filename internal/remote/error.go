package remote

import "fmt"

// Kind classifies how a remote stage call failed.
type Kind string

const (
	// KindUnreachable means the remote host could not be reached at all
	// (connection refused, DNS failure, timeout).
	KindUnreachable Kind = "unreachable"
	// KindRemoteError means the service answered with a non-2xx status.
	KindRemoteError Kind = "remote_error"
	// KindEmptyPayload means a 2xx response carried a zero-length body
	// where content was expected.
	KindEmptyPayload Kind = "empty_payload"
	// KindMalformed means a 2xx response body did not parse as the
	// expected shape.
	KindMalformed Kind = "malformed"
)

// Error is the normalized failure of a single remote stage call. Stage
// runners only ever see this type; raw transport errors never cross the
// client boundary.
type Error struct {
	Kind   Kind
	Status int // HTTP status for KindRemoteError, zero otherwise
	Detail string
}

func (e *Error) Error() string {
	if e.Kind == KindRemoteError {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func unreachable(err error) *Error {
	return &Error{Kind: KindUnreachable, Detail: err.Error()}
}

func remoteStatus(status int) *Error {
	return &Error{Kind: KindRemoteError, Status: status, Detail: fmt.Sprintf("unexpected status %d", status)}
}

func malformed(err error) *Error {
	return &Error{Kind: KindMalformed, Detail: err.Error()}
}
