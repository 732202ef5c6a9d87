package ehttp

import (
	"errors"

	"github.com/kamocat/ehttp/step"
	"github.com/kamocat/ehttp/ws"
)

// Error kinds the core reports. WouldBlock is not a failure — it is the
// ordinary yield signal a Socket/FileSystem reports when no bytes are
// ready; it never escapes as a Producer Failed result. The first three
// are shared sentinels: a Socket implementation returns the same error
// identity whether the HTTP core or the WebSocket engine is polling it.
var (
	// ErrWouldBlock is returned by a Socket/FileSystem collaborator when
	// it has no data ready. Reader/writer step producers translate this
	// into step.Suspend, never into a Failed result.
	ErrWouldBlock = step.ErrWouldBlock

	// ErrConnectionClosed is a peer orderly close. Before a complete
	// request it is silently swallowed; it is not logged as a
	// HandlerError.
	ErrConnectionClosed = step.ErrConnectionClosed

	// ErrProtocolError is a WebSocket framing violation.
	ErrProtocolError = ws.ErrProtocolError

	// ErrTimeout fires when a connection's deadline elapses mid-read or
	// mid-write.
	ErrTimeout = errors.New("ehttp: timeout")

	// ErrRequestTooLarge fires when buffered bytes would exceed a
	// configured cap (request line + headers, or body).
	ErrRequestTooLarge = errors.New("ehttp: request too large")

	// ErrBadRequest covers malformed request lines, headers, or query
	// strings.
	ErrBadRequest = errors.New("ehttp: bad request")

	// ErrIOError is an unexpected socket error (RST, write failure after
	// timeout, etc).
	ErrIOError = errors.New("ehttp: io error")
)

// HandlerError wraps any failure escaping a user handler. It terminates
// the one connection that produced it and is reported through the
// server's Logger; it never affects other connections.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string { return "ehttp: handler error: " + e.Err.Error() }

func (e *HandlerError) Unwrap() error { return e.Err }

// StatusForError maps an internal error to the HTTP status code the
// connection coroutine should synthesize. ok is false when
// the error carries no direct status (e.g. ErrIOError, where the
// connection is simply dropped).
func StatusForError(err error) (status int, ok bool) {
	switch {
	case errors.Is(err, ErrTimeout):
		return StatusRequestTimeout, true
	case errors.Is(err, ErrRequestTooLarge):
		return StatusPayloadTooLarge, true
	case errors.Is(err, ErrBadRequest):
		return StatusBadRequest, true
	default:
		return 0, false
	}
}

// HTTP status codes emitted by the core.
const (
	StatusSwitchingProtocols = 101
	StatusOK                 = 200
	StatusBadRequest         = 400
	StatusNotFound           = 404
	StatusRequestTimeout     = 408
	StatusPayloadTooLarge    = 413
	StatusInternalError      = 500
)

var reasonPhrases = map[int]string{
	StatusSwitchingProtocols: "Switching Protocols",
	StatusOK:                 "OK",
	StatusBadRequest:         "Bad Request",
	StatusNotFound:           "Not Found",
	StatusRequestTimeout:     "Request Timeout",
	StatusPayloadTooLarge:    "Payload Too Large",
	StatusInternalError:      "Internal Server Error",
}

// ReasonPhrase returns the standard reason phrase for a status code
// emitted by the core, or "" if code isn't one of them.
func ReasonPhrase(code int) string { return reasonPhrases[code] }
