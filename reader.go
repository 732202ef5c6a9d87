package ehttp

import (
	"bytes"
	"time"

	"github.com/kamocat/ehttp/step"
)

// Reader is the bounded line/byte reader: a single fixed-capacity
// byte region filled by non-blocking reads from a Socket, exposing
// read-until-CRLF and read-exact-n-bytes as resumable step.Producers.
type Reader struct {
	sock  Socket
	clock Clock
	buf   []byte // len(buf) == cap always; capacity is the hard ceiling
	start int    // first unconsumed byte
	end   int    // one past the last valid byte

	bytesRead int64 // cumulative across the connection, for metrics
}

// NewReader allocates a Reader with a fixed capacity. No further
// allocation occurs after this call; all buffering happens by copying
// into buf, never by append-style reallocation.
func NewReader(sock Socket, clock Clock, capacity int) *Reader {
	return &Reader{sock: sock, clock: clock, buf: make([]byte, capacity)}
}

// compact slides unconsumed bytes to the front of buf, reclaiming
// space without allocating.
func (r *Reader) compact() {
	if r.start == 0 {
		return
	}
	n := copy(r.buf, r.buf[r.start:r.end])
	r.start = 0
	r.end = n
}

// fillOnce attempts exactly one non-blocking recv, appending into
// whatever room remains after buf[end:]. It never allocates.
func (r *Reader) fillOnce() (n int, err error) {
	r.compact()
	if r.end == len(r.buf) {
		return 0, ErrRequestTooLarge
	}
	n, err = r.sock.RecvInto(r.buf[r.end:])
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrConnectionClosed
	}
	r.end += n
	r.bytesRead += int64(n)
	return n, nil
}

// Pending reports how many unconsumed bytes are currently buffered.
func (r *Reader) Pending() int { return r.end - r.start }

// BytesRead reports the total bytes this Reader has pulled off its
// socket since construction.
func (r *Reader) BytesRead() int64 { return r.bytesRead }

// TakePending removes and returns a copy of all unconsumed buffered
// bytes. The connection coroutine uses it on upgrade to hand bytes the
// header read over-buffered (e.g. a WebSocket frame sent on the heels
// of the handshake) to the frame engine.
func (r *Reader) TakePending() []byte {
	if r.start == r.end {
		return nil
	}
	out := append([]byte(nil), r.buf[r.start:r.end]...)
	r.start, r.end = 0, 0
	return out
}

// lineReader implements step.Producer[[]byte] for read-until-CRLF.
type lineReader struct {
	r        *Reader
	deadline time.Time
	limit    int
}

// ReadLine returns a Producer that yields the next CRLF-terminated line
// (CRLF excluded), enforcing deadline and the byte limit. limit bounds
// total buffered bytes, not just this one line, so a request line plus
// its headers stays within a single cap.
func (r *Reader) ReadLine(deadline time.Time, limit int) step.Producer[[]byte] {
	return &lineReader{r: r, deadline: deadline, limit: limit}
}

func (l *lineReader) Poll() step.Result[[]byte] {
	r := l.r
	if !l.deadline.IsZero() && !r.clock.Now().Before(l.deadline) {
		return step.Err[[]byte](ErrTimeout)
	}
	if idx := bytes.Index(r.buf[r.start:r.end], crlf); idx >= 0 {
		line := r.buf[r.start : r.start+idx]
		r.start += idx + 2
		return step.Ok(line)
	}
	if r.Pending() >= l.limit {
		return step.Err[[]byte](ErrRequestTooLarge)
	}
	n, err := r.fillOnce()
	switch {
	case err == ErrWouldBlock:
		return step.Suspended[[]byte]()
	case err != nil:
		return step.Err[[]byte](err)
	case n > 0:
		return step.Result[[]byte]{Status: step.Progress}
	default:
		return step.Suspended[[]byte]()
	}
}

var crlf = []byte("\r\n")

// exactReader implements step.Producer[[]byte] for read-exact-n-bytes.
type exactReader struct {
	r        *Reader
	n        int
	deadline time.Time
}

// ReadExactN returns a Producer that yields exactly n bytes once
// available. n must not exceed the Reader's capacity.
func (r *Reader) ReadExactN(n int, deadline time.Time) step.Producer[[]byte] {
	return &exactReader{r: r, n: n, deadline: deadline}
}

func (e *exactReader) Poll() step.Result[[]byte] {
	r := e.r
	if !e.deadline.IsZero() && !r.clock.Now().Before(e.deadline) {
		return step.Err[[]byte](ErrTimeout)
	}
	if r.Pending() >= e.n {
		data := r.buf[r.start : r.start+e.n]
		r.start += e.n
		return step.Ok(data)
	}
	// Receive no further than the n-th byte, so bytes past it (the next
	// request, on a keep-alive connection) stay on the socket.
	r.compact()
	room := r.buf[r.end:]
	if want := e.n - r.Pending(); want < len(room) {
		room = room[:want]
	}
	n, err := r.sock.RecvInto(room)
	if err == nil && n == 0 {
		err = ErrConnectionClosed
	}
	if err == nil {
		r.end += n
		r.bytesRead += int64(n)
	}
	switch {
	case err == ErrWouldBlock:
		return step.Suspended[[]byte]()
	case err != nil:
		return step.Err[[]byte](err)
	case n > 0:
		return step.Result[[]byte]{Status: step.Progress}
	default:
		return step.Suspended[[]byte]()
	}
}
