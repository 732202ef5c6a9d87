package ehttp

import (
	"io"
	"strconv"
	"time"

	"github.com/kamocat/ehttp/hdr"
	"github.com/kamocat/ehttp/step"
)

// BodySource is a response body's byte-chunk generator. Byte slices,
// file streams, and handler-driven generators all implement this one
// interface so the writer iterates them uniformly.
type BodySource interface {
	// NextChunk returns the next chunk. ok==false, err==nil means the
	// body is exhausted. err==ErrWouldBlock means try again later — the
	// chunk isn't ready yet but the body isn't exhausted either (this is
	// how a handler-driven generator cooperates with the writer).
	NextChunk() (data []byte, ok bool, err error)
	// Size returns the body's total length and whether it is knowable
	// up front; the writer emits Content-Length whenever it is.
	Size() (n int64, known bool)
}

// BytesBody is a BodySource over an in-memory byte slice.
type BytesBody struct {
	data []byte
	sent bool
}

// NewBytesBody wraps data as a single-chunk BodySource.
func NewBytesBody(data []byte) *BytesBody { return &BytesBody{data: data} }

func (b *BytesBody) NextChunk() ([]byte, bool, error) {
	if b.sent {
		return nil, false, nil
	}
	b.sent = true
	return b.data, true, nil
}

func (b *BytesBody) Size() (int64, bool) { return int64(len(b.data)), true }

// FileBody streams a FileStream in fixed-size chunks without ever
// loading the whole file into memory.
type FileBody struct {
	stream    FileStream
	size      int64
	chunkSize int
	buf       []byte
	eof       bool
}

// NewFileBody wraps an open FileStream of known size.
func NewFileBody(stream FileStream, size int64, chunkSize int) *FileBody {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &FileBody{stream: stream, size: size, chunkSize: chunkSize, buf: make([]byte, chunkSize)}
}

func (f *FileBody) NextChunk() ([]byte, bool, error) {
	if f.eof {
		return nil, false, nil
	}
	n, err := f.stream.Read(f.buf)
	if n > 0 {
		return f.buf[:n], true, nil
	}
	f.eof = true
	if err != nil && err != io.EOF {
		return nil, false, err
	}
	return nil, false, nil
}

func (f *FileBody) Size() (int64, bool) { return f.size, true }

// GeneratorBody adapts a handler-supplied streaming function into a
// BodySource of unknown size. The writer cannot set Content-Length for
// it and falls back to closing the connection to mark body end.
type GeneratorBody struct {
	Next func() (data []byte, ok bool, err error)
}

func (g *GeneratorBody) NextChunk() ([]byte, bool, error) { return g.Next() }
func (g *GeneratorBody) Size() (int64, bool)              { return 0, false }

// Response is one HTTP response. Headers is an ordered list, emitted
// in registration order, not sorted the way request headers are.
type Response struct {
	Status  int
	Reason  string
	Headers []hdr.Entry
	Body    BodySource
	// Close forces connection shutdown after this response regardless of
	// keep-alive negotiation.
	Close bool
}

// NewResponse builds a Response with a standard reason phrase for
// Status when it is one of the core's own codes, and a BytesBody.
func NewResponse(status int, body []byte) *Response {
	return &Response{
		Status: status,
		Reason: reasonOrDefault(status),
		Body:   NewBytesBody(body),
	}
}

func reasonOrDefault(status int) string {
	if r := ReasonPhrase(status); r != "" {
		return r
	}
	return "OK"
}

// SetHeader sets (replacing any existing) the named header, preserving
// first-registration position if it already exists.
func (r *Response) SetHeader(name, value string) {
	canon := hdr.CanonicalHeaderKey(name)
	for i := range r.Headers {
		if r.Headers[i].Name == canon {
			r.Headers[i].Value = value
			return
		}
	}
	r.Headers = append(r.Headers, hdr.Entry{Name: canon, Value: value})
}

func (r *Response) hasHeader(name string) bool {
	canon := hdr.CanonicalHeaderKey(name)
	for _, e := range r.Headers {
		if e.Name == canon {
			return true
		}
	}
	return false
}

// ResponseWriter is the response serializer: it coalesces the
// status line and headers into one send, then streams body chunks,
// yielding on partial writes and retrying on the next step.
type ResponseWriter struct {
	sock      Socket
	clock     Clock
	deadline  time.Time
	keepAlive bool

	headerBuf   []byte // pending coalesced status+header bytes, not yet fully sent
	minDirect   int    // body chunks >= this size are sent directly, not coalesced
	coalesceBuf []byte
	directBuf   []byte // pending large chunk being sent without coalescing

	resp      *Response
	BytesSent int64 // total bytes sent so far, for access logging
}

// NewResponseWriter prepares to serialize resp. keepAlive is the
// connection coroutine's decision of whether the request asked for
// keep-alive; it decides the emitted Connection header and, with it,
// what WillClose reports. The bytes are written the same way either way.
func NewResponseWriter(sock Socket, clock Clock, deadline time.Time, resp *Response, keepAlive bool, minDirectSend int) *ResponseWriter {
	if minDirectSend <= 0 {
		minDirectSend = 512
	}
	w := &ResponseWriter{sock: sock, clock: clock, deadline: deadline, resp: resp, keepAlive: keepAlive, minDirect: minDirectSend}
	w.headerBuf = w.buildHeaderBlock()
	return w
}

func (w *ResponseWriter) buildHeaderBlock() []byte {
	resp := w.resp
	if size, known := resp.Body.Size(); known && !resp.hasHeader(hdr.ContentLength) {
		resp.SetHeader(hdr.ContentLength, strconv.FormatInt(size, 10))
	}
	keepAlive := w.keepAlive && !resp.Close
	if _, known := resp.Body.Size(); !known {
		// Unknowable size with no chunked encoding means
		// the connection must close to mark the body's end.
		keepAlive = false
	}
	if !resp.hasHeader(hdr.Connection) {
		if keepAlive {
			resp.SetHeader(hdr.Connection, "keep-alive")
		} else {
			resp.SetHeader(hdr.Connection, "close")
			resp.Close = true
		}
	} else if resp.Headers[headerIndex(resp, hdr.Connection)].Value == "close" {
		resp.Close = true
	}

	var buf []byte
	buf = append(buf, "HTTP/1.1 "...)
	buf = append(buf, strconv.Itoa(resp.Status)...)
	buf = append(buf, ' ')
	buf = append(buf, resp.Reason...)
	buf = append(buf, "\r\n"...)
	for _, h := range resp.Headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)
	return buf
}

func headerIndex(r *Response, name string) int {
	canon := hdr.CanonicalHeaderKey(name)
	for i, e := range r.Headers {
		if e.Name == canon {
			return i
		}
	}
	return -1
}

// Poll implements step.Producer[struct{}]; Done means the full response
// (headers and body) has been written.
func (w *ResponseWriter) Poll() step.Result[struct{}] {
	if !w.deadline.IsZero() && !w.clock.Now().Before(w.deadline) {
		return step.Err[struct{}](ErrTimeout)
	}
	if len(w.headerBuf) > 0 {
		return w.sendFrom(&w.headerBuf)
	}
	if len(w.coalesceBuf) > 0 {
		return w.sendFrom(&w.coalesceBuf)
	}
	if len(w.directBuf) > 0 {
		return w.sendFrom(&w.directBuf)
	}
	data, ok, err := w.resp.Body.NextChunk()
	if err == ErrWouldBlock {
		return step.Suspended[struct{}]()
	}
	if err != nil {
		return step.Err[struct{}](ErrIOError)
	}
	if !ok {
		return step.Ok(struct{}{})
	}
	if len(data) >= w.minDirect {
		w.directBuf = append([]byte(nil), data...)
		return w.sendFrom(&w.directBuf)
	}
	w.coalesceBuf = append(w.coalesceBuf, data...)
	return step.Result[struct{}]{Status: step.Progress}
}

func (w *ResponseWriter) sendFrom(buf *[]byte) step.Result[struct{}] {
	n, err := w.sock.Send(*buf)
	w.BytesSent += int64(n)
	if err == ErrWouldBlock {
		*buf = (*buf)[n:]
		return step.Suspended[struct{}]()
	}
	if err != nil {
		return step.Err[struct{}](ErrIOError)
	}
	*buf = (*buf)[n:]
	return step.Result[struct{}]{Status: step.Progress}
}

// WillClose reports whether, once this response finishes writing, the
// connection must close rather than return to reading the next request.
func (w *ResponseWriter) WillClose() bool { return w.resp.Close }
