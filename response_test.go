package ehttp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamocat/ehttp/step"
)

func drainWrite(t *testing.T, w *ResponseWriter) step.Result[struct{}] {
	t.Helper()
	for i := 0; i < 10000; i++ {
		res := w.Poll()
		if res.Status != step.Progress && res.Status != step.Suspend {
			return res
		}
	}
	t.Fatalf("response writer did not terminate")
	return step.Result[struct{}]{}
}

func TestResponseWriterSimpleBody(t *testing.T) {
	sock := &testSocket{}
	clock := newTestClock()
	resp := NewResponse(StatusOK, []byte("hi"))
	resp.SetHeader("Content-Type", "text/plain")
	w := NewResponseWriter(sock, clock, time.Time{}, resp, true, 512)

	res := drainWrite(t, w)
	require.Equal(t, step.Done, res.Status)
	out := string(sock.Sent)
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Length: 2\r\n")
	assert.Contains(t, out, "Connection: keep-alive\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nhi"))
}

func TestResponseWriterPartialWriteRetries(t *testing.T) {
	sock := &testSocket{SendCap: 5}
	clock := newTestClock()
	resp := NewResponse(StatusOK, []byte("hello world"))
	w := NewResponseWriter(sock, clock, time.Time{}, resp, true, 512)

	res := drainWrite(t, w)
	require.Equal(t, step.Done, res.Status)
	assert.True(t, strings.HasSuffix(string(sock.Sent), "hello world"))
}

func TestResponseWriterCloseForUnknownSize(t *testing.T) {
	sock := &testSocket{}
	clock := newTestClock()
	resp := &Response{Status: StatusOK, Reason: "OK", Body: &GeneratorBody{
		Next: func() ([]byte, bool, error) { return nil, false, nil },
	}}
	w := NewResponseWriter(sock, clock, time.Time{}, resp, true, 512)
	res := drainWrite(t, w)
	require.Equal(t, step.Done, res.Status)
	assert.True(t, w.WillClose())
	assert.Contains(t, string(sock.Sent), "Connection: close\r\n")
}

func TestResponseWriterHonorsExplicitClose(t *testing.T) {
	sock := &testSocket{}
	clock := newTestClock()
	resp := NewResponse(StatusOK, []byte("x"))
	resp.Close = true
	w := NewResponseWriter(sock, clock, time.Time{}, resp, true, 512)
	drainWrite(t, w)
	assert.True(t, w.WillClose())
	assert.Contains(t, string(sock.Sent), "Connection: close\r\n")
}

func TestResponseWriterTimesOut(t *testing.T) {
	sock := &testSocket{BlockRecvUntil: 0}
	clock := newTestClock()
	resp := NewResponse(StatusOK, []byte("x"))
	deadline := clock.Now()
	clock.Advance(1)
	w := NewResponseWriter(sock, clock, deadline, resp, true, 512)
	res := w.Poll()
	assert.Equal(t, step.Failed, res.Status)
	assert.ErrorIs(t, res.Err, ErrTimeout)
}
