package ehttp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamocat/ehttp/step"
)

func TestReaderReadLineAcrossMultipleFills(t *testing.T) {
	sock := &testSocket{MaxRecvChunk: 3}
	sock.Feed([]byte("GET /x HTTP/1.1\r\n"))
	clock := newTestClock()
	r := NewReader(sock, clock, 64)

	line := r.ReadLine(time.Time{}, 64)
	res := drainLine(t, line)
	require.Equal(t, step.Done, res.Status)
	assert.Equal(t, "GET /x HTTP/1.1", string(res.Value))
}

func TestReaderEnforcesLimit(t *testing.T) {
	sock := &testSocket{}
	sock.Feed([]byte("aaaaaaaaaa")) // no CRLF, exceeds the tiny limit
	clock := newTestClock()
	r := NewReader(sock, clock, 64)

	line := r.ReadLine(time.Time{}, 4)
	res := drainLine(t, line)
	assert.Equal(t, step.Failed, res.Status)
	assert.ErrorIs(t, res.Err, ErrRequestTooLarge)
}

func TestReaderTimesOut(t *testing.T) {
	sock := &testSocket{BlockRecvUntil: 1000}
	clock := newTestClock()
	r := NewReader(sock, clock, 64)
	deadline := clock.Now()
	clock.Advance(1)

	line := r.ReadLine(deadline, 64)
	res := line.Poll()
	assert.Equal(t, step.Failed, res.Status)
	assert.ErrorIs(t, res.Err, ErrTimeout)
}

func TestReaderConnectionClosedMidRead(t *testing.T) {
	sock := &testSocket{EOFAfterDrain: true}
	sock.Feed([]byte("GET"))
	clock := newTestClock()
	r := NewReader(sock, clock, 64)

	line := r.ReadLine(time.Time{}, 64)
	res := drainLine(t, line)
	assert.Equal(t, step.Failed, res.Status)
	assert.ErrorIs(t, res.Err, ErrConnectionClosed)
}

func TestReaderReadExactNCarriesAcrossFills(t *testing.T) {
	sock := &testSocket{MaxRecvChunk: 2}
	sock.Feed([]byte("hello"))
	clock := newTestClock()
	r := NewReader(sock, clock, 64)

	p := r.ReadExactN(5, time.Time{})
	var res step.Result[[]byte]
	for i := 0; i < 100; i++ {
		res = p.Poll()
		if res.Status != step.Progress && res.Status != step.Suspend {
			break
		}
	}
	require.Equal(t, step.Done, res.Status)
	assert.Equal(t, "hello", string(res.Value))
}

func drainLine(t *testing.T, p step.Producer[[]byte]) step.Result[[]byte] {
	t.Helper()
	res := step.Drive(p, 1000)
	if res.Status == step.Progress {
		t.Fatalf("line reader did not terminate")
	}
	return res
}
