package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamocat/ehttp/step"
)

// recordingSocket layers outbound recording on top of fakeSocket so
// tests can assert on what the Conn sent (e.g. an auto-PONG).
type recordingSocket struct {
	fakeSocket
	sent [][]byte
}

func (r *recordingSocket) Send(data []byte) (int, error) {
	r.sent = append(r.sent, append([]byte(nil), data...))
	return len(data), nil
}

func driveMessage(t *testing.T, p step.Producer[Message]) step.Result[Message] {
	t.Helper()
	for i := 0; i < 10000; i++ {
		r := p.Poll()
		if r.Status == step.Suspend {
			t.Fatalf("message reader suspended with no more input available")
		}
		if r.Status != step.Progress {
			return r
		}
	}
	t.Fatalf("message reader did not terminate")
	return step.Result[Message]{}
}

func TestConnReadMessageSingleFrame(t *testing.T) {
	wire := maskedFrame(OpText, []byte("hello"), true)
	sock := &recordingSocket{fakeSocket: fakeSocket{in: wire}}
	c := NewConn(sock, 0)
	r := driveMessage(t, c.ReadMessage(0))
	require.Equal(t, step.Done, r.Status)
	assert.Equal(t, Text, r.Value.Type)
	assert.Equal(t, "hello", string(r.Value.Data))
}

func TestConnReadMessageReassemblesFragments(t *testing.T) {
	var wire []byte
	wire = append(wire, maskedFrame(OpText, []byte("hel"), false)...)
	wire = append(wire, maskedFrame(OpContinuation, []byte("lo "), false)...)
	wire = append(wire, maskedFrame(OpContinuation, []byte("world"), true)...)

	sock := &recordingSocket{fakeSocket: fakeSocket{in: wire}}
	c := NewConn(sock, 0)
	r := driveMessage(t, c.ReadMessage(0))
	require.Equal(t, step.Done, r.Status)
	assert.Equal(t, "hello world", string(r.Value.Data))
}

func TestConnAutoRespondsToPing(t *testing.T) {
	var wire []byte
	wire = append(wire, maskedFrame(OpPing, []byte("ping-payload"), true)...)
	wire = append(wire, maskedFrame(OpText, []byte("after"), true)...)

	sock := &recordingSocket{fakeSocket: fakeSocket{in: wire}}
	c := NewConn(sock, 0)
	r := driveMessage(t, c.ReadMessage(0))
	require.Equal(t, step.Done, r.Status)
	assert.Equal(t, "after", string(r.Value.Data))

	require.Len(t, sock.sent, 1)
	pong := sock.sent[0]
	assert.Equal(t, OpPong, pong[0]&0x0F)
	assert.Equal(t, "ping-payload", string(pong[2:]))
}

func TestConnCloseHandshakeEchoesAndReportsClosed(t *testing.T) {
	wire := maskedFrame(OpClose, BuildClosePayload(1000, "bye"), true)
	sock := &recordingSocket{fakeSocket: fakeSocket{in: wire}}
	c := NewConn(sock, 0)
	r := driveMessage(t, c.ReadMessage(0))
	assert.Equal(t, step.Failed, r.Status)
	assert.ErrorIs(t, r.Err, ErrConnectionClosed)
	assert.True(t, c.PeerClosed())
	assert.True(t, c.CloseSent())

	require.Len(t, sock.sent, 1)
	assert.Equal(t, OpClose, sock.sent[0][0]&0x0F)
}

func TestConnRejectsInterleavedDataFrameMidFragment(t *testing.T) {
	var wire []byte
	wire = append(wire, maskedFrame(OpText, []byte("partial"), false)...)
	wire = append(wire, maskedFrame(OpBinary, []byte("oops"), true)...)

	sock := &recordingSocket{fakeSocket: fakeSocket{in: wire}}
	c := NewConn(sock, 0)
	r := driveMessage(t, c.ReadMessage(0))
	assert.Equal(t, step.Failed, r.Status)
	assert.ErrorIs(t, r.Err, ErrProtocolError)
}

func TestConnWriteMessageBuildsUnmaskedFrame(t *testing.T) {
	sock := &recordingSocket{}
	c := NewConn(sock, 0)
	sender := c.WriteMessage(OpText, []byte("reply"))
	for {
		r := sender.Poll()
		if r.Status == step.Done {
			break
		}
		if r.Status == step.Failed {
			t.Fatalf("unexpected send failure: %v", r.Err)
		}
	}
	require.Len(t, sock.sent, 1)
	assert.Equal(t, byte(0x81), sock.sent[0][0])
	assert.Equal(t, "reply", string(sock.sent[0][2:]))
}
