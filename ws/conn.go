package ws

import (
	"errors"

	"github.com/kamocat/ehttp/step"
)

// ErrMessageTooLarge marks a fragmented message whose reassembled size
// would exceed the caller's budget; the fixed-memory discipline applies
// to WebSocket messages the same way it applies to HTTP bodies.
var ErrMessageTooLarge = errors.New("ws: message too large")

// MessageType distinguishes a reassembled WebSocket message's opcode
// family.
type MessageType int

const (
	Text MessageType = iota
	Binary
)

func opcodeToType(op byte) MessageType {
	if op == OpBinary {
		return Binary
	}
	return Text
}

// Message is one reassembled application-level WebSocket message: one
// or more data frames joined across continuation frames.
type Message struct {
	Type MessageType
	Data []byte
}

// Conn is the symmetric per-connection WebSocket handle: it owns a
// FrameReader for inbound frames and builds outbound frames on demand.
// It never masks outbound frames (server-to-client frames are always
// unmasked, per RFC 6455 §5.1) and auto-responds to ping and close
// control frames without surfacing them to the caller as messages.
type Conn struct {
	sock        Socket
	frameReader *FrameReader

	closeSent  bool
	peerClosed bool

	framesIn  int64
	framesOut int64
}

// NewConn wraps sock for message-level WebSocket I/O. maxFramePayload
// bounds any single frame's payload; 0 means unbounded.
func NewConn(sock Socket, maxFramePayload int64) *Conn {
	return &Conn{sock: sock, frameReader: NewFrameReader(sock, maxFramePayload)}
}

// PeerClosed reports whether a CLOSE frame has been received from the
// peer.
func (c *Conn) PeerClosed() bool { return c.peerClosed }

// CloseSent reports whether this side has sent (or echoed) a CLOSE
// frame.
func (c *Conn) CloseSent() bool { return c.closeSent }

// FramesIn reports how many complete frames (data and control) have
// been parsed off the wire so far.
func (c *Conn) FramesIn() int64 { return c.framesIn }

// FramesOut reports how many complete frames have been fully sent,
// auto-responses included.
func (c *Conn) FramesOut() int64 { return c.framesOut }

// ReadMessage returns a step.Producer that reassembles the next
// complete text or binary message, transparently answering PING frames
// with PONG and absorbing PONG frames. maxMessageBytes
// bounds the reassembled size across all of a message's fragments; 0
// means unbounded. Done yields the message; Failed with
// ErrConnectionClosed means the peer sent (and this call echoed) a
// CLOSE frame — the connection coroutine should transition to CLOSING.
func (c *Conn) ReadMessage(maxMessageBytes int64) step.Producer[Message] {
	return &messageReader{conn: c, maxMessage: maxMessageBytes}
}

type messageReader struct {
	conn       *Conn
	maxMessage int64

	assembling bool
	msgType    MessageType
	buf        []byte

	autoSend   []byte
	pendingErr error
}

func (m *messageReader) Poll() step.Result[Message] {
	if len(m.autoSend) > 0 {
		n, err := m.conn.sock.Send(m.autoSend)
		m.autoSend = m.autoSend[n:]
		if err == ErrWouldBlock {
			return step.Suspended[Message]()
		}
		if err != nil {
			return step.Err[Message](err)
		}
		if len(m.autoSend) > 0 {
			return step.Suspended[Message]()
		}
		m.conn.framesOut++
		if m.pendingErr != nil {
			return step.Err[Message](m.pendingErr)
		}
		return step.Result[Message]{Status: step.Progress}
	}

	r := m.conn.frameReader.Poll()
	switch r.Status {
	case step.Suspend:
		return step.Suspended[Message]()
	case step.Failed:
		return step.Err[Message](r.Err)
	case step.Progress:
		return step.Result[Message]{Status: step.Progress}
	}

	frame := r.Value
	m.conn.frameReader.Reset()
	m.conn.framesIn++

	switch frame.Opcode {
	case OpPing:
		m.autoSend = BuildFrame(OpPong, frame.Payload, true)
		return step.Result[Message]{Status: step.Progress}

	case OpPong:
		return step.Result[Message]{Status: step.Progress}

	case OpClose:
		m.conn.peerClosed = true
		if !m.conn.closeSent {
			m.autoSend = BuildFrame(OpClose, frame.Payload, true)
			m.conn.closeSent = true
		}
		m.pendingErr = ErrConnectionClosed
		if len(m.autoSend) == 0 {
			return step.Err[Message](ErrConnectionClosed)
		}
		return step.Result[Message]{Status: step.Progress}

	case OpText, OpBinary:
		if m.assembling {
			// A new data frame arrived before the previous fragmented
			// message's FIN — not legal interleaving.
			return step.Err[Message](ErrProtocolError)
		}
		if m.maxMessage > 0 && int64(len(frame.Payload)) > m.maxMessage {
			return step.Err[Message](ErrMessageTooLarge)
		}
		m.msgType = opcodeToType(frame.Opcode)
		m.buf = append(m.buf[:0], frame.Payload...)
		if frame.Fin {
			return step.Ok(Message{Type: m.msgType, Data: m.buf})
		}
		m.assembling = true
		return step.Result[Message]{Status: step.Progress}

	case OpContinuation:
		if !m.assembling {
			return step.Err[Message](ErrProtocolError)
		}
		if m.maxMessage > 0 && int64(len(m.buf)+len(frame.Payload)) > m.maxMessage {
			return step.Err[Message](ErrMessageTooLarge)
		}
		m.buf = append(m.buf, frame.Payload...)
		if frame.Fin {
			m.assembling = false
			return step.Ok(Message{Type: m.msgType, Data: m.buf})
		}
		return step.Result[Message]{Status: step.Progress}

	default:
		return step.Err[Message](ErrProtocolError)
	}
}

// frameSender drives one outbound frame to completion across partial
// writes, the same retry discipline as ResponseWriter.sendFrom in the
// root package.
type frameSender struct {
	conn *Conn
	buf  []byte
	done bool
}

func (s *frameSender) Poll() step.Result[struct{}] {
	if len(s.buf) == 0 {
		s.finish()
		return step.Ok(struct{}{})
	}
	n, err := s.conn.sock.Send(s.buf)
	s.buf = s.buf[n:]
	if err == ErrWouldBlock {
		return step.Suspended[struct{}]()
	}
	if err != nil {
		return step.Err[struct{}](err)
	}
	if len(s.buf) == 0 {
		s.finish()
		return step.Ok(struct{}{})
	}
	return step.Result[struct{}]{Status: step.Progress}
}

func (s *frameSender) finish() {
	if !s.done {
		s.done = true
		s.conn.framesOut++
	}
}

// WriteMessage returns a step.Producer that sends one complete text or
// binary frame, always unfragmented; the server never needs to fragment
// its own output.
func (c *Conn) WriteMessage(opcode byte, payload []byte) step.Producer[struct{}] {
	return &frameSender{conn: c, buf: BuildFrame(opcode, payload, true)}
}

// SendClose returns a step.Producer that sends this side's own CLOSE
// frame, initiating the closing handshake.
func (c *Conn) SendClose(code uint16, reason string) step.Producer[struct{}] {
	c.closeSent = true
	return &frameSender{conn: c, buf: BuildFrame(OpClose, BuildClosePayload(code, reason), true)}
}
