package ehttp

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kamocat/ehttp/hdr"
	"github.com/kamocat/ehttp/metrics"
	"github.com/kamocat/ehttp/route"
	"github.com/kamocat/ehttp/step"
	"github.com/kamocat/ehttp/ws"
)

// connState enumerates a connection's lifecycle states.
type connState int

const (
	stateReadingRequest connState = iota
	stateDispatching
	stateWriting
	stateWSOpen
	stateClosing
	stateClosed
)

// Conn is the connection coroutine: a single Socket driven through
// request parsing, route dispatch, response writing, and, for an
// upgraded route, an open-ended WebSocket session, one bounded step at
// a time.
type Conn struct {
	ID string

	sock    Socket
	clock   Clock
	cfg     Config
	table   *route.Table
	logger  Logger
	metrics *metrics.Recorder

	state connState

	headerReader *Reader
	bodyReader   *Reader
	parser       *RequestParser
	deadline     time.Time

	req    *Request
	writer *ResponseWriter

	wsConn           *ws.Conn
	wsSession        step.Producer[struct{}]
	wsCloser         step.Producer[struct{}]
	pendingWSHandler func()

	startedAt    time.Time
	reportedRead int64
}

// NewConn prepares a connection coroutine over an already-accepted
// Socket. id should be unique per connection (the scheduler mints a
// uuid per accept).
func NewConn(id string, sock Socket, clock Clock, cfg Config, table *route.Table, logger Logger, rec *metrics.Recorder) *Conn {
	c := &Conn{
		ID:      id,
		sock:    sock,
		clock:   clock,
		cfg:     cfg,
		table:   table,
		logger:  logger,
		metrics: rec,
	}
	if c.logger != nil {
		c.logger = c.logger.Session("conn")
	}
	c.headerReader = NewReader(sock, clock, cfg.MaxRequestLineSize)
	c.bodyReader = NewReader(sock, clock, cfg.MaxBodyBytes)
	c.beginRequest()
	return c
}

func (c *Conn) beginRequest() {
	c.deadline = c.clock.Now().Add(c.cfg.RequestTimeout())
	c.parser = NewRequestParser(c.headerReader, c.bodyReader, c.cfg.MaxRequestLineSize, c.cfg.MaxBodyBytes, c.deadline)
	c.req = nil
	c.startedAt = c.clock.Now()
	c.state = stateReadingRequest
}

// Closed reports whether this connection is finished and may be reaped
// by the scheduler.
func (c *Conn) Closed() bool { return c.state == stateClosed }

// Step advances the connection by one bounded unit of work: one
// read-or-write attempt plus a small amount of parsing. It never
// blocks.
func (c *Conn) Step() {
	switch c.state {
	case stateReadingRequest:
		c.stepReading()
	case stateDispatching:
		c.stepDispatch()
	case stateWriting:
		c.stepWriting()
	case stateWSOpen:
		c.stepWSOpen()
	case stateClosing:
		c.stepClosing()
	}
}

func (c *Conn) stepReading() {
	r := c.parser.Poll()
	switch r.Status {
	case step.Suspend, step.Progress:
		return
	case step.Failed:
		c.failRequest(r.Err)
		return
	}
	c.req = r.Value
	c.state = stateDispatching
}

// failRequest synthesizes an error response, or drops the connection
// outright for errors with no status mapping (e.g. an I/O error or an
// orderly close before a complete request).
func (c *Conn) failRequest(err error) {
	if err == ErrConnectionClosed {
		c.shutdown()
		return
	}
	status, ok := StatusForError(err)
	if !ok {
		c.shutdown()
		return
	}
	// The request deadline may already have fired (that is exactly how a
	// 408 arises); grant the error response its own write budget so it
	// actually reaches the peer before the close.
	c.deadline = c.clock.Now().Add(c.cfg.RequestTimeout())
	resp := NewResponse(status, nil)
	resp.Close = true
	c.startWriting(resp)
}

func (c *Conn) stepDispatch() {
	entry, groups, found := c.table.Match(c.req.EffectiveMethod, c.req.Path)
	if !found {
		c.startWriting(NewResponse(StatusNotFound, nil))
		return
	}
	c.req.PathParams = groups

	if c.req.EffectiveMethod == route.WEBSOCKET {
		c.dispatchUpgrade(entry)
		return
	}

	handler, ok := entry.Handler.(Handler)
	if !ok {
		c.reportHandlerError(ErrBadRequest)
		return
	}
	resp, bodyGen, err := handler(c.req)
	if err != nil {
		c.reportHandlerError(err)
		return
	}
	if resp != nil && bodyGen != nil {
		c.reportHandlerError(ErrBadRequest)
		return
	}
	if resp == nil && bodyGen == nil {
		c.reportHandlerError(ErrBadRequest)
		return
	}
	if bodyGen != nil {
		resp = &Response{Status: StatusOK, Reason: ReasonPhrase(StatusOK), Body: newProducerBody(bodyGen)}
	}
	c.startWriting(resp)
}

func (c *Conn) reportHandlerError(err error) {
	logHandlerError(c.logger, c.ID, &HandlerError{Err: err})
	resp := NewResponse(StatusInternalError, nil)
	resp.Close = true
	c.startWriting(resp)
}

func (c *Conn) dispatchUpgrade(entry route.Entry) {
	handler, ok := entry.Handler.(WSHandler)
	if !ok {
		c.reportHandlerError(ErrBadRequest)
		return
	}
	if c.req.Headers.Get(hdr.SecWebSocketVer) != "13" {
		c.startWriting(NewResponse(StatusBadRequest, nil))
		return
	}
	key := c.req.Headers.Get(hdr.SecWebSocketKey)
	if key == "" {
		c.startWriting(NewResponse(StatusBadRequest, nil))
		return
	}

	resp := &Response{Status: StatusSwitchingProtocols, Reason: ReasonPhrase(StatusSwitchingProtocols), Body: NewBytesBody(nil)}
	resp.SetHeader(hdr.Upgrade, "websocket")
	resp.SetHeader(hdr.Connection, "Upgrade")
	resp.SetHeader(hdr.SecWebSocketAcc, ws.Accept(key))

	// Bytes past the header terminator may already sit in the header
	// reader's buffer (a client is free to send its first frame without
	// waiting for the 101); replay them ahead of the socket.
	var wsSock ws.Socket = c.sock
	if carry := c.headerReader.TakePending(); len(carry) > 0 {
		wsSock = &prefixSocket{carry: carry, sock: c.sock}
	}
	c.wsConn = ws.NewConn(wsSock, c.cfg.MaxWSMessageBytes)
	wsHandler := handler
	req := c.req
	c.wsSession = nil // built once the 101 response finishes writing
	c.pendingWSHandler = func() { c.wsSession = wsHandler(req, c.wsConn) }
	c.startWriting(resp)
}

func (c *Conn) startWriting(resp *Response) {
	keepAlive := !c.requestWantsClose()
	c.writer = NewResponseWriter(c.sock, c.clock, c.deadline, resp, keepAlive, c.cfg.MinDirectSendBytes)
	c.state = stateWriting
}

func (c *Conn) requestWantsClose() bool {
	if c.req == nil {
		return true
	}
	for _, tok := range strings.Split(c.req.Headers.Get(hdr.Connection), ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "close") {
			return true
		}
	}
	return false
}

func (c *Conn) stepWriting() {
	r := c.writer.Poll()
	switch r.Status {
	case step.Suspend, step.Progress:
		return
	case step.Failed:
		c.shutdown()
		return
	}
	if c.req != nil && c.req.EffectiveMethod == route.WEBSOCKET && c.writer.resp.Status == StatusSwitchingProtocols {
		if c.pendingWSHandler != nil {
			c.pendingWSHandler()
			c.pendingWSHandler = nil
		}
		c.state = stateWSOpen
		return
	}
	c.logAccess()
	c.metrics.RequestServed()
	read := c.headerReader.BytesRead() + c.bodyReader.BytesRead()
	c.metrics.BytesTransferred(read-c.reportedRead, c.writer.BytesSent)
	c.reportedRead = read
	if c.writer.WillClose() {
		c.shutdown()
		return
	}
	// Bytes buffered past this request stay in the reader: the next
	// parser picks them up as the start of the next request line.
	c.beginRequest()
}

// logAccess emits one structured line per completed request. A nil
// logger makes this free.
func (c *Conn) logAccess() {
	if c.logger == nil || c.req == nil {
		return
	}
	c.logger.Info("request",
		zap.String("conn_id", c.ID),
		zap.String("method", c.req.Method),
		zap.String("effective_method", string(c.req.EffectiveMethod)),
		zap.String("path", c.req.Path),
		zap.Int("status", c.writer.resp.Status),
		zap.Int64("bytes_written", c.writer.BytesSent),
		zap.Duration("duration", c.clock.Now().Sub(c.startedAt)),
	)
}

func (c *Conn) stepWSOpen() {
	if c.wsSession == nil {
		c.state = stateClosing
		return
	}
	r := c.wsSession.Poll()
	switch r.Status {
	case step.Suspend, step.Progress:
		return
	case step.Failed:
		// A peer CLOSE frame surfaces from ReadMessage as
		// ConnectionClosed; that is a normal session end, not a handler
		// failure.
		if !errors.Is(r.Err, ws.ErrConnectionClosed) {
			logHandlerError(c.logger, c.ID, &HandlerError{Err: r.Err})
		}
	}
	c.state = stateClosing
}

func (c *Conn) stepClosing() {
	if c.wsConn == nil || (c.wsCloser == nil && c.wsConn.CloseSent()) {
		c.shutdown()
		return
	}
	if c.wsCloser == nil {
		c.wsCloser = c.wsConn.SendClose(1000, "")
	}
	r := c.wsCloser.Poll()
	switch r.Status {
	case step.Suspend, step.Progress:
		return
	}
	c.shutdown()
}

func (c *Conn) shutdown() {
	_ = c.sock.Close()
	c.state = stateClosed
	if c.wsConn != nil {
		c.metrics.WSFrames(c.wsConn.FramesIn(), c.wsConn.FramesOut())
	}
	c.metrics.ConnClosed()
}

// prefixSocket replays carried-over bytes before reading from the real
// socket; writes pass straight through.
type prefixSocket struct {
	carry []byte
	sock  Socket
}

func (p *prefixSocket) RecvInto(buf []byte) (int, error) {
	if len(p.carry) > 0 {
		n := copy(buf, p.carry)
		p.carry = p.carry[n:]
		return n, nil
	}
	return p.sock.RecvInto(buf)
}

func (p *prefixSocket) Send(data []byte) (int, error) { return p.sock.Send(data) }
