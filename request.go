package ehttp

import (
	"strconv"
	"strings"
	"time"

	"github.com/kamocat/ehttp/hdr"
	"github.com/kamocat/ehttp/query"
	"github.com/kamocat/ehttp/route"
	"github.com/kamocat/ehttp/step"
)

// Request is one parsed HTTP request. Body is nil until the body phase
// completes; handlers borrow it for one dispatch and must copy anything
// they need past a yield boundary.
type Request struct {
	Method          string // literal wire method, uppercased, pre-upgrade
	EffectiveMethod route.Method
	Path            string
	Query           *query.Values
	Headers         hdr.Header
	Body            []byte

	// PathParams holds the route pattern's captured groups, in order,
	// filled in by the connection coroutine once a route has matched.
	PathParams []string
}

// parsePhase enumerates the request parser's own sub-states, distinct
// from (but driven by) the connection's reading states.
type parsePhase int

const (
	phaseRequestLine parsePhase = iota
	phaseHeaders
	phaseBody
	phaseDone
)

// RequestParser drives a Reader through request-line, headers, and
// body, producing a *Request. One Poll performs at most one underlying
// reader step plus a small amount of parsing.
type RequestParser struct {
	headerReader *Reader
	bodyReader   *Reader
	maxLineSize  int
	maxBodyBytes int
	deadline     time.Time

	phase            parsePhase
	line             step.Producer[[]byte]
	body             step.Producer[[]byte]
	req              Request
	headerBytesSoFar int
}

// NewRequestParser builds a parser reading the request line and headers
// from headerReader (capacity maxLineSize) and, once Content-Length is
// known, the body from bodyReader (capacity maxBodyBytes).
func NewRequestParser(headerReader, bodyReader *Reader, maxLineSize, maxBodyBytes int, deadline time.Time) *RequestParser {
	p := &RequestParser{
		headerReader: headerReader,
		bodyReader:   bodyReader,
		maxLineSize:  maxLineSize,
		maxBodyBytes: maxBodyBytes,
		deadline:     deadline,
		req:          Request{Headers: make(hdr.Header)},
	}
	p.line = headerReader.ReadLine(deadline, maxLineSize)
	return p
}

// Poll advances the parser by one step.
func (p *RequestParser) Poll() step.Result[*Request] {
	switch p.phase {
	case phaseRequestLine:
		return p.pollRequestLine()
	case phaseHeaders:
		return p.pollHeaders()
	case phaseBody:
		return p.pollBody()
	default:
		return step.Ok(&p.req)
	}
}

func (p *RequestParser) pollRequestLine() step.Result[*Request] {
	r := p.line.Poll()
	switch r.Status {
	case step.Suspend:
		return step.Suspended[*Request]()
	case step.Failed:
		return step.Err[*Request](r.Err)
	case step.Progress:
		return step.Result[*Request]{Status: step.Progress}
	}
	p.headerBytesSoFar += len(r.Value) + 2
	if err := p.parseRequestLine(string(r.Value)); err != nil {
		return step.Err[*Request](err)
	}
	p.phase = phaseHeaders
	p.line = p.headerReader.ReadLine(p.deadline, p.maxLineSize)
	return step.Result[*Request]{Status: step.Progress}
}

func (p *RequestParser) parseRequestLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return ErrBadRequest
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || !isUpperAlpha(method) {
		return ErrBadRequest
	}
	// WEBSOCKET is reserved: never accepted as a literal wire method,
	// only synthesized by upgrade detection.
	if route.Method(method) == route.WEBSOCKET {
		return ErrBadRequest
	}
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return ErrBadRequest
	}
	path, rawQuery := target, ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path, rawQuery = target[:i], target[i+1:]
	}
	q, err := query.Parse(rawQuery)
	if err != nil {
		return ErrBadRequest
	}
	p.req.Method = method
	p.req.Path = path
	p.req.Query = q
	return nil
}

func isUpperAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func (p *RequestParser) pollHeaders() step.Result[*Request] {
	r := p.line.Poll()
	switch r.Status {
	case step.Suspend:
		return step.Suspended[*Request]()
	case step.Failed:
		return step.Err[*Request](r.Err)
	case step.Progress:
		return step.Result[*Request]{Status: step.Progress}
	}
	line := r.Value
	p.headerBytesSoFar += len(line) + 2
	if p.headerBytesSoFar > p.maxLineSize {
		return step.Err[*Request](ErrRequestTooLarge)
	}
	if len(line) == 0 {
		return p.finishHeaders()
	}
	// Continuation lines (leading whitespace) are rejected.
	if line[0] == ' ' || line[0] == '\t' {
		return step.Err[*Request](ErrBadRequest)
	}
	colon := indexByte(line, ':')
	if colon < 0 {
		return step.Err[*Request](ErrBadRequest)
	}
	name := string(line[:colon])
	value := hdr.TrimOWS(string(line[colon+1:]))
	if !hdr.ValidHeaderFieldName(name) || !hdr.ValidHeaderFieldValue(value) {
		return step.Err[*Request](ErrBadRequest)
	}
	p.req.Headers.Add(name, value)
	p.line = p.headerReader.ReadLine(p.deadline, p.maxLineSize)
	return step.Result[*Request]{Status: step.Progress}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func (p *RequestParser) finishHeaders() step.Result[*Request] {
	p.req.EffectiveMethod = effectiveMethod(p.req.Method, p.req.Headers)

	cl := p.req.Headers.Get(hdr.ContentLength)
	if cl == "" {
		p.req.Body = []byte{}
		p.phase = phaseDone
		return step.Ok(&p.req)
	}
	n, err := strconv.Atoi(cl)
	if err != nil || n < 0 {
		return step.Err[*Request](ErrBadRequest)
	}
	if n > p.maxBodyBytes {
		return step.Err[*Request](ErrRequestTooLarge)
	}
	if n == 0 {
		p.req.Body = []byte{}
		p.phase = phaseDone
		return step.Ok(&p.req)
	}
	// Any body bytes already buffered past the header terminator live in
	// headerReader; seed bodyReader with them before switching sources.
	if carry := p.headerReader.Pending(); carry > 0 {
		move := carry
		if move > n {
			move = n
		}
		carried := p.headerReader.buf[p.headerReader.start : p.headerReader.start+move]
		copy(p.bodyReader.buf, carried)
		p.bodyReader.start, p.bodyReader.end = 0, move
		p.headerReader.start += move
	}
	p.phase = phaseBody
	p.body = p.bodyReader.ReadExactN(n, p.deadline)
	return step.Result[*Request]{Status: step.Progress}
}

func (p *RequestParser) pollBody() step.Result[*Request] {
	r := p.body.Poll()
	switch r.Status {
	case step.Suspend:
		return step.Suspended[*Request]()
	case step.Failed:
		return step.Err[*Request](r.Err)
	case step.Progress:
		return step.Result[*Request]{Status: step.Progress}
	}
	p.req.Body = r.Value
	p.phase = phaseDone
	return step.Ok(&p.req)
}

// effectiveMethod re-labels a request as WEBSOCKET when it carries the
// RFC 6455 upgrade headers.
func effectiveMethod(method string, h hdr.Header) route.Method {
	if strings.EqualFold(h.Get(hdr.Upgrade), "websocket") && connectionHasUpgrade(h) && h.Get(hdr.SecWebSocketKey) != "" {
		return route.WEBSOCKET
	}
	return route.Method(method)
}

func connectionHasUpgrade(h hdr.Header) bool {
	for _, tok := range strings.Split(h.Get(hdr.Connection), ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
			return true
		}
	}
	return false
}
