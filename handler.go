package ehttp

import (
	"github.com/kamocat/ehttp/step"
	"github.com/kamocat/ehttp/ws"
)

// Handler is a registered route's callback. It returns exactly one of
// resp or bodyGen, never both. Returning both non-nil, or both nil with
// a nil error, is a programming error reported as a HandlerError.
type Handler func(req *Request) (resp *Response, bodyGen step.Producer[[]byte], err error)

// WSHandler drives an upgraded connection's entire WebSocket session.
// It returns a step.Producer the connection coroutine polls
// once per tick until Done or Failed; the handler is expected to call
// conn.ReadMessage/WriteMessage internally and suspend by returning
// step.Suspend from its own Poll when neither is ready.
type WSHandler func(req *Request, conn *ws.Conn) step.Producer[struct{}]

// producerBody adapts a handler's step.Producer[[]byte] body generator
// into a BodySource. The producer is treated as a single resumable
// computation whose eventual Done value is the complete body (it may
// suspend repeatedly while its own upstream data source, e.g. a sensor
// poll, isn't ready yet) — NextChunk surfaces that one completed value
// once, then reports exhaustion.
type producerBody struct {
	p    step.Producer[[]byte]
	done bool
}

func newProducerBody(p step.Producer[[]byte]) *producerBody {
	return &producerBody{p: p}
}

func (g *producerBody) NextChunk() ([]byte, bool, error) {
	if g.done {
		return nil, false, nil
	}
	r := g.p.Poll()
	switch r.Status {
	case step.Progress, step.Suspend:
		return nil, true, ErrWouldBlock
	case step.Done:
		g.done = true
		return r.Value, true, nil
	default:
		g.done = true
		return nil, false, r.Err
	}
}

// Size reports the body as unknown-length, forcing the writer to close
// the connection once it finishes.
func (g *producerBody) Size() (int64, bool) { return 0, false }
