// Package metrics implements the module's Prometheus instrumentation:
// counters and gauges for accepted/active connections, requests served,
// bytes transferred, and WebSocket frame counts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the optional instrumentation sink Server accepts. A nil
// *Recorder makes every call site here a no-op method call on a nil
// receiver, guarded before dereferencing any field.
type Recorder struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	RequestsServed      prometheus.Counter
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
	WSFramesIn          prometheus.Counter
	WSFramesOut         prometheus.Counter
}

// NewRecorder registers a fresh set of metrics on reg (nil means the
// default global registry).
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWithPrefix("ehttp_", reg)
	r := &Recorder{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Connections currently open.",
		}),
		RequestsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_served_total",
			Help: "Total HTTP requests fully served.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytes_read_total",
			Help: "Total bytes read from sockets.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytes_written_total",
			Help: "Total bytes written to sockets.",
		}),
		WSFramesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_frames_in_total",
			Help: "Total WebSocket frames received.",
		}),
		WSFramesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_frames_out_total",
			Help: "Total WebSocket frames sent.",
		}),
	}
	factory.MustRegister(
		r.ConnectionsAccepted, r.ConnectionsActive, r.RequestsServed,
		r.BytesRead, r.BytesWritten, r.WSFramesIn, r.WSFramesOut,
	)
	return r
}

func (r *Recorder) ConnAccepted() {
	if r == nil {
		return
	}
	r.ConnectionsAccepted.Inc()
	r.ConnectionsActive.Inc()
}

func (r *Recorder) ConnClosed() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

func (r *Recorder) RequestServed() {
	if r == nil {
		return
	}
	r.RequestsServed.Inc()
}

func (r *Recorder) BytesTransferred(read, written int64) {
	if r == nil {
		return
	}
	if read > 0 {
		r.BytesRead.Add(float64(read))
	}
	if written > 0 {
		r.BytesWritten.Add(float64(written))
	}
}

func (r *Recorder) WSFrames(in, out int64) {
	if r == nil {
		return
	}
	if in > 0 {
		r.WSFramesIn.Add(float64(in))
	}
	if out > 0 {
		r.WSFramesOut.Add(float64(out))
	}
}
