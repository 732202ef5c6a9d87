package ehttp

import (
	"strings"

	"github.com/kamocat/ehttp/hdr"
	"github.com/kamocat/ehttp/step"
)

// StaticFileHandler is the static file responder: it prefers a
// pre-compressed ".gz" sibling when the client accepts gzip, and streams
// the chosen file without loading it whole into memory.
type StaticFileHandler struct {
	fs          FileSystem
	chunkSize   int
	contentType func(path string) string
}

// NewStaticFileHandler serves files out of fs, streamed chunkSize bytes
// at a time (0 picks FileBody's own default). contentType maps a request
// path to the Content-Type header value to emit; the responder never
// guesses one itself. A nil contentType omits the header entirely.
func NewStaticFileHandler(fs FileSystem, chunkSize int, contentType func(path string) string) *StaticFileHandler {
	return &StaticFileHandler{fs: fs, chunkSize: chunkSize, contentType: contentType}
}

// Handle matches the Handler signature; register it with
// table.Add(route.GET, pattern, ehttp.Handler(h.Handle)).
func (h *StaticFileHandler) Handle(req *Request) (*Response, step.Producer[[]byte], error) {
	path := req.Path
	if path == "" || path == "/" {
		path = "/index.html"
	}

	servedGzip := false
	candidate := path
	if acceptsGzip(req) && h.fs.Exists(path+".gz") {
		candidate = path + ".gz"
		servedGzip = true
	} else if !h.fs.Exists(path) {
		return NewResponse(StatusNotFound, nil), nil, nil
	}

	size, err := h.fs.Size(candidate)
	if err != nil {
		return NewResponse(StatusNotFound, nil), nil, nil
	}
	stream, err := h.fs.OpenRead(candidate)
	if err != nil {
		return NewResponse(StatusNotFound, nil), nil, nil
	}

	resp := &Response{
		Status: StatusOK,
		Reason: ReasonPhrase(StatusOK),
		Body:   NewFileBody(stream, size, h.chunkSize),
	}
	if servedGzip {
		resp.SetHeader(hdr.ContentEncoding, "gzip")
	}
	if h.contentType != nil {
		if ct := h.contentType(path); ct != "" {
			resp.SetHeader(hdr.ContentType, ct)
		}
	}
	return resp, nil, nil
}

func acceptsGzip(req *Request) bool {
	for _, tok := range strings.Split(req.Headers.Get(hdr.AcceptEncoding), ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "gzip") {
			return true
		}
	}
	return false
}
