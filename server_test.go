package ehttp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

)

func TestServerAcceptsAndServesOneConnection(t *testing.T) {
	ln := &testListener{}
	sock := &testSocket{}
	sock.Feed([]byte("GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	ln.Push(sock)

	cfg := DefaultConfig()
	table := helloTable(t)
	s := NewServer(cfg, table, nil, nil)
	s.SetListener(ln)

	for i := 0; i < 1000 && (s.ActiveConns() == 0 || !strings.Contains(string(sock.Sent), "200 OK")); i++ {
		s.Tick()
	}

	assert.Contains(t, string(sock.Sent), "HTTP/1.1 200 OK")
}

func TestServerRoundRobinFairness(t *testing.T) {
	ln := &testListener{}
	slow := &testSocket{BlockRecvUntil: 10000}
	fast := &testSocket{}
	fast.Feed([]byte("GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	ln.Push(slow)
	ln.Push(fast)

	cfg := DefaultConfig()
	table := helloTable(t)
	s := NewServer(cfg, table, nil, nil)
	s.SetListener(ln)

	for i := 0; i < 50; i++ {
		s.Tick()
	}

	assert.Contains(t, string(fast.Sent), "HTTP/1.1 200 OK")
	assert.Equal(t, 1, s.ActiveConns(), "the slow connection should still be open, the fast one reaped")
}

func TestServerReapsClosedConnections(t *testing.T) {
	ln := &testListener{}
	sock := &testSocket{}
	sock.Feed([]byte("GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	ln.Push(sock)

	cfg := DefaultConfig()
	table := helloTable(t)
	s := NewServer(cfg, table, nil, nil)
	s.SetListener(ln)

	for i := 0; i < 1000; i++ {
		s.Tick()
	}
	require.Equal(t, 0, s.ActiveConns())
}
