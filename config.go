package ehttp

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server's tuning surface, built either by field
// assignment or loaded from a YAML file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	MaxRequestLineSize int `yaml:"max_request_line_size"`
	MaxBodyBytes       int `yaml:"max_body_bytes"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	Backlog        int `yaml:"backlog"`
	RecvBufferSize int `yaml:"recv_buffer_size"`
	SendBufferSize int `yaml:"send_buffer_size"`

	// MinDirectSendBytes is the body-chunk-size threshold at or above which
	// ResponseWriter sends a chunk directly instead of coalescing it.
	MinDirectSendBytes int `yaml:"min_direct_send_bytes"`

	// MaxWSMessageBytes bounds the payload of each inbound WebSocket
	// frame; 0 means unbounded. It does not bound a message reassembled
	// from several frames: that limit is the one a WebSocket handler
	// passes to ws.Conn.ReadMessage.
	MaxWSMessageBytes int64 `yaml:"max_ws_message_bytes"`

	// StaticRoot, when non-empty, is served by the static file responder
	// for any route wired to it.
	StaticRoot string `yaml:"static_root"`
}

// DefaultConfig returns the library's defaults for a memory-constrained
// host.
func DefaultConfig() Config {
	return Config{
		ListenAddr:            ":8080",
		MaxRequestLineSize:    2048,
		MaxBodyBytes:          16384,
		RequestTimeoutSeconds: 10,
		Backlog:               16,
		RecvBufferSize:        2048,
		SendBufferSize:        2048,
		MinDirectSendBytes:    512,
		MaxWSMessageBytes:     16384,
	}
}

// RequestTimeout is RequestTimeoutSeconds as a time.Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LoadConfigFile reads a YAML config file, starting from DefaultConfig
// so an omitted field keeps its default rather than zeroing out.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
