// Package ws implements the WebSocket sub-protocol engine: the RFC
// 6455 opening handshake, frame parser, masking, and a symmetric send
// path, all built on the same poll-based, non-blocking substrate as the
// HTTP core.
package ws

import (
	"crypto/sha1"
	"encoding/base64"
)

// GUID is the RFC 6455 §1.3 magic value concatenated with the client's
// Sec-WebSocket-Key before hashing.
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Accept computes Sec-WebSocket-Accept for a given Sec-WebSocket-Key,
// per RFC 6455 §4.2.2: base64(SHA-1(key + GUID)).
func Accept(key string) string {
	sum := sha1.Sum([]byte(key + GUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}
