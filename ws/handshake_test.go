package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcceptRFC6455Example(t *testing.T) {
	// The example key/accept pair from RFC 6455 §1.3.
	got := Accept("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}
