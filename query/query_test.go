package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	v, err := Parse("name=world&empty=&flag")
	require.NoError(t, err)
	assert.Equal(t, "world", v.Get("name"))
	assert.Equal(t, "", v.Get("empty"))
	assert.True(t, v.Has("flag"))
	assert.Equal(t, []string{"name", "empty", "flag"}, v.Keys())
}

func TestParsePlusAndPercent(t *testing.T) {
	v, err := Parse("q=a+b%20c")
	require.NoError(t, err)
	assert.Equal(t, "a b c", v.Get("q"))
}

func TestParseFirstSeenWins(t *testing.T) {
	v, err := Parse("a=1&a=2")
	require.NoError(t, err)
	assert.Equal(t, "1", v.Get("a"))
}

func TestParseBadEscape(t *testing.T) {
	_, err := Parse("a=%2")
	assert.ErrorIs(t, err, ErrBadEscape)

	_, err = Parse("a=%zz")
	assert.ErrorIs(t, err, ErrBadEscape)
}
