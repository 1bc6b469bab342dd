package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBytes_Deterministic(t *testing.T) {
	a := FromBytes([]byte("hello"))
	b := FromBytes([]byte("hello"))
	assert.Equal(t, a, b)
}

func TestFromBytes_DifferentInputsDiffer(t *testing.T) {
	a := FromBytes([]byte("hello"))
	b := FromBytes([]byte("world"))
	assert.NotEqual(t, a, b)
}

func TestEmpty_IsHashOfEmptyStream(t *testing.T) {
	assert.Equal(t, FromBytes(nil), Empty)
	assert.Equal(t, FromBytes([]byte{}), Empty)
}

func TestFromReader_MatchesFromBytes(t *testing.T) {
	data := []byte("streamed content for hashing")
	want := FromBytes(data)

	got, err := FromReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestString_Is64LowercaseHexChars(t *testing.T) {
	h := FromBytes([]byte("anything"))
	s := h.String()

	assert.Len(t, s, 64)
	assert.Equal(t, strings.ToLower(s), s)
}

func TestParse_RoundTrips(t *testing.T) {
	h := FromBytes([]byte("round trip me"))

	parsed, err := Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParse_RejectsWrongLength(t *testing.T) {
	_, err := Parse("deadbeef")
	assert.Error(t, err)
}

func TestParse_RejectsNonHex(t *testing.T) {
	_, err := Parse(strings.Repeat("z", 64))
	assert.Error(t, err)
}

func TestMarshalUnmarshalText_RoundTrips(t *testing.T) {
	h := FromBytes([]byte("toml round trip"))

	text, err := h.MarshalText()
	require.NoError(t, err)

	var got Hash
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, h, got)
}

func TestIsZero(t *testing.T) {
	var h Hash
	assert.True(t, h.IsZero())
	assert.False(t, Empty.IsZero())
}

func TestShardPath(t *testing.T) {
	h := FromBytes([]byte("shard me"))
	dir, name := h.ShardPath()

	assert.Len(t, dir, 2)
	assert.Equal(t, h.String(), name)
	assert.True(t, strings.HasPrefix(name, dir))
}
