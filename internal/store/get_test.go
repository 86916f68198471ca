package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkWithinBounds(t *testing.T) {
	chunk, total, next := Chunk("hello world", 0, 5)
	assert.Equal(t, "hello", chunk)
	assert.Equal(t, 11, total)
	require.NotNil(t, next)
	assert.Equal(t, 5, *next)
}

func TestChunkLastPageHasNoNextOffset(t *testing.T) {
	chunk, total, next := Chunk("hello world", 6, 5)
	assert.Equal(t, "world", chunk)
	assert.Equal(t, 11, total)
	assert.Nil(t, next)
}

func TestChunkOffsetPastEnd(t *testing.T) {
	chunk, total, next := Chunk("hi", 10, 5)
	assert.Equal(t, "", chunk)
	assert.Equal(t, 2, total)
	assert.Nil(t, next)
}

func TestChunkZeroMaxCharsReturnsEverything(t *testing.T) {
	chunk, total, next := Chunk("hello", 0, 0)
	assert.Equal(t, "hello", chunk)
	assert.Equal(t, 5, total)
	assert.Nil(t, next)
}

func TestChunkNegativeOffsetClampsToZero(t *testing.T) {
	chunk, _, _ := Chunk("hello", -3, 2)
	assert.Equal(t, "he", chunk)
}

func TestChunkMultiByteRunes(t *testing.T) {
	chunk, total, next := Chunk("café bar", 0, 4)
	assert.Equal(t, "café", chunk)
	assert.Equal(t, 8, total)
	require.NotNil(t, next)
	assert.Equal(t, 4, *next)
}
