package runctx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextSetGet(t *testing.T) {
	c := New("Learn basic Python loops.")
	assert.Equal(t, "Learn basic Python loops.", c.Task())
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Set("research_output", "plan"))
	require.NoError(t, c.Set("content_output", ""))

	v, ok := c.Get("research_output")
	assert.True(t, ok)
	assert.Equal(t, "plan", v)

	v, ok = c.Get("content_output")
	assert.True(t, ok, "empty text is still a written key")
	assert.Equal(t, "", v)

	assert.False(t, c.Has("quiz_output"))
	assert.Equal(t, []string{"research_output", "content_output"}, c.Keys())
}

func TestContextRejectsDuplicateKey(t *testing.T) {
	c := New("task")
	require.NoError(t, c.Set("quiz_output", "first"))

	err := c.Set("quiz_output", "second")
	var dup *DuplicateOutputKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "quiz_output", dup.Key)

	v, _ := c.Get("quiz_output")
	assert.Equal(t, "first", v)
	assert.Equal(t, 1, c.Len())
}

func TestContextSnapshotIsCopy(t *testing.T) {
	c := New("task")
	require.NoError(t, c.Set("review_output", "ok"))

	snap := c.Snapshot()
	snap["review_output"] = "changed"
	snap["extra"] = "x"

	v, _ := c.Get("review_output")
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, c.Len())

	keys := c.Keys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"review_output"}, c.Keys())
}
