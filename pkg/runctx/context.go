// Package runctx holds the values produced during one pipeline run.
package runctx

import "fmt"

// Context maps output keys to the text the owning stage produced. Each key
// is written at most once. The user's task is carried separately and is not
// an output key.
//
// A Context belongs to a single run and is not safe for concurrent writers.
type Context struct {
	task   string
	values map[string]string
	order  []string
}

// DuplicateOutputKeyError reports a second write to the same key.
type DuplicateOutputKeyError struct {
	Key string
}

func (e *DuplicateOutputKeyError) Error() string {
	return fmt.Sprintf("output key %q already written", e.Key)
}

// New creates an empty context seeded with the user's task.
func New(task string) *Context {
	return &Context{task: task, values: make(map[string]string)}
}

// Task returns the task the run was started with.
func (c *Context) Task() string {
	return c.task
}

// Set stores text under key.
func (c *Context) Set(key, text string) error {
	if _, ok := c.values[key]; ok {
		return &DuplicateOutputKeyError{Key: key}
	}
	c.values[key] = text
	c.order = append(c.order, key)
	return nil
}

// Get returns the text stored under key.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key has been written.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Keys returns the written keys in assignment order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of written keys.
func (c *Context) Len() int {
	return len(c.order)
}

// Snapshot returns a copy of all written values.
func (c *Context) Snapshot() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
