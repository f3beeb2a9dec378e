// Package log records slog output so tests can assert on it.
package log

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Record is one captured log line with its attributes flattened.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

func (r Record) String() string {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteString(" ")
	sb.WriteString(r.Message)
	for k, v := range r.Attrs {
		fmt.Fprintf(&sb, " %s=%s", k, v)
	}
	return sb.String()
}

// Capture collects records written through Logger.
type Capture struct {
	mu      sync.RWMutex
	records []Record
}

func NewCapture() *Capture {
	return &Capture{}
}

// Logger returns a debug level logger writing into c.
func (c *Capture) Logger() *slog.Logger {
	return slog.New(&handler{capture: c})
}

func (c *Capture) add(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// Assert returns an error unless some record at level contains text.
func (c *Capture) Assert(level slog.Level, text string) error {
	if _, ok := c.Find(level, text); ok {
		return nil
	}
	return fmt.Errorf("no %s record containing %q in:\n%s", level, text, c)
}

// Find returns the first record at level whose message contains text.
func (c *Capture) Find(level slog.Level, text string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.Level == level && strings.Contains(r.Message, text) {
			return r, true
		}
	}
	return Record{}, false
}

// Count returns the number of records whose message contains text.
func (c *Capture) Count(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.records {
		if strings.Contains(r.Message, text) {
			n++
		}
	}
	return n
}

func (c *Capture) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Record(nil), c.records...)
}

func (c *Capture) String() string {
	var sb strings.Builder
	for _, r := range c.Records() {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
