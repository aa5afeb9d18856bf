// Package logbuf keeps the bounded, human-readable activity log.
package logbuf

import (
	"strings"
	"sync"

	list "github.com/bahlo/generic-list-go"
)

const (
	// MinCapacity is the smallest capacity a Buffer accepts
	MinCapacity = 50
	// DefaultCapacity is used when logging detections without debug output
	DefaultCapacity = 100
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Buffer is a fixed-capacity FIFO of single-line strings.
//
// Shrinking the capacity never truncates by itself: the next Append evicts
// down to the new limit.
//
// All methods are thread-safe.
type Buffer struct {
	mu       sync.RWMutex
	lines    *list.List[string]
	capacity int
}

// NewBuffer creates a buffer with the given capacity (floored at MinCapacity)
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		lines:    list.New[string](),
		capacity: max(capacity, MinCapacity),
	}
}

// Append adds a line at the tail, evicting from the head while over capacity.
// Blank input is ignored; embedded line breaks are replaced by spaces.
func (b *Buffer) Append(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	line = lineBreaks.Replace(line)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines.PushBack(line)
	for b.lines.Len() > b.capacity {
		b.lines.Remove(b.lines.Front())
	}
}

// Render joins all lines with "\n" and a trailing newline; an empty buffer renders as ""
func (b *Buffer) Render() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.lines.Len() == 0 {
		return ""
	}
	var sb strings.Builder
	for e := b.lines.Front(); e != nil; e = e.Next() {
		sb.WriteString(e.Value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Lines returns a copy of the buffered lines, oldest first
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, b.lines.Len())
	for e := b.lines.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out
}

// Clear removes all lines
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines.Init()
}

// SetCapacity changes the capacity (floored at MinCapacity). Existing lines are kept
// until the next Append.
func (b *Buffer) SetCapacity(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = max(n, MinCapacity)
}

// Capacity returns the current capacity
func (b *Buffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capacity
}

// Len returns the number of buffered lines
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lines.Len()
}
