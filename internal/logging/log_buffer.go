package logging

import "sync"

// LogBuffer keeps the most recent entries in a fixed-size ring so the
// status API can show recent activity without external log shipping.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	count   int
}

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{
		entries: make([]LogEntry, size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.entries) {
		index := (b.start + b.count) % len(b.entries)
		b.entries[index] = entry
		b.count++
		return
	}

	b.entries[b.start] = entry
	b.start = (b.start + 1) % len(b.entries)
}

func (b *LogBuffer) List() []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	out := make([]LogEntry, b.count)
	for i := 0; i < b.count; i++ {
		index := (b.start + i) % len(b.entries)
		out[i] = b.entries[index]
	}
	return out
}

func (b *LogBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
