package watcher

import "time"

type debounceEntry struct {
	timer *time.Timer
	event Event
}

type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule coalesces bursts of changes to the same path into one event.
func (debouncer *debouncer) schedule(path string, event Event, flush func(string)) {
	if debouncer == nil {
		return
	}
	entry := debouncer.entries[path]
	entry.event = event
	if entry.timer == nil {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(debouncer.duration)
	}
	debouncer.entries[path] = entry
}

func (debouncer *debouncer) pop(path string) (Event, bool) {
	if debouncer == nil {
		return Event{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}
