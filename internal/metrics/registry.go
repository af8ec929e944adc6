package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry counts coordinator activity. Counters are cheap enough to
// keep always-on; WriteSummary renders them for the metrics endpoint.
type Registry struct {
	executionsStarted   atomic.Int64
	executionsCompleted atomic.Int64
	executionsFailed    atomic.Int64
	executionsDeduped   atomic.Int64
	writesApplied       atomic.Int64
	writesSkipped       atomic.Int64
	eventsPublished     sync.Map
	eventsDropped       sync.Map
}

var Default = &Registry{}

func (r *Registry) IncExecutionStarted() {
	if r == nil {
		return
	}
	r.executionsStarted.Add(1)
}

func (r *Registry) IncExecutionCompleted() {
	if r == nil {
		return
	}
	r.executionsCompleted.Add(1)
}

func (r *Registry) IncExecutionFailed() {
	if r == nil {
		return
	}
	r.executionsFailed.Add(1)
}

func (r *Registry) IncExecutionDeduped() {
	if r == nil {
		return
	}
	r.executionsDeduped.Add(1)
}

func (r *Registry) IncWriteApplied() {
	if r == nil {
		return
	}
	r.writesApplied.Add(1)
}

func (r *Registry) IncWriteSkipped() {
	if r == nil {
		return
	}
	r.writesSkipped.Add(1)
}

func (r *Registry) IncEventPublished(bus string) {
	incMapCounter(r, &r.eventsPublished, bus)
}

func (r *Registry) IncEventDropped(bus string) {
	incMapCounter(r, &r.eventsDropped, bus)
}

func incMapCounter(r *Registry, counters *sync.Map, key string) {
	if r == nil {
		return
	}
	value, _ := counters.LoadOrStore(key, &atomic.Int64{})
	value.(*atomic.Int64).Add(1)
}

type Snapshot struct {
	ExecutionsStarted   int64
	ExecutionsCompleted int64
	ExecutionsFailed    int64
	ExecutionsDeduped   int64
	WritesApplied       int64
	WritesSkipped       int64
	EventsPublished     map[string]int64
	EventsDropped       map[string]int64
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		ExecutionsStarted:   r.executionsStarted.Load(),
		ExecutionsCompleted: r.executionsCompleted.Load(),
		ExecutionsFailed:    r.executionsFailed.Load(),
		ExecutionsDeduped:   r.executionsDeduped.Load(),
		WritesApplied:       r.writesApplied.Load(),
		WritesSkipped:       r.writesSkipped.Load(),
		EventsPublished:     mapCounters(&r.eventsPublished),
		EventsDropped:       mapCounters(&r.eventsDropped),
	}
}

func mapCounters(counters *sync.Map) map[string]int64 {
	out := map[string]int64{}
	counters.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

func (r *Registry) WriteSummary(w io.Writer) error {
	snapshot := r.Snapshot()

	lines := []string{
		fmt.Sprintf("executions_started %d", snapshot.ExecutionsStarted),
		fmt.Sprintf("executions_completed %d", snapshot.ExecutionsCompleted),
		fmt.Sprintf("executions_failed %d", snapshot.ExecutionsFailed),
		fmt.Sprintf("executions_deduplicated %d", snapshot.ExecutionsDeduped),
		fmt.Sprintf("document_writes_applied %d", snapshot.WritesApplied),
		fmt.Sprintf("document_writes_skipped %d", snapshot.WritesSkipped),
	}
	for bus, count := range snapshot.EventsPublished {
		lines = append(lines, fmt.Sprintf("events_published{bus=%q} %d", bus, count))
	}
	for bus, count := range snapshot.EventsDropped {
		lines = append(lines, fmt.Sprintf("events_dropped{bus=%q} %d", bus, count))
	}
	sort.Strings(lines[6:])

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
