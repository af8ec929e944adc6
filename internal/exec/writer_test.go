package exec

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"cellrun/internal/event"
	"cellrun/internal/kernel"
	"cellrun/internal/logging"
	"cellrun/internal/metrics"
)

func newTestWriter(t *testing.T) (*DocumentWriter, *memStore, *fakeResolver, *event.Bus[DocumentEvent]) {
	t.Helper()
	store := newMemStore()
	store.files["nb.ipynb"] = []byte(sampleNotebook)
	resolver := newFakeResolver()
	bus := event.NewBus[DocumentEvent](context.Background(), event.BusOptions{Name: "writer_test"})
	logger := logging.NewLoggerWithOutput(nil, logging.LevelError, nil)
	writer := NewDocumentWriter(store, resolver, bus, logger, &metrics.Registry{})
	return writer, store, resolver, bus
}

func testResult(count int, text string) kernel.Result {
	return kernel.Result{
		Outputs:        []kernel.Output{{OutputType: "stream", Name: "stdout", Text: text}},
		ExecutionCount: &count,
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	writer, _, resolver, _ := newTestWriter(t)
	documentID, _ := resolver.Index("nb.ipynb")

	changed, err := writer.Apply(documentID, "c1", testResult(1, "2\n"))
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if !changed {
		t.Fatal("first apply reported no change")
	}

	changed, err = writer.Apply(documentID, "c1", testResult(1, "2\n"))
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if changed {
		t.Fatal("identical apply reported a change")
	}
}

func TestApplyMissingCellIsNoop(t *testing.T) {
	writer, _, resolver, _ := newTestWriter(t)
	documentID, _ := resolver.Index("nb.ipynb")

	changed, err := writer.Apply(documentID, "deleted-cell", testResult(1, "2\n"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if changed {
		t.Fatal("apply to deleted cell reported a change")
	}
}

func TestApplyTouchesIdentityOnChange(t *testing.T) {
	writer, _, resolver, _ := newTestWriter(t)
	documentID, _ := resolver.Index("nb.ipynb")

	if _, err := writer.Apply(documentID, "c1", testResult(1, "2\n")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	if len(resolver.touched) != 1 || resolver.touched[0] != "nb.ipynb" {
		t.Fatalf("identity not touched: %v", resolver.touched)
	}
}

func TestApplyConcurrentDistinctCells(t *testing.T) {
	writer, store, resolver, _ := newTestWriter(t)
	documentID, _ := resolver.Index("nb.ipynb")

	wg := sync.WaitGroup{}
	errs := make(chan error, 2)
	for i, cellID := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(count int, cellID string) {
			defer wg.Done()
			if _, err := writer.Apply(documentID, cellID, testResult(count, fmt.Sprintf("out-%s\n", cellID))); err != nil {
				errs <- err
			}
		}(i+1, cellID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("apply: %v", err)
	}

	nb, err := store.Read("nb.ipynb")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, cellID := range []string{"c1", "c2"} {
		cell, ok := nb.Cell(cellID)
		if !ok {
			t.Fatalf("cell %s missing", cellID)
		}
		if cell.ExecutionCount == nil {
			t.Fatalf("cell %s lost its update", cellID)
		}
	}
}

func TestApplyPublishesDocumentEvent(t *testing.T) {
	writer, _, resolver, bus := newTestWriter(t)
	documentID, _ := resolver.Index("nb.ipynb")

	events, cancel := bus.Subscribe()
	defer cancel()

	if _, err := writer.Apply(documentID, "c1", testResult(1, "2\n")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Path != "nb.ipynb" {
			t.Fatalf("unexpected path %s", evt.Path)
		}
		if len(evt.Cells) == 0 {
			t.Fatal("event missing cells payload")
		}
	default:
		t.Fatal("no event published after change")
	}
}
