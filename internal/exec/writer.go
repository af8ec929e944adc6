package exec

import (
	"encoding/json"
	"sync"
	"time"

	"cellrun/internal/event"
	"cellrun/internal/kernel"
	"cellrun/internal/logging"
	"cellrun/internal/metrics"
	"cellrun/internal/notebook"
)

// DocumentEvent announces that a write-back changed a document. Cells
// carries the full updated cell array, ready to push to clients.
type DocumentEvent struct {
	Path  string          `json:"path"`
	Cells json.RawMessage `json:"cells"`
}

// Identity is the resolver surface the core consumes.
type Identity interface {
	Index(path string) (string, error)
	Path(id string) (string, error)
	Move(oldPath, newPath string) error
	Touch(path string) error
	LastTouched(path string) (time.Time, error)
}

// DocumentStore is the persistence surface the core consumes.
type DocumentStore interface {
	Read(path string) (*notebook.Notebook, error)
	Write(path string, nb *notebook.Notebook) error
}

// DocumentWriter applies execution results to backing documents. All
// writes across all documents serialize on one save lock: writes are
// rare next to reads, and a single lock rules out interleaved
// read-modify-write sequences entirely.
type DocumentWriter struct {
	mu       sync.Mutex
	store    DocumentStore
	resolver Identity
	bus      *event.Bus[DocumentEvent]
	logger   *logging.Logger
	registry *metrics.Registry
}

func NewDocumentWriter(store DocumentStore, resolver Identity, bus *event.Bus[DocumentEvent], logger *logging.Logger, registry *metrics.Registry) *DocumentWriter {
	if registry == nil {
		registry = metrics.Default
	}
	return &DocumentWriter{
		store:    store,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
		registry: registry,
	}
}

// Apply persists a result into the cell, writing only when the stored
// outputs or execution count differ. The document is re-read under the
// lock so concurrent completions for other cells are never lost. A
// cell deleted while the execution ran yields (false, nil).
func (w *DocumentWriter) Apply(documentID, cellID string, result kernel.Result) (bool, error) {
	if documentID == "" || cellID == "" {
		return false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path, err := w.resolver.Path(documentID)
	if err != nil {
		return false, err
	}
	nb, err := w.store.Read(path)
	if err != nil {
		return false, err
	}

	outputs, err := result.OutputsJSON()
	if err != nil {
		return false, err
	}
	changed, found := nb.SetCellResult(cellID, outputs, result.ExecutionCount)
	if !found {
		w.logger.Debug("cell gone before write-back", map[string]string{
			"path":    path,
			"cell_id": cellID,
		})
		return false, nil
	}
	if !changed {
		w.registry.IncWriteSkipped()
		return false, nil
	}

	if err := w.store.Write(path, nb); err != nil {
		return false, err
	}
	if err := w.resolver.Touch(path); err != nil {
		w.logger.Warn("identity touch failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
	}
	w.registry.IncWriteApplied()

	if w.bus != nil {
		cells, err := nb.CellsJSON()
		if err == nil {
			w.bus.Publish(DocumentEvent{Path: path, Cells: cells})
		}
	}
	return true, nil
}
