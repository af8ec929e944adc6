package exec

import (
	"context"
	"fmt"

	"cellrun/internal/kernel"
	"cellrun/internal/logging"
	"cellrun/internal/metrics"
)

type Status string

const (
	// StatusAccepted acknowledges an asynchronous execution; the result
	// arrives later via write-back and a pushed notification.
	StatusAccepted Status = "accepted"
	// StatusAlreadyExecuting reports that the same cell is already
	// running on the same kernel. Not an error.
	StatusAlreadyExecuting Status = "executing"
	// StatusComplete carries the full result of a synchronous execution.
	StatusComplete Status = "complete"
)

// Request is one execution request, decoded from the wire.
type Request struct {
	KernelID string
	Path     string
	CellID   string
	Code     string
	NotWrite bool
	Block    *bool
}

type Response struct {
	Status Status
	Record Record
	Result *kernel.Result
}

// CellStatus is one in-flight execution as seen by callers: the path
// is re-derived from the stable identity at query time, so it is
// current even if the file moved since the execution started.
type CellStatus struct {
	Path           string `json:"path"`
	CellID         string `json:"cell_id"`
	ExecutionCount *int   `json:"execution_count"`
	Output         string `json:"output"`
}

// Coordinator orchestrates a single execution end-to-end: dedup check,
// kernel dispatch, result capture, and document write-back. It is
// shared by all connections; executions outlive the connection that
// requested them.
type Coordinator struct {
	ledger   *Ledger
	kernels  *kernel.Manager
	store    DocumentStore
	resolver Identity
	writer   *DocumentWriter
	guard    *WatchGuard
	logger   *logging.Logger
	registry *metrics.Registry
}

type CoordinatorOptions struct {
	Ledger   *Ledger
	Kernels  *kernel.Manager
	Store    DocumentStore
	Resolver Identity
	Writer   *DocumentWriter
	Guard    *WatchGuard
	Logger   *logging.Logger
	Registry *metrics.Registry
}

func NewCoordinator(options CoordinatorOptions) *Coordinator {
	ledger := options.Ledger
	if ledger == nil {
		ledger = NewLedger()
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(nil, logging.LevelInfo, nil)
	}
	return &Coordinator{
		ledger:   ledger,
		kernels:  options.Kernels,
		store:    options.Store,
		resolver: options.Resolver,
		writer:   options.Writer,
		guard:    options.Guard,
		logger:   logger,
		registry: registry,
	}
}

func (c *Coordinator) Ledger() *Ledger {
	return c.ledger
}

// Execute handles one execution request.
//
// Mode selection: an explicit block flag wins; with no document or no
// cell there is nothing to persist to, so the caller must receive the
// result synchronously; otherwise execution is fire-and-forget with a
// later write-back.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Response, error) {
	session, ok := c.kernels.Get(req.KernelID)
	if !ok {
		return Response{}, &NotFoundError{Kind: KindKernel, ID: req.KernelID}
	}

	documentID := ""
	if req.Path != "" {
		id, err := c.resolver.Index(req.Path)
		if err != nil {
			return Response{}, fmt.Errorf("resolve %s: %w", req.Path, err)
		}
		documentID = id
	}

	// Only executions with a backing document and cell are tracked:
	// without both there is no write-back to deduplicate against.
	tracked := documentID != "" && req.CellID != ""

	if tracked {
		if record, ok := c.ledger.Get(req.KernelID, documentID, req.CellID); ok {
			return c.duplicate(req, record)
		}
	}

	block := !tracked
	if req.Block != nil {
		block = *req.Block
	}

	code := req.Code
	if code == "" {
		fetched, err := c.readCode(documentID, req.CellID)
		if err != nil {
			return Response{}, err
		}
		code = fetched
	}

	if tracked {
		// Begin re-checks under the ledger lock: the early Get avoids
		// reading the notebook for obvious duplicates, but only this
		// check-and-register decides.
		record, started := c.ledger.Begin(req.KernelID, documentID, req.CellID)
		if !started {
			return c.duplicate(req, record)
		}
		c.guard.Acquire()
	}
	c.registry.IncExecutionStarted()

	if !block {
		c.logger.Debug("async execute", map[string]string{
			"kernel_id": req.KernelID,
			"cell_id":   req.CellID,
		})
		go c.runDetached(session, code, req, documentID, tracked)
		return Response{Status: StatusAccepted}, nil
	}

	c.logger.Debug("sync execute", map[string]string{
		"kernel_id": req.KernelID,
		"cell_id":   req.CellID,
	})
	result, err := c.run(ctx, session, code, req, documentID, tracked)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: StatusComplete, Result: &result}, nil
}

// Status lists the in-flight executions on a kernel in caller terms.
func (c *Coordinator) Status(kernelID string) ([]CellStatus, error) {
	if _, ok := c.kernels.Get(kernelID); !ok {
		return nil, &NotFoundError{Kind: KindKernel, ID: kernelID}
	}

	records := c.ledger.List(kernelID)
	statuses := make([]CellStatus, 0, len(records))
	for _, record := range records {
		path, err := c.resolver.Path(record.DocumentID)
		if err != nil {
			path = ""
		}
		statuses = append(statuses, CellStatus{
			Path:           path,
			CellID:         record.CellID,
			ExecutionCount: record.ExecutionCount,
			Output:         record.Output,
		})
	}
	return statuses, nil
}

func (c *Coordinator) duplicate(req Request, record Record) (Response, error) {
	c.registry.IncExecutionDeduped()
	c.logger.Info("cell already executing", map[string]string{
		"kernel_id": req.KernelID,
		"path":      req.Path,
		"cell_id":   req.CellID,
	})
	return Response{Status: StatusAlreadyExecuting, Record: record}, nil
}

func (c *Coordinator) readCode(documentID, cellID string) (string, error) {
	if documentID == "" || cellID == "" {
		return "", &NotFoundError{Kind: KindCell, ID: cellID}
	}
	path, err := c.resolver.Path(documentID)
	if err != nil {
		return "", &NotFoundError{Kind: KindDocument, ID: documentID}
	}
	nb, err := c.store.Read(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	source, ok := nb.CellSource(cellID)
	if !ok {
		return "", &NotFoundError{Kind: KindCell, ID: cellID}
	}
	return source, nil
}

// run dispatches to the kernel and, on success, records the final
// result and persists it. Ledger removal and watch release happen on
// every exit path.
func (c *Coordinator) run(ctx context.Context, session kernel.Session, code string, req Request, documentID string, tracked bool) (kernel.Result, error) {
	defer func() {
		if tracked {
			c.ledger.End(req.KernelID, documentID, req.CellID)
			c.guard.Release()
		}
	}()

	progress := func(partial kernel.Result) {
		c.ledger.Update(req.KernelID, req.CellID, partial.Text(), nil)
	}

	result, err := session.Execute(ctx, code, progress)
	if err != nil {
		c.registry.IncExecutionFailed()
		return kernel.Result{}, fmt.Errorf("kernel %s execute: %w", req.KernelID, err)
	}

	c.ledger.Update(req.KernelID, req.CellID, result.Text(), result.ExecutionCount)
	if !req.NotWrite {
		if _, err := c.writer.Apply(documentID, req.CellID, result); err != nil {
			c.registry.IncExecutionFailed()
			return kernel.Result{}, err
		}
	}
	c.registry.IncExecutionCompleted()
	return result, nil
}

// runDetached is the fire-and-forget path. The originating request has
// already been answered, so failures here are logged and isolated to
// this execution; cleanup still runs via run's defer.
func (c *Coordinator) runDetached(session kernel.Session, code string, req Request, documentID string, tracked bool) {
	if _, err := c.run(context.Background(), session, code, req, documentID, tracked); err != nil {
		c.logger.Error("async write-back failed", map[string]string{
			"kernel_id": req.KernelID,
			"path":      req.Path,
			"cell_id":   req.CellID,
			"error":     err.Error(),
		})
	}
}
