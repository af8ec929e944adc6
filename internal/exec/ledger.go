package exec

import (
	"sync"
	"time"
)

// Record identifies one in-flight execution. The ledger hands out
// copies; the live record is mutated only through ledger methods.
type Record struct {
	KernelID       string
	DocumentID     string
	CellID         string
	Output         string
	ExecutionCount *int
	StartedAt      time.Time
}

type ledgerKey struct {
	kernelID   string
	documentID string
	cellID     string
}

// Ledger is the process-wide registry of in-flight executions: the
// single source of truth for deduplication and status queries. A
// record exists for a (kernel, document, cell) key iff that cell is
// currently executing on that kernel.
type Ledger struct {
	mu      sync.Mutex
	records map[ledgerKey]*Record
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[ledgerKey]*Record),
	}
}

func (l *Ledger) IsExecuting(kernelID, documentID, cellID string) bool {
	key := ledgerKey{kernelID, documentID, cellID}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[key]
	return ok
}

// Get returns a snapshot of the record for a key, if present.
func (l *Ledger) Get(kernelID, documentID, cellID string) (Record, bool) {
	key := ledgerKey{kernelID, documentID, cellID}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// Begin atomically checks for an existing record and registers a fresh
// one. When a record already exists Begin reports started=false and
// returns a snapshot of it, so a duplicate request can show the
// current partial output. Two concurrent callers can never both see
// started=true for the same key.
func (l *Ledger) Begin(kernelID, documentID, cellID string) (Record, bool) {
	key := ledgerKey{kernelID, documentID, cellID}
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[key]; ok {
		return *existing, false
	}
	record := &Record{
		KernelID:   kernelID,
		DocumentID: documentID,
		CellID:     cellID,
		StartedAt:  time.Now().UTC(),
	}
	l.records[key] = record
	return *record, true
}

// Update replaces the accumulated output (and, on completion, the
// execution count) of the record matching kernel and cell. A missing
// record means the execution already finished; the stale update is
// silently dropped.
func (l *Ledger) Update(kernelID, cellID, output string, executionCount *int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, record := range l.records {
		if key.kernelID != kernelID || key.cellID != cellID {
			continue
		}
		record.Output = output
		if executionCount != nil {
			count := *executionCount
			record.ExecutionCount = &count
		}
	}
}

// End removes the record. Removing an absent record is not an error:
// End runs on every exit path of an execution and must never fail.
func (l *Ledger) End(kernelID, documentID, cellID string) {
	key := ledgerKey{kernelID, documentID, cellID}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

// List returns snapshots of the in-flight records for a kernel.
func (l *Ledger) List(kernelID string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := []Record{}
	for key, record := range l.records {
		if key.kernelID != kernelID {
			continue
		}
		records = append(records, *record)
	}
	return records
}

// Len reports the total number of in-flight executions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
