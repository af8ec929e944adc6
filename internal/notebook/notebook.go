package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Notebook is a parsed ipynb document. Top-level fields other than
// "cells" are carried through untouched so a rewrite never loses
// metadata written by other tools.
type Notebook struct {
	Cells []*Cell
	extra map[string]json.RawMessage
}

// Cell is one addressable unit of the document. The decoded fields
// cover what the coordinator reads and writes; everything else stays
// in raw form for round-tripping.
type Cell struct {
	ID             string
	Type           string
	Source         string
	Outputs        json.RawMessage
	ExecutionCount *int
	raw            map[string]json.RawMessage
}

func (nb *Notebook) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	nb.extra = fields
	nb.Cells = nil
	rawCells, ok := fields["cells"]
	if !ok {
		return nil
	}
	delete(fields, "cells")

	var cells []json.RawMessage
	if err := json.Unmarshal(rawCells, &cells); err != nil {
		return fmt.Errorf("decode cells: %w", err)
	}
	for _, rawCell := range cells {
		cell := &Cell{}
		if err := cell.unmarshal(rawCell); err != nil {
			return err
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return nil
}

func (nb *Notebook) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(nb.extra)+1)
	for key, value := range nb.extra {
		fields[key] = value
	}

	cells := make([]json.RawMessage, 0, len(nb.Cells))
	for _, cell := range nb.Cells {
		rawCell, err := cell.marshal()
		if err != nil {
			return nil, err
		}
		cells = append(cells, rawCell)
	}
	rawCells, err := json.Marshal(cells)
	if err != nil {
		return nil, err
	}
	fields["cells"] = rawCells
	return json.Marshal(fields)
}

func (cell *Cell) unmarshal(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode cell: %w", err)
	}
	cell.raw = fields

	if raw, ok := fields["id"]; ok {
		_ = json.Unmarshal(raw, &cell.ID)
	}
	if raw, ok := fields["cell_type"]; ok {
		_ = json.Unmarshal(raw, &cell.Type)
	}
	if raw, ok := fields["source"]; ok {
		source, err := decodeSource(raw)
		if err != nil {
			return fmt.Errorf("decode cell %s source: %w", cell.ID, err)
		}
		cell.Source = source
	}
	if raw, ok := fields["outputs"]; ok {
		cell.Outputs = raw
	}
	if raw, ok := fields["execution_count"]; ok && !bytes.Equal(raw, []byte("null")) {
		var count int
		if err := json.Unmarshal(raw, &count); err == nil {
			cell.ExecutionCount = &count
		}
	}
	return nil
}

func (cell *Cell) marshal() (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(cell.raw))
	for key, value := range cell.raw {
		fields[key] = value
	}

	if cell.Outputs != nil {
		fields["outputs"] = cell.Outputs
	}
	if cell.ExecutionCount != nil {
		raw, err := json.Marshal(*cell.ExecutionCount)
		if err != nil {
			return nil, err
		}
		fields["execution_count"] = raw
	}
	return json.Marshal(fields)
}

// decodeSource accepts both ipynb source encodings: a plain string or
// an array of line strings.
func decodeSource(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", err
	}
	joined := ""
	for _, line := range lines {
		joined += line
	}
	return joined, nil
}

// CellsJSON renders the cells array alone, the payload shape pushed to
// connected clients after a write-back.
func (nb *Notebook) CellsJSON() (json.RawMessage, error) {
	cells := make([]json.RawMessage, 0, len(nb.Cells))
	for _, cell := range nb.Cells {
		rawCell, err := cell.marshal()
		if err != nil {
			return nil, err
		}
		cells = append(cells, rawCell)
	}
	return json.Marshal(cells)
}

// Cell returns the cell with the given id.
func (nb *Notebook) Cell(cellID string) (*Cell, bool) {
	for _, cell := range nb.Cells {
		if cell.ID == cellID {
			return cell, true
		}
	}
	return nil, false
}

// CellSource returns the source text of the cell with the given id.
func (nb *Notebook) CellSource(cellID string) (string, bool) {
	cell, ok := nb.Cell(cellID)
	if !ok {
		return "", false
	}
	return cell.Source, true
}

// SetCellResult writes outputs and execution count into the cell,
// reporting whether anything actually changed. A missing cell is not
// an error: it was deleted while the execution ran.
func (nb *Notebook) SetCellResult(cellID string, outputs json.RawMessage, executionCount *int) (changed bool, found bool) {
	cell, ok := nb.Cell(cellID)
	if !ok {
		return false, false
	}

	if outputs != nil && !jsonEqual(cell.Outputs, outputs) {
		cell.Outputs = outputs
		changed = true
	}
	if executionCount != nil {
		if cell.ExecutionCount == nil || *cell.ExecutionCount != *executionCount {
			count := *executionCount
			cell.ExecutionCount = &count
			changed = true
		}
	}
	return changed, true
}

func jsonEqual(a, b json.RawMessage) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	compactA := &bytes.Buffer{}
	compactB := &bytes.Buffer{}
	if err := json.Compact(compactA, a); err != nil {
		return false
	}
	if err := json.Compact(compactB, b); err != nil {
		return false
	}
	return bytes.Equal(compactA.Bytes(), compactB.Bytes())
}
