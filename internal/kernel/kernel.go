package kernel

import (
	"context"
	"encoding/json"
	"strings"
)

// Output is one ipynb-shaped output object produced by a kernel.
type Output struct {
	OutputType string `json:"output_type"`
	Name       string `json:"name,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Result is the outcome of executing code on a kernel. ExecutionCount
// is nil until the kernel reports completion.
type Result struct {
	Outputs        []Output `json:"outputs"`
	ExecutionCount *int     `json:"execution_count"`
}

// Text concatenates the textual outputs, the form kept on in-flight
// execution records.
func (r Result) Text() string {
	builder := strings.Builder{}
	for _, output := range r.Outputs {
		builder.WriteString(output.Text)
	}
	return builder.String()
}

// OutputsJSON renders the outputs as the raw array stored in a
// notebook cell.
func (r Result) OutputsJSON() (json.RawMessage, error) {
	outputs := r.Outputs
	if outputs == nil {
		outputs = []Output{}
	}
	return json.Marshal(outputs)
}

// Session is the capability to execute code on one long-lived kernel.
// The wire protocol behind it is owned by the hosting service.
// Execute blocks until the kernel reports completion; progress, when
// non-nil, receives intermediate results as output streams in.
type Session interface {
	ID() string
	Execute(ctx context.Context, code string, progress func(Result)) (Result, error)
}
