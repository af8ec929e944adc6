package api

import "encoding/json"

// Envelope is the wire frame on the execute websocket: a meta tag and
// a meta-dependent payload.
type Envelope struct {
	Meta    string          `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

const (
	MetaGet        = "get"
	MetaPost       = "post"
	MetaPostResult = "post_result"
	MetaExecuting  = "executing"
	MetaError      = "error"
)

// ExecutePayload is the inbound post payload.
type ExecutePayload struct {
	KernelID string `json:"kernel_id"`
	Path     string `json:"path,omitempty"`
	CellID   string `json:"cell_id,omitempty"`
	Code     string `json:"code,omitempty"`
	NotWrite bool   `json:"not_write,omitempty"`
	Block    *bool  `json:"block,omitempty"`
}

// StatusPayload is the inbound get payload.
type StatusPayload struct {
	KernelID string `json:"kernel_id"`
}

// resultPayload mirrors a kernel result on the wire.
type resultPayload struct {
	Outputs        json.RawMessage `json:"outputs"`
	ExecutionCount *int            `json:"execution_count"`
}

// postResultPayload answers a post: the echoed model, plus the result
// when the execution ran synchronously.
type postResultPayload struct {
	Model  ExecutePayload `json:"model"`
	Result *resultPayload `json:"result,omitempty"`
}

// executingPayload answers a duplicate post with the current state of
// the in-flight record.
type executingPayload struct {
	Model          ExecutePayload `json:"model"`
	CellID         string         `json:"cell_id"`
	Output         string         `json:"output"`
	ExecutionCount *int           `json:"execution_count"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func envelope(meta string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Meta: meta, Payload: raw}, nil
}
