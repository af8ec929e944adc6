package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"cellrun/internal/exec"
	"cellrun/internal/kernel"
	"cellrun/internal/logging"
	"cellrun/internal/metrics"
	"cellrun/internal/schema"
)

// RestHandler serves the read-only HTTP mirrors of the websocket
// protocol, plus operational endpoints.
type RestHandler struct {
	Coordinator *exec.Coordinator
	Kernels     *kernel.Manager
	Logger      *logging.Logger
	Registry    *metrics.Registry
	StartedAt   time.Time
}

type statusResponse struct {
	Kernels        []string  `json:"kernels"`
	ExecutingCells int       `json:"executing_cells"`
	StartedAt      time.Time `json:"started_at"`
	ServerTime     time.Time `json:"server_time"`
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	response := statusResponse{
		Kernels:        h.Kernels.IDs(),
		ExecutingCells: h.Coordinator.Ledger().Len(),
		StartedAt:      h.StartedAt,
		ServerTime:     time.Now().UTC(),
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

// handleExecutions mirrors the websocket get envelope for callers
// without a live connection: GET /api/kernels/{id}/executions.
func (h *RestHandler) handleExecutions(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/kernels/")
	kernelID, suffix, found := strings.Cut(rest, "/")
	if !found || suffix != "executions" || kernelID == "" {
		return &apiError{Status: http.StatusNotFound, Message: "not found"}
	}

	statuses, err := h.Coordinator.Status(kernelID)
	if err != nil {
		if exec.IsNotFound(err) {
			return &apiError{Status: http.StatusNotFound, Message: err.Error()}
		}
		return &apiError{Status: http.StatusInternalServerError, Message: "internal error"}
	}
	writeJSON(w, http.StatusOK, statuses)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	registry := h.Registry
	if registry == nil {
		registry = metrics.Default
	}
	buffer := &bytes.Buffer{}
	if err := registry.WriteSummary(buffer); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "internal error"}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buffer.Bytes())
	return nil
}

// handleSchema serves the generated wire-type schemas so clients can
// validate payloads without hardcoding shapes.
func (h *RestHandler) handleSchema(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/schema/")
	if name == "" || name == r.URL.Path {
		writeJSON(w, http.StatusOK, schema.Names())
		return nil
	}

	resolved, err := schema.Resolve(name)
	if err != nil {
		return &apiError{Status: http.StatusNotFound, Message: "unknown schema " + name}
	}
	writeJSON(w, http.StatusOK, resolved)
	return nil
}
