package api

import (
	"encoding/json"
	"net/http"

	"cellrun/internal/event"
	"cellrun/internal/exec"
	"cellrun/internal/logging"

	"github.com/gorilla/websocket"
)

// maxMalformedEnvelopes bounds how many undecodable frames in a row a
// connection may send before it is closed.
const maxMalformedEnvelopes = 8

// ExecuteHandler is the per-connection protocol endpoint. Each inbound
// envelope is handled to completion before the next one is read;
// connections run fully in parallel against the shared coordinator.
// Closing a connection never cancels executions it started: ledger and
// coordinator state are process-wide.
type ExecuteHandler struct {
	Coordinator    *exec.Coordinator
	Bus            *event.Bus[exec.DocumentEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *ExecuteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Coordinator == nil {
		http.Error(w, "coordinator unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", map[string]string{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
		}
		return
	}
	defer conn.Close()

	writer := newConnWriter(conn)
	stopPush := h.startDocumentPush(writer)
	defer stopPush()

	malformed := 0
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			h.writeError(writer, &apiError{Status: http.StatusBadRequest, Message: "malformed envelope"})
			malformed++
			if malformed >= maxMalformedEnvelopes {
				closeWithReason(conn, websocket.ClosePolicyViolation, "too many malformed envelopes")
				return
			}
			continue
		}
		malformed = 0
		if err := h.dispatch(r, writer, env); err != nil {
			closeWithReason(conn, websocket.CloseInternalServerErr, err.Error())
			return
		}
	}
}

// startDocumentPush streams write-back notifications to the client
// until the connection goes away. Events that arrive while the client
// is too slow are dropped by the bus, never queued unboundedly.
func (h *ExecuteHandler) startDocumentPush(writer *connWriter) func() {
	if h.Bus == nil {
		return func() {}
	}
	events, cancel := h.Bus.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			env, err := envelope(MetaGet, evt.Cells)
			if err != nil {
				continue
			}
			if err := writer.WriteEnvelope(env); err != nil {
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (h *ExecuteHandler) dispatch(r *http.Request, writer *connWriter, env Envelope) error {
	switch env.Meta {
	case MetaPost:
		return h.handlePost(r, writer, env.Payload)
	case MetaGet:
		return h.handleGet(writer, env.Payload)
	case MetaPostResult, MetaExecuting, MetaError:
		// Outbound-only metas; a client sending one is confused.
		h.writeError(writer, &apiError{Status: http.StatusBadRequest, Message: "meta " + env.Meta + " is not accepted"})
		return nil
	default:
		h.writeError(writer, &apiError{Status: http.StatusBadRequest, Message: "unknown meta " + env.Meta})
		return nil
	}
}

func (h *ExecuteHandler) handlePost(r *http.Request, writer *connWriter, payload json.RawMessage) error {
	var model ExecutePayload
	if err := json.Unmarshal(payload, &model); err != nil {
		h.writeError(writer, &apiError{Status: http.StatusBadRequest, Message: "malformed post payload"})
		return nil
	}

	response, err := h.Coordinator.Execute(r.Context(), exec.Request{
		KernelID: model.KernelID,
		Path:     model.Path,
		CellID:   model.CellID,
		Code:     model.Code,
		NotWrite: model.NotWrite,
		Block:    model.Block,
	})
	if err != nil {
		if !exec.IsNotFound(err) && h.Logger != nil {
			h.Logger.Error("execute failed", map[string]string{
				"kernel_id": model.KernelID,
				"cell_id":   model.CellID,
				"error":     err.Error(),
			})
		}
		h.writeError(writer, apiErrorFor(err))
		return nil
	}

	switch response.Status {
	case exec.StatusAlreadyExecuting:
		env, err := envelope(MetaExecuting, executingPayload{
			Model:          model,
			CellID:         response.Record.CellID,
			Output:         response.Record.Output,
			ExecutionCount: response.Record.ExecutionCount,
		})
		if err != nil {
			return err
		}
		return writer.WriteEnvelope(env)
	case exec.StatusComplete:
		outputs, err := response.Result.OutputsJSON()
		if err != nil {
			return err
		}
		env, err := envelope(MetaPostResult, postResultPayload{
			Model: model,
			Result: &resultPayload{
				Outputs:        outputs,
				ExecutionCount: response.Result.ExecutionCount,
			},
		})
		if err != nil {
			return err
		}
		return writer.WriteEnvelope(env)
	default:
		env, err := envelope(MetaPostResult, postResultPayload{Model: model})
		if err != nil {
			return err
		}
		return writer.WriteEnvelope(env)
	}
}

func (h *ExecuteHandler) handleGet(writer *connWriter, payload json.RawMessage) error {
	var model StatusPayload
	if err := json.Unmarshal(payload, &model); err != nil {
		h.writeError(writer, &apiError{Status: http.StatusBadRequest, Message: "malformed get payload"})
		return nil
	}

	statuses, err := h.Coordinator.Status(model.KernelID)
	if err != nil {
		h.writeError(writer, apiErrorFor(err))
		return nil
	}
	env, err := envelope(MetaGet, statuses)
	if err != nil {
		return err
	}
	return writer.WriteEnvelope(env)
}

func (h *ExecuteHandler) writeError(writer *connWriter, apiErr *apiError) {
	code := apiErr.Code
	if code == "" {
		code = errorCodeForStatus(apiErr.Status)
	}
	env, err := envelope(MetaError, errorPayload{
		Code:    code,
		Status:  apiErr.Status,
		Message: apiErr.Message,
	})
	if err != nil {
		return
	}
	_ = writer.WriteEnvelope(env)
}

// apiErrorFor maps coordinator failures onto the protocol taxonomy:
// unknown kernel, cell, or document surface as 404; anything else
// closes to an internal error without leaking detail.
func apiErrorFor(err error) *apiError {
	if exec.IsNotFound(err) {
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	}
	return &apiError{Status: http.StatusInternalServerError, Message: "internal error"}
}
