package api

import (
	"net/http"
	"sync"
	"time"

	"cellrun/internal/logging"

	"github.com/gorilla/websocket"
)

// gorilla/websocket over stdlib: the standard library has no websocket
// server and x/net/websocket is effectively frozen; gorilla provides a
// maintained upgrader, origin checks, and close-frame handling.
const wsReadBufferSize = 1024
const wsWriteBufferSize = 1024
const wsWriteTimeout = 10 * time.Second

func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowedOrigins)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

func requireWSToken(w http.ResponseWriter, r *http.Request, token string, logger *logging.Logger) bool {
	if !validateToken(r, token) {
		if logger != nil {
			logger.Warn("websocket unauthorized", map[string]string{
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// connWriter serializes writes to one websocket connection. Responses
// from the read loop and pushed notifications from the bus goroutine
// both go through it; gorilla allows only one concurrent writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnWriter(conn *websocket.Conn) *connWriter {
	return &connWriter{conn: conn}
}

func (w *connWriter) WriteEnvelope(env Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(env)
}

func closeWithReason(conn *websocket.Conn, closeCode int, reason string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, truncateCloseReason(reason)), deadline)
	_ = conn.Close()
}

func truncateCloseReason(reason string) string {
	const maxReasonBytes = 123
	if len(reason) <= maxReasonBytes {
		return reason
	}
	return reason[:maxReasonBytes]
}
