package api

import (
	"net/http"
	"time"

	"cellrun/internal/event"
	"cellrun/internal/exec"
	"cellrun/internal/kernel"
	"cellrun/internal/logging"
	"cellrun/internal/metrics"
)

type Options struct {
	Coordinator    *exec.Coordinator
	Kernels        *kernel.Manager
	Bus            *event.Bus[exec.DocumentEvent]
	Logger         *logging.Logger
	Registry       *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
}

func RegisterRoutes(mux *http.ServeMux, options Options) {
	rest := &RestHandler{
		Coordinator: options.Coordinator,
		Kernels:     options.Kernels,
		Logger:      options.Logger,
		Registry:    options.Registry,
		StartedAt:   time.Now().UTC(),
	}

	mux.Handle("/ws/execute", securityHeadersMiddleware(cacheControlNoStore, loggingMiddleware(options.Logger, &ExecuteHandler{
		Coordinator:    options.Coordinator,
		Bus:            options.Bus,
		Logger:         options.Logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	})))
	mux.HandleFunc("/api/status", restHandler(options.AuthToken, rest.handleStatus))
	mux.HandleFunc("/api/kernels/", restHandler(options.AuthToken, rest.handleExecutions))
	mux.HandleFunc("/api/metrics", restHandler(options.AuthToken, rest.handleMetrics))
	mux.HandleFunc("/api/schema/", restHandler(options.AuthToken, rest.handleSchema))
}
