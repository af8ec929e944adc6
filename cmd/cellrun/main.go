package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cellrun/internal/api"
	"cellrun/internal/config"
	"cellrun/internal/event"
	"cellrun/internal/exec"
	"cellrun/internal/identity"
	"cellrun/internal/kernel"
	"cellrun/internal/logging"
	"cellrun/internal/metrics"
	"cellrun/internal/notebook"
	"cellrun/internal/watcher"
)

func main() {
	configPath := strings.TrimSpace(os.Getenv("CELLRUN_CONFIG"))
	if configPath == "" {
		configPath = "cellrun.toml"
	}

	logBuffer := logging.NewLogBuffer(logging.DefaultBufferSize)
	logger := logging.NewLogger(logBuffer, logging.LevelInfo)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("load config failed", map[string]string{
			"path":  configPath,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logger = logging.NewLogger(logBuffer, level)
	}

	resolver, err := identity.Open(cfg.IdentityDBPath, cfg.RootDir)
	if err != nil {
		logger.Error("open identity db failed", map[string]string{
			"path":  cfg.IdentityDBPath,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer resolver.Close()

	store := notebook.NewStore(cfg.RootDir)
	manager := kernel.NewManager()

	specs, err := kernel.LoadSpecs(cfg.KernelSpecDir)
	if err != nil {
		logger.Error("load kernel specs failed", map[string]string{
			"dir":   cfg.KernelSpecDir,
			"error": err.Error(),
		})
		os.Exit(1)
	}
	if err := kernel.RegisterSpecs(manager, specs, func(spec kernel.Spec) (kernel.Session, error) {
		return kernel.NewEchoSession(spec.ID), nil
	}); err != nil {
		logger.Error("register kernels failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger.Info("kernels registered", map[string]string{
		"count": strconv.Itoa(len(specs)),
	})

	ctx := context.Background()
	bus := event.NewBus[exec.DocumentEvent](ctx, event.BusOptions{Name: "document_events"})

	var coordinator *exec.Coordinator
	treeWatcher, err := watcher.New(watcher.Options{
		Logger:   logger,
		Debounce: cfg.WatchDebounce,
		OnEvent: func(evt watcher.Event) {
			if coordinator != nil {
				coordinator.HandleFileEvent(evt)
			}
		},
	})
	if err != nil {
		logger.Error("create watcher failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer treeWatcher.Close()

	writer := exec.NewDocumentWriter(store, resolver, bus, logger, metrics.Default)
	guard := exec.NewWatchGuard(treeWatcher, cfg.RootDir, logger)
	coordinator = exec.NewCoordinator(exec.CoordinatorOptions{
		Kernels:  manager,
		Store:    store,
		Resolver: resolver,
		Writer:   writer,
		Guard:    guard,
		Logger:   logger,
		Registry: metrics.Default,
	})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Coordinator:    coordinator,
		Kernels:        manager,
		Bus:            bus,
		Logger:         logger,
		Registry:       metrics.Default,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("cellrun listening", map[string]string{
		"addr": server.Addr,
		"root": cfg.RootDir,
	})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped", map[string]string{
			"error": err.Error(),
		})
	}
}
