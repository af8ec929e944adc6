package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddr    = ":8899"
	DefaultWatchDebounce = 100 * time.Millisecond
)

// Config controls the daemon. Values come from cellrun.toml with
// CELLRUN_* environment variables taking precedence.
type Config struct {
	ListenAddr      string        `toml:"listen-addr"`
	RootDir         string        `toml:"root-dir"`
	AuthToken       string        `toml:"auth-token"`
	AllowedOrigins  []string      `toml:"allowed-origins"`
	LogLevel        string        `toml:"log-level"`
	IdentityDBPath  string        `toml:"identity-db-path"`
	KernelSpecDir   string        `toml:"kernel-spec-dir"`
	WatchDebounceMS int64         `toml:"watch-debounce-ms"`
	WatchDebounce   time.Duration `toml:"-"`
}

func Default() Config {
	return Config{
		ListenAddr:    DefaultListenAddr,
		RootDir:       ".",
		LogLevel:      "info",
		WatchDebounce: DefaultWatchDebounce,
	}
}

// Load reads the TOML file at path (a missing file is not an error) and
// applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(payload, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("CELLRUN_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}
	if value := strings.TrimSpace(os.Getenv("CELLRUN_ROOT_DIR")); value != "" {
		cfg.RootDir = value
	}
	if value := os.Getenv("CELLRUN_TOKEN"); value != "" {
		cfg.AuthToken = value
	}
	if value := strings.TrimSpace(os.Getenv("CELLRUN_ALLOWED_ORIGINS")); value != "" {
		origins := []string{}
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.AllowedOrigins = origins
	}
	if value := strings.TrimSpace(os.Getenv("CELLRUN_LOG_LEVEL")); value != "" {
		cfg.LogLevel = value
	}
	if value := strings.TrimSpace(os.Getenv("CELLRUN_IDENTITY_DB")); value != "" {
		cfg.IdentityDBPath = value
	}
	if value := strings.TrimSpace(os.Getenv("CELLRUN_KERNEL_SPEC_DIR")); value != "" {
		cfg.KernelSpecDir = value
	}
	if value := strings.TrimSpace(os.Getenv("CELLRUN_WATCH_DEBOUNCE_MS")); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
			cfg.WatchDebounceMS = parsed
		}
	}
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(cfg.RootDir) == "" {
		cfg.RootDir = "."
	}
	if cfg.WatchDebounceMS > 0 {
		cfg.WatchDebounce = time.Duration(cfg.WatchDebounceMS) * time.Millisecond
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = DefaultWatchDebounce
	}
	if strings.TrimSpace(cfg.IdentityDBPath) == "" {
		cfg.IdentityDBPath = filepath.Join(cfg.RootDir, ".cellrun", "fileid.db")
	}
}
