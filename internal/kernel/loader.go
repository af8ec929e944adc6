package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec declares a kernel the daemon should connect to at boot.
type Spec struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Language string `yaml:"language" json:"language"`
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("kernel spec missing id")
	}
	if strings.TrimSpace(s.Language) == "" {
		return fmt.Errorf("kernel spec %s missing language", s.ID)
	}
	return nil
}

// SessionFactory turns a declared spec into a live session.
type SessionFactory func(Spec) (Session, error)

// LoadSpecs scans dir for *.yaml kernel declarations. A missing dir
// means no preconfigured kernels, not an error.
func LoadSpecs(dir string) ([]Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read kernel spec dir: %w", err)
	}

	specs := []Spec{}
	seen := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, name)
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read kernel spec %s: %w", path, err)
		}
		var spec Spec
		if err := yaml.Unmarshal(payload, &spec); err != nil {
			return nil, fmt.Errorf("parse kernel spec %s: %w", path, err)
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("validate kernel spec %s: %w", path, err)
		}
		if previous, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("kernel id %s declared in both %s and %s", spec.ID, previous, path)
		}
		seen[spec.ID] = path
		specs = append(specs, spec)
	}
	return specs, nil
}

// RegisterSpecs creates sessions for each spec and registers them with
// the manager.
func RegisterSpecs(manager *Manager, specs []Spec, factory SessionFactory) error {
	if factory == nil {
		return fmt.Errorf("session factory is required")
	}
	for _, spec := range specs {
		session, err := factory(spec)
		if err != nil {
			return fmt.Errorf("start kernel %s: %w", spec.ID, err)
		}
		if err := manager.Register(session); err != nil {
			return err
		}
	}
	return nil
}
