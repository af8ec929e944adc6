package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store reads and writes notebook documents below a root directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func (s *Store) Read(path string) (*Notebook, error) {
	payload, err := os.ReadFile(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read notebook %s: %w", path, err)
	}
	nb := &Notebook{}
	if err := json.Unmarshal(payload, nb); err != nil {
		return nil, fmt.Errorf("parse notebook %s: %w", path, err)
	}
	return nb, nil
}

// Write persists the notebook atomically: a concurrent reader sees
// either the old or the new document, never a partial file.
func (s *Store) Write(path string, nb *Notebook) error {
	payload, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return fmt.Errorf("encode notebook %s: %w", path, err)
	}

	target := s.resolve(path)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".cellrun-*.tmp")
	if err != nil {
		return fmt.Errorf("write notebook %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write notebook %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write notebook %s: %w", path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write notebook %s: %w", path, err)
	}
	return nil
}
