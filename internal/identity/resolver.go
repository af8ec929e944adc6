package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrUnknownID is returned when no path is registered for an identity.
var ErrUnknownID = errors.New("unknown document id")

// Resolver maps filesystem paths to stable document identities backed
// by a SQLite table. An identity survives renames: Move repoints the
// path while keeping the id, so bookkeeping keyed by id stays valid
// while a file moves mid-execution.
type Resolver struct {
	db   *sql.DB
	root string
}

// Open creates or opens the identity database at dbPath. Paths handed
// to the resolver are normalized relative to root.
func Open(dbPath, root string) (*Resolver, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create identity db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open identity db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		mtime INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init identity db: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	return &Resolver{db: db, root: absRoot}, nil
}

func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// NormalizePath converts a caller-supplied path to the canonical
// root-relative form used as the table key.
func (r *Resolver) NormalizePath(path string) string {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return ""
	}
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(r.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// Index returns the stable id for path, minting one on first sight.
// An empty path yields an empty id, matching the coordinator's
// "no path, nothing to persist" mode.
func (r *Resolver) Index(path string) (string, error) {
	normalized := r.NormalizePath(path)
	if normalized == "" {
		return "", nil
	}

	if id, err := r.ID(normalized); err == nil {
		return id, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id := uuid.NewString()
	// Another caller may have indexed the path between the lookup and
	// the insert; fall back to the winner's id.
	_, err := r.db.Exec(`INSERT INTO files (id, path) VALUES (?, ?) ON CONFLICT(path) DO NOTHING`, id, normalized)
	if err != nil {
		return "", fmt.Errorf("index %s: %w", normalized, err)
	}
	return r.ID(normalized)
}

// ID looks up the identity of an already-indexed path.
func (r *Resolver) ID(path string) (string, error) {
	normalized := r.NormalizePath(path)
	var id string
	err := r.db.QueryRow(`SELECT id FROM files WHERE path = ?`, normalized).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Path resolves an identity back to its current path.
func (r *Resolver) Path(id string) (string, error) {
	var path string
	err := r.db.QueryRow(`SELECT path FROM files WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// Move repoints a tracked path after a rename, keeping the identity.
// Unknown old paths are ignored: the move concerned a file nobody
// asked an identity for.
func (r *Resolver) Move(oldPath, newPath string) error {
	oldNorm := r.NormalizePath(oldPath)
	newNorm := r.NormalizePath(newPath)
	if oldNorm == "" || newNorm == "" {
		return nil
	}
	_, err := r.db.Exec(`UPDATE files SET path = ? WHERE path = ?`, newNorm, oldNorm)
	if err != nil {
		return fmt.Errorf("move %s to %s: %w", oldNorm, newNorm, err)
	}
	return nil
}

// Touch records that the document at path was just saved by the
// coordinator, so a subsequent watcher event for it can be told apart
// from an external edit.
func (r *Resolver) Touch(path string) error {
	normalized := r.NormalizePath(path)
	if normalized == "" {
		return nil
	}
	_, err := r.db.Exec(`UPDATE files SET mtime = ? WHERE path = ?`, time.Now().UnixNano(), normalized)
	return err
}

// LastTouched reports the recorded save time for path, zero when the
// coordinator never saved it.
func (r *Resolver) LastTouched(path string) (time.Time, error) {
	normalized := r.NormalizePath(path)
	var nanos int64
	err := r.db.QueryRow(`SELECT mtime FROM files WHERE path = ?`, normalized).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if nanos == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, nanos), nil
}
