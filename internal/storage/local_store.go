package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/models"
)

const tempPrefix = ".jobhunt-tmp-"

// LocalStore implements ObjectStore on a directory, for single-host setups
// and development. Versions are content hashes.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	// Serializes compare-and-delete within this process.
	mu sync.Mutex

	maxPathLength int
}

// NewLocalStore creates a directory-backed object store.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		maxPathLength: 1024,
	}, nil
}

// Get returns the object body and attributes.
func (s *LocalStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safePath, err := s.sanitizePath(key)
	if err != nil {
		return nil, storeErr("get", key, err)
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storeErr("get", key, ErrObjectNotFound)
		}
		return nil, storeErr("get", key, err)
	}

	info, err := os.Stat(safePath)
	if err != nil {
		return nil, storeErr("get", key, err)
	}

	return &Object{
		Attrs: Attrs{
			Key:     key,
			Size:    int64(len(data)),
			Version: contentVersion(data),
			Updated: info.ModTime().UTC(),
		},
		Data: data,
	}, nil
}

// Put overwrites the object atomically using a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (Attrs, error) {
	if err := ctx.Err(); err != nil {
		return Attrs{}, err
	}

	safePath, err := s.sanitizePath(key)
	if err != nil {
		return Attrs{}, storeErr("put", key, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Writing object")

	tempPath, err := s.writeTemp(safePath, data)
	if err != nil {
		return Attrs{}, storeErr("put", key, err)
	}

	if err := os.Rename(tempPath, safePath); err != nil {
		_ = os.Remove(tempPath)
		return Attrs{}, storeErr("put", key, fmt.Errorf("rename temp file: %w", err))
	}

	return s.Stat(ctx, key)
}

// PutIfAbsent publishes a fully written temp file with a hard link, which
// fails atomically if the key already exists.
func (s *LocalStore) PutIfAbsent(ctx context.Context, key string, data []byte) (Attrs, error) {
	if err := ctx.Err(); err != nil {
		return Attrs{}, err
	}

	safePath, err := s.sanitizePath(key)
	if err != nil {
		return Attrs{}, storeErr("put_if_absent", key, err)
	}

	tempPath, err := s.writeTemp(safePath, data)
	if err != nil {
		return Attrs{}, storeErr("put_if_absent", key, err)
	}
	defer os.Remove(tempPath)

	if err := os.Link(tempPath, safePath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Attrs{}, storeErr("put_if_absent", key, ErrPreconditionFailed)
		}
		return Attrs{}, storeErr("put_if_absent", key, fmt.Errorf("link object: %w", err))
	}

	return s.Stat(ctx, key)
}

// Delete removes the object. The version check is only atomic with respect
// to other callers in the same process.
func (s *LocalStore) Delete(ctx context.Context, key string, ifVersion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	safePath, err := s.sanitizePath(key)
	if err != nil {
		return storeErr("delete", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ifVersion != "" {
		data, err := os.ReadFile(safePath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return storeErr("delete", key, err)
		}
		if contentVersion(data) != ifVersion {
			return storeErr("delete", key, ErrPreconditionFailed)
		}
	}

	s.logger.WithField("key", key).Debug("Deleting object")

	if err := os.Remove(safePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storeErr("delete", key, err)
	}

	s.cleanEmptyDirs(filepath.Dir(safePath))
	return nil
}

// List walks the base directory and returns objects whose key has prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	var out []Attrs

	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		attrs, err := s.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return nil
			}
			return err
		}
		out = append(out, attrs)
		return nil
	})
	if err != nil {
		return nil, storeErr("list", prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Stat returns object attributes.
func (s *LocalStore) Stat(ctx context.Context, key string) (Attrs, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		var se *models.StoreError
		if errors.As(err, &se) {
			return Attrs{}, storeErr("stat", key, se.Err)
		}
		return Attrs{}, err
	}
	return obj.Attrs, nil
}

func (s *LocalStore) writeTemp(safePath string, data []byte) (string, error) {
	dir := filepath.Dir(safePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), nil
}

// sanitizePath validates a key and maps it under the base directory.
func (s *LocalStore) sanitizePath(key string) (string, error) {
	if strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("invalid path: contains null bytes")
	}

	cleaned := filepath.Clean(filepath.FromSlash(key))

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains '..'")
	}

	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid path: empty key")
	}

	if strings.HasPrefix(filepath.Base(cleaned), tempPrefix) {
		return "", fmt.Errorf("invalid path: reserved name")
	}

	fullPath := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: escapes base directory")
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("invalid path: too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	if runtime.GOOS == "windows" && strings.ContainsAny(cleaned, `<>:"|?*`) {
		return "", fmt.Errorf("invalid path: reserved character")
	}

	return fullPath, nil
}

// cleanEmptyDirs removes empty parent directories up to the base.
func (s *LocalStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir) {
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := os.Remove(dirPath); err != nil {
			break
		}

		dirPath = filepath.Dir(dirPath)
	}
}

func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
