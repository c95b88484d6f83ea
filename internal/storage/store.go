package storage

import (
	"context"
	"path"
	"strings"
	"time"
)

// ObjectStore is the subset of a remote blob service the lock and sync
// protocol depends on. Keys are slash separated and relative to the
// store's configured prefix.
type ObjectStore interface {
	// Get returns the object body and attributes, or ErrObjectNotFound.
	Get(ctx context.Context, key string) (*Object, error)

	// Put overwrites the object.
	Put(ctx context.Context, key string, data []byte) (Attrs, error)

	// PutIfAbsent creates the object only if no object exists under key.
	// It returns ErrPreconditionFailed when one does.
	PutIfAbsent(ctx context.Context, key string, data []byte) (Attrs, error)

	// Delete removes the object. A non-empty ifVersion makes the delete
	// conditional on the current version and returns ErrPreconditionFailed
	// on mismatch. Deleting an absent object is not an error.
	Delete(ctx context.Context, key string, ifVersion string) error

	// List returns attributes of every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Attrs, error)

	// Stat returns object attributes, or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (Attrs, error)
}

// Attrs is object metadata.
type Attrs struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	Version string    `json:"version"` // etag, generation or counter
	Updated time.Time `json:"updated"` // server-side modification time
}

// Object is a fetched object.
type Object struct {
	Attrs
	Data []byte
}

// prefixer maps relative keys onto a store-wide prefix.
type prefixer string

func (p prefixer) full(key string) string {
	key = strings.TrimPrefix(key, "/")
	if p == "" {
		return key
	}
	return path.Join(string(p), key)
}

func (p prefixer) rel(key string) string {
	if p == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, string(p)), "/")
}

// listPrefix keeps a trailing slash that path.Join would drop.
func (p prefixer) listPrefix(prefix string) string {
	full := p.full(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(full, "/") {
		full += "/"
	}
	if prefix == "" && p != "" {
		full = string(p) + "/"
	}
	return full
}
