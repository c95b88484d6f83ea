package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	seq     int64
	now     func() time.Time

	calls map[string]int
}

type memoryObject struct {
	data    []byte
	version string
	updated time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		now:     time.Now,
		calls:   make(map[string]int),
	}
}

// SetClock replaces the clock used for Updated timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Get returns the object body and attributes.
func (m *MemoryStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get"]++

	obj, ok := m.objects[key]
	if !ok {
		return nil, storeErr("get", key, ErrObjectNotFound)
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)

	return &Object{Attrs: obj.attrs(key), Data: data}, nil
}

// Put overwrites the object.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) (Attrs, error) {
	if err := ctx.Err(); err != nil {
		return Attrs{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["put"]++

	return m.store(key, data), nil
}

// PutIfAbsent creates the object only if absent.
func (m *MemoryStore) PutIfAbsent(ctx context.Context, key string, data []byte) (Attrs, error) {
	if err := ctx.Err(); err != nil {
		return Attrs{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["put_if_absent"]++

	if _, ok := m.objects[key]; ok {
		return Attrs{}, storeErr("put_if_absent", key, ErrPreconditionFailed)
	}

	return m.store(key, data), nil
}

// Delete removes the object, optionally guarded by version.
func (m *MemoryStore) Delete(ctx context.Context, key string, ifVersion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete"]++

	obj, ok := m.objects[key]
	if !ok {
		return nil
	}

	if ifVersion != "" && obj.version != ifVersion {
		return storeErr("delete", key, ErrPreconditionFailed)
	}

	delete(m.objects, key)
	return nil
}

// List returns attributes of objects under prefix, sorted by key.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Attrs
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.attrs(key))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Stat returns object attributes.
func (m *MemoryStore) Stat(ctx context.Context, key string) (Attrs, error) {
	if err := ctx.Err(); err != nil {
		return Attrs{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return Attrs{}, storeErr("stat", key, ErrObjectNotFound)
	}
	return obj.attrs(key), nil
}

func (m *MemoryStore) store(key string, data []byte) Attrs {
	m.seq++

	buf := make([]byte, len(data))
	copy(buf, data)

	obj := memoryObject{
		data:    buf,
		version: strconv.FormatInt(m.seq, 10),
		updated: m.now().UTC(),
	}
	m.objects[key] = obj

	return obj.attrs(key)
}

func (o memoryObject) attrs(key string) Attrs {
	return Attrs{
		Key:     key,
		Size:    int64(len(o.data)),
		Version: o.version,
		Updated: o.updated,
	}
}
