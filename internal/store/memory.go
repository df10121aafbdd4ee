package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/posefactory/renderq/internal/common"
)

// MemoryStore is an in-memory Store used by tests and by the lifecycle
// tests' two-worker race harness. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time

	// FailOps, when set, makes the named operations return a transport
	// error. Tests use it to exercise retry and failure paths.
	FailOps map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (m *MemoryStore) failing(op string) bool {
	return m.FailOps != nil && m.FailOps[op]
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("list") {
		return nil, fmt.Errorf("%w: list %s: injected failure", common.ErrTransport, prefix)
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("get") {
		return nil, fmt.Errorf("%w: get %s: injected failure", common.ErrTransport, key)
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("put") {
		return fmt.Errorf("%w: put %s: injected failure", common.ErrTransport, key)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	m.modified[key] = time.Now()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("delete") {
		return fmt.Errorf("%w: delete %s: injected failure", common.ErrTransport, key)
	}
	delete(m.objects, key)
	delete(m.modified, key)
	return nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("head") {
		return ObjectInfo{}, fmt.Errorf("%w: head %s: injected failure", common.ErrTransport, key)
	}
	data, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: object %s", common.ErrNotFound, key)
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), LastModified: m.modified[key]}, nil
}

// SetModified backdates an object's timestamp. Test helper for
// stale-claim scenarios.
func (m *MemoryStore) SetModified(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modified[key] = t
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("head") {
		return false, fmt.Errorf("%w: head %s: injected failure", common.ErrTransport, key)
	}
	_, ok := m.objects[key]
	return ok, nil
}

// Move copies then deletes under one lock, mirroring the server-side
// copy+delete the S3 client performs. A missing source reports
// common.ErrNotFound exactly like the real client.
func (m *MemoryStore) Move(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("copy") {
		return fmt.Errorf("%w: copy %s: injected failure", common.ErrTransport, src)
	}
	data, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("%w: source %s already moved", common.ErrNotFound, src)
	}
	m.objects[dst] = data
	// The copy writes a fresh object, so the destination's timestamp
	// is the move time. Claim-age checks depend on this.
	m.modified[dst] = time.Now()
	delete(m.objects, src)
	delete(m.modified, src)
	return nil
}

func (m *MemoryStore) Mirror(ctx context.Context, localPath, prefix string) error {
	prefix = strings.TrimSuffix(prefix, "/")
	return filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return m.Put(ctx, prefix+"/"+filepath.ToSlash(rel), data)
	})
}

func (m *MemoryStore) Pull(ctx context.Context, prefix, localPath string) error {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, err := m.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		data, err := m.Get(ctx, key)
		if err != nil {
			return err
		}
		target := filepath.Join(localPath, filepath.FromSlash(strings.TrimPrefix(key, prefix)))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns a sorted snapshot of all object keys. Test helper.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
