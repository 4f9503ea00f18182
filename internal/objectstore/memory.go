package objectstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	dserrors "github.com/systmms/dfops/internal/errors"
)

// MemStore is an in-process Store. Used by tests and local dry runs.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailNext, when set, is returned (and cleared) by the next call.
	FailNext error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func memKey(bucket, key string) string { return bucket + "\x00" + key }

func (m *MemStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

// Put stores data directly.
func (m *MemStore) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = append([]byte(nil), data...)
}

// Object returns the stored bytes and whether the object exists.
func (m *MemStore) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[memKey(bucket, key)]
	return data, ok
}

// Upload implements Store.
func (m *MemStore) Upload(_ context.Context, bucket, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.objects[memKey(bucket, key)] = data
	return nil
}

// Download implements Store.
func (m *MemStore) Download(_ context.Context, bucket, key string, w io.Writer) (int64, error) {
	m.mu.Lock()
	if err := m.takeFailure(); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	data, ok := m.objects[memKey(bucket, key)]
	m.mu.Unlock()
	if !ok {
		return 0, dserrors.NotFoundError{System: "memstore", Name: "gs://" + bucket + "/" + key}
	}
	return io.Copy(w, bytes.NewReader(data))
}

// List implements Store.
func (m *MemStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var keys []string
	for k := range m.objects {
		b, key, _ := strings.Cut(k, "\x00")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
