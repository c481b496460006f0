package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/credstore"
)

var _ credstore.Store = (*MemStore)(nil)

// MemStore keeps tokens in process memory. It does not survive restarts on its
// own, but one instance can be shared by successive session.State values to
// simulate a reload.
type MemStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

// NewWithRecord returns a store pre-populated with the given tokens.
func NewWithRecord(r credstore.Record) *MemStore {
	m := New()
	if r.AccessToken != "" {
		m.values[credstore.KeyAccessToken] = r.AccessToken
	}
	if r.RefreshToken != "" {
		m.values[credstore.KeyRefreshToken] = r.RefreshToken
	}
	return m
}

func (m *MemStore) Get(_ context.Context, key string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.values[key], nil
}

func (m *MemStore) Set(_ context.Context, key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
	return nil
}

// Has reports whether key is present at all, which Get cannot distinguish
// from an empty value.
func (m *MemStore) Has(key string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.values[key]
	return ok
}

func (m *MemStore) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.values)
}
