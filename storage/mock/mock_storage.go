// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/keyper-oauth/keyper/storage"
)

// MockClientStore is a mock implementation of ClientStore for testing
type MockClientStore struct {
	mu              sync.RWMutex
	clients         map[string]*storage.Client
	SaveClientFunc  func(ctx context.Context, client *storage.Client) error
	GetClientFunc   func(ctx context.Context, clientID string) (*storage.Client, error)
	ListClientsFunc func(ctx context.Context) ([]*storage.Client, error)
	CallCounts      map[string]int
}

// NewMockClientStore creates a new mock client store
func NewMockClientStore() *MockClientStore {
	m := &MockClientStore{
		clients:    make(map[string]*storage.Client),
		CallCounts: make(map[string]int),
	}

	// Set default implementations
	m.SaveClientFunc = func(_ context.Context, client *storage.Client) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.clients[client.ClientID] = client
		return nil
	}

	m.GetClientFunc = func(_ context.Context, clientID string) (*storage.Client, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		client, ok := m.clients[clientID]
		if !ok {
			return nil, storage.ErrClientNotFound
		}
		return client, nil
	}

	m.ListClientsFunc = func(_ context.Context) ([]*storage.Client, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		clients := make([]*storage.Client, 0, len(m.clients))
		for _, c := range m.clients {
			clients = append(clients, c)
		}
		return clients, nil
	}

	return m
}

func (m *MockClientStore) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[name]++
}

// SaveClient calls SaveClientFunc
func (m *MockClientStore) SaveClient(ctx context.Context, client *storage.Client) error {
	m.count("SaveClient")
	return m.SaveClientFunc(ctx, client)
}

// GetClient calls GetClientFunc
func (m *MockClientStore) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.count("GetClient")
	return m.GetClientFunc(ctx, clientID)
}

// ListClients calls ListClientsFunc
func (m *MockClientStore) ListClients(ctx context.Context) ([]*storage.Client, error) {
	m.count("ListClients")
	return m.ListClientsFunc(ctx)
}

// Calls returns how often the named method was called
func (m *MockClientStore) Calls(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[name]
}

// MockGrantStore is a mock implementation of GrantStore for testing.
// The default functions keep grants in a map and consume them once; expiry is not checked.
type MockGrantStore struct {
	mu               sync.RWMutex
	grants           map[string]*storage.Grant
	CreateGrantFunc  func(ctx context.Context, grant *storage.Grant) error
	ConsumeGrantFunc func(ctx context.Context, code string) (*storage.Grant, error)
	CallCounts       map[string]int
}

// NewMockGrantStore creates a new mock grant store
func NewMockGrantStore() *MockGrantStore {
	m := &MockGrantStore{
		grants:     make(map[string]*storage.Grant),
		CallCounts: make(map[string]int),
	}

	m.CreateGrantFunc = func(_ context.Context, grant *storage.Grant) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, exists := m.grants[grant.Code]; exists {
			return storage.ErrGrantExists
		}
		m.grants[grant.Code] = grant
		return nil
	}

	m.ConsumeGrantFunc = func(_ context.Context, code string) (*storage.Grant, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		grant, ok := m.grants[code]
		if !ok {
			return nil, storage.ErrGrantNotFound
		}
		delete(m.grants, code)
		return grant, nil
	}

	return m
}

func (m *MockGrantStore) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[name]++
}

// CreateGrant calls CreateGrantFunc
func (m *MockGrantStore) CreateGrant(ctx context.Context, grant *storage.Grant) error {
	m.count("CreateGrant")
	return m.CreateGrantFunc(ctx, grant)
}

// ConsumeGrant calls ConsumeGrantFunc
func (m *MockGrantStore) ConsumeGrant(ctx context.Context, code string) (*storage.Grant, error) {
	m.count("ConsumeGrant")
	return m.ConsumeGrantFunc(ctx, code)
}

// Calls returns how often the named method was called
func (m *MockGrantStore) Calls(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[name]
}

// Grants returns a snapshot of the stored grants keyed by code
func (m *MockGrantStore) Grants() map[string]*storage.Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*storage.Grant, len(m.grants))
	for k, v := range m.grants {
		out[k] = v
	}
	return out
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*MockClientStore)(nil)
	_ storage.GrantStore  = (*MockGrantStore)(nil)
)
