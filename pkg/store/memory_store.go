package store

import (
	"sync"

	"appforge/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	artifacts   map[string]map[string]domain.Artifact // ownerID -> path -> artifact
	order       map[string][]string                   // ownerID -> paths in insertion order
	deployments map[string]domain.Deployment          // ownerID -> record
	chats       map[string][]domain.ChatEntry
	secrets     map[string]string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts:   make(map[string]map[string]domain.Artifact),
		order:       make(map[string][]string),
		deployments: make(map[string]domain.Deployment),
		chats:       make(map[string][]domain.ChatEntry),
		secrets:     make(map[string]string),
	}
}

// SaveArtifact stores or replaces an artifact and tracks insertion order.
func (m *MemoryStore) SaveArtifact(a domain.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned, ok := m.artifacts[a.OwnerID]
	if !ok {
		owned = make(map[string]domain.Artifact)
		m.artifacts[a.OwnerID] = owned
	}
	if _, exists := owned[a.Path]; !exists {
		m.order[a.OwnerID] = append(m.order[a.OwnerID], a.Path)
	}
	owned[a.Path] = a
	return nil
}

// GetArtifact looks up a live artifact by (owner, path).
func (m *MemoryStore) GetArtifact(ownerID, path string) (domain.Artifact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[ownerID][path]
	return a, ok, nil
}

// ListArtifactsByOwner returns artifacts in insertion order.
func (m *MemoryStore) ListArtifactsByOwner(ownerID string) ([]domain.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := m.order[ownerID]
	res := make([]domain.Artifact, 0, len(paths))
	for _, p := range paths {
		if a, ok := m.artifacts[ownerID][p]; ok {
			res = append(res, a)
		}
	}
	return res, nil
}

// DeleteArtifact removes the live record. Missing records are not an error.
func (m *MemoryStore) DeleteArtifact(ownerID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned, ok := m.artifacts[ownerID]
	if !ok {
		return nil
	}
	if _, exists := owned[path]; !exists {
		return nil
	}
	delete(owned, path)
	paths := m.order[ownerID]
	for i, p := range paths {
		if p == path {
			m.order[ownerID] = append(paths[:i], paths[i+1:]...)
			break
		}
	}
	return nil
}

// UpsertDeployment stores or replaces the owner's deployment record.
func (m *MemoryStore) UpsertDeployment(d domain.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments[d.OwnerID] = d
	return nil
}

// GetDeploymentByOwner returns the owner's deployment record.
func (m *MemoryStore) GetDeploymentByOwner(ownerID string) (domain.Deployment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deployments[ownerID]
	return d, ok, nil
}

// AppendChatEntry stores one chat history record.
func (m *MemoryStore) AppendChatEntry(entry domain.ChatEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[entry.OwnerID] = append(m.chats[entry.OwnerID], entry)
	return nil
}

// ListChatEntries returns chat history in append order.
func (m *MemoryStore) ListChatEntries(ownerID string, limit int) ([]domain.ChatEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.chats[ownerID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	res := make([]domain.ChatEntry, len(entries))
	copy(res, entries)
	return res, nil
}

// GetSecret returns a named secret value.
func (m *MemoryStore) GetSecret(name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[name]
	return v, ok, nil
}

// SetSecret stores a secret. Test helper; the SQL store is seeded out of band.
func (m *MemoryStore) SetSecret(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[name] = value
}
