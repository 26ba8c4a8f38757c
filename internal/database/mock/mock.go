// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// MockProfileRepository is a mock implementation of database.ProfileWriter
type MockProfileRepository struct {
	mu         sync.RWMutex
	identities map[string]facematch.Identity
	order      []string

	// Error injection
	GetError      error
	SnapshotError error
	CountError    error
	PutError      error

	// Call tracking
	PutCalls      []PutCall
	SnapshotCalls int
}

// PutCall records a Put invocation
type PutCall struct {
	ID       string
	Identity facematch.Identity
}

// NewMockProfileRepository creates a new mock profile repository
func NewMockProfileRepository() *MockProfileRepository {
	return &MockProfileRepository{
		identities: make(map[string]facematch.Identity),
	}
}

// AddIdentity adds an identity to the mock store without recording a Put call
func (m *MockProfileRepository) AddIdentity(identity facematch.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(identity.ID, identity)
}

func (m *MockProfileRepository) store(id string, identity facematch.Identity) {
	if _, ok := m.identities[id]; !ok {
		m.order = append(m.order, id)
	}
	identity.Descriptor = identity.Descriptor.Clone()
	m.identities[id] = identity
}

// Get retrieves an identity by ID
func (m *MockProfileRepository) Get(ctx context.Context, id string) (*facematch.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	identity.Descriptor = identity.Descriptor.Clone()
	return &identity, nil
}

// Snapshot returns all identities in insertion order
func (m *MockProfileRepository) Snapshot(ctx context.Context) ([]facematch.Identity, error) {
	m.mu.Lock()
	m.SnapshotCalls++
	m.mu.Unlock()

	if m.SnapshotError != nil {
		return nil, m.SnapshotError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]facematch.Identity, 0, len(m.order))
	for _, id := range m.order {
		identity := m.identities[id]
		identity.Descriptor = identity.Descriptor.Clone()
		out = append(out, identity)
	}
	return out, nil
}

// Count returns the number of identities
func (m *MockProfileRepository) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// Put stores an identity
func (m *MockProfileRepository) Put(ctx context.Context, id string, identity facematch.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, PutCall{ID: id, Identity: identity})
	if m.PutError != nil {
		return m.PutError
	}
	m.store(id, identity)
	return nil
}

// FindCandidates returns identities sorted by exact distance, mimicking a vector index
func (m *MockProfileRepository) FindCandidates(ctx context.Context, query facematch.Descriptor, limit int) ([]facematch.Identity, error) {
	all, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	type scored struct {
		identity facematch.Identity
		dist     float64
	}
	items := make([]scored, 0, len(all))
	for _, identity := range all {
		dist, err := facematch.EuclideanDistance(query, identity.Descriptor)
		if err != nil {
			return nil, err
		}
		items = append(items, scored{identity, dist})
	}
	slices.SortStableFunc(items, func(a, b scored) int { return cmp.Compare(a.dist, b.dist) })
	out := make([]facematch.Identity, 0, min(limit, len(items)))
	for i := 0; i < len(items) && i < limit; i++ {
		out = append(out, items[i].identity)
	}
	return out, nil
}

// MockCredentialStore is a mock implementation of database.CredentialStore
type MockCredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]database.StoredCredential
	links       map[string]database.SignInLink

	// Error injection
	CreateError      error
	GetError         error
	SaveLinkError    error
	ConsumeLinkError error
}

// NewMockCredentialStore creates a new mock credential store
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{
		credentials: make(map[string]database.StoredCredential),
		links:       make(map[string]database.SignInLink),
	}
}

// CreateCredential stores a credential
func (m *MockCredentialStore) CreateCredential(ctx context.Context, cred database.StoredCredential) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[cred.Email]; ok {
		return database.ErrEmailExists
	}
	m.credentials[cred.Email] = cred
	return nil
}

// GetCredentialByEmail retrieves a credential
func (m *MockCredentialStore) GetCredentialByEmail(ctx context.Context, email string) (*database.StoredCredential, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.credentials[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &cred, nil
}

// CredentialCount returns the number of stored credentials
func (m *MockCredentialStore) CredentialCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.credentials)
}

// SaveSignInLink stores a link
func (m *MockCredentialStore) SaveSignInLink(ctx context.Context, link database.SignInLink) error {
	if m.SaveLinkError != nil {
		return m.SaveLinkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.JTI] = link
	return nil
}

// ConsumeSignInLink marks a link used
func (m *MockCredentialStore) ConsumeSignInLink(ctx context.Context, jti string, now time.Time) (*database.SignInLink, error) {
	if m.ConsumeLinkError != nil {
		return nil, m.ConsumeLinkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[jti]
	if !ok {
		return nil, database.ErrNotFound
	}
	if link.UsedAt != nil {
		return nil, database.ErrLinkUsed
	}
	link.UsedAt = &now
	m.links[jti] = link
	return &link, nil
}

// MockSessionStore is a mock implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]database.Session

	// Error injection
	SaveError   error
	GetError    error
	DeleteError error
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]database.Session)}
}

// SaveSession stores a session
func (m *MockSessionStore) SaveSession(ctx context.Context, s database.Session) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// GetSession retrieves an unexpired session
func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*database.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.Expired(time.Now()) {
		return nil, database.ErrNotFound
	}
	return &s, nil
}

// DeleteSession removes a session
func (m *MockSessionStore) DeleteSession(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpiredSessions removes expired sessions
func (m *MockSessionStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// SessionCount returns the number of stored sessions
func (m *MockSessionStore) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
