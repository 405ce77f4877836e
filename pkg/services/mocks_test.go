package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/proxylink-dev/proxylink/pkg/adapters/backend"
	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/repositories"
	"github.com/proxylink-dev/proxylink/pkg/vault"
)

// fakeConnectorStore is an in-memory ConnectorRepository.
type fakeConnectorStore struct {
	mu         sync.Mutex
	connectors map[uuid.UUID]*models.Connector
}

func newFakeConnectorStore() *fakeConnectorStore {
	return &fakeConnectorStore{connectors: make(map[uuid.UUID]*models.Connector)}
}

var _ repositories.ConnectorRepository = (*fakeConnectorStore)(nil)

func (s *fakeConnectorStore) Create(_ context.Context, c *models.Connector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.connectors {
		if existing.OwnerID == c.OwnerID && existing.Name == c.Name {
			return apperrors.ErrConflict
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	clone := *c
	s.connectors[c.ID] = &clone
	return nil
}

func (s *fakeConnectorStore) GetByID(_ context.Context, id uuid.UUID) (*models.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connectors[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *fakeConnectorStore) ListByOwner(_ context.Context, ownerID string) ([]*models.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Connector
	for _, c := range s.connectors {
		if c.OwnerID == ownerID {
			clone := *c
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *fakeConnectorStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connectors[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.IsActive = active
	return nil
}

func (s *fakeConnectorStore) UpdateSealed(_ context.Context, id uuid.UUID, encryptedConfig, encryptedCredentials string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connectors[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.EncryptedConfig = encryptedConfig
	c.EncryptedCredentials = encryptedCredentials
	return nil
}

func (s *fakeConnectorStore) ListAll(_ context.Context) ([]*models.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Connector
	for _, c := range s.connectors {
		clone := *c
		result = append(result, &clone)
	}
	return result, nil
}

// fakeLinkStore is an in-memory LinkRepository. Consume holds the lock
// across predicate check and increment, matching the conditional UPDATE
// semantics of the real store. beforeConsume, when set, runs before the
// lock is taken, letting tests interleave a state change between the
// policy pre-check and the atomic step.
type fakeLinkStore struct {
	mu            sync.Mutex
	links         map[string]*models.SharedLink
	beforeConsume func()
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: make(map[string]*models.SharedLink)}
}

var _ repositories.LinkRepository = (*fakeLinkStore)(nil)

func (s *fakeLinkStore) Create(_ context.Context, l *models.SharedLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.CreatedAt = time.Now()
	clone := *l
	s.links[l.ID] = &clone
	return nil
}

func (s *fakeLinkStore) GetByID(_ context.Context, id string) (*models.SharedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	clone := *l
	return &clone, nil
}

func (s *fakeLinkStore) Consume(_ context.Context, id string, now time.Time) (bool, error) {
	if s.beforeConsume != nil {
		s.beforeConsume()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return false, nil
	}
	if !l.Usable(now) {
		return false, nil
	}
	l.UseCount++
	return true, nil
}

func (s *fakeLinkStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	l.Revoked = true
	return nil
}

func (s *fakeLinkStore) ListByConnector(_ context.Context, connectorID uuid.UUID) ([]*models.SharedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.SharedLink
	for _, l := range s.links {
		if l.ConnectorID == connectorID {
			clone := *l
			result = append(result, &clone)
		}
	}
	return result, nil
}

// fakeAuditStore is an in-memory AccessLogRepository.
type fakeAuditStore struct {
	mu      sync.Mutex
	entries []*models.AccessLogEntry
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{}
}

var _ repositories.AccessLogRepository = (*fakeAuditStore)(nil)

func (s *fakeAuditStore) Create(ctx context.Context, entry *models.AccessLogEntry) error {
	// A real pool refuses work on a dead context; callers must hand the
	// ledger a live one even when the request context is cancelled.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

func (s *fakeAuditStore) ListByConnector(_ context.Context, connectorID uuid.UUID, _, _ int) ([]*models.AccessLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.AccessLogEntry
	for _, e := range s.entries {
		if e.ConnectorID == connectorID {
			clone := *e
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *fakeAuditStore) all() []*models.AccessLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AccessLogEntry(nil), s.entries...)
}

// countingUnsealer delegates to a real vault while counting calls, so
// tests can assert denied dispatches never decrypt anything.
type countingUnsealer struct {
	vault *vault.Vault
	calls atomic.Int64
}

func (u *countingUnsealer) Unseal(sealed string) ([]byte, error) {
	u.calls.Add(1)
	return u.vault.Unseal(sealed)
}

// failingUnsealer simulates a vault that cannot decrypt.
type failingUnsealer struct{}

func (failingUnsealer) Unseal(string) ([]byte, error) {
	return nil, apperrors.ErrVault
}

// fakeAdapter lets tests script backend behavior per dispatch.
type fakeAdapter struct {
	executeFn  func(ctx context.Context, config, credentials map[string]any, op models.Operation) (*backend.Result, error)
	validateFn func(config map[string]any) error
	calls      atomic.Int64
}

var _ backend.Adapter = (*fakeAdapter)(nil)

func (a *fakeAdapter) Execute(ctx context.Context, config, credentials map[string]any, op models.Operation) (*backend.Result, error) {
	a.calls.Add(1)
	if a.executeFn != nil {
		return a.executeFn(ctx, config, credentials, op)
	}
	return &backend.Result{}, nil
}

func (a *fakeAdapter) ValidateConfig(config map[string]any) error {
	if a.validateFn != nil {
		return a.validateFn(config)
	}
	return nil
}

// fakeRegistry serves one adapter for every kind.
type fakeRegistry struct {
	adapter backend.Adapter
}

func (r *fakeRegistry) ForKind(kind models.Kind) (backend.Adapter, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("no adapter registered for kind %q", kind)
	}
	return r.adapter, nil
}

func testVault() *vault.Vault {
	v, err := vault.New(map[string]string{"v1": "test-master-key"}, "v1")
	if err != nil {
		panic(err)
	}
	return v
}
