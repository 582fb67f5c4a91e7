package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/telemetry"
	"github.com/keyper-oauth/keyper/internal/util"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
)

// DefaultCleanupInterval is how often expired grants are purged
const DefaultCleanupInterval = time.Minute

// Store is an in-memory implementation of ClientStore, GrantStore and ExpiredGrantCleaner.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.Client
	grants  map[string]*storage.Grant // code -> grant

	gracePeriod time.Duration
	now         func() time.Time

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	recorder        atomic.Pointer[telemetry.StorageRecorder]

	// Atomic counters for metrics (lock-free access during metric collection)
	grantsCountAtomic  atomic.Int64
	clientsCountAtomic atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          atomic.Pointer[slog.Logger]
}

// Compile-time interface checks
var (
	_ storage.ClientStore         = (*Store)(nil)
	_ storage.GrantStore          = (*Store)(nil)
	_ storage.ExpiredGrantCleaner = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		grants:          make(map[string]*storage.Grant),
		gracePeriod:     security.DefaultClockSkewGracePeriod,
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	s.logger.Store(slog.Default())

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger replaces the store's logger. Safe to call while the store is in use.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger.Store(logger)
}

func (s *Store) log() *slog.Logger {
	return s.logger.Load()
}

// SetClockSkewGracePeriod sets how long an expired grant is kept before it is purged.
// Consumption always stops at ExpiresAt.
func (s *Store) SetClockSkewGracePeriod(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gracePeriod = d
}

// setClock replaces the time source (tests only)
func (s *Store) setClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	s.recorder.Store(telemetry.NewStorageRecorder(inst, "memory"))
	s.grantsCountAtomic.Store(int64(len(s.grants)))
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.grantsCountAtomic.Load() },
			func() int64 { return s.clientsCountAtomic.Load() },
		)
		if err != nil {
			s.log().Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop stops the background cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	recorder := s.recorder.Load()
	ctx, span := recorder.Start(ctx, "save_client")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "save_client", err, startTime) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	clone := cloneClient(client)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.clients[client.ClientID] = clone
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.mu.Unlock()

	s.log().Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	recorder := s.recorder.Load()
	ctx, span := recorder.Start(ctx, "get_client")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "get_client", err, startTime) }()

	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return cloneClient(c), nil
}

// ListClients lists all registered clients ordered by client ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	clients := make([]*storage.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, cloneClient(c))
	}
	s.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// CreateGrant persists a new grant keyed by its code
func (s *Store) CreateGrant(ctx context.Context, grant *storage.Grant) (err error) {
	recorder := s.recorder.Load()
	ctx, span := recorder.Start(ctx, "create_grant")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "create_grant", err, startTime) }()

	if grant == nil || grant.Code == "" {
		return fmt.Errorf("invalid authorization grant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grant.Code]; exists {
		return storage.ErrGrantExists
	}
	s.grants[grant.Code] = cloneGrant(grant)
	s.grantsCountAtomic.Store(int64(len(s.grants)))

	s.log().Debug("Created authorization grant",
		"grant_id", grant.ID,
		"code_prefix", util.SafeTruncate(grant.Code, util.CodeLogPrefixLength))
	return nil
}

// ConsumeGrant atomically retrieves and removes the grant for code.
// The grant is removed even when it turns out to be expired.
func (s *Store) ConsumeGrant(ctx context.Context, code string) (grant *storage.Grant, err error) {
	recorder := s.recorder.Load()
	ctx, span := recorder.Start(ctx, "consume_grant")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "consume_grant", err, startTime) }()

	s.mu.Lock()
	g, ok := s.grants[code]
	if ok {
		delete(s.grants, code)
		s.grantsCountAtomic.Store(int64(len(s.grants)))
	}
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return nil, storage.ErrGrantNotFound
	}
	if security.IsExpiredAt(g.ExpiresAt, now) {
		s.log().Debug("Consumed expired authorization grant",
			"grant_id", g.ID,
			"expired_at", g.ExpiresAt)
		return nil, storage.ErrGrantNotFound
	}
	return g, nil
}

// DeleteExpiredGrants removes expired grants and returns how many were removed
func (s *Store) DeleteExpiredGrants(ctx context.Context) (count int, err error) {
	recorder := s.recorder.Load()
	ctx, span := recorder.Start(ctx, "delete_expired_grants")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "delete_expired_grants", err, startTime) }()

	s.mu.Lock()
	now, grace := s.now(), s.gracePeriod
	for code, g := range s.grants {
		if security.IsPurgeable(g.ExpiresAt, now, grace) {
			delete(s.grants, code)
			count++
		}
	}
	s.grantsCountAtomic.Store(int64(len(s.grants)))
	s.mu.Unlock()

	return count, nil
}

// GrantCount returns the number of stored grants, expired ones included
func (s *Store) GrantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	ctx := context.Background()
	count, err := s.DeleteExpiredGrants(ctx)
	if err != nil {
		s.log().Warn("Failed to clean up expired grants", "error", err)
		return
	}

	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()
	if inst != nil {
		inst.Metrics().RecordGrantsCleaned(ctx, count)
	}
	if count > 0 {
		s.log().Debug("Cleaned up expired grants", "count", count)
	}
}

func cloneClient(c *storage.Client) *storage.Client {
	clone := *c
	clone.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return &clone
}

func cloneGrant(g *storage.Grant) *storage.Grant {
	clone := *g
	clone.Scopes = append([]string(nil), g.Scopes...)
	return &clone
}
