package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/telemetry"
	"github.com/keyper-oauth/keyper/internal/util"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys
	DefaultKeyPrefix = "keyper:"

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// minGrantTTL is used for grants that are already past their expiry when created
	minGrantTTL = time.Millisecond
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Addr is the Redis server address (required), e.g., "localhost:6379"
	Addr string

	// Username and Password are optional ACL credentials
	Username string
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "keyper:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Redis-backed implementation of ClientStore and GrantStore.
//
// Grants are keyed by the SHA-256 digest of their code and carry a Redis TTL of
// their remaining lifetime plus the clock skew grace period, so Redis purges them itself.
type Store struct {
	client *goredis.Client
	prefix string
	logger atomic.Pointer[slog.Logger]

	mu          sync.RWMutex
	gracePeriod time.Duration
	recorder    *telemetry.StorageRecorder
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New creates a new Redis-backed store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:      cfg.Addr,
		Username:  cfg.Username,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.Logger)
	s.log().Info("Connected to Redis storage",
		"address", cfg.Addr,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

// NewWithClient wraps an existing client. An empty prefix selects DefaultKeyPrefix.
func NewWithClient(client *goredis.Client, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	s := &Store{
		client:      client,
		prefix:      prefix,
		gracePeriod: security.DefaultClockSkewGracePeriod,
	}
	s.SetLogger(logger)
	return s
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	s.log().Info("Redis storage connection closed")
	return nil
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

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = telemetry.NewStorageRecorder(inst, "redis")
}

func (s *Store) settings() (time.Duration, *telemetry.StorageRecorder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gracePeriod, s.recorder
}

func (s *Store) grantKey(code string) string {
	return s.prefix + "grant:" + storage.HashCode(code)
}

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	_, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "save_client")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "save_client", err, startTime) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err := s.client.Set(ctx, s.clientKey(client.ClientID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.log().Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	_, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "get_client")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "get_client", err, startTime) }()

	data, err := s.client.Get(ctx, s.clientKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var j clientJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return fromClientJSON(&j), nil
}

// ListClients lists all registered clients ordered by client ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	var (
		cursor  uint64
		clients []*storage.Client
	)
	pattern := s.prefix + "client:*"

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan clients: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, goredis.Nil) {
					continue
				}
				return nil, fmt.Errorf("failed to get client: %w", err)
			}
			var j clientJSON
			if err := json.Unmarshal(data, &j); err != nil {
				s.log().Warn("Skipping unreadable client record", "key", key, "error", err)
				continue
			}
			clients = append(clients, fromClientJSON(&j))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// CreateGrant persists a new grant with SET NX so an existing code is never overwritten
func (s *Store) CreateGrant(ctx context.Context, grant *storage.Grant) (err error) {
	grace, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "create_grant")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "create_grant", err, startTime) }()

	if grant == nil || grant.Code == "" {
		return fmt.Errorf("invalid authorization grant")
	}

	data, err := json.Marshal(toGrantJSON(grant))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization grant: %w", err)
	}

	ttl := time.Until(grant.ExpiresAt) + grace
	if grant.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl < minGrantTTL {
		ttl = minGrantTTL
	}

	created, err := s.client.SetNX(ctx, s.grantKey(grant.Code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save authorization grant: %w", err)
	}
	if !created {
		return storage.ErrGrantExists
	}

	s.log().Debug("Created authorization grant",
		"grant_id", grant.ID,
		"code_prefix", util.SafeTruncate(grant.Code, util.CodeLogPrefixLength))
	return nil
}

// ConsumeGrant retrieves and removes the grant with a single GETDEL.
// Redis executes GETDEL atomically, so only one of any concurrent callers receives the grant.
func (s *Store) ConsumeGrant(ctx context.Context, code string) (grant *storage.Grant, err error) {
	_, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "consume_grant")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "consume_grant", err, startTime) }()

	data, err := s.client.GetDel(ctx, s.grantKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization grant: %w", err)
	}

	var j grantJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization grant: %w", err)
	}
	g := fromGrantJSON(&j, code)

	// The key outlives ExpiresAt by the grace period
	if security.IsExpiredAt(g.ExpiresAt, time.Now()) {
		return nil, storage.ErrGrantNotFound
	}
	return g, nil
}
