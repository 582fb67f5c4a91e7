package sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/telemetry"
	"github.com/keyper-oauth/keyper/internal/util"
	"github.com/keyper-oauth/keyper/security"
	"github.com/keyper-oauth/keyper/storage"
)

// Store is a GORM-backed implementation of ClientStore, GrantStore and ExpiredGrantCleaner.
type Store struct {
	db     *gorm.DB
	logger atomic.Pointer[slog.Logger]

	mu          sync.RWMutex
	gracePeriod time.Duration
	recorder    *telemetry.StorageRecorder
}

// Compile-time interface checks
var (
	_ storage.ClientStore         = (*Store)(nil)
	_ storage.GrantStore          = (*Store)(nil)
	_ storage.ExpiredGrantCleaner = (*Store)(nil)
)

// OpenSQLite opens (or creates) a SQLite database at dsn and migrates the schema.
// dsn may be a file path or a "file:" URI such as "file:keyper?mode=memory&cache=shared".
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; serialize access instead of failing with SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the clients and grants tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ClientRecord{}, &GrantRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// New wraps an open, migrated database handle
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sql store requires database handle")
	}
	s := &Store{
		db:          db,
		gracePeriod: security.DefaultClockSkewGracePeriod,
	}
	s.SetLogger(log)
	return s, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}
	return sqlDB.Close()
}

// SetLogger replaces the store's logger. Safe to call while the store is in use.
func (s *Store) SetLogger(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	s.logger.Store(log)
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
	s.recorder = telemetry.NewStorageRecorder(inst, "sqlite")
}

func (s *Store) settings() (time.Duration, *telemetry.StorageRecorder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gracePeriod, s.recorder
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

	record, err := toClientRecord(client)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
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

	var record ClientRecord
	err = s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return record.toClient()
}

// ListClients lists all registered clients ordered by client ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	var records []ClientRecord
	if err := s.db.WithContext(ctx).Order("client_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*storage.Client, 0, len(records))
	for i := range records {
		c, err := records[i].toClient()
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// CreateGrant inserts a new grant row. The primary key on code_hash rejects duplicates.
func (s *Store) CreateGrant(ctx context.Context, grant *storage.Grant) (err error) {
	_, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "create_grant")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "create_grant", err, startTime) }()

	if grant == nil || grant.Code == "" {
		return fmt.Errorf("invalid authorization grant")
	}

	record, err := toGrantRecord(grant)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&GrantRecord{}).Where("code_hash = ?", record.CodeHash).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return storage.ErrGrantExists
		}
		return tx.Create(record).Error
	})
	switch {
	case errors.Is(err, storage.ErrGrantExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrGrantExists
	case err != nil:
		return fmt.Errorf("failed to save authorization grant: %w", err)
	}

	s.log().Debug("Created authorization grant",
		"grant_id", grant.ID,
		"code_prefix", util.SafeTruncate(grant.Code, util.CodeLogPrefixLength))
	return nil
}

// ConsumeGrant reads and deletes the grant row in one transaction.
// The DELETE's affected row count decides the winner when callers race.
func (s *Store) ConsumeGrant(ctx context.Context, code string) (grant *storage.Grant, err error) {
	_, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "consume_grant")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "consume_grant", err, startTime) }()

	codeHash := storage.HashCode(code)
	var record GrantRecord

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code_hash = ?", codeHash).First(&record).Error; err != nil {
			return err
		}
		result := tx.Where("code_hash = ?", codeHash).Delete(&GrantRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrGrantNotFound
		}
		return nil
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, storage.ErrGrantNotFound):
		return nil, storage.ErrGrantNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to consume authorization grant: %w", err)
	}

	g, err := record.toGrant(code)
	if err != nil {
		return nil, err
	}
	if security.IsExpiredAt(g.ExpiresAt, time.Now()) {
		return nil, storage.ErrGrantNotFound
	}
	return g, nil
}

// DeleteExpiredGrants removes grants whose expiry lies beyond the grace period
func (s *Store) DeleteExpiredGrants(ctx context.Context) (count int, err error) {
	grace, recorder := s.settings()
	ctx, span := recorder.Start(ctx, "delete_expired_grants")
	startTime := time.Now()
	defer func() { recorder.Done(ctx, span, "delete_expired_grants", err, startTime) }()

	cutoff := time.Now().Add(-grace).UTC()
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Delete(&GrantRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
