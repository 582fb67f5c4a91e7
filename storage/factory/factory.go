// Package factory builds a storage backend from its driver name.
package factory

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/keyper-oauth/keyper/storage"
	"github.com/keyper-oauth/keyper/storage/memory"
	"github.com/keyper-oauth/keyper/storage/redis"
	"github.com/keyper-oauth/keyper/storage/sql"
)

// Driver identifiers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a storage driver
type Config struct {
	// Driver is one of "memory" (default), "sqlite" or "redis"
	Driver string

	// CleanupInterval is the memory driver's purge interval
	CleanupInterval time.Duration

	// SQLitePath is the database file (or "file:" URI) for the sqlite driver
	SQLitePath string

	// Redis configures the redis driver
	Redis redis.Config
}

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	// SQLiteDB is used instead of opening SQLitePath when set
	SQLiteDB *gorm.DB
}

// Backend is a store satisfying both core storage interfaces
type Backend interface {
	storage.ClientStore
	storage.GrantStore
}

// Store is an opened backend together with its release function
type Store struct {
	Backend
	Driver string

	closeFn func() error
}

// Close releases the backend's resources
func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// New opens the backend selected by cfg.Driver
func New(cfg Config, deps Dependencies, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		store := memory.NewWithInterval(cfg.CleanupInterval)
		store.SetLogger(logger)
		return &Store{
			Backend: store,
			Driver:  driver,
			closeFn: func() error { store.Stop(); return nil },
		}, nil

	case DriverSQLite:
		db := deps.SQLiteDB
		if db == nil {
			var err error
			db, err = sql.OpenSQLite(cfg.SQLitePath)
			if err != nil {
				return nil, err
			}
		}
		store, err := sql.New(db, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Backend: store, Driver: driver, closeFn: store.Close}, nil

	case DriverRedis:
		redisCfg := cfg.Redis
		if redisCfg.Logger == nil {
			redisCfg.Logger = logger
		}
		store, err := redis.New(redisCfg)
		if err != nil {
			return nil, err
		}
		return &Store{Backend: store, Driver: driver, closeFn: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
