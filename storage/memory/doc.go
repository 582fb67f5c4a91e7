// Package memory provides an in-memory implementation of the storage interfaces.
//
// Clients and grants live in maps guarded by a single sync.RWMutex. ConsumeGrant looks up
// and deletes a grant under the write lock, so of any number of concurrent redemptions of
// the same code exactly one sees the grant.
//
// Features:
//   - Background purge of expired grants at a configurable interval
//   - Storage size gauges and per-operation spans when instrumentation is set
//
// State is lost on restart and is not shared between instances. Use storage/redis or
// storage/sql for multi-instance deployments.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(store, store, config, logger)
package memory
