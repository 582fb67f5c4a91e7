// Package storage provides interfaces and shared types for client and grant persistence.
//
// The storage package defines the two stores the authorization core depends on:
//   - ClientRegistry / ClientStore: resolve client_id to a registered client
//   - GrantStore: persist authorization codes and redeem them exactly once
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development, tests and single-instance deployments
//   - storage/redis: Redis-backed storage for horizontally scaled deployments
//   - storage/sql: GORM-backed storage (SQLite) for durable single-node deployments
//   - storage/mock: Mock storage for unit testing
//
// Backends are selected by driver name through storage/factory.
//
// # Consume-once semantics
//
// Every GrantStore implementation redeems a code with a single atomic operation:
//
//   - memory: lookup and delete under one mutex
//   - redis: GETDEL
//   - sql: DELETE ... WHERE code_hash = ? inside a transaction, RowsAffected decides the winner
//
// Expired grants are reported as ErrGrantNotFound whether or not they were already purged.
package storage
