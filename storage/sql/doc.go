// Package sql provides a GORM-backed implementation of the client registry and grant store.
//
// SQLite is supported out of the box through OpenSQLite; any other GORM dialector can be
// used by opening the database yourself, calling Migrate and passing the handle to New.
//
// Grants live in the "grants" table keyed by the SHA-256 digest of the code. ConsumeGrant
// runs SELECT and DELETE in one transaction and treats a DELETE that affected no rows as
// a lost race, so a code is redeemed at most once even with several writers.
package sql
