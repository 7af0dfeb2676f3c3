package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WithTransactionResult runs fn in a transaction and returns its result.
// The transaction commits when fn succeeds and rolls back otherwise. fn
// must only use the tx handle: on SQLite the pool holds a single connection.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var result T
	err := db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = fn(tx)
		return err
	})
	return result, err
}

// ForUpdate adds a row lock to the query on PostgreSQL. SQLite serializes
// writers through its single connection, so the clause is skipped there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if !IsPostgresSession(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ForUpdateSkipLocked is ForUpdate with SKIP LOCKED, for queue claims where
// competing workers should pass over rows another worker is claiming.
func ForUpdateSkipLocked(tx *gorm.DB) *gorm.DB {
	if !IsPostgresSession(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}
