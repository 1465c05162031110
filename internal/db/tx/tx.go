// Package tx carries a gorm transaction in a context.Context, so nested code
// joins an outer (ambient) transaction instead of opening its own.
package tx

import (
	"context"

	"gorm.io/gorm"
)

// txKey is the context key for storing the ambient transaction.
type txKey struct{}

// WithTx returns a copy of ctx carrying tx as ambient transaction.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the ambient transaction of ctx, if any.
func FromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)

	return tx, ok && tx != nil
}

// InTransaction reports whether ctx carries an ambient transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := FromContext(ctx)

	return ok
}

// Get returns the ambient transaction of ctx if available, otherwise db bound to ctx.
func Get(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}

	return db.WithContext(ctx)
}

// Run executes fn within a transaction. If ctx already carries a transaction fn
// runs inside it and the owner of that transaction commits or rolls back.
// Otherwise a new transaction is started, committed if fn returns nil and rolled back if not.
func Run(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if tx, ok := FromContext(ctx); ok {
		return fn(ctx, tx)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx), tx)
	})
}
