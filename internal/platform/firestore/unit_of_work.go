package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
)

type txContextKey struct{}

// WithTx returns a context carrying an open Firestore transaction. Repositories
// that find a transaction in the context perform their reads and writes through
// it so that multiple repositories join the same transaction.
func WithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext extracts the Firestore transaction carried by the context, if any.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok
}

// UnitOfWork runs functions inside a Firestore transaction, making the open
// transaction available to repositories through the context.
type UnitOfWork struct {
	provider *Provider
	opts     []TxOption
}

// NewUnitOfWork constructs a UnitOfWork backed by the provider's client.
func NewUnitOfWork(provider *Provider, opts ...TxOption) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &UnitOfWork{provider: provider, opts: opts}, nil
}

// RunInTx executes fn within a single Firestore transaction. The context passed
// to fn carries the transaction; all repository calls made with that context
// participate in it. Firestore retries the function on contention, so fn must
// be safe to run more than once.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	return u.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(WithTx(txCtx, tx))
	}, u.opts...)
}
