package ports

import "context"

// Tx is an opaque transaction handle for repositories/adapters.
// Infrastructure controls the concrete type (for example, *gorm.DB).
type Tx interface{}

// UnitOfWork defines a transaction boundary.
//
// Returning an error from fn rolls back, returning nil commits. Row locks
// taken inside fn are released when the transaction ends.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LockSet records the rows a transaction has claimed. TryAcquire never
// blocks: it returns false when another transaction holds key.
type LockSet interface {
	TryAcquire(key string) bool
}

type txKey struct{}
type lockSetKey struct{}

// WithTxContext stores a transaction handle in context.
func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext reads a transaction handle from context.
func TxFromContext(ctx context.Context) Tx {
	return ctx.Value(txKey{})
}

func WithLockSet(ctx context.Context, locks LockSet) context.Context {
	return context.WithValue(ctx, lockSetKey{}, locks)
}

// LockSetFromContext returns nil outside a unit of work.
func LockSetFromContext(ctx context.Context) LockSet {
	locks, _ := ctx.Value(lockSetKey{}).(LockSet)
	return locks
}
