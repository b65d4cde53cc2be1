package uow

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"morcore/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm. Row locks claimed in a
// transaction are tracked in a process-wide table so a second transaction
// fails fast even on drivers without native row locks.
type UnitOfWork struct {
	db    *gorm.DB
	locks *lockTable
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db, locks: newLockTable()}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ports.TxFromContext(ctx) != nil {
		// Nested call: join the outer transaction and its locks.
		return fn(ctx)
	}

	held := &txLocks{table: u.locks}
	defer held.releaseAll()

	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ports.WithTxContext(ctx, tx)
		txCtx = ports.WithLockSet(txCtx, held)
		return fn(txCtx)
	})
}

type lockTable struct {
	mu     sync.Mutex
	owners map[string]*txLocks
}

func newLockTable() *lockTable {
	return &lockTable{owners: make(map[string]*txLocks)}
}

// txLocks is the set of keys one transaction holds.
type txLocks struct {
	table *lockTable
	keys  []string
}

func (l *txLocks) TryAcquire(key string) bool {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	if owner, ok := l.table.owners[key]; ok {
		return owner == l
	}
	l.table.owners[key] = l
	l.keys = append(l.keys, key)
	return true
}

func (l *txLocks) releaseAll() {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	for _, key := range l.keys {
		if l.table.owners[key] == l {
			delete(l.table.owners, key)
		}
	}
	l.keys = nil
}
