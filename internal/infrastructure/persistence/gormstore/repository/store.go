package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"morcore/internal/errs"
	"morcore/internal/ports"
)

// pgLockNotAvailable is SQLSTATE lock_not_available, raised by NOWAIT.
const pgLockNotAvailable = "55P03"

var errLockOutsideTx = errors.New("row lock requires a unit of work")

// LockObserver is told about every lock that could not be taken.
type LockObserver func(entity string)

type store struct {
	db       *gorm.DB
	observer LockObserver
}

func (s store) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return s.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// withinTx runs fn in the caller's transaction, or in a new one when the
// context carries none.
func (s store) withinTx(ctx context.Context, fn func(db *gorm.DB) error) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := s.dbFromContext(ctx)
		if err != nil {
			return err
		}
		return fn(db)
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// lockRow claims key in the transaction's lock set and then selects the row
// with FOR UPDATE NOWAIT. Both failure paths return inUse.
func (s store) lockRow(ctx context.Context, entity string, id uint64, dest any, inUse error, notFound error) error {
	locks := ports.LockSetFromContext(ctx)
	if locks == nil {
		return errLockOutsideTx
	}
	db, err := s.dbFromContext(ctx)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s:%d", entity, id)
	if !locks.TryAcquire(key) {
		s.observe(entity)
		return fmt.Errorf("%w: %s", inUse, key)
	}

	err = db.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("id = ?", id).
		Take(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound
		}
		if isLockNotAvailable(err) {
			s.observe(entity)
			return fmt.Errorf("%w: %s", inUse, key)
		}
		return errs.Wrapf(err, "lock %s", key)
	}
	return nil
}

func (s store) observe(entity string) {
	if s.observer != nil {
		s.observer(entity)
	}
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func lookupError(err error, notFound error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return errs.Wrap(err, msg)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
