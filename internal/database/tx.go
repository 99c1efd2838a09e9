package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/savannah-faces/data-service/internal/metrics"
	"github.com/savannah-faces/data-service/internal/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const unitOfWorkOp = "unit_of_work"

type txKey struct{}

// Transactor scopes a unit of work to a single database transaction.
type Transactor struct {
	db      *gorm.DB
	policy  retry.Policy
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewTransactor(db *gorm.DB, policy retry.Policy, log *zap.Logger, m *metrics.Metrics) *Transactor {
	return &Transactor{db: db, policy: policy, log: log, metrics: m}
}

// WithinTransaction runs fn inside one transaction carried by ctx.
// The transaction commits when fn returns nil and rolls back when fn returns
// an error or panics; the panic is re-raised after the rollback.
//
// A transient failure at begin, inside fn or at commit rolls the whole
// transaction back and runs fn again on a new one, following the retry
// policy, so fn must be safe to repeat. When the attempts run out the error
// wraps ErrTransient. Nested calls join the outer transaction and leave
// retrying to it.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	policy := t.policy
	policy.Retryable = IsTransient
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		t.metrics.RecordRetry(unitOfWorkOp)
		t.log.Warn("Transient database error, retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		return t.attempt(ctx, fn)
	})
	if err == nil || !IsTransient(err) {
		return err
	}

	t.metrics.RecordExhausted(unitOfWorkOp)
	t.log.Error("Transaction failed after retries",
		zap.Int("max_attempts", t.policy.MaxAttempts),
		zap.Error(err),
	)
	if errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func (t *Transactor) attempt(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx := t.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}

	defer func() {
		if p := recover(); p != nil {
			t.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		t.rollback(tx)
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *Transactor) rollback(tx *gorm.DB) {
	if err := tx.Rollback().Error; err != nil {
		t.log.Warn("Transaction rollback failed", zap.Error(err))
	}
}

// Conn returns the transaction bound to ctx, or db when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}
