package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/savannah-faces/data-service/internal/database"
	"github.com/savannah-faces/data-service/internal/metrics"
	"github.com/savannah-faces/data-service/internal/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Page selects a window of a listing. Both fields must be set for the window
// to apply; otherwise the whole set is returned.
type Page struct {
	Limit  *int
	Offset *int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Limit == nil || p.Offset == nil {
		return db
	}
	return db.Limit(*p.Limit).Offset(*p.Offset)
}

// Deps bundles what every repository needs.
type Deps struct {
	DB      *gorm.DB
	Policy  retry.Policy
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

type base struct {
	db      *gorm.DB
	policy  retry.Policy
	log     *zap.Logger
	metrics *metrics.Metrics
}

func newBase(deps Deps) base {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return base{db: deps.DB, policy: deps.Policy, log: log, metrics: deps.Metrics}
}

// run executes fn in its own transaction, retried with the policy. Inside a
// unit of work fn runs once in a savepoint and transient failures go straight
// back to the unit of work, which retries on a new transaction.
func (b *base) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if database.InTransaction(ctx) {
		err := database.Conn(ctx, b.db).Transaction(fn)
		switch {
		case err == nil:
			return nil
		case database.IsTransient(err):
			return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
		default:
			return translate(op, err)
		}
	}

	policy := b.policy
	policy.Retryable = database.IsTransient
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		b.metrics.RecordRetry(op)
		b.log.Warn("Transient database error, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		return database.Conn(ctx, b.db).Transaction(fn)
	})
	if err == nil {
		return nil
	}

	if database.IsTransient(err) {
		b.metrics.RecordExhausted(op)
		b.log.Error("Database operation failed after retries",
			zap.String("operation", op),
			zap.Int("max_attempts", b.policy.MaxAttempts),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	return translate(op, err)
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
