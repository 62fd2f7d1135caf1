package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Runner executes plans with transaction support
type Runner struct {
	db      *sql.DB
	tracker *Tracker
	logger  *zap.Logger
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:      db,
		tracker: NewTracker(db),
		logger:  logger,
	}
}

// Initialize sets up the migration history table
func (r *Runner) Initialize(ctx context.Context) error {
	return r.tracker.Initialize(ctx)
}

// Tracker returns the history tracker of the runner
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// Execute applies every statement of the plan and records it, all in one
// transaction. An empty plan is a no-op and returns nil.
func (r *Runner) Execute(ctx context.Context, modelID string, plan Plan) (*Migration, error) {
	if plan.Empty() {
		r.logger.Info("no schema changes", zap.String("table", plan.Table))
		return nil, nil
	}

	start := time.Now()
	migration := NewMigration(modelID, plan)

	if plan.Destructive {
		r.logger.Warn("migration may cause data loss",
			zap.String("migration", migration.Name),
			zap.String("table", plan.Table),
		)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction", zap.Error(err))
		}
	}()

	for i, op := range plan.Ops {
		if _, err := tx.ExecContext(ctx, op.SQL); err != nil {
			return nil, fmt.Errorf("failed to execute statement %d (%s): %w", i+1, op.Kind, err)
		}
	}

	if err := r.tracker.Record(ctx, tx, migration); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("✓ applied migration",
		zap.String("migration", migration.Name),
		zap.Int("statements", len(plan.Ops)),
		zap.Duration("took", time.Since(start)),
	)
	return migration, nil
}

// DatabaseMessage returns the message reported by Postgres for err, or
// err.Error() when err did not come from the server
func DatabaseMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	return err.Error()
}

// IsUndefinedTable reports whether err is Postgres' undefined_table (42P01)
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return false
}
