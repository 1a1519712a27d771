package scheduler

import (
	"context"
	"time"

	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
)

// Sweeper is the part of the overdue sweeper the job needs
type Sweeper interface {
	Sweep(ctx context.Context, today time.Time) (*appinvoicing.SweepResult, error)
}

// Reconciler is the part of the reconciliation service the job needs
type Reconciler interface {
	Run(ctx context.Context) (*appinvoicing.ReconcileReport, error)
}

// OverdueSweepJob runs the daily overdue sweep for the current UTC day
type OverdueSweepJob struct {
	Sweeper Sweeper
}

// Name implements Job
func (OverdueSweepJob) Name() string { return "overdue_sweep" }

// Run implements Job
func (j OverdueSweepJob) Run(ctx context.Context, now time.Time) error {
	_, err := j.Sweeper.Sweep(ctx, now)
	return err
}

// ReconcileJob retries allocations and receipts left behind by partial failures
type ReconcileJob struct {
	Reconciler Reconciler
}

// Name implements Job
func (ReconcileJob) Name() string { return "reconcile" }

// Run implements Job
func (j ReconcileJob) Run(ctx context.Context, _ time.Time) error {
	_, err := j.Reconciler.Run(ctx)
	return err
}
