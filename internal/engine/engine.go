// Package engine implements the engine loop: for each order the queue
// consumer hands it, it opens a store transaction, selects candidates, runs
// the match cycle, and commits the result, retrying store-layer failures
// with bounded backoff. The consumer acknowledges the message once the
// handler returns nil.
package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lanternex/matchingengine/internal/errs"
	"github.com/lanternex/matchingengine/internal/matching"
	"github.com/lanternex/matchingengine/internal/metrics"
	"github.com/lanternex/matchingengine/internal/model"
	"github.com/lanternex/matchingengine/internal/queue"
	"github.com/lanternex/matchingengine/internal/store"
)

// Config configures one Engine instance.
type Config struct {
	DryRun              bool
	SkipAssetSettlement bool
	MaxRetries          uint64
}

// Engine ties the queue, the matching core, and the store into one loop.
type Engine struct {
	store  *store.Store
	cfg    Config
	logger *zap.Logger
}

// New constructs an Engine bound to st.
func New(st *store.Store, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{store: st, cfg: cfg, logger: logger}
}

// Handler returns a queue.Handler bound to this engine's ProcessOrder, for
// passing to queue.Consumer.Consume.
func (e *Engine) Handler() queue.Handler {
	return e.ProcessOrder
}

// ProcessOrder selects candidates, runs the match cycle, and commits, all
// inside one store transaction. Failures classified as retryable are
// retried with exponential backoff bounded by cfg.MaxRetries before being
// surfaced to the caller, which maps to a Nak/retry at the queue layer.
func (e *Engine) ProcessOrder(ctx context.Context, order model.Order) error {
	start := time.Now()
	defer func() {
		metrics.MatchCycleDuration.Observe(time.Since(start).Seconds())
	}()

	op := func() error {
		return e.runOnce(ctx, order)
	}

	bo := backoff.WithContext(e.retryPolicy(), ctx)
	err := backoff.Retry(op, bo)
	if err != nil {
		metrics.EngineFailures.Inc()
		return err
	}
	metrics.OrdersProcessed.Inc()
	return nil
}

// retryPolicy bounds retries to a finite, time-boxed budget. runOnce marks
// non-retryable errors with backoff.Permanent, which makes
// backoff.Retry stop immediately regardless of this policy's own limits.
func (e *Engine) retryPolicy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 50 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	exp.MaxElapsedTime = 10 * time.Second

	return backoff.WithMaxRetries(exp, e.cfg.MaxRetries)
}

func (e *Engine) runOnce(ctx context.Context, order model.Order) error {
	err := e.store.WithinTransaction(ctx, func(tx *store.Tx) error {
		candidates, err := tx.RestingOrders(order)
		if err != nil {
			return errs.Wrap(err, errs.CodeStoreContention, "select candidates")
		}

		mr := matching.RunMatchCycle(order, candidates)

		if e.cfg.DryRun {
			e.logger.Info("dry run: discarding match result", zap.Int("trades", len(mr.Transactions)))
			return errDryRunAbort
		}

		commitErr := matching.Commit(tx, mr, matching.CommitOptions{SkipAssetSettlement: e.cfg.SkipAssetSettlement})
		if commitErr != nil {
			return commitErr
		}

		metrics.TradesExecuted.Add(float64(len(mr.Transactions)))
		return nil
	})

	if err == errDryRunAbort {
		return nil
	}
	if err == nil {
		return nil
	}

	if errs.CodeOf(err).Retryable() {
		return err
	}
	// Non-retryable: wrap in backoff.Permanent so backoff.Retry stops
	// immediately instead of burning its retry budget.
	return backoff.Permanent(err)
}

// errDryRunAbort is a sentinel used to unwind WithinTransaction without
// committing when running with --dry-run, rolling back any writes the match
// cycle's candidate selection may have staged as side effects (none today,
// but RestingOrders may gain locking reads in the future).
var errDryRunAbort = errs.New(errs.CodeInvariantViolation, "dry run: rolled back intentionally")
