// Package runner orchestrates the worker fleet for one targeting: spawn,
// backoff, shard rotation, stale requeue maintenance, daily-cap enforcement
// and graceful shutdown.
package runner

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"formrunner/internal/config"
	"formrunner/internal/queue"
	"formrunner/internal/worker"
)

// maxWorkers caps the per-runner fleet; the hosted queue serializes claims
// so more local parallelism only multiplies browser load.
const maxWorkers = 4

// processor is the per-company surface the runner drives. worker.Worker
// implements it.
type processor interface {
	ProcessNext(ctx context.Context, targetDate string, shardID int) (bool, error)
	Process(ctx context.Context, targetDate string, companyID int64) error
}

// Options are the run-scoped CLI parameters.
type Options struct {
	TargetDate   string
	ShardID      int   // -1 unsharded
	MaxProcessed int   // 0 unlimited, shared across workers
	CompanyID    int64 // >0 forces single-company mode
	NumWorkers   int
}

// Runner owns the fleet for one invocation.
type Runner struct {
	cfg    config.WorkerConfig
	tenant *config.Tenant
	q      queue.Queue
	opts   Options
	log    *zap.Logger

	// newProcessor builds one worker per slot; injected so orchestration
	// can be tested without a browser.
	newProcessor func(id int) processor

	processed atomic.Int64
	successes *successCache
}

func New(cfg config.WorkerConfig, tenant *config.Tenant, q queue.Queue, opts Options,
	newProcessor func(id int) processor, log *zap.Logger) *Runner {

	if opts.NumWorkers < 1 {
		opts.NumWorkers = 1
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}
	return &Runner{
		cfg:          cfg,
		tenant:       tenant,
		q:            q,
		opts:         opts,
		log:          log,
		newProcessor: newProcessor,
		successes: newSuccessCache(q, opts.TargetDate, tenant.TargetingID,
			time.Duration(cfg.Queue.SuccessCountTTLSec)*time.Second),
	}
}

// NewFromWorkers builds a runner over prebuilt workers, one per slot.
func NewFromWorkers(cfg config.WorkerConfig, tenant *config.Tenant, q queue.Queue,
	opts Options, workers []*worker.Worker, log *zap.Logger) *Runner {

	return New(cfg, tenant, q, opts, func(id int) processor {
		return workers[id]
	}, log)
}

// Run drives the fleet until the queue drains, the cap or max-processed
// limit is reached, or a termination signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if r.opts.CompanyID > 0 {
		p := r.newProcessor(0)
		return p.Process(ctx, r.opts.TargetDate, r.opts.CompanyID)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.NumWorkers; i++ {
		id := i
		eg.Go(func() error {
			return r.workerLoop(egCtx, id, r.newProcessor(id))
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("worker fleet: %w", err)
	}
	if ctx.Err() != nil {
		r.log.Info("shutdown requested, fleet drained")
	}
	return nil
}

// workerLoop is one worker's claim loop with exponential backoff, shard
// rotation and (for worker 0) the stale-requeue ticker.
func (r *Runner) workerLoop(ctx context.Context, id int, p processor) error {
	shard := r.opts.ShardID
	backoff := r.backoffBase()
	var emptySince time.Time
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	var stale *time.Ticker
	if id == 0 && r.cfg.Queue.StaleRequeueIntervalSec > 0 {
		stale = time.NewTicker(time.Duration(r.cfg.Queue.StaleRequeueIntervalSec) * time.Second)
		defer stale.Stop()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if stale != nil {
			select {
			case <-stale.C:
				r.requeueStale(ctx)
			default:
			}
		}
		if r.limitReached() {
			r.log.Info("max processed reached", zap.Int("worker", id))
			return nil
		}
		if capped, err := r.capReached(ctx); err != nil {
			r.log.Warn("cap check failed", zap.Error(err))
		} else if capped {
			r.log.Info("daily cap reached", zap.Int("worker", id))
			return nil
		}

		ok, err := p.ProcessNext(ctx, r.opts.TargetDate, shard)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("process failed", zap.Int("worker", id), zap.Error(err))
		}
		if ok {
			r.processed.Add(1)
			r.successes.Invalidate()
			backoff = r.backoffBase()
			emptySince = time.Time{}
			continue
		}

		// Empty claim. Track the window, maybe rotate, back off.
		now := time.Now()
		if emptySince.IsZero() {
			emptySince = now
		}
		if shard >= 0 && now.Sub(emptySince) >= time.Duration(r.cfg.Shard.EmptyWindowSec)*time.Second {
			ok, probeErr := p.ProcessNext(ctx, r.opts.TargetDate, -1)
			if probeErr == nil && ok {
				r.processed.Add(1)
				r.successes.Invalidate()
				backoff = r.backoffBase()
				emptySince = time.Time{}
				continue
			}
			if r.cfg.Shard.RotationEnabled {
				next := nextShard(shard, r.cfg.Shard, rng)
				r.log.Debug("rotating shard", zap.Int("worker", id),
					zap.Int("from", shard), zap.Int("to", next))
				shard = next
				emptySince = now
			}
		}

		if !sleepCtx(ctx, withJitter(backoff, rng)) {
			return nil
		}
		backoff = nextBackoff(backoff, r.backoffMax())
	}
}

func (r *Runner) requeueStale(ctx context.Context) {
	n, err := r.q.RequeueStale(ctx, r.opts.TargetDate, r.tenant.TargetingID, r.cfg.Queue.StaleThresholdMin)
	if err != nil {
		r.log.Warn("stale requeue failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("requeued stale entries", zap.Int("count", n))
	}
}

func (r *Runner) limitReached() bool {
	return r.opts.MaxProcessed > 0 && r.processed.Load() >= int64(r.opts.MaxProcessed)
}

func (r *Runner) capReached(ctx context.Context) (bool, error) {
	limit := r.tenant.Targeting.MaxDailySends
	if limit <= 0 {
		return false, nil
	}
	n, err := r.successes.Get(ctx)
	if err != nil {
		return false, err
	}
	return n >= limit, nil
}

func (r *Runner) backoffBase() time.Duration {
	return time.Duration(r.cfg.Queue.EmptyBackoffBaseSec) * time.Second
}

func (r *Runner) backoffMax() time.Duration {
	return time.Duration(r.cfg.Queue.EmptyBackoffMaxSec) * time.Second
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// withJitter spreads wakeups across workers: ±25% of the base.
func withJitter(d time.Duration, rng *rand.Rand) time.Duration {
	if d <= 0 {
		return 0
	}
	quarter := int64(d) / 4
	return d - time.Duration(quarter) + time.Duration(rng.Int63n(2*quarter+1))
}

// nextShard advances the pinned shard when a rotation window expires.
func nextShard(cur int, cfg config.ShardConfig, rng *rand.Rand) int {
	if cfg.MaxShards <= 1 {
		return cur
	}
	if cfg.RotationMode == "random" {
		for {
			n := rng.Intn(cfg.MaxShards)
			if n != cur {
				return n
			}
		}
	}
	return (cur + 1) % cfg.MaxShards
}

// sleepCtx waits for d or until cancellation; false means the context died.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
