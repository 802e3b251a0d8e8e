// Package trigger turns OrderCreated events into matching runs. Each event
// is persisted as a match job and handed to a worker that owns the order's
// symbol, so runs for one symbol happen one at a time and in arrival order.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/internal/trading/engine"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/internal/trading/orderqueue"
	"github.com/Aidin1998/pincex_spot/pkg/metrics"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

const defaultBacklog = 1024

// Matcher runs the matching loop for one order.
type Matcher interface {
	OnOrderCreated(ctx context.Context, order *models.Order) (*engine.Report, error)
}

// OrderFinder loads the current state of an order.
type OrderFinder interface {
	Find(ctx context.Context, id uint64) (*models.Order, error)
}

// Dispatcher feeds match jobs to one worker goroutine per symbol.
type Dispatcher struct {
	logger  *zap.Logger
	queue   orderqueue.Queue
	orders  OrderFinder
	matcher Matcher
	backlog int

	mu      sync.Mutex
	workers map[models.Symbol]*worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	processed atomic.Int64
	failed    atomic.Int64
}

type worker struct {
	symbol models.Symbol
	jobs   chan orderqueue.MatchJob
	depth  atomic.Int64
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Processed int64
	Failed    int64
}

func NewDispatcher(logger *zap.Logger, queue orderqueue.Queue, orders OrderFinder, matcher Matcher) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		queue:   queue,
		orders:  orders,
		matcher: matcher,
		backlog: defaultBacklog,
		workers: make(map[models.Symbol]*worker),
	}
}

// Attach subscribes the dispatcher to order events on bus.
func (d *Dispatcher) Attach(bus events.EventBus) {
	bus.Subscribe(events.TopicOrder, d.HandleEvent)
}

// Start launches the workers and re-dispatches every job left pending by a
// previous run.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.running = true
	d.mu.Unlock()

	pending, err := d.queue.ReplayPending(ctx)
	if err != nil {
		return fmt.Errorf("replaying match jobs: %w", err)
	}
	if len(pending) > 0 {
		d.logger.Info("Replaying pending match jobs", zap.Int("count", len(pending)))
	}
	for _, job := range pending {
		if err := d.dispatch(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels the workers and waits for the job in flight to finish.
// Jobs not yet processed stay in the queue for the next Start.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancel()
	d.workers = make(map[models.Symbol]*worker)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for match workers: %w", ctx.Err())
	}
}

// HandleEvent persists a job for every OrderCreated event and dispatches it.
func (d *Dispatcher) HandleEvent(ctx context.Context, event events.Event) {
	if event.Type != events.TypeOrderCreated {
		return
	}
	payload, ok := event.Payload.(events.OrderEvent)
	if !ok {
		d.logger.Error("Unexpected OrderCreated payload", zap.Any("payload", event.Payload))
		return
	}
	if err := d.Submit(ctx, &payload.Order); err != nil {
		d.logger.Error("Failed to submit match job",
			zap.Uint64("order_id", payload.Order.ID), zap.Error(err))
	}
}

// Submit enqueues a match job for order.
func (d *Dispatcher) Submit(ctx context.Context, order *models.Order) error {
	job := orderqueue.NewMatchJob(order)
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue match job: %w", err)
	}
	return d.dispatch(ctx, job)
}

// Stats returns processed and failed job counts.
func (d *Dispatcher) Stats() Stats {
	return Stats{Processed: d.processed.Load(), Failed: d.failed.Load()}
}

func (d *Dispatcher) dispatch(ctx context.Context, job orderqueue.MatchJob) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		d.logger.Debug("Dispatcher stopped, job left pending", zap.String("job_id", job.ID))
		return nil
	}
	w := d.workerFor(job.Symbol)
	workerCtx := d.ctx
	d.mu.Unlock()

	w.depth.Add(1)
	metrics.TriggerQueueDepth.WithLabelValues(string(job.Symbol)).Set(float64(w.depth.Load()))
	select {
	case w.jobs <- job:
		return nil
	case <-workerCtx.Done():
		w.depth.Add(-1)
		return nil
	case <-ctx.Done():
		w.depth.Add(-1)
		return ctx.Err()
	}
}

// workerFor must be called with d.mu held.
func (d *Dispatcher) workerFor(symbol models.Symbol) *worker {
	if w, ok := d.workers[symbol]; ok {
		return w
	}
	w := &worker{symbol: symbol, jobs: make(chan orderqueue.MatchJob, d.backlog)}
	d.workers[symbol] = w
	d.wg.Add(1)
	go d.run(d.ctx, w)
	return w
}

func (d *Dispatcher) run(ctx context.Context, w *worker) {
	defer d.wg.Done()
	d.logger.Debug("Match worker started", zap.String("symbol", string(w.symbol)))
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			d.process(ctx, job)
			w.depth.Add(-1)
			metrics.TriggerQueueDepth.WithLabelValues(string(w.symbol)).Set(float64(w.depth.Load()))
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job orderqueue.MatchJob) {
	start := time.Now()
	logger := d.logger.With(zap.String("job_id", job.ID), zap.Uint64("order_id", job.OrderID))

	order, err := d.orders.Find(ctx, job.OrderID)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		logger.Warn("Match job references unknown order")
	case err != nil:
		// keep the job for the next replay
		d.failed.Add(1)
		logger.Error("Failed to load order for matching", zap.Error(err))
		return
	default:
		report, err := d.matcher.OnOrderCreated(ctx, order)
		if err != nil {
			d.failed.Add(1)
			logger.Error("Matching run aborted", zap.Error(err))
		} else {
			logger.Debug("Matching run finished",
				zap.Int("trades", len(report.Trades)),
				zap.Duration("took", time.Since(start)))
		}
	}

	if err := d.queue.Acknowledge(ctx, job.ID); err != nil {
		logger.Error("Failed to acknowledge match job", zap.Error(err))
		return
	}
	d.processed.Add(1)
}
