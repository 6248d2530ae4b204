package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/candlefeed/internal/metrics"
	"github.com/rickgao/candlefeed/internal/model"
	"github.com/rickgao/candlefeed/internal/queue"
	"github.com/rickgao/candlefeed/internal/source"
)

// Worker consumes queued candles and writes them to the store.
type Worker struct {
	cfg     Config
	sources *source.Table
	store   Store
	input   Queue
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)

	// checked records destinations whose index was verified. Only the Run
	// goroutine touches it.
	checked map[model.Destination]struct{}

	statsMu sync.Mutex
	stats   WorkerMetrics
}

// NewWorker creates a persistence worker.
func NewWorker(
	cfg Config,
	sources *source.Table,
	store Store,
	input Queue,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReferenceTimezone == nil {
		cfg.ReferenceTimezone = time.UTC
	}
	return &Worker{
		cfg:     cfg,
		sources: sources,
		store:   store,
		input:   input,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		checked: make(map[model.Destination]struct{}),
	}
}

// Run drains the queue until it is closed and empty or ctx is done.
// Returns nil when the queue was closed, ctx.Err() otherwise.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("persistence worker started",
		"source_prefix", w.cfg.SourcePrefix,
		"sources", w.sources.Len(),
		"reference_timezone", w.cfg.ReferenceTimezone.String(),
	)

	for {
		item, err := w.input.Receive(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				w.logger.Info("persistence queue closed, worker stopping")
				return nil
			}
			return err
		}

		if err := w.process(ctx, item); err != nil {
			w.logger.Error("candle dropped",
				"routing_key", item.Candle.RoutingKey(),
				"open_time", item.Candle.OpenTime,
				"error", err,
			)
			if errors.Is(err, ErrStoreWrite) || errors.Is(err, ErrStoreIndex) {
				w.sleep(ctx, w.cfg.ErrorBackoff)
			}
		}
	}
}

// Stats returns current counters.
func (w *Worker) Stats() WorkerMetrics {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// process stores one candle. Any error means the item was dropped.
func (w *Worker) process(ctx context.Context, item model.QueuedCandle) error {
	c := item.Candle

	dest, doc, err := w.transform(c)
	if err != nil {
		return err
	}

	if err := w.ensureIndex(ctx, dest); err != nil {
		w.drop(DropIndex)
		return err
	}

	insertCtx, cancel := w.opContext(ctx)
	err = w.store.Insert(insertCtx, dest, doc)
	cancel()
	if err != nil {
		w.drop(DropWrite)
		w.metrics.StoreWrite("error")
		return fmt.Errorf("%w: %s: %w", ErrStoreWrite, dest, err)
	}

	w.statsMu.Lock()
	w.stats.Inserts++
	w.statsMu.Unlock()
	w.metrics.StoreWrite("ok")

	w.observeDelay(c)
	return nil
}

// transform resolves the destination and document for a candle.
func (w *Worker) transform(c model.Candle) (model.Destination, model.Document, error) {
	zone, err := w.sources.Lookup(c.Source)
	if err != nil {
		w.drop(DropUnknownSource)
		return model.Destination{}, model.Document{}, err
	}

	dt, err := zone.StorageTime(c.OpenTime)
	if err != nil {
		w.drop(DropBadTime)
		return model.Destination{}, model.Document{}, fmt.Errorf("open time: %w", err)
	}

	hm := source.HourOfDay(dt, w.cfg.ReferenceTimezone)
	return model.DestinationFor(w.cfg.SourcePrefix, c), model.NewDocument(c, dt, hm), nil
}

// ensureIndex checks the destination index once per worker lifetime.
// A failed check is not recorded, so the next item retries it.
func (w *Worker) ensureIndex(ctx context.Context, dest model.Destination) error {
	if _, ok := w.checked[dest]; ok {
		return nil
	}

	w.logger.Info("checking index",
		"database", dest.Database,
		"collection", dest.Collection,
	)

	w.statsMu.Lock()
	w.stats.IndexChecks++
	w.statsMu.Unlock()

	indexCtx, cancel := w.opContext(ctx)
	defer cancel()
	if err := w.store.EnsureIndex(indexCtx, dest); err != nil {
		w.metrics.IndexCheck("error")
		return fmt.Errorf("%w: %s: %w", ErrStoreIndex, dest, err)
	}

	w.metrics.IndexCheck("ok")
	w.checked[dest] = struct{}{}
	return nil
}

// observeDelay logs and records how long the candle took from terminal to store.
func (w *Worker) observeDelay(c model.Candle) {
	zone, err := w.sources.Lookup(c.Source)
	if err != nil {
		return
	}
	sent, err := zone.StorageTime(c.SendTime)
	if err != nil {
		return
	}
	delay := w.now().Sub(sent)
	w.metrics.ReceiveDelay(delay.Seconds())
	w.logger.Debug("candle stored",
		"routing_key", c.RoutingKey(),
		"send_time", sent,
		"receive_delay", delay,
	)
}

func (w *Worker) drop(reason string) {
	w.statsMu.Lock()
	w.stats.Dropped++
	if reason == DropWrite || reason == DropIndex {
		w.stats.Errors++
	}
	w.statsMu.Unlock()
	w.metrics.Dropped(reason)
}

func (w *Worker) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.WriteTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.WriteTimeout)
	}
	return context.WithCancel(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
