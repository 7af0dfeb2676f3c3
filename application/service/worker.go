package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/helixml/codeframe/application/handler"
	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/job"
)

// Worker defaults.
const (
	DefaultWorkerConcurrency  = 2
	DefaultPollPeriod         = time.Second
	DefaultLeaseDuration      = 5 * time.Minute
	DefaultRetryInitialDelay  = 10 * time.Second
	DefaultRetryMaxDelay      = 10 * time.Minute
	ackMaxRetries             = 5
	ackInitialInterval        = 200 * time.Millisecond
	heartbeatsPerLease        = 3
	minimumHeartbeatInterval  = 10 * time.Millisecond
	maxStoredErrorMessageSize = 2000
)

// Worker claims jobs from the durable queue and runs their handlers. Jobs
// are leased, not removed: a worker that dies mid-job stops heartbeating and
// the reaper hands the job to another worker once the lease lapses.
type Worker struct {
	store    job.Store
	registry *handler.Registry
	logger   *slog.Logger
	owner    string

	concurrency  int
	pollPeriod   time.Duration
	lease        time.Duration
	reapPeriod   time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	sweeps       []func(context.Context) error
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWorker creates a new queue worker with a fresh lease owner id.
func NewWorker(store job.Store, registry *handler.Registry, logger *slog.Logger) *Worker {
	return &Worker{
		store:        store,
		registry:     registry,
		logger:       logger,
		owner:        uuid.NewString(),
		concurrency:  DefaultWorkerConcurrency,
		pollPeriod:   DefaultPollPeriod,
		lease:        DefaultLeaseDuration,
		reapPeriod:   DefaultPollPeriod,
		retryInitial: DefaultRetryInitialDelay,
		retryMax:     DefaultRetryMaxDelay,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithPollPeriod sets the poll period for checking new jobs and expired leases.
func (w *Worker) WithPollPeriod(d time.Duration) *Worker {
	if d > 0 {
		w.pollPeriod = d
		w.reapPeriod = d
	}
	return w
}

// WithConcurrency sets how many jobs run at once.
func (w *Worker) WithConcurrency(n int) *Worker {
	if n > 0 {
		w.concurrency = n
	}
	return w
}

// WithLeaseDuration sets how long a claim lasts without a heartbeat.
func (w *Worker) WithLeaseDuration(d time.Duration) *Worker {
	if d > 0 {
		w.lease = d
	}
	return w
}

// WithRetryDelays sets the exponential backoff bounds between attempts.
func (w *Worker) WithRetryDelays(initial, maximum time.Duration) *Worker {
	if initial > 0 {
		w.retryInitial = initial
	}
	if maximum >= w.retryInitial {
		w.retryMax = maximum
	}
	return w
}

// WithSweep adds a housekeeping task run after every reap.
func (w *Worker) WithSweep(sweep func(context.Context) error) *Worker {
	if sweep != nil {
		w.sweeps = append(w.sweeps, sweep)
	}
	return w
}

// Owner returns the lease owner id this worker claims jobs under.
func (w *Worker) Owner() string {
	return w.owner
}

// Start begins processing jobs from the queue.
// The worker runs in goroutines and can be stopped with Stop().
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reapLoop(ctx)
	}()

	w.logger.Info("queue worker started",
		slog.String("owner", w.owner),
		slog.Int("concurrency", w.concurrency),
		slog.Any("kinds", w.registry.Kinds()),
	)
}

// Stop gracefully shuts down the worker.
// It waits for running jobs to be acknowledged before returning.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("queue worker stopped", slog.String("owner", w.owner))
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes jobs until the queue has nothing runnable.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		found, err := w.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("error processing job", slog.String("error", err.Error()))
			return
		}
		if !found {
			return
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(w.reapPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Reap(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("failed to reap expired jobs", slog.String("error", err.Error()))
			}
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	for _, fn := range w.sweeps {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("housekeeping sweep failed", slog.String("error", err.Error()))
		}
	}
}

// Reap returns jobs with lapsed leases to the queue.
func (w *Worker) Reap(ctx context.Context) (int, error) {
	n, err := w.store.ReapExpired(ctx, w.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Warn("reclaimed jobs with expired leases", slog.Int("count", n))
	}
	return n, nil
}

// ProcessOne claims and runs a single job. It reports whether a job was found.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	kinds := w.registry.Kinds()
	if len(kinds) == 0 {
		return false, nil
	}

	j, found, err := w.store.Claim(ctx, w.owner, kinds, w.lease, w.now())
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if !found {
		return false, nil
	}
	return true, w.process(ctx, j)
}

func (w *Worker) process(ctx context.Context, j job.Job) error {
	start := time.Now()
	log := w.logger.With(
		slog.Int64("job_id", j.ID()),
		slog.Int64("generation_id", j.GenerationID()),
		slog.String("kind", string(j.Kind())),
		slog.Int("attempt", j.Attempts()),
	)
	log.Info("processing job")

	h, err := w.registry.Handler(j.Kind())
	if err != nil {
		err = job.Permanent(err)
	} else {
		hbCtx, stopHeartbeat := context.WithCancel(ctx)
		var hb sync.WaitGroup
		hb.Add(1)
		go func() {
			defer hb.Done()
			w.heartbeat(hbCtx, j, log)
		}()

		err = w.executeWithRecovery(ctx, h, j)

		stopHeartbeat()
		hb.Wait()
	}

	// Acks must land even when the worker is shutting down.
	ackCtx := context.WithoutCancel(ctx)

	if err == nil {
		if ackErr := w.ack(ackCtx, func() error {
			return w.store.Complete(ackCtx, j.ID(), w.owner, w.now())
		}); ackErr != nil {
			return w.ackFailed(log, ackErr)
		}
		log.Info("job completed", slog.Duration("duration", time.Since(start)))
		return nil
	}

	var retryAt *time.Time
	if !job.IsPermanent(err) && !j.AttemptsExhausted() {
		at := w.now().Add(w.retryDelay(j.Attempts()))
		retryAt = &at
	}
	message := truncateError(err)
	if ackErr := w.ack(ackCtx, func() error {
		return w.store.Fail(ackCtx, j.ID(), w.owner, message, retryAt, w.now())
	}); ackErr != nil {
		return w.ackFailed(log, ackErr)
	}

	if retryAt != nil {
		log.Warn("job failed, will retry",
			slog.String("error", err.Error()),
			slog.Time("retry_at", *retryAt),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	}
	log.Error("job permanently failed",
		slog.String("error", err.Error()),
		slog.Int("attempts", j.Attempts()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (w *Worker) executeWithRecovery(ctx context.Context, h handler.Handler, j job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Execute(ctx, j)
}

func (w *Worker) heartbeat(ctx context.Context, j job.Job, log *slog.Logger) {
	interval := w.lease / heartbeatsPerLease
	if interval < minimumHeartbeatInterval {
		interval = minimumHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.store.Heartbeat(ctx, j.ID(), w.owner, w.now().Add(w.lease))
			if errors.Is(err, job.ErrLeaseLost) {
				log.Warn("lease lost during heartbeat")
				return
			}
			if err != nil && ctx.Err() == nil {
				log.Warn("heartbeat failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ack retries a queue write with bounded backoff. Losing the lease is final.
func (w *Worker) ack(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ackInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, ackMaxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if errors.Is(err, job.ErrLeaseLost) || errors.Is(err, domain.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, d time.Duration) {
		w.logger.Warn("retrying job acknowledgement",
			slog.String("error", err.Error()),
			slog.Duration("backoff", d),
		)
	})
}

func (w *Worker) ackFailed(log *slog.Logger, err error) error {
	if errors.Is(err, job.ErrLeaseLost) {
		// Another worker owns the job now; its result wins.
		log.Warn("job lease lost before acknowledgement")
		return nil
	}
	return fmt.Errorf("acknowledge job: %w", err)
}

// retryDelay returns the wait before the next attempt: the initial delay
// doubled per failed attempt, capped at the maximum.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInitial
	b.MaxInterval = w.retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxStoredErrorMessageSize {
		return strings.ToValidUTF8(msg[:maxStoredErrorMessageSize], "")
	}
	return msg
}
