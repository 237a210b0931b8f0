package delivery

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// shardBuffer bounds how many routed records a single worker shard can
// hold ahead of processing.
const shardBuffer = 16

// WorkerConfig contains channel worker configuration.
type WorkerConfig struct {
	WorkersPerChannel int
	AdapterTimeout    time.Duration
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	JitterFraction    float64
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkersPerChannel: 2,
		AdapterTimeout:    10 * time.Second,
		BaseBackoff:       30 * time.Second,
		MaxBackoff:        1 * time.Hour,
		JitterFraction:    0.1,
	}
}

// DeadLetterReporter is notified when a record terminates into
// dead-letter state, so the external analytics collaborator can drive
// follow-up (e.g. a channel re-verification prompt). Dead-lettered work
// is never re-presented to the pipeline automatically.
type DeadLetterReporter interface {
	ReportDeadLetter(ctx context.Context, record *domain.DeliveryRecord)
}

// Worker drains per-channel dispatch queues, calls the channel adapter
// and records the outcome. Each channel queue is routed onto worker
// shards by user hash, so records for one (user, channel) pair always
// land on the same shard and are attempted in queue order even with
// multiple workers per channel.
type Worker struct {
	config     WorkerConfig
	repo       Repository
	dispatcher *Dispatcher
	adapters   map[domain.Channel]Adapter
	deadLetter DeadLetterReporter

	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewWorker creates a new delivery worker over the given adapters.
func NewWorker(config WorkerConfig, repo Repository, dispatcher *Dispatcher, deadLetter DeadLetterReporter, adapters ...Adapter) *Worker {
	if config.WorkersPerChannel <= 0 {
		config.WorkersPerChannel = 1
	}
	adapterMap := make(map[domain.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		adapterMap[a.Channel()] = a
	}
	return &Worker{
		config:     config,
		repo:       repo,
		dispatcher: dispatcher,
		adapters:   adapterMap,
		deadLetter: deadLetter,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// Start launches worker shards and a routing goroutine for every
// channel queue.
func (w *Worker) Start(ctx context.Context) {
	for channel := range w.adapters {
		queue := w.dispatcher.Queue(channel)
		shards := make([]chan *domain.DeliveryRecord, w.config.WorkersPerChannel)
		for i := range shards {
			shards[i] = make(chan *domain.DeliveryRecord, shardBuffer)
			w.wg.Add(1)
			go w.run(ctx, shards[i])
		}
		w.wg.Add(1)
		go w.route(ctx, channel, queue, shards)
	}
	slog.Info("delivery workers started",
		"channels", len(w.adapters),
		"workers_per_channel", w.config.WorkersPerChannel,
	)
}

// Stop drains in-flight attempts and stops all workers. Queued records
// remain due in the store and are resumed by the scheduler on restart.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("delivery workers stopped")
}

// route assigns each dequeued record to the shard owning its user. The
// assignment is stable, so a shard sees its users' records in FIFO
// order; a full shard applies backpressure to the channel queue rather
// than handing the record to an idle shard out of order.
func (w *Worker) route(ctx context.Context, channel domain.Channel, queue <-chan *domain.DeliveryRecord, shards []chan *domain.DeliveryRecord) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case record := <-queue:
			recordQueueDepth(string(channel), len(queue))
			shard := shards[userShard(record.UserID, len(shards))]
			select {
			case shard <- record:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *Worker) run(ctx context.Context, shard <-chan *domain.DeliveryRecord) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case record := <-shard:
			w.process(ctx, record)
		}
	}
}

func userShard(userID string, shards int) int {
	if shards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(shards))
}

// process performs one delivery attempt for a record.
func (w *Worker) process(ctx context.Context, record *domain.DeliveryRecord) {
	adapter, ok := w.adapters[record.Channel]
	if !ok {
		slog.Error("no adapter for channel", "channel", record.Channel, "record_id", record.ID)
		return
	}

	// Claim the record. A concurrent worker or a restart may have
	// already moved it on; losing the race is not an error.
	current, err := w.repo.MarkDispatched(ctx, record.ID, record.Status)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) || errors.Is(err, ErrRecordNotFound) {
			slog.Debug("record already claimed", "record_id", record.ID)
			return
		}
		slog.Error("failed to mark dispatched", "record_id", record.ID, "error", err)
		return
	}

	start := w.now()
	attemptCtx, cancel := context.WithTimeout(ctx, w.config.AdapterTimeout)
	outcome, attemptErr := adapter.AttemptDelivery(attemptCtx, current)
	timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	cancel()
	duration := time.Since(start)

	// An adapter exceeding its budget is a transient failure.
	if timedOut && outcome != OutcomeDelivered {
		outcome = OutcomeTransientFailure
		if attemptErr == nil {
			attemptErr = context.DeadlineExceeded
		}
	}

	recordAttempt(string(record.Channel), string(outcome), duration)

	switch outcome {
	case OutcomeDelivered:
		if err := w.repo.MarkDelivered(ctx, current.ID, w.now()); err != nil {
			slog.Error("failed to mark delivered", "record_id", current.ID, "error", err)
			return
		}
		slog.Debug("notification delivered",
			"record_id", current.ID,
			"channel", current.Channel,
			"attempt", current.Attempts,
			"duration", duration,
		)

	case OutcomeTransientFailure, OutcomeThrottled:
		w.handleRetryable(ctx, current, attemptErr)

	case OutcomePermanentFailure:
		w.failPermanently(ctx, current, attemptErr)

	default:
		slog.Error("unknown adapter outcome", "outcome", outcome, "record_id", current.ID)
		w.handleRetryable(ctx, current, attemptErr)
	}
}

func (w *Worker) handleRetryable(ctx context.Context, record *domain.DeliveryRecord, attemptErr error) {
	if record.Attempts >= record.MaxAttempts {
		w.failPermanently(ctx, record, errors.Join(errors.New("max attempts exhausted"), attemptErr))
		return
	}

	nextAttempt := w.nextAttemptAt(record.Attempts)
	if err := w.repo.MarkRetryScheduled(ctx, record.ID, nextAttempt, errorString(attemptErr)); err != nil {
		slog.Error("failed to schedule retry", "record_id", record.ID, "error", err)
		return
	}
	recordRetry(string(record.Channel))

	slog.Info("delivery retry scheduled",
		"record_id", record.ID,
		"channel", record.Channel,
		"attempt", record.Attempts,
		"next_attempt", nextAttempt,
	)
}

func (w *Worker) failPermanently(ctx context.Context, record *domain.DeliveryRecord, attemptErr error) {
	if err := w.repo.MarkFailedPermanent(ctx, record.ID, errorString(attemptErr)); err != nil {
		slog.Error("failed to mark failed", "record_id", record.ID, "error", err)
		return
	}
	recordDeadLetter(string(record.Channel))

	record.Status = domain.DeliveryStatusFailedPermanent
	if w.deadLetter != nil {
		w.deadLetter.ReportDeadLetter(ctx, record)
	}

	slog.Warn("delivery dead-lettered",
		"record_id", record.ID,
		"channel", record.Channel,
		"attempts", record.Attempts,
		"error", errorString(attemptErr),
	)
}

// nextAttemptAt computes exponential backoff with jitter for the next
// retry after the given number of completed attempts.
func (w *Worker) nextAttemptAt(attempts int) time.Time {
	backoff := w.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= w.config.MaxBackoff {
			backoff = w.config.MaxBackoff
			break
		}
	}

	jitter := time.Duration(w.config.JitterFraction * rand.Float64() * float64(backoff))
	return w.now().Add(backoff + jitter)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
