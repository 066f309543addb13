package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/0xsend/sendapp-sub007/internal/chain"
	"github.com/0xsend/sendapp-sub007/internal/rewards"
)

// State is the worker lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// CursorStore resolves the ingestion cursor from the transfer log.
type CursorStore interface {
	MaxBlockNumber(ctx context.Context) (uint64, bool, error)
}

// Ingestor walks one block range of Transfer events.
type Ingestor interface {
	IngestRange(ctx context.Context, fromBlock, toBlock uint64) (int, error)
}

// ShareRunner runs the distribution computation.
type ShareRunner interface {
	CalculateActive(ctx context.Context, now time.Time) (int64, error)
	CalculateByID(ctx context.Context, id int64) (*rewards.Result, error)
}

// LeaderLock gates the polling loop to a single instance. nil disables
// leadership election.
type LeaderLock interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Worker is the single polling loop of the engine: each iteration it
// advances the transfer log by one block range, then periodically
// recomputes the open distribution's shares. The loop starts on
// construction; a failed iteration is logged and retried after the poll
// interval without advancing the cursor.
type Worker struct {
	cfg      WorkerConfig
	id       string
	client   chain.Client
	cursor   CursorStore
	ingestor Ingestor
	shares   ShareRunner
	lock     LeaderLock
	logger   *slog.Logger

	mu                sync.Mutex
	state             State
	isLeader          bool
	lastBlockNumber   uint64
	lastBlockNumberAt time.Time
	lastCalculatedID  int64
	lastCalculatedAt  time.Time

	newHeads chan *types.Header

	stop chan struct{}
	done chan struct{}
}

// NewWorker creates and starts a worker.
func NewWorker(cfg WorkerConfig, client chain.Client, cursor CursorStore, ingestor Ingestor, shares ShareRunner, lock LeaderLock, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 30 * time.Second
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 10_000
	}

	id := uuid.NewString()
	w := &Worker{
		cfg:      cfg,
		id:       id,
		client:   client,
		cursor:   cursor,
		ingestor: ingestor,
		shares:   shares,
		lock:     lock,
		logger:   logger.With("worker_id", id[:8]),
		state:    StateStarting,
		newHeads: make(chan *types.Header, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Stop signals the loop to exit and waits for the in-flight iteration to
// finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopping || w.state == StateStopped {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.state = StateStopping
	w.mu.Unlock()

	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is still alive.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateStarting || w.state == StateRunning
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastBlockNumber returns the ingestion cursor.
func (w *Worker) LastBlockNumber() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBlockNumber
}

// LastBlockNumberAt returns when the cursor last advanced.
func (w *Worker) LastBlockNumberAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBlockNumberAt
}

// LastCalculated returns the most recently computed distribution id and
// when, zero when none has been computed yet.
func (w *Worker) LastCalculated() (int64, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCalculatedID, w.lastCalculatedAt
}

// CalculateDistribution computes shares for an arbitrary distribution id
// without persisting them.
func (w *Worker) CalculateDistribution(ctx context.Context, id int64) (*rewards.Result, error) {
	return w.shares.CalculateByID(ctx, id)
}

func (w *Worker) run() {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.state = StateStopped
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stop
		cancel()
	}()

	w.logger.Info("starting distributor worker")

	if err := w.initCursor(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("failed to initialize ingestion cursor", "error", err)
	}

	w.subscribeNewHeads(ctx)

	w.mu.Lock()
	w.state = StateRunning
	w.mu.Unlock()

	// First computation runs immediately so a restart does not wait a full
	// calculation interval.
	first := true
	for {
		select {
		case <-w.stop:
			w.release()
			w.logger.Info("distributor worker stopped")
			return
		default:
		}

		if w.acquireLeadership(ctx) {
			if err := w.iterate(ctx, first); err != nil && ctx.Err() == nil {
				w.logger.Error("worker iteration failed", "error", err)
			}
			first = false
		}

		select {
		case <-w.stop:
		case <-time.After(w.cfg.PollInterval):
		case head := <-w.newHeads:
			w.logger.Debug("new head received", "block_number", head.Number.Uint64())
		}
	}
}

// initCursor derives the starting block from the transfer log, falling
// back to the token's deployment block for an empty log.
func (w *Worker) initCursor(ctx context.Context) error {
	maxBlock, ok, err := w.cursor.MaxBlockNumber(ctx)
	if err != nil {
		return err
	}
	cursor := w.cfg.DeploymentBlock
	if ok {
		cursor = maxBlock
	}

	w.mu.Lock()
	w.lastBlockNumber = cursor
	w.lastBlockNumberAt = time.Now()
	w.mu.Unlock()

	w.logger.Info("ingestion cursor initialized", "block_number", cursor, "from_log", ok)
	return nil
}

// subscribeNewHeads starts an advisory new-head subscription. The loop is
// fully functional without it; heads only wake the loop early.
func (w *Worker) subscribeNewHeads(ctx context.Context) {
	sub, err := w.client.SubscribeNewHead(ctx, w.newHeads)
	if err != nil {
		w.logger.Debug("new-head subscription unavailable, polling only", "error", err)
		return
	}
	go func() {
		select {
		case err := <-sub.Err():
			if err != nil {
				w.logger.Warn("new-head subscription lost", "error", err)
			}
		case <-w.stop:
			sub.Unsubscribe()
		}
	}()
}

// acquireLeadership returns true when this instance may run the loop
// body. Without a lock every instance is leader.
func (w *Worker) acquireLeadership(ctx context.Context) bool {
	if w.lock == nil {
		return true
	}

	w.mu.Lock()
	held := w.isLeader
	w.mu.Unlock()

	var ok bool
	var err error
	if held {
		ok, err = w.lock.Renew(ctx)
	} else {
		ok, err = w.lock.Acquire(ctx)
	}
	if err != nil {
		w.logger.Warn("leadership check failed", "error", err)
		ok = false
	}
	if ok != held {
		w.logger.Info("leadership changed", "leader", ok)
	}

	w.mu.Lock()
	w.isLeader = ok
	w.mu.Unlock()
	return ok
}

func (w *Worker) release() {
	w.mu.Lock()
	held := w.isLeader
	w.mu.Unlock()
	if w.lock == nil || !held {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.lock.Release(ctx); err != nil {
		w.logger.Warn("leader lock release failed", "error", err)
	}
}

// iterate runs one loop body: advance the transfer log, then recompute
// the open distribution's shares when the calculation interval has
// elapsed. Errors leave the cursor untouched so the failed range is
// re-walked next iteration.
func (w *Worker) iterate(ctx context.Context, force bool) error {
	latest, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	w.mu.Lock()
	last := w.lastBlockNumber
	lastAt := w.lastBlockNumberAt
	w.mu.Unlock()

	if latest <= last {
		if time.Since(lastAt) > w.cfg.StalenessThreshold {
			w.logger.Warn("no new blocks",
				"latest", latest, "cursor", last, "since", time.Since(lastAt).Round(time.Second))
		}
		return w.maybeCalculate(ctx, force)
	}

	finalized, err := w.client.FinalizedBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get finalized block: %w", err)
	}

	// Re-walk from the finalized boundary when it trails the cursor so a
	// reorged block range is ingested again; upserts make the overlap
	// harmless.
	from := last
	if finalized < from {
		from = finalized
	}
	to := latest
	if to-from > w.cfg.MaxBlockRange {
		to = from + w.cfg.MaxBlockRange
	}

	if _, err := w.ingestor.IngestRange(ctx, from, to); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastBlockNumber = to
	w.lastBlockNumberAt = time.Now()
	w.mu.Unlock()

	return w.maybeCalculate(ctx, force)
}

func (w *Worker) maybeCalculate(ctx context.Context, force bool) error {
	w.mu.Lock()
	lastAt := w.lastCalculatedAt
	w.mu.Unlock()

	if !force && w.cfg.CalculateInterval > 0 && time.Since(lastAt) < w.cfg.CalculateInterval {
		return nil
	}

	id, err := w.shares.CalculateActive(ctx, time.Now())
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lastCalculatedID = id
	w.lastCalculatedAt = time.Now()
	w.mu.Unlock()
	return nil
}
