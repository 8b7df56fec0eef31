package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("reanalysis queue is shutting down")

// ReanalyzeJob asks for one record to be re-extracted from its stored raw text.
type ReanalyzeJob struct {
	ConsultantID uuid.UUID
	FileID       uuid.UUID
	RequestID    string
	SubmittedAt  time.Time
}

// reanalyzer is the part of Processor the queue drives.
type reanalyzer interface {
	Reanalyze(ctx context.Context, consultantID, fileID uuid.UUID) (*Reanalyzed, error)
}

// ReanalyzeQueue runs reanalysis jobs on a fixed pool of workers.
type ReanalyzeQueue struct {
	proc    reanalyzer
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan ReanalyzeJob
	wg   sync.WaitGroup
	once sync.Once

	// done is closed first on Shutdown to release blocked senders; ch is
	// closed under mu only after every sender has left.
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

type QueueOption func(*ReanalyzeQueue)

func WithWorkers(n int) QueueOption {
	return func(q *ReanalyzeQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *ReanalyzeQueue) {
		if n > 0 {
			q.ch = make(chan ReanalyzeJob, n)
		}
	}
}

// WithJobTimeout bounds one job; the processor's own analysis timeout still applies inside it.
func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *ReanalyzeQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewReanalyzeQueue(proc reanalyzer, logger *slog.Logger, opts ...QueueOption) *ReanalyzeQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ReanalyzeQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 4 * time.Minute,
		ch:      make(chan ReanalyzeJob, 128),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ReanalyzeQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("reanalyze.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ReanalyzeQueue) run(workerID int, job ReanalyzeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	_, err := q.proc.Reanalyze(ctx, job.ConsultantID, job.FileID)
	if err != nil {
		q.logger.Warn("reanalyze.job.failed",
			"worker_id", workerID, "req_id", job.RequestID, "file_id", job.FileID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	q.logger.Info("reanalyze.job.ok",
		"worker_id", workerID, "req_id", job.RequestID, "file_id", job.FileID,
		"queued_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds())
}

// Enqueue blocks while the buffer is full, until ctx is done or the queue
// starts shutting down.
func (q *ReanalyzeQueue) Enqueue(ctx context.Context, job ReanalyzeJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	default:
		q.logger.Warn("reanalyze.queue.full", "file_id", job.FileID)
	}
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *ReanalyzeQueue) Shutdown(ctx context.Context) {
	q.stopOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("reanalyze.queue.shutdown_interrupted")
	case <-done:
		q.logger.Info("reanalyze.queue.drained")
	}
}

// ReanalyzableFiles lists the student's records that are not currently being
// analyzed, after checking ownership.
func (p *Processor) ReanalyzableFiles(ctx context.Context, consultantID, studentID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := p.authorizeStudent(ctx, consultantID, studentID); err != nil {
		return nil, err
	}
	files, err := p.Files.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(files))
	for _, f := range files {
		if f.AnalysisStatus == string(constants.StatusAnalyzing) {
			continue
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}
