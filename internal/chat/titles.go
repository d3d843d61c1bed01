package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrTitleQueueFull   = errors.New("title queue full")
	ErrTitleQueueClosed = errors.New("title queue closed")
)

type TitleJob struct {
	ConversationID string `json:"conversation_id"`
	FirstMessage   string `json:"first_message"`
}

// TitleDispatcher hands a title job off without waiting for it to run.
type TitleDispatcher interface {
	DispatchTitle(ctx context.Context, job TitleJob) error
}

type TitleGenerator interface {
	GenerateTitle(ctx context.Context, conversationID, firstMessage string) error
}

// TitleQueue runs title jobs on a fixed pool of workers. Dispatch never
// blocks: a full queue rejects the job.
type TitleQueue struct {
	gen     TitleGenerator
	jobs    chan TitleJob
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewTitleQueue(gen TitleGenerator, workers, size int, timeout time.Duration, log zerolog.Logger) *TitleQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	q := &TitleQueue{
		gen:     gen,
		jobs:    make(chan TitleJob, size),
		timeout: timeout,
		log:     log,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work(i)
	}
	return q
}

func (q *TitleQueue) DispatchTitle(_ context.Context, job TitleJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrTitleQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrTitleQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *TitleQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *TitleQueue) work(workerID int) {
	defer q.wg.Done()
	for job := range q.jobs {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.gen.GenerateTitle(ctx, job.ConversationID, job.FirstMessage)
		cancel()
		if err != nil {
			q.log.Warn().Err(err).
				Int("worker", workerID).
				Str("conversation_id", job.ConversationID).
				Dur("cost", time.Since(start)).
				Msg("title generation failed")
			continue
		}
		q.log.Debug().
			Int("worker", workerID).
			Str("conversation_id", job.ConversationID).
			Dur("cost", time.Since(start)).
			Msg("title generated")
	}
}
