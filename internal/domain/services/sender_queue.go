package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"civicpulse/internal/infrastructure/cache"
	"civicpulse/pkg/logger"
)

// ErrQueueClosed is returned by Submit after Close
var ErrQueueClosed = errors.New("sender queue closed")

// Job is one unit of per-sender work
type Job func(ctx context.Context)

// SenderQueue runs jobs for the same key one at a time, in submission order,
// while different keys run in parallel. Each active key owns one goroutine
// that exits once the key has been idle for idleTimeout. When a Locker is set,
// each job also holds a distributed lock for its key so replicas do not
// interleave work for the same sender.
type SenderQueue struct {
	baseCtx     context.Context
	idleTimeout time.Duration
	locker      Locker
	lockTTL     time.Duration
	logger      *logger.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

type lane struct {
	pending []Job
	signal  chan struct{}
}

// NewSenderQueue creates a queue whose jobs run on ctx. locker may be nil.
func NewSenderQueue(ctx context.Context, idleTimeout time.Duration, locker Locker, lockTTL time.Duration, log *logger.Logger) *SenderQueue {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &SenderQueue{
		baseCtx:     ctx,
		idleTimeout: idleTimeout,
		locker:      locker,
		lockTTL:     lockTTL,
		logger:      log.WithComponent("sender-queue"),
		lanes:       make(map[string]*lane),
	}
}

// Submit queues job behind any earlier jobs for key
func (q *SenderQueue) Submit(key string, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	l, ok := q.lanes[key]
	if !ok {
		l = &lane{signal: make(chan struct{}, 1)}
		q.lanes[key] = l
		q.wg.Add(1)
		go q.run(key, l)
	}

	l.pending = append(l.pending, job)
	select {
	case l.signal <- struct{}{}:
	default:
	}
	return nil
}

// ActiveKeys returns the number of keys that currently own a goroutine
func (q *SenderQueue) ActiveKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to end
func (q *SenderQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	for _, l := range q.lanes {
		select {
		case l.signal <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SenderQueue) run(key string, l *lane) {
	defer q.wg.Done()

	idle := time.NewTimer(q.idleTimeout)
	defer idle.Stop()

	for {
		if job, ok := q.pop(l); ok {
			q.execute(key, job)
			continue
		}

		if q.retireIfIdle(key, l, true) {
			return
		}

		idle.Reset(q.idleTimeout)
		select {
		case <-l.signal:
		case <-idle.C:
			if q.retireIfIdle(key, l, false) {
				return
			}
		case <-q.baseCtx.Done():
			q.mu.Lock()
			dropped := len(l.pending)
			delete(q.lanes, key)
			q.mu.Unlock()
			if dropped > 0 {
				q.logger.Warn().Str("sender", key).Int("dropped", dropped).Msg("queue stopped with pending jobs")
			}
			return
		}
	}
}

func (q *SenderQueue) pop(l *lane) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, false
	}
	job := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return job, true
}

// retireIfIdle removes the lane when it has no work. With onlyIfClosed set it
// retires only after Close, so an open queue keeps the lane until the idle timer fires.
func (q *SenderQueue) retireIfIdle(key string, l *lane, onlyIfClosed bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(l.pending) > 0 || (onlyIfClosed && !q.closed) {
		return false
	}
	delete(q.lanes, key)
	return true
}

func (q *SenderQueue) execute(key string, job Job) {
	ctx := q.baseCtx
	log := q.logger.WithSender(key)

	if q.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, q.lockTTL)
		lockKey := cache.SenderLockKey(key)
		token, err := q.locker.WaitLock(lockCtx, lockKey, q.lockTTL, 50*time.Millisecond)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("sender lock unavailable, processing without it")
		} else {
			defer func() {
				if _, err := q.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
					log.Warn().Err(err).Msg("failed to release sender lock")
				}
			}()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sender job panicked")
		}
	}()

	job(ctx)
}
