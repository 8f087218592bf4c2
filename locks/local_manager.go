package locks

import (
	"context"
	"sync"
	"time"

	"github.com/ebogdum/cleanlog/core/log"
	"github.com/ebogdum/cleanlog/metrics"
)

// LocalProvider provides in-process locks for single-node deployments.
type LocalProvider struct {
	mu                 sync.Mutex
	locks              map[string]*Lock
	defaultConcurrency int
	logger             *log.Logger
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider whose locks admit defaultConcurrency
// holders unless created with WithConcurrency. A non-positive default means
// one. logger may be nil.
func NewLocalProvider(defaultConcurrency int, logger *log.Logger) *LocalProvider {
	if defaultConcurrency < 1 {
		defaultConcurrency = 1
	}
	return &LocalProvider{
		locks:              make(map[string]*Lock),
		defaultConcurrency: defaultConcurrency,
		logger:             logger.Named("locks"),
	}
}

func (p *LocalProvider) Lock(key string, opts ...Option) *Lock {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.locks[key]; ok {
		return l
	}

	o := lockOptions{concurrency: p.defaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	l := &Lock{key: key, sem: make(chan struct{}, o.concurrency), logger: p.logger}
	p.locks[key] = l
	return l
}

// Lock is a counting semaphore identified by a key.
type Lock struct {
	key    string
	sem    chan struct{}
	logger *log.Logger
}

var _ Locker = (*Lock)(nil)

// Key returns the lock's name.
func (l *Lock) Key() string { return l.key }

// Concurrency returns the number of holders the lock admits.
func (l *Lock) Concurrency() int { return cap(l.sem) }

// Acquire blocks until a slot is free or ctx is done.
func (l *Lock) Acquire(ctx context.Context) (*Hold, error) {
	start := time.Now()
	defer func() {
		metrics.LockOperationDuration.WithLabelValues("acquire").Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return nil, l.failed(ctx, err)
	}

	select {
	case l.sem <- struct{}{}:
		return l.acquired(ctx), nil
	case <-ctx.Done():
		return nil, l.failed(ctx, ctx.Err())
	}
}

// TryAcquire takes a slot only if one is free.
func (l *Lock) TryAcquire() (*Hold, bool) {
	select {
	case l.sem <- struct{}{}:
		return l.acquired(context.Background()), true
	default:
		metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
		return nil, false
	}
}

func (l *Lock) acquired(ctx context.Context) *Hold {
	metrics.LockOperationsTotal.WithLabelValues("acquire", "success").Inc()
	metrics.ActiveLocks.Inc()
	l.logger.Debug(ctx, "Lock acquired", map[string]any{"LockKey": l.key})
	return &Hold{lock: l}
}

func (l *Lock) failed(ctx context.Context, err error) error {
	metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
	l.logger.Debug(ctx, "Lock acquisition abandoned", map[string]any{"LockKey": l.key, "Reason": err})
	return err
}

// Hold is one acquired slot of a Lock.
type Hold struct {
	lock *Lock
	once sync.Once
}

// Release frees the slot. Calls after the first do nothing, as do calls on
// a nil Hold.
func (h *Hold) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		start := time.Now()
		<-h.lock.sem
		metrics.ActiveLocks.Dec()
		metrics.LockOperationsTotal.WithLabelValues("release", "success").Inc()
		metrics.LockOperationDuration.WithLabelValues("release").Observe(time.Since(start).Seconds())
	})
}
