// Package worker manages the three process-wide task pools: single-item
// processing, batch sweeps, and summarisation.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// Task is one unit of work dispatched to a pool.
type Task func(ctx context.Context)

// Pool size bounds. Single-item work stays responsive under bulk load
// because the pools never share workers.
const (
	SingleMin   = 2
	SingleMax   = 20
	BatchMin    = 4
	BatchMax    = 30
	SummarySize = 15
)

type taskWorker struct{}

func (taskWorker) Do(ctx context.Context, t Task) error {
	t(ctx)
	return nil
}

// group wraps one go-pkgz worker group with its size.
type group struct {
	pool *pool.WorkerGroup[Task]
	size int
}

func newGroup(ctx context.Context, size int) *group {
	g := &group{
		pool: pool.New[Task](size, taskWorker{}).
			WithWorkerChanSize(64).
			WithContinueOnError(),
		size: size,
	}
	// Go only fails on a cancelled context
	_ = g.pool.Go(ctx)
	return g
}

// Manager owns the three pools. The two dynamic pools are replaced when the
// desired size grows; the outgoing pool drains asynchronously so submission
// never blocks on a resize.
type Manager struct {
	mu      sync.Mutex
	ctx     context.Context
	single  *group
	batch   *group
	summary *group
	log     zerolog.Logger
}

// NewManager starts the pools at their minimum sizes.
func NewManager(ctx context.Context, log zerolog.Logger) *Manager {
	return &Manager{
		ctx:     ctx,
		single:  newGroup(ctx, SingleMin),
		batch:   newGroup(ctx, BatchMin),
		summary: newGroup(ctx, SummarySize),
		log:     log.With().Str("component", "worker_pools").Logger(),
	}
}

// SubmitSingle dispatches a single-message task, growing the pool first if
// the configured concurrency demands it.
func (m *Manager) SubmitSingle(concurrency int, t Task) {
	m.mu.Lock()
	m.single = m.resize(m.single, clamp(concurrency, SingleMin, SingleMax), "single")
	g := m.single
	m.mu.Unlock()
	g.pool.Submit(t)
}

// SubmitBatch dispatches a sweep task to the batch pool.
func (m *Manager) SubmitBatch(batchSize int, t Task) {
	m.mu.Lock()
	m.batch = m.resize(m.batch, clamp(batchSize, BatchMin, BatchMax), "batch")
	g := m.batch
	m.mu.Unlock()
	g.pool.Submit(t)
}

// SubmitSummary dispatches a summarisation task. The summary pool has a
// fixed size and is never resized.
func (m *Manager) SubmitSummary(t Task) {
	m.mu.Lock()
	g := m.summary
	m.mu.Unlock()
	g.pool.Submit(t)
}

// resize replaces a pool when the desired size is larger. The old group
// keeps running until its outstanding tasks finish. Shrinking is ignored;
// extra workers just idle.
func (m *Manager) resize(g *group, desired int, name string) *group {
	if desired <= g.size {
		return g
	}
	old := g
	go func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := old.pool.Close(closeCtx); err != nil {
			m.log.Warn().Err(err).Str("pool", name).Msg("error draining replaced pool")
		}
	}()
	m.log.Info().Str("pool", name).Int("from", g.size).Int("to", desired).Msg("growing worker pool")
	return newGroup(m.ctx, desired)
}

// SingleSize returns the current single-item pool size.
func (m *Manager) SingleSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.single.size
}

// BatchSize returns the current batch pool size.
func (m *Manager) BatchSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batch.size
}

// Shutdown drains all pools.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	groups := []*group{m.single, m.batch, m.summary}
	m.mu.Unlock()
	for _, g := range groups {
		if err := g.pool.Close(ctx); err != nil {
			m.log.Warn().Err(err).Msg("error closing pool")
		}
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
