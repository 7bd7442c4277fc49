// Package orchestrator coordinates the per-user activities: the monitor and
// auto-send loops, single-message and full-sweep processing, and cooperative
// cancellation. All per-user state mutation funnels through one UserRuntime.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"mailagent/adapter/in/worker"
	"mailagent/core/agent/rag"
	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/core/service/models"
	"mailagent/core/service/pipeline"
	"mailagent/core/service/summary"
	"mailagent/core/service/urgency"
	"mailagent/pkg/apperr"
	"mailagent/pkg/ratelimit"
)

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Engine     *pipeline.Engine
	Pools      *worker.Manager
	Mailbox    out.MailboxPort
	Realtime   out.RealtimePort
	EmailStore out.EmailStorePort
	Resolver   *models.Resolver
	Urgency    *urgency.Detector
	Summarizer *summary.Summarizer
	Composer   *rag.Composer
	Indexer    *rag.Indexer
	LLM        out.LLMPort
	Limiter    *ratelimit.SendLimiter
}

// Manager owns one UserRuntime per active user.
type Manager struct {
	deps Deps
	ctx  context.Context
	log  zerolog.Logger

	mu       sync.Mutex
	runtimes map[string]*UserRuntime
}

// NewManager creates the orchestrator. ctx bounds every background loop.
func NewManager(ctx context.Context, deps Deps, log zerolog.Logger) *Manager {
	return &Manager{
		deps:     deps,
		ctx:      ctx,
		log:      log.With().Str("component", "orchestrator").Logger(),
		runtimes: make(map[string]*UserRuntime),
	}
}

// Runtime returns the runtime for a user, creating and loading it on first
// use. legacyUsername drives one-time migration of username-keyed data files.
func (m *Manager) Runtime(u *domain.User, legacyUsername string) (*UserRuntime, error) {
	m.mu.Lock()
	if rt, ok := m.runtimes[u.UserID]; ok {
		m.mu.Unlock()
		rt.SetUser(u)
		return rt, nil
	}
	m.mu.Unlock()

	data, err := m.deps.EmailStore.LoadEmailData(u.UserID, legacyUsername)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[u.UserID]; ok {
		rt.SetUser(u)
		return rt, nil
	}
	rt := &UserRuntime{
		mgr:    m,
		userID: u.UserID,
		user:   u,
		data:   data,
		stop:   NewStopController(),
	}
	m.runtimes[u.UserID] = rt
	return rt, nil
}

// UserRuntime is one user's live state plus the pipeline session contract.
type UserRuntime struct {
	mgr    *Manager
	userID string

	mu   sync.Mutex
	user *domain.User
	data *domain.EmailData

	stop *StopController

	loopMu         sync.Mutex
	monitorCancel  context.CancelFunc
	autoSendCancel context.CancelFunc
}

// UserID implements pipeline.UserSession.
func (rt *UserRuntime) UserID() string { return rt.userID }

// Lock acquires the user lock.
func (rt *UserRuntime) Lock() { rt.mu.Lock() }

// Unlock releases the user lock.
func (rt *UserRuntime) Unlock() { rt.mu.Unlock() }

// Data returns the per-user message state. Callers hold the user lock.
func (rt *UserRuntime) Data() *domain.EmailData { return rt.data }

// SaveState persists the message state. Failures are logged; the in-memory
// state stays authoritative and the next save retries.
func (rt *UserRuntime) SaveState() {
	if err := rt.mgr.deps.EmailStore.SaveEmailData(rt.userID, rt.data); err != nil {
		rt.mgr.log.Error().Err(err).Str("user_id", rt.userID).Msg("email data save failed")
	}
}

// Emit publishes an event for this user. Best effort.
func (rt *UserRuntime) Emit(t domain.EventType, data map[string]any) {
	ev := domain.NewEvent(t, rt.userID, data)
	if err := rt.mgr.deps.Realtime.Publish(rt.mgr.ctx, rt.userID, ev); err != nil {
		rt.mgr.log.Debug().Err(err).Str("type", string(t)).Msg("event publish failed")
	}
}

// StopRequested implements the checkpoint read.
func (rt *UserRuntime) StopRequested(emailID string) bool { return rt.stop.Requested(emailID) }

// ClearStop removes the message from the stop set.
func (rt *UserRuntime) ClearStop(emailID string) { rt.stop.Clear(emailID) }

// Creds returns the user's mailbox credentials.
func (rt *UserRuntime) Creds() out.MailboxCredentials {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return out.MailboxCredentials{Address: rt.user.Email, AuthCode: rt.user.EmailAuthCode}
}

// ReplySelection resolves the user's reply model.
func (rt *UserRuntime) ReplySelection() out.ModelSelection {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.mgr.deps.Resolver.Reply(rt.user)
}

// EmbedSelection resolves the user's embedding model.
func (rt *UserRuntime) EmbedSelection() out.ModelSelection {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.mgr.deps.Resolver.Embedding(rt.user)
}

// Settings returns a copy of the user's AI settings.
func (rt *UserRuntime) Settings() domain.AISettings {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.user.Settings
}

// SetUser swaps in a fresh user record after a settings save or login.
func (rt *UserRuntime) SetUser(u *domain.User) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.user = u
}

// User returns the current user record.
func (rt *UserRuntime) User() *domain.User {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.user
}

// Emails returns a snapshot of the cached messages.
func (rt *UserRuntime) Emails() []*domain.Email {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	snap := make([]*domain.Email, len(rt.data.EmailsCache))
	for i, e := range rt.data.EmailsCache {
		snap[i] = e.Clone()
	}
	return snap
}

var _ pipeline.UserSession = (*UserRuntime)(nil)

// ProcessOne queues the pipeline for a single message on the single-item
// pool, sized by the user's configured concurrency.
func (m *Manager) ProcessOne(rt *UserRuntime, emailID string, autoSend bool) {
	concurrency := rt.Settings().ClampedSingleConcurrency()
	m.deps.Pools.SubmitSingle(concurrency, func(ctx context.Context) {
		res, err := m.deps.Engine.Process(ctx, rt, emailID, autoSend)
		if err != nil {
			return // failure and cancellation already recorded by the engine
		}
		m.deps.Summarizer.Submit(rt, res.EmailID, true, true)
	})
}

// SummarizeEmail queues a manual body+reply summarisation for one message.
func (m *Manager) SummarizeEmail(rt *UserRuntime, emailID string) {
	m.deps.Summarizer.Submit(rt, emailID, true, true)
}

// RetryRAG re-runs retrieve, draft and verify with user-edited queries.
func (m *Manager) RetryRAG(rt *UserRuntime, emailID string, queries []string) {
	concurrency := rt.Settings().ClampedSingleConcurrency()
	m.deps.Pools.SubmitSingle(concurrency, func(ctx context.Context) {
		res, err := m.deps.Engine.ProcessWithQueries(ctx, rt, emailID, queries, false)
		if err != nil {
			return
		}
		m.deps.Summarizer.Submit(rt, res.EmailID, true, true)
	})
}

// ProcessAll starts a full sweep of pending messages in its own goroutine.
// The sweep driver is not a pool task so waiting for a batch can never
// deadlock against the batch workers it waits for.
func (m *Manager) ProcessAll(rt *UserRuntime, autoSend bool) {
	rt.stop.ResetGlobal()
	go m.runSweep(rt, autoSend, false)
}

// runSweep processes pending messages in batches of the configured size,
// waiting for each batch before submitting the next. A raised global stop
// flag halts submission; unsubmitted messages count as cancelled.
func (m *Manager) runSweep(rt *UserRuntime, autoSend bool, auto bool) {
	rt.mu.Lock()
	var ids []string
	for _, e := range rt.data.EmailsCache {
		if e.Status == domain.StatusPending {
			ids = append(ids, e.ID)
		}
	}
	rt.mu.Unlock()

	batchSize := rt.Settings().ClampedBatchSize()
	var processed, failed, cancelled int64
	stopped := false

	for start := 0; start < len(ids); start += batchSize {
		if rt.stop.GlobalRequested() {
			stopped = true
			cancelled += int64(len(ids) - start)
			break
		}
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[start:end] {
			id := id
			wg.Add(1)
			m.deps.Pools.SubmitBatch(batchSize, func(ctx context.Context) {
				defer wg.Done()
				res, err := m.deps.Engine.Process(ctx, rt, id, autoSend)
				switch {
				case apperr.IsCancelled(err):
					atomic.AddInt64(&cancelled, 1)
				case err != nil:
					atomic.AddInt64(&failed, 1)
				default:
					atomic.AddInt64(&processed, 1)
					m.deps.Summarizer.Submit(rt, res.EmailID, true, true)
				}
			})
		}
		wg.Wait()
	}

	data := map[string]any{
		"processed": atomic.LoadInt64(&processed),
		"cancelled": atomic.LoadInt64(&cancelled),
		"failed":    atomic.LoadInt64(&failed),
		"total":     len(ids),
	}
	switch {
	case stopped || atomic.LoadInt64(&cancelled) > 0:
		rt.Emit(domain.EventProcessAllStopped, data)
	case auto:
		rt.Emit(domain.EventAutoProcessDone, data)
	default:
		rt.Emit(domain.EventProcessAllComplete, data)
	}
	m.log.Info().Str("user_id", rt.userID).Int("total", len(ids)).
		Int64("processed", processed).Int64("cancelled", cancelled).Int64("failed", failed).
		Bool("auto", auto).Msg("sweep finished")
}

// StopOne requests cancellation of a single in-flight message.
func (m *Manager) StopOne(rt *UserRuntime, emailID string) {
	rt.stop.StopEmail(emailID)

	rt.mu.Lock()
	if em := rt.data.FindEmail(emailID); em != nil && em.Status == domain.StatusProcessing {
		em.Status = domain.StatusStopping
	}
	rt.mu.Unlock()

	rt.Emit(domain.EventProcessStopping, map[string]any{"email_id": emailID})
}

// StopAll raises the global stop flag covering the whole sweep.
func (m *Manager) StopAll(rt *UserRuntime) {
	rt.stop.StopAll()

	rt.mu.Lock()
	for _, em := range rt.data.EmailsCache {
		if em.Status == domain.StatusProcessing {
			em.Status = domain.StatusStopping
		}
	}
	rt.mu.Unlock()

	rt.Emit(domain.EventProcessAllStopping, nil)
}

// SendReply sends the drafted reply of one message synchronously.
func (m *Manager) SendReply(ctx context.Context, rt *UserRuntime, emailID string) error {
	return m.deps.Engine.SendReply(ctx, rt, emailID)
}

// UpdateReply replaces the drafted reply text.
func (m *Manager) UpdateReply(rt *UserRuntime, emailID, reply string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	em := rt.data.FindEmail(emailID)
	if em == nil {
		return apperr.NotFound("email")
	}
	em.Reply = reply
	rt.data.UpsertHistory(em)
	rt.SaveState()
	return nil
}

// DeleteEmail removes a message from the cache.
func (m *Manager) DeleteEmail(rt *UserRuntime, emailID string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.data.RemoveEmail(emailID) {
		return apperr.NotFound("email")
	}
	rt.SaveState()
	return nil
}

// MarkEmailRead flags a message read in the mailbox and in the cache.
func (m *Manager) MarkEmailRead(ctx context.Context, rt *UserRuntime, emailID string) error {
	rt.mu.Lock()
	em := rt.data.FindEmail(emailID)
	if em == nil {
		rt.mu.Unlock()
		return apperr.NotFound("email")
	}
	seq := em.MailboxSeq
	rt.mu.Unlock()

	if seq != "" {
		if err := m.deps.Mailbox.MarkRead(ctx, rt.Creds(), seq); err != nil {
			return err
		}
	}

	rt.mu.Lock()
	if em := rt.data.FindEmail(emailID); em != nil && !em.Status.IsTerminal() {
		em.Status = domain.StatusRead
		rt.SaveState()
	}
	rt.mu.Unlock()
	return nil
}

type indexOutcome struct {
	dim    int
	chunks int
	err    error
}

// RebuildIndex reindexes the whole knowledge base on the single-item pool
// and waits for the outcome so the caller can report dimension and chunk
// count. A caller that goes away leaves the rebuild running to completion.
func (m *Manager) RebuildIndex(ctx context.Context, rt *UserRuntime) (int, int, error) {
	sel := rt.EmbedSelection()
	done := make(chan indexOutcome, 1)
	m.deps.Pools.SubmitSingle(rt.Settings().ClampedSingleConcurrency(), func(taskCtx context.Context) {
		dim, chunks, err := m.deps.Indexer.Rebuild(taskCtx, sel)
		done <- indexOutcome{dim, chunks, err}
	})
	select {
	case o := <-done:
		return o.dim, o.chunks, o.err
	case <-ctx.Done():
		return 0, 0, apperr.Cancelled("index rebuild")
	}
}

// IndexDocument reindexes one knowledge document the same way.
func (m *Manager) IndexDocument(ctx context.Context, rt *UserRuntime, name string) (int, int, error) {
	sel := rt.EmbedSelection()
	done := make(chan indexOutcome, 1)
	m.deps.Pools.SubmitSingle(rt.Settings().ClampedSingleConcurrency(), func(taskCtx context.Context) {
		dim, chunks, err := m.deps.Indexer.IndexFile(taskCtx, sel, name)
		done <- indexOutcome{dim, chunks, err}
	})
	select {
	case o := <-done:
		return o.dim, o.chunks, o.err
	case <-ctx.Done():
		return 0, 0, apperr.Cancelled("document indexing")
	}
}

// TestRAG runs query synthesis and retrieval for arbitrary text without
// touching mail state, reporting results via the event channel.
func (m *Manager) TestRAG(rt *UserRuntime, text string) {
	concurrency := rt.Settings().ClampedSingleConcurrency()
	m.deps.Pools.SubmitSingle(concurrency, func(ctx context.Context) {
		replySel := rt.ReplySelection()

		queries, err := m.deps.LLM.DesignQueries(ctx, replySel, text)
		if err != nil || len(queries) == 0 {
			rt.Emit(domain.EventRAGTestComplete, map[string]any{"error": "查询生成失败"})
			return
		}

		results, err := m.deps.Composer.Test(ctx, replySel, rt.EmbedSelection(), domain.CategoryProductEnquiry, queries)
		if err != nil {
			rt.Emit(domain.EventRAGTestComplete, map[string]any{
				"queries": queries,
				"error":   fmt.Sprintf("检索失败: %v", err),
			})
			return
		}

		payload := make(map[string]any, len(results))
		for q, chunks := range results {
			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Text
			}
			payload[q] = texts
		}
		rt.Emit(domain.EventRAGTestComplete, map[string]any{
			"queries": queries,
			"results": payload,
		})
	})
}
