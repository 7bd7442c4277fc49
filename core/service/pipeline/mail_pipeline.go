// Package pipeline runs the per-message state machine: classify, synthesise
// queries, retrieve, draft with bounded retrials, verify and optionally send.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mailagent/core/agent/rag"
	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
	"mailagent/pkg/ratelimit"
)

// maxDraftTrials bounds the write/proofread loop per message.
const maxDraftTrials = 3

// UserSession is the per-user context the engine runs against. The
// orchestrator implements it; the engine never reaches around it to shared
// state. Lock guards Data; SaveState and Emit must be called without the
// lock held except where noted.
type UserSession interface {
	UserID() string

	// Lock serialises access to Data. The engine keeps critical sections
	// short and never holds the lock across model or mailbox calls.
	Lock()
	Unlock()
	Data() *domain.EmailData

	// SaveState persists Data best-effort; failures are logged by the
	// implementation and in-memory state stays authoritative. Callers hold
	// the user lock.
	SaveState()

	// Emit publishes a realtime event. Never called under the user lock.
	Emit(t domain.EventType, data map[string]any)

	// StopRequested reports whether a stop covers this message, either
	// individually or via the global stop flag.
	StopRequested(emailID string) bool

	// ClearStop removes the message from the per-message stop set.
	ClearStop(emailID string)

	Creds() out.MailboxCredentials
	ReplySelection() out.ModelSelection
	EmbedSelection() out.ModelSelection
	Settings() domain.AISettings
}

// Result summarises one pipeline run.
type Result struct {
	EmailID   string
	Status    domain.EmailStatus
	Category  domain.EmailCategory
	Cancelled bool
}

// Engine executes the pipeline. It is stateless across runs; all mutable
// state lives in the session.
type Engine struct {
	llm      out.LLMPort
	composer *rag.Composer
	mailbox  out.MailboxPort
	limiter  *ratelimit.SendLimiter
	log      zerolog.Logger
}

// NewEngine wires the engine.
func NewEngine(llm out.LLMPort, composer *rag.Composer, mailbox out.MailboxPort, limiter *ratelimit.SendLimiter, log zerolog.Logger) *Engine {
	return &Engine{
		llm:      llm,
		composer: composer,
		mailbox:  mailbox,
		limiter:  limiter,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Process runs the full pipeline for one cached message.
func (e *Engine) Process(ctx context.Context, sess UserSession, emailID string, autoSend bool) (*Result, error) {
	return e.run(ctx, sess, emailID, autoSend, nil)
}

// ProcessWithQueries re-runs retrieve, draft and verify with caller-supplied
// queries, skipping classification and query synthesis. Used when the user
// edits the retrieval queries and retries.
func (e *Engine) ProcessWithQueries(ctx context.Context, sess UserSession, emailID string, queries []string, autoSend bool) (*Result, error) {
	if len(queries) == 0 {
		return nil, apperr.MissingField("queries")
	}
	return e.run(ctx, sess, emailID, autoSend, queries)
}

func (e *Engine) run(ctx context.Context, sess UserSession, emailID string, autoSend bool, overrideQueries []string) (*Result, error) {
	snap, err := e.begin(sess, emailID)
	if err != nil {
		return nil, err
	}
	sess.Emit(domain.EventProcessStarted, map[string]any{"email_id": emailID})

	res, err := e.stages(ctx, sess, snap, autoSend, overrideQueries)
	if err != nil {
		if apperr.IsCancelled(err) {
			return &Result{EmailID: emailID, Status: domain.StatusPending, Cancelled: true}, err
		}
		e.fail(sess, emailID, err)
		return &Result{EmailID: emailID, Status: domain.StatusFailed}, err
	}
	return res, nil
}

// begin marks the message processing under the lock and returns a stable
// snapshot for the model calls.
func (e *Engine) begin(sess UserSession, emailID string) (*domain.Email, error) {
	sess.Lock()
	defer sess.Unlock()

	em := sess.Data().FindEmail(emailID)
	if em == nil {
		return nil, apperr.NotFound("email")
	}
	if em.Status == domain.StatusProcessing || em.Status == domain.StatusStopping {
		return nil, apperr.BadRequest("邮件正在处理中")
	}
	em.Status = domain.StatusProcessing
	sess.SaveState()
	return em.Clone(), nil
}

func (e *Engine) stages(ctx context.Context, sess UserSession, snap *domain.Email, autoSend bool, overrideQueries []string) (*Result, error) {
	userID := sess.UserID()
	replySel := sess.ReplySelection()
	settings := sess.Settings()

	if err := e.checkpoint(sess, snap.ID); err != nil {
		return nil, err
	}

	category := snap.Category
	if overrideQueries == nil {
		var err error
		category, err = e.llm.Classify(ctx, replySel, snap.Subject, snap.Body)
		if err != nil {
			return nil, apperr.PipelineError("classify", err)
		}
	} else if !domain.ValidCategory(category) {
		category = domain.CategoryProductEnquiry
	}

	if err := e.checkpoint(sess, snap.ID); err != nil {
		return nil, err
	}

	if category == domain.CategoryUnrelated {
		return e.skip(ctx, sess, snap)
	}

	queries := overrideQueries
	if queries == nil {
		var err error
		queries, err = e.llm.DesignQueries(ctx, replySel, snap.Body)
		if err != nil {
			return nil, apperr.PipelineError("design queries", err)
		}
	}

	sess.Lock()
	if em := sess.Data().FindEmail(snap.ID); em != nil {
		em.Category = category
		em.RAGQueries = append([]string(nil), queries...)
	}
	sess.Unlock()
	sess.Emit(domain.EventRAGQueries, map[string]any{
		"email_id": snap.ID,
		"queries":  queries,
		"category": string(category),
	})

	if err := e.checkpoint(sess, snap.ID); err != nil {
		return nil, err
	}

	docs, err := e.composer.Compose(ctx, replySel, sess.EmbedSelection(), category, queries)
	if err != nil {
		return nil, apperr.PipelineError("retrieve", err)
	}

	if err := e.checkpoint(sess, snap.ID); err != nil {
		return nil, err
	}

	draft, err := e.draftLoop(ctx, sess, snap, category, docs, settings)
	if err != nil {
		return nil, err
	}

	if err := e.checkpoint(sess, snap.ID); err != nil {
		return nil, err
	}

	status := domain.StatusProcessed
	if autoSend && strings.TrimSpace(draft) != "" {
		sent, reason := e.trySend(ctx, sess, snap, draft)
		if sent {
			status = domain.StatusSent
		} else if reason != "" {
			e.log.Info().Str("user_id", userID).Str("email_id", snap.ID).Str("reason", reason).Msg("auto-send deferred by rate limiter")
		}
	}

	e.markRead(ctx, sess, snap)

	sess.Lock()
	if em := sess.Data().FindEmail(snap.ID); em != nil {
		em.Reply = draft
		em.Category = category
		em.Status = status
		d := sess.Data()
		d.Stats.Processed++
		if status == domain.StatusSent {
			d.Stats.Sent++
		}
		d.UpsertHistory(em)
		d.AddActivity("success", "✅", fmt.Sprintf("已处理邮件：%s", snap.Subject))
		sess.SaveState()
	}
	sess.Unlock()

	sess.Emit(domain.EventProcessComplete, map[string]any{
		"email_id": snap.ID,
		"category": string(category),
		"status":   string(status),
	})
	return &Result{EmailID: snap.ID, Status: status, Category: category}, nil
}

// skip is the unrelated fast-path: mark read, record the canned reply, no
// drafting and no rate-limiter involvement.
func (e *Engine) skip(ctx context.Context, sess UserSession, snap *domain.Email) (*Result, error) {
	e.markRead(ctx, sess, snap)

	sess.Lock()
	if em := sess.Data().FindEmail(snap.ID); em != nil {
		em.Category = domain.CategoryUnrelated
		em.Status = domain.StatusSkipped
		em.Reply = domain.SkippedReply
		d := sess.Data()
		d.Stats.Processed++
		d.Stats.Skipped++
		d.UpsertHistory(em)
		d.AddActivity("info", "⏭️", fmt.Sprintf("已跳过无关邮件：%s", snap.Subject))
		sess.SaveState()
	}
	sess.Unlock()

	sess.Emit(domain.EventProcessComplete, map[string]any{
		"email_id": snap.ID,
		"category": string(domain.CategoryUnrelated),
		"status":   string(domain.StatusSkipped),
	})
	return &Result{EmailID: snap.ID, Status: domain.StatusSkipped, Category: domain.CategoryUnrelated}, nil
}

// draftLoop runs up to maxDraftTrials write/proofread rounds. The writer's
// conversation accumulates each rejected draft and the proofreader feedback;
// after the final trial the last draft is used as-is.
func (e *Engine) draftLoop(ctx context.Context, sess UserSession, snap *domain.Email, category domain.EmailCategory, docs string, settings domain.AISettings) (string, error) {
	replySel := sess.ReplySelection()
	in := out.DraftInput{
		Sender:    snap.Sender,
		Subject:   snap.Subject,
		Body:      snap.Body,
		Category:  category,
		Context:   docs,
		Greeting:  settings.Greeting,
		Closing:   settings.Closing,
		Signature: settings.Signature,
	}

	var history []out.ChatMessage
	var draft string
	for trial := 1; trial <= maxDraftTrials; trial++ {
		if err := e.checkpoint(sess, snap.ID); err != nil {
			return "", err
		}

		var err error
		draft, err = e.llm.Draft(ctx, replySel, in, history)
		if err != nil {
			return "", apperr.PipelineError("draft", err)
		}

		if err := e.checkpoint(sess, snap.ID); err != nil {
			return "", err
		}

		verdict, err := e.llm.Proofread(ctx, replySel, snap.Body, draft)
		if err != nil {
			return "", apperr.PipelineError("proofread", err)
		}

		if err := e.checkpoint(sess, snap.ID); err != nil {
			return "", err
		}

		if verdict.Sendable {
			if strings.TrimSpace(verdict.Email) != "" {
				return verdict.Email, nil
			}
			return draft, nil
		}

		e.log.Debug().Str("email_id", snap.ID).Int("trial", trial).Msg("draft rejected by proofreader")
		history = append(history,
			out.ChatMessage{Role: "assistant", Content: fmt.Sprintf("**Draft %d:**\n%s", trial, draft)},
			out.ChatMessage{Role: "user", Content: fmt.Sprintf("**Proofreader Feedback:**\n%s", verdict.Feedback)},
		)
	}
	return draft, nil
}

// trySend applies admission control and sends the reply. Budget is consumed
// only after the send succeeds.
func (e *Engine) trySend(ctx context.Context, sess UserSession, snap *domain.Email, body string) (bool, string) {
	decision := e.limiter.Admit(sess.UserID())
	if !decision.Allowed {
		return false, decision.Reason
	}

	reply := out.OutgoingReply{
		To:         snap.Sender,
		Subject:    snap.Subject,
		Body:       body,
		InReplyTo:  snap.MessageID,
		References: references(snap),
	}
	if err := e.mailbox.SendReply(ctx, sess.Creds(), reply); err != nil {
		e.log.Warn().Err(err).Str("email_id", snap.ID).Msg("auto-send failed")
		return false, ""
	}
	e.limiter.Commit(sess.UserID())
	return true, ""
}

// SendReply sends a drafted reply for a processed message on explicit or
// auto-send request, updating status and counters on success.
func (e *Engine) SendReply(ctx context.Context, sess UserSession, emailID string) error {
	sess.Lock()
	em := sess.Data().FindEmail(emailID)
	if em == nil {
		sess.Unlock()
		return apperr.NotFound("email")
	}
	if strings.TrimSpace(em.Reply) == "" {
		sess.Unlock()
		return apperr.BadRequest("回复内容为空")
	}
	snap := em.Clone()
	sess.Unlock()

	decision := e.limiter.Admit(sess.UserID())
	if !decision.Allowed {
		return apperr.RateLimited(decision.Message).WithDetail("reason", decision.Reason)
	}

	reply := out.OutgoingReply{
		To:         snap.Sender,
		Subject:    snap.Subject,
		Body:       snap.Reply,
		InReplyTo:  snap.MessageID,
		References: references(snap),
	}
	if err := e.mailbox.SendReply(ctx, sess.Creds(), reply); err != nil {
		return err
	}
	e.limiter.Commit(sess.UserID())

	sess.Lock()
	if em := sess.Data().FindEmail(emailID); em != nil {
		em.Status = domain.StatusSent
		d := sess.Data()
		d.Stats.Sent++
		d.UpsertHistory(em)
		d.AddActivity("success", "📤", fmt.Sprintf("已发送回复：%s", snap.Subject))
		sess.SaveState()
	}
	sess.Unlock()
	return nil
}

// checkpoint observes stop requests. On stop the message reverts to pending,
// its stop entry is cleared, state is persisted and a stopped event fires.
func (e *Engine) checkpoint(sess UserSession, emailID string) error {
	if !sess.StopRequested(emailID) {
		return nil
	}

	sess.Lock()
	if em := sess.Data().FindEmail(emailID); em != nil {
		em.Status = domain.StatusPending
	}
	sess.ClearStop(emailID)
	sess.SaveState()
	sess.Unlock()

	sess.Emit(domain.EventProcessStopped, map[string]any{"email_id": emailID})
	e.log.Info().Str("user_id", sess.UserID()).Str("email_id", emailID).Msg("processing stopped at checkpoint")
	return apperr.Cancelled("email processing")
}

// fail records a terminal failure. No reply text is saved.
func (e *Engine) fail(sess UserSession, emailID string, cause error) {
	e.log.Error().Err(cause).Str("user_id", sess.UserID()).Str("email_id", emailID).Msg("pipeline failed")

	sess.Lock()
	if em := sess.Data().FindEmail(emailID); em != nil {
		em.Status = domain.StatusFailed
		d := sess.Data()
		d.Stats.Failed++
		d.UpsertHistory(em)
		d.AddActivity("error", "❌", fmt.Sprintf("处理失败：%s", em.Subject))
		sess.SaveState()
	}
	sess.Unlock()

	sess.Emit(domain.EventProcessComplete, map[string]any{
		"email_id": emailID,
		"status":   string(domain.StatusFailed),
		"error":    cause.Error(),
	})
}

// markRead flags the message seen in the mailbox. Failures are logged and
// swallowed; pipeline success does not depend on the flag.
func (e *Engine) markRead(ctx context.Context, sess UserSession, snap *domain.Email) {
	if snap.MailboxSeq == "" {
		return
	}
	if err := e.mailbox.MarkRead(ctx, sess.Creds(), snap.MailboxSeq); err != nil {
		e.log.Warn().Err(err).Str("email_id", snap.ID).Msg("mark read failed")
	}
}

func references(e *domain.Email) string {
	if e.References != "" {
		return e.References
	}
	return e.MessageID
}
