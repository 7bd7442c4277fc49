// Package summary produces short Chinese summaries of message bodies and
// replies out-of-band. Summarisation is best effort: failures are silent and
// never affect pipeline state.
package summary

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mailagent/adapter/in/worker"
	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/core/service/pipeline"
)

// Summarizer queues summary tasks onto the fixed-size summary pool.
type Summarizer struct {
	llm   out.LLMPort
	pools *worker.Manager
	log   zerolog.Logger
}

// NewSummarizer wires the summariser.
func NewSummarizer(llm out.LLMPort, pools *worker.Manager, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		llm:   llm,
		pools: pools,
		log:   log.With().Str("component", "summarizer").Logger(),
	}
}

// Submit queues summarisation of one message. includeReply adds a reply
// summary when a reply exists. With persist false the caller coalesces the
// save; the in-memory update still happens.
func (s *Summarizer) Submit(sess pipeline.UserSession, emailID string, includeReply, persist bool) {
	s.pools.SubmitSummary(func(ctx context.Context) {
		s.summarize(ctx, sess, emailID, includeReply, persist)
	})
}

// SubmitIngested queues body-only summaries for freshly ingested messages.
// Individual tasks skip persistence; one coalesced save lands after the
// whole batch settles.
func (s *Summarizer) SubmitIngested(sess pipeline.UserSession, emailIDs []string) {
	if len(emailIDs) == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(emailIDs))
	for _, id := range emailIDs {
		id := id
		s.pools.SubmitSummary(func(ctx context.Context) {
			defer wg.Done()
			s.summarize(ctx, sess, id, false, false)
		})
	}
	go func() {
		wg.Wait()
		sess.Lock()
		sess.SaveState()
		sess.Unlock()
	}()
}

func (s *Summarizer) summarize(ctx context.Context, sess pipeline.UserSession, emailID string, includeReply, persist bool) {
	sess.Lock()
	em := sess.Data().FindEmail(emailID)
	if em == nil {
		sess.Unlock()
		return
	}
	body := em.Body
	reply := em.Reply
	needBody := em.BodySummary == "" && strings.TrimSpace(body) != ""
	needReply := includeReply && em.ReplySummary == "" && strings.TrimSpace(reply) != "" && reply != domain.SkippedReply
	sess.Unlock()

	if !needBody && !needReply {
		return
	}

	sel := sess.ReplySelection()
	var bodySummary, replySummary string

	// run both summaries in parallel; each failure is logged and dropped so
	// a partial result still lands
	var g errgroup.Group
	if needBody {
		g.Go(func() error {
			text, err := s.llm.Summarize(ctx, sel, body)
			if err != nil {
				s.log.Debug().Err(err).Str("email_id", emailID).Msg("body summary failed")
				return nil
			}
			bodySummary = text
			return nil
		})
	}
	if needReply {
		g.Go(func() error {
			text, err := s.llm.Summarize(ctx, sel, reply)
			if err != nil {
				s.log.Debug().Err(err).Str("email_id", emailID).Msg("reply summary failed")
				return nil
			}
			replySummary = text
			return nil
		})
	}
	_ = g.Wait()

	if bodySummary == "" && replySummary == "" {
		return
	}

	sess.Lock()
	if em := sess.Data().FindEmail(emailID); em != nil {
		if bodySummary != "" {
			em.BodySummary = bodySummary
		}
		if replySummary != "" {
			em.ReplySummary = replySummary
		}
		for _, h := range sess.Data().History {
			if h.ID == emailID {
				h.BodySummary = em.BodySummary
				h.ReplySummary = em.ReplySummary
				break
			}
		}
		if persist {
			sess.SaveState()
		}
	}
	sess.Unlock()

	sess.Emit(domain.EventSummarySaved, map[string]any{"email_id": emailID})
}
