package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailagent/adapter/in/worker"
	"mailagent/core/domain"
	"mailagent/core/port/out"
)

type fakeSession struct {
	mu   sync.Mutex
	data *domain.EmailData

	evMu   sync.Mutex
	events []domain.EventType
	saved  chan struct{}
}

func newFakeSession(emails ...*domain.Email) *fakeSession {
	d := domain.NewEmailData()
	d.EmailsCache = append(d.EmailsCache, emails...)
	return &fakeSession{data: d, saved: make(chan struct{}, 8)}
}

func (s *fakeSession) UserID() string              { return "u-test" }
func (s *fakeSession) Lock()                       { s.mu.Lock() }
func (s *fakeSession) Unlock()                     { s.mu.Unlock() }
func (s *fakeSession) Data() *domain.EmailData     { return s.data }
func (s *fakeSession) SaveState()                  { s.saved <- struct{}{} }
func (s *fakeSession) StopRequested(string) bool   { return false }
func (s *fakeSession) ClearStop(string)            {}
func (s *fakeSession) Settings() domain.AISettings { return domain.AISettings{} }

func (s *fakeSession) Creds() out.MailboxCredentials { return out.MailboxCredentials{} }
func (s *fakeSession) ReplySelection() out.ModelSelection {
	return out.ModelSelection{Model: "reply-model"}
}
func (s *fakeSession) EmbedSelection() out.ModelSelection { return out.ModelSelection{} }

func (s *fakeSession) Emit(t domain.EventType, data map[string]any) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.events = append(s.events, t)
}

func (s *fakeSession) waitEvent(t *testing.T, want domain.EventType) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s.evMu.Lock()
		for _, got := range s.events {
			if got == want {
				s.evMu.Unlock()
				return
			}
		}
		s.evMu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("event %s never emitted", want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type summarizeLLM struct {
	failBody bool
}

func (f *summarizeLLM) Summarize(ctx context.Context, sel out.ModelSelection, text string) (string, error) {
	if f.failBody && len([]rune(text)) > 10 {
		return "", errors.New("model unavailable")
	}
	return "摘要：" + string([]rune(text)[:min(5, len([]rune(text)))]), nil
}

func (f *summarizeLLM) Classify(context.Context, out.ModelSelection, string, string) (domain.EmailCategory, error) {
	return domain.CategoryProductEnquiry, nil
}
func (f *summarizeLLM) DesignQueries(context.Context, out.ModelSelection, string) ([]string, error) {
	return nil, nil
}
func (f *summarizeLLM) Draft(context.Context, out.ModelSelection, out.DraftInput, []out.ChatMessage) (string, error) {
	return "", nil
}
func (f *summarizeLLM) Proofread(context.Context, out.ModelSelection, string, string) (out.ProofreadResult, error) {
	return out.ProofreadResult{}, nil
}
func (f *summarizeLLM) Answer(context.Context, out.ModelSelection, domain.EmailCategory, string, string) (string, error) {
	return "", nil
}
func (f *summarizeLLM) Probe(context.Context, out.ModelSelection) error { return nil }

func newTestSummarizer(llm out.LLMPort) (*Summarizer, func()) {
	pools := worker.NewManager(context.Background(), zerolog.Nop())
	s := NewSummarizer(llm, pools, zerolog.Nop())
	return s, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pools.Shutdown(ctx)
	}
}

func TestSummarizesBodyAndReply(t *testing.T) {
	s, stop := newTestSummarizer(&summarizeLLM{})
	defer stop()

	sess := newFakeSession(&domain.Email{
		ID:    "m1",
		Body:  "请问企服通支持审批流吗？",
		Reply: "您好，支持的。",
	})
	sess.data.UpsertHistory(sess.data.FindEmail("m1"))

	s.Submit(sess, "m1", true, true)
	sess.waitEvent(t, domain.EventSummarySaved)

	sess.Lock()
	defer sess.Unlock()
	em := sess.data.FindEmail("m1")
	if em.BodySummary == "" || em.ReplySummary == "" {
		t.Errorf("summaries = %q / %q", em.BodySummary, em.ReplySummary)
	}
	if h := sess.data.History[0]; h.BodySummary != em.BodySummary {
		t.Error("history record not updated")
	}
	select {
	case <-sess.saved:
	default:
		t.Error("state not persisted")
	}
}

func TestPartialFailureStillSaves(t *testing.T) {
	s, stop := newTestSummarizer(&summarizeLLM{failBody: true})
	defer stop()

	sess := newFakeSession(&domain.Email{
		ID:    "m2",
		Body:  "这封邮件的正文很长，超过十个字符，所以摘要会失败。",
		Reply: "好的。",
	})

	s.Submit(sess, "m2", true, true)
	sess.waitEvent(t, domain.EventSummarySaved)

	sess.Lock()
	defer sess.Unlock()
	em := sess.data.FindEmail("m2")
	if em.BodySummary != "" {
		t.Errorf("body summary = %q, want empty after failure", em.BodySummary)
	}
	if em.ReplySummary == "" {
		t.Error("reply summary missing despite partial success")
	}
}

func TestIngestedBatchIsBodyOnlyWithOneSave(t *testing.T) {
	s, stop := newTestSummarizer(&summarizeLLM{})
	defer stop()

	sess := newFakeSession(
		&domain.Email{ID: "n1", Body: "请问发票如何开具？", Reply: "您好，可以的。"},
		&domain.Email{ID: "n2", Body: "合同流程咨询", Reply: "您好。"},
	)

	s.SubmitIngested(sess, []string{"n1", "n2"})

	// the coalesced save marks the whole batch settled
	select {
	case <-sess.saved:
	case <-time.After(5 * time.Second):
		t.Fatal("coalesced save never happened")
	}

	sess.Lock()
	defer sess.Unlock()
	for _, id := range []string{"n1", "n2"} {
		em := sess.data.FindEmail(id)
		if em.BodySummary == "" {
			t.Errorf("%s: body summary missing", id)
		}
		if em.ReplySummary != "" {
			t.Errorf("%s: reply summary = %q, ingestion is body-only", id, em.ReplySummary)
		}
	}
	select {
	case <-sess.saved:
		t.Error("more than one save for the batch")
	default:
	}
}

func TestSkippedReplyGetsNoReplySummary(t *testing.T) {
	s, stop := newTestSummarizer(&summarizeLLM{})
	defer stop()

	sess := newFakeSession(&domain.Email{
		ID:    "m3",
		Body:  "广告内容",
		Reply: domain.SkippedReply,
	})

	s.Submit(sess, "m3", true, true)
	sess.waitEvent(t, domain.EventSummarySaved)

	sess.Lock()
	defer sess.Unlock()
	em := sess.data.FindEmail("m3")
	if em.BodySummary == "" {
		t.Error("body summary missing")
	}
	if em.ReplySummary != "" {
		t.Errorf("reply summary = %q, want none for canned skip reply", em.ReplySummary)
	}
}
