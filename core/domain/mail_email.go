// Package domain contains the core entities of the support-mail agent.
package domain

import "time"

// EmailStatus is the lifecycle state of a cached email.
type EmailStatus string

const (
	StatusPending    EmailStatus = "pending"
	StatusProcessing EmailStatus = "processing"
	StatusStopping   EmailStatus = "stopping"
	StatusProcessed  EmailStatus = "processed"
	StatusSent       EmailStatus = "sent"
	StatusSkipped    EmailStatus = "skipped"
	StatusFailed     EmailStatus = "failed"
	StatusRead       EmailStatus = "read"
)

// IsTerminal reports whether the status ends a pipeline run.
func (s EmailStatus) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusSent, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// EmailCategory is the support category assigned by classification.
type EmailCategory string

const (
	CategoryProductEnquiry    EmailCategory = "product_enquiry"
	CategoryCustomerComplaint EmailCategory = "customer_complaint"
	CategoryCustomerFeedback  EmailCategory = "customer_feedback"
	CategoryUnrelated         EmailCategory = "unrelated"
)

// ValidCategory reports whether c is one of the four known categories.
func ValidCategory(c EmailCategory) bool {
	switch c {
	case CategoryProductEnquiry, CategoryCustomerComplaint, CategoryCustomerFeedback, CategoryUnrelated:
		return true
	}
	return false
}

// UrgencyLevel is the keyword-derived urgency of an email.
type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
	UrgencyUrgent UrgencyLevel = "urgent"
)

// SkippedReply is the canned reply recorded for unrelated mail.
const SkippedReply = "无关邮件，已跳过"

// Email is one inbound message in a user's cache. ID comes from the source
// system (Message-ID or a synthesized fallback) and is unique per user.
type Email struct {
	ID              string        `json:"id"`
	ThreadID        string        `json:"threadId,omitempty"`
	MessageID       string        `json:"messageId,omitempty"`
	References      string        `json:"references,omitempty"`
	Sender          string        `json:"sender"`
	Subject         string        `json:"subject"`
	Body            string        `json:"body"`
	MailboxSeq      string        `json:"imap_id,omitempty"` // backend sequence for flag operations
	ReceivedAt      time.Time     `json:"received_at"`
	Status          EmailStatus   `json:"status"`
	Category        EmailCategory `json:"category,omitempty"`
	Urgency         UrgencyLevel  `json:"urgency_level,omitempty"`
	UrgencyKeywords []string      `json:"urgency_keywords,omitempty"`
	Reply           string        `json:"reply,omitempty"`
	RAGQueries      []string      `json:"rag_queries,omitempty"`
	BodySummary     string        `json:"body_summary,omitempty"`
	ReplySummary    string        `json:"reply_summary,omitempty"`
}

// Clone returns a deep copy; slices are copied so the snapshot is stable.
func (e *Email) Clone() *Email {
	c := *e
	if e.UrgencyKeywords != nil {
		c.UrgencyKeywords = append([]string(nil), e.UrgencyKeywords...)
	}
	if e.RAGQueries != nil {
		c.RAGQueries = append([]string(nil), e.RAGQueries...)
	}
	return &c
}

// HistoryRecord is a post-terminal snapshot of an email.
type HistoryRecord struct {
	Email
	ProcessedTime string `json:"processed_time"`
}

// Activity is a terse per-user audit record, kept in a bounded ring.
type Activity struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"` // info, success, warning, error
	Icon      string `json:"icon,omitempty"`
	Text      string `json:"text"`
}

// StatCounters are the persisted raw counters. Presentation stats are
// recomputed from cache+history on demand; Sent is kept because a send may
// not be flushed to history yet.
type StatCounters struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// EmailData is the whole per-user persisted message state
// (user_email_data_{user_id}.json).
type EmailData struct {
	EmailsCache   []*Email         `json:"emails_cache"`
	History       []*HistoryRecord `json:"history"`
	Activities    []Activity       `json:"activities"`
	Stats         StatCounters     `json:"stats"`
	LastCheckTime string           `json:"last_check_time,omitempty"`
	AutoProcess   bool             `json:"auto_process"`
	CheckInterval int              `json:"check_interval,omitempty"` // minutes
}

// NewEmailData returns an empty state.
func NewEmailData() *EmailData {
	return &EmailData{
		EmailsCache: []*Email{},
		History:     []*HistoryRecord{},
		Activities:  []Activity{},
	}
}

// FindEmail returns the cached email with the given id, or nil.
func (d *EmailData) FindEmail(id string) *Email {
	for _, e := range d.EmailsCache {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// RemoveEmail deletes the cached email with the given id.
// Returns true when something was removed.
func (d *EmailData) RemoveEmail(id string) bool {
	for i, e := range d.EmailsCache {
		if e.ID == id {
			d.EmailsCache = append(d.EmailsCache[:i], d.EmailsCache[i+1:]...)
			return true
		}
	}
	return false
}

const maxActivities = 50

// AddActivity prepends an activity and trims the ring to its bound.
func (d *EmailData) AddActivity(level, icon, text string) {
	a := Activity{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Level:     level,
		Icon:      icon,
		Text:      text,
	}
	d.Activities = append([]Activity{a}, d.Activities...)
	if len(d.Activities) > maxActivities {
		d.Activities = d.Activities[:maxActivities]
	}
}

// UpsertHistory prepends a snapshot of e, or updates an existing record
// matched by id or by (subject, sender). Resends update in place.
func (d *EmailData) UpsertHistory(e *Email) {
	rec := &HistoryRecord{
		Email:         *e.Clone(),
		ProcessedTime: time.Now().Format("2006-01-02 15:04:05"),
	}
	for i, h := range d.History {
		if h.ID == e.ID || (h.Subject == e.Subject && h.Sender == e.Sender) {
			d.History[i] = rec
			return
		}
	}
	d.History = append([]*HistoryRecord{rec}, d.History...)
}
