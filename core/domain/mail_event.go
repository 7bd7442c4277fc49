package domain

import "time"

// EventType identifies a realtime event pushed to subscribed clients.
type EventType string

const (
	EventNewEmails          EventType = "new_emails"
	EventProcessStarted     EventType = "email_process_started"
	EventRAGQueries         EventType = "rag_queries_generated"
	EventProcessComplete    EventType = "email_process_complete"
	EventProcessStopping    EventType = "email_process_stopping"
	EventProcessStopped     EventType = "email_process_stopped"
	EventProcessAllStopping EventType = "process_all_stopping"
	EventProcessAllStopped  EventType = "process_all_stopped"
	EventProcessAllComplete EventType = "process_all_complete"
	EventAutoProcessDone    EventType = "auto_process_complete"
	EventSummarySaved       EventType = "summary_saved"
	EventRAGTestComplete    EventType = "rag_test_complete"
)

// Event is a typed realtime record fanned out per user.
type Event struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"user_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Seq       int64          `json:"seq,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t EventType, userID string, data map[string]any) *Event {
	return &Event{
		Type:      t,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now(),
	}
}
