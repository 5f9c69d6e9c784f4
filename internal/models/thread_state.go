package models

import (
	"time"
)

// ThreadStatus enumerates the lifecycle of an observed conversation thread.
// Valid transitions: pending -> replied | skipped | failed. A terminal status
// is never left; the automated pipeline never reprocesses a terminal thread.
type ThreadStatus string

const (
	StatusPending ThreadStatus = "pending"
	StatusReplied ThreadStatus = "replied"
	StatusSkipped ThreadStatus = "skipped"
	StatusFailed  ThreadStatus = "failed"
)

// Terminal reports whether the status ends automated processing for the thread.
func (s ThreadStatus) Terminal() bool {
	return s == StatusReplied || s == StatusSkipped || s == StatusFailed
}

// ThreadState is the idempotency record for one (tenant, thread) pair.
// It is created lazily the first time a thread is observed and mutated only
// by the auto-reply pipeline. Never deleted by the core.
type ThreadState struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	TenantID       uint         `gorm:"not null;uniqueIndex:idx_thread_states_tenant_thread" json:"tenant_id"`
	ThreadID       string       `gorm:"not null;size:128;uniqueIndex:idx_thread_states_tenant_thread" json:"thread_id"`
	Status         ThreadStatus `gorm:"not null;size:16;default:pending" json:"status"`
	LastMessageID  string       `gorm:"size:128" json:"last_message_id,omitempty"`
	FromEmail      string       `gorm:"size:255" json:"from_email,omitempty"`
	FromName       string       `gorm:"size:255" json:"from_name,omitempty"`
	Subject        string       `json:"subject,omitempty"`
	StatusReason   string       `gorm:"size:255" json:"status_reason,omitempty"`
	CalendarEvent  *string      `gorm:"size:128" json:"calendar_event_id,omitempty"`
	TransitionedAt time.Time    `json:"transitioned_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ThreadState
func (ThreadState) TableName() string {
	return "thread_states"
}
