// Package gateway adapts external mail and calendar providers behind
// narrow interfaces. All side effects of the engine (outbound mail,
// calendar events) happen here.
package gateway

import (
	"context"
	"time"

	"github.com/smileagent/autoreply-engine/internal/models"
)

// SendResult identifies a sent message and the thread the provider
// grouped it into.
type SendResult struct {
	MessageID string
	ThreadID  string
}

// Mailbox is the outbound interface to a tenant's mail provider.
// Implementations surface ErrAuthExpired for revoked credentials and
// ErrTransient for retryable provider failures; a fetch never returns a
// silently partial list.
type Mailbox interface {
	Fetch(ctx context.Context, maxResults int64, query string) ([]models.InboxMessage, error)
	// Send delivers a reply. threadID, when set, makes the provider group
	// the message in-thread.
	Send(ctx context.Context, to, subject, body, threadID string) (*SendResult, error)
	MarkRead(ctx context.Context, messageID string) error
}

// AppointmentRequest carries the raw detection output into the calendar
// bridge. RawDate/RawTime are the matched substrings, not parsed instants.
type AppointmentRequest struct {
	AttendeeEmail   string
	AttendeeName    string
	RawDate         string
	RawTime         string
	Description     string
	DurationMinutes int
}

// Event is a created calendar event.
type Event struct {
	ID    string
	Link  string
	Start time.Time
	End   time.Time
}

// Calendar converts a detected appointment intent into a provider event.
// Returns ErrParseFailure when the date token cannot be resolved; callers
// must not fail the surrounding reply flow on it.
type Calendar interface {
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Event, error)
}

// Factory builds provider adapters bound to one tenant's credential.
type Factory interface {
	Mailbox(ctx context.Context, cred *models.MailboxCredential) (Mailbox, error)
	Calendar(ctx context.Context, cred *models.MailboxCredential, tenant *models.Tenant) (Calendar, error)
}
