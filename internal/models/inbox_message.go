package models

import (
	"regexp"
	"strings"
	"time"
)

// InboxMessage is a snapshot of a message fetched from the mailbox provider.
// It is re-fetched every tick and never persisted; only ThreadState records
// the outcome of processing it.
type InboxMessage struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	From       string    `json:"from"`
	To         string    `json:"to,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Unread     bool      `json:"unread"`
}

var addrPattern = regexp.MustCompile(`<(.+?)>`)

// SenderAddress extracts the bare address from a "Name <addr>" From header.
// Returns an empty string when no address can be found.
func (m InboxMessage) SenderAddress() string {
	if match := addrPattern.FindStringSubmatch(m.From); match != nil {
		return match[1]
	}
	if strings.Contains(m.From, "@") {
		return strings.TrimSpace(m.From)
	}
	return ""
}

// SenderName extracts the display name from a "Name <addr>" From header,
// falling back to the bare address.
func (m InboxMessage) SenderName() string {
	name := strings.TrimSpace(strings.SplitN(m.From, "<", 2)[0])
	name = strings.Trim(name, `" `)
	if name == "" {
		return m.SenderAddress()
	}
	return name
}
