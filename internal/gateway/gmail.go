package gateway

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/smileagent/autoreply-engine/internal/models"
	"google.golang.org/api/gmail/v1"
)

// GmailMailbox implements Mailbox against the Gmail API.
type GmailMailbox struct {
	svc *gmail.Service
}

// Fetch lists matching inbox messages and resolves each to a full
// snapshot. A failure on any message surfaces as an error for the whole
// fetch rather than a silently partial list.
func (g *GmailMailbox) Fetch(ctx context.Context, maxResults int64, query string) ([]models.InboxMessage, error) {
	list, err := g.svc.Users.Messages.List("me").
		MaxResults(maxResults).
		Q(query).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyProviderError(err, "list messages")
	}

	messages := make([]models.InboxMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		detail, err := g.svc.Users.Messages.Get("me", ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			return nil, classifyProviderError(err, "get message")
		}
		messages = append(messages, parseMessage(detail))
	}

	return messages, nil
}

// Send delivers a plain-text reply, threading it when threadID is set.
func (g *GmailMailbox) Send(ctx context.Context, to, subject, body, threadID string) (*SendResult, error) {
	raw := strings.Join([]string{
		"To: " + to,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	msg := &gmail.Message{
		Raw: base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}
	if threadID != "" {
		msg.ThreadId = threadID
	}

	sent, err := g.svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return nil, classifyProviderError(err, "send message")
	}

	return &SendResult{MessageID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// MarkRead removes the UNREAD label from a message.
func (g *GmailMailbox) MarkRead(ctx context.Context, messageID string) error {
	_, err := g.svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return classifyProviderError(err, "mark read")
	}
	return nil
}

// parseMessage flattens the Gmail payload into an InboxMessage snapshot.
func parseMessage(raw *gmail.Message) models.InboxMessage {
	header := func(name string) string {
		if raw.Payload == nil {
			return ""
		}
		for _, h := range raw.Payload.Headers {
			if strings.EqualFold(h.Name, name) {
				return h.Value
			}
		}
		return ""
	}

	unread := false
	for _, label := range raw.LabelIds {
		if label == "UNREAD" {
			unread = true
			break
		}
	}

	return models.InboxMessage{
		ID:         raw.Id,
		ThreadID:   raw.ThreadId,
		From:       header("From"),
		To:         header("To"),
		Subject:    header("Subject"),
		Body:       extractBody(raw.Payload),
		Snippet:    raw.Snippet,
		ReceivedAt: time.UnixMilli(raw.InternalDate),
		Unread:     unread,
	}
}

// extractBody returns the first text/plain part, preferring the top-level
// body when present.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBody(payload.Body.Data)
	}

	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decodeBody(part.Body.Data)
		}
	}

	// Multipart/alternative may nest one level deeper
	for _, part := range payload.Parts {
		if body := extractBody(part); body != "" {
			return body
		}
	}

	return ""
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

var _ Mailbox = (*GmailMailbox)(nil)
