package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"github.com/smileagent/autoreply-engine/internal/gateway"
	"github.com/smileagent/autoreply-engine/internal/generation"
	"github.com/smileagent/autoreply-engine/internal/intent"
	"github.com/smileagent/autoreply-engine/internal/models"
	"github.com/smileagent/autoreply-engine/internal/quota"
	"github.com/smileagent/autoreply-engine/internal/repository"
)

// replySystemPrompt grounds the generation service in the assistant's
// register: formal Italian, no medical advice, human follow-up for
// appointments.
const replySystemPrompt = `Sei l'assistente virtuale di uno studio dentistico italiano professionale.

Rispondi alle email dei pazienti in modo professionale, empatico, chiaro e conciso.

REGOLE FONDAMENTALI:
1. Usa sempre il "Lei" formale
2. Firma come "Assistente Virtuale dello studio"
3. NON dare diagnosi mediche o consigli clinici specifici
4. Per emergenze, invita SEMPRE a chiamare lo studio
5. Per domande cliniche complesse, invita a prenotare una visita
6. Tono caldo e professionale, mai robotico
7. Lunghezza: 3-5 paragrafi massimo
8. Se rilevi una richiesta di appuntamento, conferma che un operatore ricontatterà per confermare data e ora

Genera email di risposta in italiano professionale.`

// leakedHeaderPattern matches a "Subject:"/"Oggetto:" line a generative
// model might erroneously prepend to the body.
var leakedHeaderPattern = regexp.MustCompile(`(?i)^(oggetto|subject):\s*.+\r?\n\r?\n?`)

// GeneratedReply is the output of the reply generator.
type GeneratedReply struct {
	Body        string
	Appointment intent.Appointment
	// Confidence is an observability score in [0,100]; it never gates
	// sending.
	Confidence int
}

// Outcome records what the pipeline did with one message.
type Outcome struct {
	Status models.ThreadStatus
	// AlreadyTerminal is set when the thread had a terminal state before
	// this invocation and nothing was done.
	AlreadyTerminal bool
	SentMessageID   string
	CalendarEventID string
	Reason          string
}

// AutoReplyService runs the per-message triage pipeline: classify,
// generate, send, record. It owns the ordering invariant: the thread
// ledger is consulted before any send and written only after.
type AutoReplyService struct {
	classifier intent.Classifier
	guard      *quota.Guard
	generator  generation.Client
	threads    repository.ThreadStateRepository
	logger     *slog.Logger
}

// NewAutoReplyService creates an AutoReplyService.
func NewAutoReplyService(
	classifier intent.Classifier,
	guard *quota.Guard,
	generator generation.Client,
	threads repository.ThreadStateRepository,
	logger *slog.Logger,
) *AutoReplyService {
	return &AutoReplyService{
		classifier: classifier,
		guard:      guard,
		generator:  generator,
		threads:    threads,
		logger:     logger,
	}
}

// GenerateReply classifies the message and produces a reply draft.
// The quota guard is consulted before any network call: a denial
// returns ErrQuotaExceeded without touching the generation service.
func (s *AutoReplyService) GenerateReply(ctx context.Context, msg models.InboxMessage, tenant *models.Tenant) (*GeneratedReply, error) {
	detection := s.classifier.Classify(msg)
	return s.generateWithDetection(ctx, msg, tenant, detection)
}

func (s *AutoReplyService) generateWithDetection(ctx context.Context, msg models.InboxMessage, tenant *models.Tenant, detection intent.Result) (*GeneratedReply, error) {
	if err := s.guard.Check(); err != nil {
		return nil, err
	}

	prompt := buildPrompt(msg, tenant, detection.Appointment)
	text, err := s.generator.Complete(ctx, prompt, nil)
	if err != nil {
		if errors.Is(err, apperrors.ErrMalformedResponse) {
			s.logger.Error("generation returned malformed content",
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
		return nil, err
	}

	body := strings.TrimSpace(text)
	body = leakedHeaderPattern.ReplaceAllString(body, "")

	return &GeneratedReply{
		Body:        body,
		Appointment: detection.Appointment,
		Confidence:  replyConfidence(msg, body, detection.Appointment),
	}, nil
}

// ProcessMessage runs the full pipeline on one fetched message.
// Terminal thread states short-circuit before any side effect. Transient
// errors return without writing a terminal state so the next tick
// retries; generation failures and quota denials are recorded as failed
// and never retried.
func (s *AutoReplyService) ProcessMessage(
	ctx context.Context,
	tenant *models.Tenant,
	mailbox gateway.Mailbox,
	cal gateway.Calendar,
	msg models.InboxMessage,
) (*Outcome, error) {
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = msg.ID
	}

	state, err := s.threads.Get(ctx, tenant.ID, threadID)
	if err == nil && state.Status.Terminal() {
		return &Outcome{Status: state.Status, AlreadyTerminal: true}, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: ledger lookup failed: %v", apperrors.ErrTransient, err)
	}

	detection := s.classifier.Classify(msg)

	if !detection.AutoReplyEligible {
		if err := s.markTerminal(ctx, tenant.ID, threadID, msg, models.StatusSkipped, "automated sender or auto-reply subject", ""); err != nil {
			return nil, err
		}
		return &Outcome{Status: models.StatusSkipped, Reason: "not eligible for auto-reply"}, nil
	}

	to := msg.SenderAddress()
	if to == "" {
		if err := s.markTerminal(ctx, tenant.ID, threadID, msg, models.StatusSkipped, "no recipient address", ""); err != nil {
			return nil, err
		}
		return &Outcome{Status: models.StatusSkipped, Reason: "could not extract recipient address"}, nil
	}

	reply, err := s.generateWithDetection(ctx, msg, tenant, detection)
	if err != nil {
		if apperrors.IsGenerationFailure(err) {
			// Deliberately terminal: retrying each tick would burn the
			// shared budget with no prospect of success.
			if mErr := s.markTerminal(ctx, tenant.ID, threadID, msg, models.StatusFailed, err.Error(), ""); mErr != nil {
				return nil, mErr
			}
			return &Outcome{Status: models.StatusFailed, Reason: err.Error()}, nil
		}
		return nil, err
	}

	sent, err := mailbox.Send(ctx, to, replySubject(msg.Subject), reply.Body, msg.ThreadID)
	if err != nil {
		return nil, err
	}

	if err := mailbox.MarkRead(ctx, msg.ID); err != nil {
		s.logger.Warn("failed to mark original as read",
			slog.Uint64("tenant_id", uint64(tenant.ID)),
			slog.String("message_id", msg.ID),
			slog.Any("error", err))
	}

	eventID := ""
	if cal != nil && reply.Appointment.Detected && reply.Appointment.RawDate != "" {
		eventID = s.createCalendarEvent(ctx, cal, msg, reply.Appointment)
	}

	// The reply is out; this write must follow, never precede it. A crash
	// in between leaves the thread pending and risks a duplicate, which is
	// why ticks never overlap.
	if err := s.markTerminal(ctx, tenant.ID, threadID, msg, models.StatusReplied, "", eventID); err != nil {
		s.logger.Error("reply sent but ledger write failed",
			slog.Uint64("tenant_id", uint64(tenant.ID)),
			slog.String("thread_id", threadID),
			slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("auto-reply sent",
		slog.Uint64("tenant_id", uint64(tenant.ID)),
		slog.String("thread_id", threadID),
		slog.String("to", to),
		slog.Int("confidence", reply.Confidence),
		slog.Bool("appointment", reply.Appointment.Detected))

	return &Outcome{
		Status:          models.StatusReplied,
		SentMessageID:   sent.MessageID,
		CalendarEventID: eventID,
	}, nil
}

// MarkFailed records a terminal failure for a message. Used by the
// scheduler once a message exhausts its transient retry budget.
func (s *AutoReplyService) MarkFailed(ctx context.Context, tenantID uint, msg models.InboxMessage, reason string) error {
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = msg.ID
	}
	return s.markTerminal(ctx, tenantID, threadID, msg, models.StatusFailed, reason, "")
}

func (s *AutoReplyService) createCalendarEvent(ctx context.Context, cal gateway.Calendar, msg models.InboxMessage, appointment intent.Appointment) string {
	snippet := msg.Body
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}

	event, err := cal.CreateAppointment(ctx, gateway.AppointmentRequest{
		AttendeeEmail:   msg.SenderAddress(),
		AttendeeName:    msg.SenderName(),
		RawDate:         appointment.RawDate,
		RawTime:         appointment.RawTime,
		Description:     "Richiesta via email\n\nMessaggio originale:\n" + snippet,
		DurationMinutes: 60,
	})
	if err != nil {
		// Never fails the reply flow; the thread is still marked replied.
		if apperrors.IsParseFailure(err) {
			s.logger.Debug("appointment date not parseable, skipping event",
				slog.String("message_id", msg.ID),
				slog.String("raw_date", appointment.RawDate))
		} else {
			s.logger.Warn("failed to create calendar event",
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
		return ""
	}
	return event.ID
}

func (s *AutoReplyService) markTerminal(ctx context.Context, tenantID uint, threadID string, msg models.InboxMessage, status models.ThreadStatus, reason, eventID string) error {
	state := &models.ThreadState{
		TenantID:       tenantID,
		ThreadID:       threadID,
		Status:         status,
		LastMessageID:  msg.ID,
		FromEmail:      msg.SenderAddress(),
		FromName:       msg.SenderName(),
		Subject:        msg.Subject,
		StatusReason:   reason,
		TransitionedAt: time.Now().UTC(),
	}
	if eventID != "" {
		state.CalendarEvent = &eventID
	}
	if err := s.threads.UpsertTerminal(ctx, state); err != nil {
		return fmt.Errorf("%w: ledger write failed: %v", apperrors.ErrTransient, err)
	}
	return nil
}

// buildPrompt embeds the original message, tenant context and detection
// result into a grounded instruction for the generation service.
func buildPrompt(msg models.InboxMessage, tenant *models.Tenant, appointment intent.Appointment) string {
	var sb strings.Builder

	sb.WriteString(replySystemPrompt)
	sb.WriteString("\n\nEMAIL RICEVUTA:\n")
	fmt.Fprintf(&sb, "Da: %s\nOggetto: %s\nMessaggio:\n%s\n", msg.From, msg.Subject, msg.Body)

	sb.WriteString("\nCONTESTO STUDIO:\n")
	fmt.Fprintf(&sb, "Studio: %s\nEmail: %s\n", tenant.Name, tenant.Email)
	if tenant.Phone != "" {
		fmt.Fprintf(&sb, "Telefono: %s\n", tenant.Phone)
	}

	sb.WriteString("\nRILEVAMENTO APPUNTAMENTO:\n")
	if appointment.Detected {
		fmt.Fprintf(&sb, "Richiesta appuntamento rilevata (confidenza: %.0f%%)\n", appointment.Confidence*100)
		if appointment.RawDate != "" {
			fmt.Fprintf(&sb, "Data suggerita: %s\n", appointment.RawDate)
		}
		if appointment.RawTime != "" {
			fmt.Fprintf(&sb, "Ora suggerita: %s\n", appointment.RawTime)
		}
	} else {
		sb.WriteString("Nessuna richiesta appuntamento rilevata\n")
	}

	sb.WriteString("\nCOMPITO:\nGenera una risposta email professionale, empatica e utile.\n")
	if appointment.Detected {
		sb.WriteString("IMPORTANTE: Conferma che la richiesta di appuntamento è stata ricevuta e che un operatore ricontatterà a breve per confermare data e ora.\n")
	}
	sb.WriteString("Rispondi SOLO con il testo della email (senza oggetto, senza \"Da:\", senza \"A:\", solo il corpo del messaggio).\n")

	return sb.String()
}

// replySubject prefixes "Re:" unless the subject already carries it.
func replySubject(subject string) string {
	if strings.HasPrefix(subject, "Re:") {
		return subject
	}
	return "Re: " + subject
}

// replyConfidence is a bounded heuristic blend used for observability,
// never for gating: base 70, +10 for a body in a normal length range,
// +10 for a reply in a normal length range, +10 for a high-confidence
// appointment, capped at 100.
func replyConfidence(msg models.InboxMessage, reply string, appointment intent.Appointment) int {
	confidence := 70

	if len(msg.Body) > 50 && len(msg.Body) < 500 {
		confidence += 10
	}
	if len(reply) > 100 && len(reply) < 800 {
		confidence += 10
	}
	if appointment.Detected && appointment.Confidence > 0.7 {
		confidence += 10
	}

	if confidence > 100 {
		confidence = 100
	}
	return confidence
}
