package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"github.com/smileagent/autoreply-engine/internal/gateway"
	"github.com/smileagent/autoreply-engine/internal/logger"
	"github.com/smileagent/autoreply-engine/internal/models"
	"github.com/smileagent/autoreply-engine/internal/repository"
)

// SchedulerConfig holds configuration for the inbox triage scheduler.
type SchedulerConfig struct {
	// TickInterval is how often connected tenants' inboxes are checked.
	TickInterval time.Duration
	// FetchMaxResults bounds the inbox page fetched per tenant per tick.
	FetchMaxResults int64
	// FetchQuery is the provider search query for candidate messages.
	FetchQuery string
	// CallTimeout bounds each provider/generation call so one slow tenant
	// cannot stall the tick.
	CallTimeout time.Duration
	// TransientRetryLimit is how many ticks a message may fail
	// transiently before it is recorded as failed.
	TransientRetryLimit int
}

// Scheduler drives the triage pipeline: one non-overlapping tick per
// interval, tenants processed in parallel within it. A single scheduler
// instance per deployment is assumed; running two against the same
// credentials is out of contract.
type Scheduler struct {
	tenants   repository.TenantRepository
	gateways  gateway.Factory
	autoReply *AutoReplyService
	config    SchedulerConfig
	logger    *slog.Logger
	security  *logger.SecurityLogger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	// tickMu serializes every path that consults the ledger and sends:
	// the loop, forced ticks and manual triggers. Without it two entry
	// points could both pass the pre-send Get and double-send.
	tickMu sync.Mutex

	// transientFails counts per-message transient failures across ticks.
	failMu         sync.Mutex
	transientFails map[string]int
}

// NewScheduler creates a Scheduler. A nil security logger falls back to
// the default stdout JSON security logger.
func NewScheduler(
	tenants repository.TenantRepository,
	gateways gateway.Factory,
	autoReply *AutoReplyService,
	config SchedulerConfig,
	log *slog.Logger,
	security *logger.SecurityLogger,
) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = 60 * time.Second
	}
	if config.FetchMaxResults <= 0 {
		config.FetchMaxResults = 10
	}
	if config.FetchQuery == "" {
		config.FetchQuery = "in:inbox is:unread"
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if config.TransientRetryLimit <= 0 {
		config.TransientRetryLimit = 3
	}
	if security == nil {
		security = logger.NewSecurityLogger()
	}

	return &Scheduler{
		tenants:        tenants,
		gateways:       gateways,
		autoReply:      autoReply,
		config:         config,
		logger:         log,
		security:       security,
		stopCh:         make(chan struct{}),
		transientFails: make(map[string]int),
	}
}

// Start begins the triage background loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("auto-reply scheduler started",
		slog.Duration("tick_interval", s.config.TickInterval),
		slog.Int64("fetch_max_results", s.config.FetchMaxResults))
}

// Stop gracefully stops the loop. An in-flight tick finishes its current
// per-message work before the loop exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("auto-reply scheduler stopped")
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop runs ticks back to back on one goroutine, so a tick always
// finishes before the next is scheduled.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	// Run immediately on start
	s.Tick()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick processes every tenant with an active mailbox credential once.
// Each tenant runs on its own goroutine; a tenant failure never aborts
// the tick for the others. At most one tick runs at a time: if one is
// already in flight the call returns immediately, so a forced tick can
// never double-process a thread alongside the scheduled loop.
func (s *Scheduler) Tick() {
	if !s.tickMu.TryLock() {
		s.logger.Debug("tick already in flight, skipping")
		return
	}
	defer s.tickMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tenants, err := s.tenants.ListWithActiveMailbox(ctx)
	if err != nil {
		s.logger.Error("failed to list tenants with active mailbox",
			slog.Any("error", err))
		return
	}

	if len(tenants) == 0 {
		s.logger.Debug("no connected tenants")
		return
	}

	var wg sync.WaitGroup
	for i := range tenants {
		tenant := &tenants[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("tenant processing panicked",
						slog.Uint64("tenant_id", uint64(tenant.ID)),
						slog.Any("panic", r))
				}
			}()
			s.processTenant(ctx, tenant)
		}()
	}
	wg.Wait()
}

// ForceTick triggers an immediate tick. Useful for operational tooling
// and manual intervention.
func (s *Scheduler) ForceTick() {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		s.logger.Warn("force tick called but scheduler is not running")
		return
	}

	s.logger.Info("force tick triggered")
	go s.Tick()
}

// processTenant fetches the tenant's inbox page and runs the pipeline on
// each message. Credential problems skip the tenant for this tick only.
func (s *Scheduler) processTenant(ctx context.Context, tenant *models.Tenant) {
	cred := tenant.ActiveCredential()
	if cred == nil {
		s.logger.Debug("tenant has no active credential",
			slog.Uint64("tenant_id", uint64(tenant.ID)))
		return
	}
	if cred.Expired(time.Now()) {
		s.security.CredentialExpired(tenant.ID, cred.Provider)
		s.logger.Warn("tenant credential expired, skipping for this tick",
			slog.Uint64("tenant_id", uint64(tenant.ID)))
		return
	}

	mailbox, err := s.gateways.Mailbox(ctx, cred)
	if err != nil {
		s.logger.Error("failed to build mailbox gateway",
			slog.Uint64("tenant_id", uint64(tenant.ID)),
			slog.Any("error", err))
		return
	}
	cal, err := s.gateways.Calendar(ctx, cred, tenant)
	if err != nil {
		s.logger.Warn("failed to build calendar gateway, replies proceed without events",
			slog.Uint64("tenant_id", uint64(tenant.ID)),
			slog.Any("error", err))
		cal = nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	messages, err := mailbox.Fetch(fetchCtx, s.config.FetchMaxResults, s.config.FetchQuery)
	cancel()
	if err != nil {
		if apperrors.IsAuthExpired(err) {
			// Terminal for the tenant this tick, surfaced for re-auth;
			// never a global failure.
			s.security.CredentialExpired(tenant.ID, cred.Provider)
			s.logger.Warn("mailbox authorization expired",
				slog.Uint64("tenant_id", uint64(tenant.ID)),
				slog.Any("error", err))
		} else {
			s.logger.Error("failed to fetch inbox",
				slog.Uint64("tenant_id", uint64(tenant.ID)),
				slog.Any("error", err))
		}
		return
	}

	if len(messages) == 0 {
		s.logger.Debug("no messages for tenant",
			slog.Uint64("tenant_id", uint64(tenant.ID)))
		return
	}

	for _, msg := range messages {
		select {
		case <-s.stopCh:
			// Shutdown: finish nothing half-way, just stop picking up work.
			return
		default:
		}
		s.processMessage(ctx, tenant, mailbox, cal, msg)
	}
}

func (s *Scheduler) processMessage(ctx context.Context, tenant *models.Tenant, mailbox gateway.Mailbox, cal gateway.Calendar, msg models.InboxMessage) {
	msgCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	outcome, err := s.autoReply.ProcessMessage(msgCtx, tenant, mailbox, cal, msg)
	if err != nil {
		if apperrors.IsAuthExpired(err) {
			s.logger.Warn("mailbox authorization expired mid-tenant",
				slog.Uint64("tenant_id", uint64(tenant.ID)),
				slog.Any("error", err))
			return
		}
		s.recordTransient(ctx, tenant, msg, err)
		return
	}

	s.clearTransient(tenant.ID, msg.ID)

	if outcome.AlreadyTerminal {
		return
	}
	s.logger.Info("message processed",
		slog.Uint64("tenant_id", uint64(tenant.ID)),
		slog.String("message_id", msg.ID),
		slog.String("status", string(outcome.Status)),
		slog.String("reason", outcome.Reason))
}

// recordTransient counts a retryable failure. The thread stays pending
// and is retried next tick until the budget runs out, then hardens to a
// failed terminal state.
func (s *Scheduler) recordTransient(ctx context.Context, tenant *models.Tenant, msg models.InboxMessage, cause error) {
	key := transientKey(tenant.ID, msg.ID)

	s.failMu.Lock()
	s.transientFails[key]++
	count := s.transientFails[key]
	s.failMu.Unlock()

	if count < s.config.TransientRetryLimit {
		s.logger.Warn("transient failure, will retry next tick",
			slog.Uint64("tenant_id", uint64(tenant.ID)),
			slog.String("message_id", msg.ID),
			slog.Int("attempt", count),
			slog.Any("error", cause))
		return
	}

	s.logger.Error("transient retry budget exhausted, marking failed",
		slog.Uint64("tenant_id", uint64(tenant.ID)),
		slog.String("message_id", msg.ID),
		slog.Int("attempts", count),
		slog.Any("error", cause))

	reason := fmt.Sprintf("transient retry budget exhausted: %v", cause)
	if err := s.autoReply.MarkFailed(ctx, tenant.ID, msg, reason); err != nil {
		s.logger.Error("failed to record exhausted message",
			slog.Uint64("tenant_id", uint64(tenant.ID)),
			slog.String("message_id", msg.ID),
			slog.Any("error", err))
		return
	}
	s.clearTransient(tenant.ID, msg.ID)
}

func (s *Scheduler) clearTransient(tenantID uint, messageID string) {
	key := transientKey(tenantID, messageID)
	s.failMu.Lock()
	delete(s.transientFails, key)
	s.failMu.Unlock()
}

func transientKey(tenantID uint, messageID string) string {
	return fmt.Sprintf("%d/%s", tenantID, messageID)
}

// TriggerReply runs the pipeline on demand for a single thread,
// reusing the same idempotency and quota logic as the scheduled path.
func (s *Scheduler) TriggerReply(ctx context.Context, tenantID uint, threadID string) (*Outcome, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cred := tenant.ActiveCredential()
	if cred == nil {
		return nil, fmt.Errorf("%w: tenant has no active mailbox credential", apperrors.ErrAuthExpired)
	}

	mailbox, err := s.gateways.Mailbox(ctx, cred)
	if err != nil {
		return nil, err
	}
	cal, err := s.gateways.Calendar(ctx, cred, tenant)
	if err != nil {
		cal = nil
	}

	messages, err := mailbox.Fetch(ctx, s.config.FetchMaxResults, s.config.FetchQuery)
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		id := msg.ThreadID
		if id == "" {
			id = msg.ID
		}
		if id == threadID {
			// Serialize with the tick path so a manual trigger and an
			// in-flight tick cannot both pass the ledger check and send.
			s.tickMu.Lock()
			defer s.tickMu.Unlock()
			return s.autoReply.ProcessMessage(ctx, tenant, mailbox, cal, msg)
		}
	}

	return nil, fmt.Errorf("%w: no message found for thread %s", apperrors.ErrNotFound, threadID)
}
