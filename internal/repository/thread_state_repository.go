package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/smileagent/autoreply-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreadStateRepository is the idempotency ledger keyed by (tenant, thread).
// The pipeline must call Get and treat any terminal status as "do not
// reprocess" before doing any network send, and UpsertTerminal only after a
// send or a definitive skip/failure decision.
type ThreadStateRepository interface {
	Get(ctx context.Context, tenantID uint, threadID string) (*models.ThreadState, error)
	// UpsertTerminal atomically inserts or replaces the state for the key.
	// The state must carry a terminal status. An existing terminal record is
	// left untouched: the first terminal transition wins.
	UpsertTerminal(ctx context.Context, state *models.ThreadState) error
}

// threadStateRepository implements ThreadStateRepository using GORM
type threadStateRepository struct {
	db *gorm.DB
}

// NewThreadStateRepository creates a new ThreadStateRepository instance
func NewThreadStateRepository(db *gorm.DB) ThreadStateRepository {
	return &threadStateRepository{db: db}
}

// Get retrieves the state for a (tenant, thread) key
func (r *threadStateRepository) Get(ctx context.Context, tenantID uint, threadID string) (*models.ThreadState, error) {
	var state models.ThreadState
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND thread_id = ?", tenantID, threadID).
		First(&state)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get thread state: %w", result.Error)
	}
	return &state, nil
}

// UpsertTerminal performs an atomic insert-or-replace on (tenant_id, thread_id).
// The ON CONFLICT update only fires while the stored status is still pending,
// so a terminal record can never be overwritten.
func (r *threadStateRepository) UpsertTerminal(ctx context.Context, state *models.ThreadState) error {
	if !state.Status.Terminal() {
		return fmt.Errorf("%w: status %q is not terminal", ErrInvalidInput, state.Status)
	}
	if state.ThreadID == "" || state.TenantID == 0 {
		return fmt.Errorf("%w: tenant and thread are required", ErrInvalidInput)
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "thread_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: "thread_states", Name: "status"},
				Value:  string(models.StatusPending),
			},
		}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "last_message_id", "from_email", "from_name",
			"subject", "status_reason", "calendar_event", "transitioned_at",
		}),
	}).Create(state)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert thread state: %w", result.Error)
	}
	return nil
}
