package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smileagent/autoreply-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ThreadStateRepositoryTestSuite is the test suite for ThreadStateRepository
type ThreadStateRepositoryTestSuite struct {
	suite.Suite
	db         *gorm.DB
	repo       ThreadStateRepository
	testTenant *models.Tenant
}

// SetupSuite runs once before all tests
func (s *ThreadStateRepositoryTestSuite) SetupSuite() {
	// Use in-memory SQLite for testing
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	// Enable foreign keys for SQLite (required for cascade delete)
	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.Tenant{}, &models.MailboxCredential{}, &models.ThreadState{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewThreadStateRepository(db)
}

// TearDownSuite runs once after all tests
func (s *ThreadStateRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test - clean up data and create test tenant
func (s *ThreadStateRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM thread_states")
	s.db.Exec("DELETE FROM mailbox_credentials")
	s.db.Exec("DELETE FROM tenants")

	s.testTenant = &models.Tenant{Name: "Studio Bianchi", Email: "studio@bianchi.it"}
	require.NoError(s.T(), s.db.Create(s.testTenant).Error)
}

// TestThreadStateRepositoryTestSuite runs the test suite
func TestThreadStateRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(ThreadStateRepositoryTestSuite))
}

func (s *ThreadStateRepositoryTestSuite) terminalState(threadID string, status models.ThreadStatus) *models.ThreadState {
	return &models.ThreadState{
		TenantID:       s.testTenant.ID,
		ThreadID:       threadID,
		Status:         status,
		LastMessageID:  "msg-1",
		FromEmail:      "mario@example.com",
		Subject:        "Richiesta appuntamento",
		TransitionedAt: time.Now().UTC(),
	}
}

// ==================== Get Tests ====================

func (s *ThreadStateRepositoryTestSuite) TestGet_NotFound() {
	_, err := s.repo.Get(context.Background(), s.testTenant.ID, "missing-thread")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *ThreadStateRepositoryTestSuite) TestGet_Success() {
	state := s.terminalState("thread-1", models.StatusReplied)
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), state))

	got, err := s.repo.Get(context.Background(), s.testTenant.ID, "thread-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusReplied, got.Status)
	assert.Equal(s.T(), "mario@example.com", got.FromEmail)
}

func (s *ThreadStateRepositoryTestSuite) TestGet_ScopedByTenant() {
	other := &models.Tenant{Name: "Studio Verdi", Email: "studio@verdi.it"}
	require.NoError(s.T(), s.db.Create(other).Error)

	state := s.terminalState("thread-1", models.StatusReplied)
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), state))

	_, err := s.repo.Get(context.Background(), other.ID, "thread-1")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

// ==================== UpsertTerminal Tests ====================

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_RejectsPending() {
	state := s.terminalState("thread-1", models.StatusPending)

	err := s.repo.UpsertTerminal(context.Background(), state)
	assert.ErrorIs(s.T(), err, ErrInvalidInput)
}

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_RejectsMissingKey() {
	state := s.terminalState("", models.StatusReplied)

	err := s.repo.UpsertTerminal(context.Background(), state)
	assert.ErrorIs(s.T(), err, ErrInvalidInput)
}

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_Insert() {
	state := s.terminalState("thread-1", models.StatusSkipped)
	state.StatusReason = "automated sender"

	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), state))

	got, err := s.repo.Get(context.Background(), s.testTenant.ID, "thread-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusSkipped, got.Status)
	assert.Equal(s.T(), "automated sender", got.StatusReason)
}

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_OverwritesPending() {
	// Seed a pending record the way the pipeline would observe a thread
	pending := &models.ThreadState{
		TenantID: s.testTenant.ID,
		ThreadID: "thread-1",
		Status:   models.StatusPending,
	}
	require.NoError(s.T(), s.db.Create(pending).Error)

	state := s.terminalState("thread-1", models.StatusReplied)
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), state))

	got, err := s.repo.Get(context.Background(), s.testTenant.ID, "thread-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusReplied, got.Status)
}

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_FirstTerminalWins() {
	first := s.terminalState("thread-1", models.StatusReplied)
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), first))

	second := s.terminalState("thread-1", models.StatusFailed)
	second.StatusReason = "late failure"
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), second))

	got, err := s.repo.Get(context.Background(), s.testTenant.ID, "thread-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusReplied, got.Status)
	assert.Empty(s.T(), got.StatusReason)
}

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_CarriesCalendarEvent() {
	eventID := "evt-123"
	state := s.terminalState("thread-1", models.StatusReplied)
	state.CalendarEvent = &eventID

	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), state))

	got, err := s.repo.Get(context.Background(), s.testTenant.ID, "thread-1")
	require.NoError(s.T(), err)
	require.NotNil(s.T(), got.CalendarEvent)
	assert.Equal(s.T(), "evt-123", *got.CalendarEvent)
}

func (s *ThreadStateRepositoryTestSuite) TestUpsertTerminal_SameThreadDifferentTenants() {
	other := &models.Tenant{Name: "Studio Verdi", Email: "studio@verdi.it"}
	require.NoError(s.T(), s.db.Create(other).Error)

	first := s.terminalState("thread-1", models.StatusReplied)
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), first))

	second := s.terminalState("thread-1", models.StatusSkipped)
	second.TenantID = other.ID
	require.NoError(s.T(), s.repo.UpsertTerminal(context.Background(), second))

	got, err := s.repo.Get(context.Background(), other.ID, "thread-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusSkipped, got.Status)
}
