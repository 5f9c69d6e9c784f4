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

// TenantRepositoryTestSuite is the test suite for TenantRepository
type TenantRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo TenantRepository
}

// SetupSuite runs once before all tests
func (s *TenantRepositoryTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.Tenant{}, &models.MailboxCredential{}, &models.ThreadState{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewTenantRepository(db)
}

// TearDownSuite runs once after all tests
func (s *TenantRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test
func (s *TenantRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM mailbox_credentials")
	s.db.Exec("DELETE FROM tenants")
}

// TestTenantRepositoryTestSuite runs the test suite
func TestTenantRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(TenantRepositoryTestSuite))
}

func (s *TenantRepositoryTestSuite) createTenant(name, email string, withActiveCred bool) *models.Tenant {
	tenant := &models.Tenant{Name: name, Email: email}
	require.NoError(s.T(), s.db.Create(tenant).Error)

	if withActiveCred {
		cred := &models.MailboxCredential{
			TenantID:     tenant.ID,
			Provider:     "gmail",
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			ExpiresAt:    time.Now().Add(time.Hour),
			Active:       true,
		}
		require.NoError(s.T(), s.db.Create(cred).Error)
	}

	return tenant
}

// ==================== GetByID Tests ====================

func (s *TenantRepositoryTestSuite) TestGetByID_NotFound() {
	_, err := s.repo.GetByID(context.Background(), 9999)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *TenantRepositoryTestSuite) TestGetByID_PreloadsActiveCredentials() {
	tenant := s.createTenant("Studio Bianchi", "studio@bianchi.it", true)

	// An inactive credential must not be preloaded
	inactive := &models.MailboxCredential{
		TenantID:    tenant.ID,
		AccessToken: "old-token",
		Active:      false,
	}
	require.NoError(s.T(), s.db.Create(inactive).Error)

	got, err := s.repo.GetByID(context.Background(), tenant.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Studio Bianchi", got.Name)
	require.Len(s.T(), got.Credentials, 1)
	assert.True(s.T(), got.Credentials[0].Active)

	cred := got.ActiveCredential()
	require.NotNil(s.T(), cred)
	assert.Equal(s.T(), "access-token", cred.AccessToken)
}

// ==================== ListWithActiveMailbox Tests ====================

func (s *TenantRepositoryTestSuite) TestListWithActiveMailbox_Empty() {
	s.createTenant("Studio Senza Mailbox", "senza@example.it", false)

	tenants, err := s.repo.ListWithActiveMailbox(context.Background())
	require.NoError(s.T(), err)
	assert.Empty(s.T(), tenants)
}

func (s *TenantRepositoryTestSuite) TestListWithActiveMailbox_FiltersConnected() {
	connected := s.createTenant("Studio Connesso", "connesso@example.it", true)
	s.createTenant("Studio Scollegato", "scollegato@example.it", false)

	tenants, err := s.repo.ListWithActiveMailbox(context.Background())
	require.NoError(s.T(), err)
	require.Len(s.T(), tenants, 1)
	assert.Equal(s.T(), connected.ID, tenants[0].ID)
	require.Len(s.T(), tenants[0].Credentials, 1)
}

func (s *TenantRepositoryTestSuite) TestListWithActiveMailbox_NoDuplicateForMultipleCredentials() {
	tenant := s.createTenant("Studio Doppio", "doppio@example.it", true)

	second := &models.MailboxCredential{
		TenantID:    tenant.ID,
		AccessToken: "second-token",
		Active:      true,
	}
	require.NoError(s.T(), s.db.Create(second).Error)

	tenants, err := s.repo.ListWithActiveMailbox(context.Background())
	require.NoError(s.T(), err)
	assert.Len(s.T(), tenants, 1)
}

// ==================== ActiveCredential Tests ====================

func (s *TenantRepositoryTestSuite) TestActiveCredential_NotFound() {
	tenant := s.createTenant("Studio Senza Cred", "senza-cred@example.it", false)

	_, err := s.repo.ActiveCredential(context.Background(), tenant.ID)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *TenantRepositoryTestSuite) TestActiveCredential_IgnoresInactive() {
	tenant := s.createTenant("Studio", "studio@example.it", true)

	inactive := &models.MailboxCredential{
		TenantID:    tenant.ID,
		AccessToken: "revoked-token",
		Active:      false,
	}
	require.NoError(s.T(), s.db.Create(inactive).Error)

	cred, err := s.repo.ActiveCredential(context.Background(), tenant.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "access-token", cred.AccessToken)
}
