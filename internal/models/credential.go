package models

import (
	"time"
)

// MailboxCredential holds the OAuth token pair granting access to a tenant's
// mailbox. Created by the OAuth handshake outside this engine; the core only
// reads it. An expired or revoked credential is a per-tenant condition, never
// a reason to stop the scheduler.
type MailboxCredential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"not null;index" json:"tenant_id"`
	Provider     string    `gorm:"not null;size:32;default:gmail" json:"provider"`
	AccessToken  string    `gorm:"not null" json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `gorm:"size:32" json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Active       bool      `gorm:"default:true;index" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Tenant Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for MailboxCredential
func (MailboxCredential) TableName() string {
	return "mailbox_credentials"
}

// Expired reports whether the access token expiry has passed. A credential
// with a refresh token is not considered expired: the gateway refreshes it.
func (c *MailboxCredential) Expired(now time.Time) bool {
	if c.RefreshToken != "" {
		return false
	}
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
