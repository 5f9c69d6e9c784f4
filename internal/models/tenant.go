package models

import (
	"time"
)

// Tenant represents a studio account whose mailbox is polled independently.
type Tenant struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"not null;size:255" json:"name"`
	Email    string `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Phone    string `gorm:"size:64" json:"phone,omitempty"`
	Language string `gorm:"size:16;default:it" json:"language"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Credentials []MailboxCredential `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Tenant
func (Tenant) TableName() string {
	return "tenants"
}

// ActiveCredential returns the first active credential preloaded on the
// tenant, or nil when none is loaded.
func (t *Tenant) ActiveCredential() *MailboxCredential {
	for i := range t.Credentials {
		if t.Credentials[i].Active {
			return &t.Credentials[i]
		}
	}
	return nil
}
