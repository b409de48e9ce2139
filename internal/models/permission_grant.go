package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionGrant is a single authorization record: a user holds a level
// (view/edit/admin) over a (company, category) scope. A nil Company or
// Category means the grant is unrestricted across that dimension; the empty
// string is a real value, so both columns are nullable.
//
// Grants are immutable after creation except for the revocation fields
// (Active, RevokedBy, RevokedAt, Notes), written exactly once when the grant
// is revoked. Records are never deleted; revoked grants stay for audit.
type PermissionGrant struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"permission_id"`
	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Company   *string    `gorm:"type:varchar(200)" json:"company"`
	Category  *string    `gorm:"type:varchar(100)" json:"category"`
	Level     string     `gorm:"type:varchar(16);not null" json:"permission_level"`
	GrantedBy string     `gorm:"not null" json:"granted_by"`
	GrantedAt time.Time  `gorm:"not null;index" json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	Active    bool       `gorm:"not null;index" json:"is_active"`
	RevokedBy *string    `json:"revoked_by"`
	RevokedAt *time.Time `json:"revoked_at"`
	Notes     *string    `gorm:"type:varchar(500)" json:"notes"`
}

// TableName overrides the default table name for GORM.
func (PermissionGrant) TableName() string {
	return "permission_grants"
}

// BeforeCreate assigns a UUID when the lifecycle manager did not set one.
func (g *PermissionGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// EffectiveAt reports whether the grant is currently usable: active and
// either without expiry or expiring strictly after the given instant.
func (g *PermissionGrant) EffectiveAt(now time.Time) bool {
	if !g.Active {
		return false
	}
	if g.ExpiresAt == nil {
		return true
	}
	return g.ExpiresAt.After(now)
}
