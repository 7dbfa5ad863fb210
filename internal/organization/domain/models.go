// Package domain contains persistence models for the org service.
package domain

import "time"

// Organization is a tenant and the plan it is subscribed to.
type Organization struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	PlanName  string    `gorm:"column:plan_name;type:varchar(128);not null" json:"plan_name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationMember resolves a user ID to a display name within an org.
type OrganizationMember struct {
	OrgID       string    `gorm:"primaryKey;type:varchar(64)" json:"org_id"`
	UserID      string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	DisplayName string    `gorm:"type:text;not null" json:"display_name"`
	Role        string    `gorm:"type:varchar(32);not null" json:"role"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }
