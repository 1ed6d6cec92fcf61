package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is an admin dashboard role
type Role string

const (
	RoleSuperAdmin    Role = "SuperAdmin"
	RoleManager       Role = "Manager"
	RoleCook          Role = "Cook"
	RoleDeliveryMan   Role = "DeliveryMan"
	RoleTicketScanner Role = "TicketScanner"
)

// Valid reports whether r is a known admin role
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleManager, RoleCook, RoleDeliveryMan, RoleTicketScanner:
		return true
	}
	return false
}

// Admin represents a staff account. Delivery agents are admins with RoleDeliveryMan.
type Admin struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Auth0ID   string    `gorm:"uniqueIndex;not null" json:"auth0_id"` // token subject
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Role      Role      `gorm:"not null;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Admin model
func (Admin) TableName() string {
	return "admins"
}

// BeforeCreate assigns a UUID when none was provided
func (a *Admin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
