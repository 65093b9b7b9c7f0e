package domain

import "time"

// UserType is the account kind stored on every user.
type UserType string

const (
	UserTypeBrand      UserType = "brand"
	UserTypeCreator    UserType = "creator"
	UserTypeAgent      UserType = "agent"
	UserTypeAdmin      UserType = "admin"
	UserTypeSuperAdmin UserType = "super_admin"
	UserTypeSystem     UserType = "system"
)

// Valid reports whether t is a known user type.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeBrand, UserTypeCreator, UserTypeAgent, UserTypeAdmin, UserTypeSuperAdmin, UserTypeSystem:
		return true
	}
	return false
}

// IsAgent reports whether the user takes part in ticket assignment.
func (t UserType) IsAgent() bool {
	return t == UserTypeAgent || t == UserTypeAdmin
}

// Role maps the account kind onto the closed sender role set.
func (t UserType) Role() (Role, bool) {
	switch t {
	case UserTypeBrand:
		return RoleBrand, true
	case UserTypeCreator:
		return RoleCreator, true
	case UserTypeAgent, UserTypeAdmin:
		return RoleAgent, true
	case UserTypeSuperAdmin:
		return RoleSuperAdmin, true
	case UserTypeSystem:
		return RoleSystem, true
	}
	return "", false
}

// AccountStatus represents lifecycle states for an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusSuspended AccountStatus = "suspended"
)

// User is any marketplace identity: brand, creator, agent or operator.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	UserType      UserType
	Status        AccountStatus
	EmailVerified bool
	Presence      Presence
	CreatedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AgentStats aggregates the agent directory.
type AgentStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Suspended int `json:"suspended"`
	Pending   int `json:"pending"`
}
