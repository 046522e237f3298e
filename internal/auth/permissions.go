package auth

import (
	"github.com/google/uuid"
)

// Role is a caller role as reported by the login service
type Role string

const (
	RoleSuperAdmin   Role = "SUPER_ADMIN"
	RoleAgencyAdmin  Role = "AGENCY_ADMIN"
	RoleCAAccountant Role = "CA_ACCOUNTANT"
	RoleCATeam       Role = "CA_TEAM"
	RoleClientAdmin  Role = "CLIENT_ADMIN"
	RoleClientUser   Role = "CLIENT_USER"
)

// Action represents a permission action
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionReveal Action = "reveal"
)

// Writers may mutate catalogs, settings and service links
var Writers = []Role{RoleSuperAdmin, RoleAgencyAdmin, RoleCAAccountant}

// Readers may list catalogs and settings
var Readers = []Role{RoleSuperAdmin, RoleAgencyAdmin, RoleCAAccountant, RoleCATeam}

// Identity is the authenticated caller
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Role  Role      `json:"role"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
}

// HasRole reports whether the identity holds any of the given roles
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// RolesFor returns the roles permitted to perform an action on role-gated resources
func RolesFor(action Action) []Role {
	switch action {
	case ActionView:
		return Readers
	case ActionCreate, ActionEdit, ActionDelete, ActionReveal:
		return Writers
	default:
		return nil
	}
}

// CheckPermission reports whether the identity may perform the action
func CheckPermission(id *Identity, action Action) bool {
	return id.HasRole(RolesFor(action)...)
}
