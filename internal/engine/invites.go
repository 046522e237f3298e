package engine

import (
	"strings"

	"github.com/google/uuid"
)

// InviteInput asks the login service to add a user to an organization
type InviteInput struct {
	OrgID uuid.UUID `json:"org_id" validate:"required"`
	Email string    `json:"email" validate:"required,email,max=254"`
}

// Normalize trims the address and checks the invite
func (in *InviteInput) Normalize() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return validateStruct(in)
}
