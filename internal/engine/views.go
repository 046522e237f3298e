package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/aethra/clientdesk/internal/models"
	"github.com/aethra/clientdesk/internal/security"
)

// =============================================================================
// CLIENT VIEWS
// =============================================================================

// UserRead is a user attached to a client
type UserRead struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// TagRead is a tag attached to a client or listed from the catalog
type TagRead struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// ClientRead is the full client view
type ClientRead struct {
	ID                   uuid.UUID  `json:"id"`
	AgencyID             uuid.UUID  `json:"agency_id"`
	OrganizationID       *uuid.UUID `json:"organization_id"`
	CustomerID           string     `json:"customer_id"`
	Name                 string     `json:"name"`
	ClientType           string     `json:"client_type"`
	PAN                  *string    `json:"pan"`
	GSTIN                *string    `json:"gstin"`
	DOB                  *string    `json:"dob"`
	AssignedCAUserID     *uuid.UUID `json:"assigned_ca_user_id"`
	Mobile               *string    `json:"mobile"`
	SecondaryPhone       *string    `json:"secondary_phone"`
	Email                *string    `json:"email"`
	AddressLine1         *string    `json:"address_line1"`
	AddressLine2         *string    `json:"address_line2"`
	City                 *string    `json:"city"`
	State                *string    `json:"state"`
	PostalCode           *string    `json:"postal_code"`
	OpeningBalanceAmount float64    `json:"opening_balance_amount"`
	OpeningBalanceType   *string    `json:"opening_balance_type"`
	OpeningBalanceDate   *string    `json:"opening_balance_date"`
	GSTAutofillEnabled   bool       `json:"gst_autofill_enabled"`
	IsActive             bool       `json:"is_active"`
	CanLogin             bool       `json:"can_login"`
	NotifyClient         bool       `json:"notify_client"`
	ContactPersonName    *string    `json:"contact_person_name"`
	ContactPersonPhone   *string    `json:"contact_person_phone"`
	DateOfBirth          *string    `json:"date_of_birth"`
	PhotoURL             *string    `json:"photo_url"`
	CreatedBy            uuid.UUID  `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	Users                []UserRead `json:"users"`
	Tags                 []TagRead  `json:"tags"`
}

// ClientDashboard is the summary card of a client
type ClientDashboard struct {
	IsActive          bool    `json:"is_active"`
	ClientType        string  `json:"client_type"`
	ContactPersonName *string `json:"contact_person_name"`
	DateOfBirth       *string `json:"date_of_birth"`
	PAN               *string `json:"pan"`
	Mobile            *string `json:"mobile"`
	Email             *string `json:"email"`
	City              *string `json:"city"`
	PostalCode        *string `json:"postal_code"`
	State             *string `json:"state"`
}

// LedgerBalance is the opening balance of a client
type LedgerBalance struct {
	OpeningBalanceAmount float64 `json:"opening_balance_amount"`
	OpeningBalanceType   *string `json:"opening_balance_type"`
	OpeningBalanceDate   *string `json:"opening_balance_date"`
}

func newClientRead(c *models.Client) ClientRead {
	r := ClientRead{
		ID:                   c.ID,
		AgencyID:             c.AgencyID,
		OrganizationID:       c.OrganizationID,
		CustomerID:           c.CustomerID,
		Name:                 c.Name,
		ClientType:           string(c.ClientType),
		PAN:                  c.PAN,
		GSTIN:                c.GSTIN,
		DOB:                  formatDate(c.DOB),
		AssignedCAUserID:     c.AssignedCAUserID,
		Mobile:               c.Mobile,
		SecondaryPhone:       c.SecondaryPhone,
		Email:                c.Email,
		AddressLine1:         c.AddressLine1,
		AddressLine2:         c.AddressLine2,
		City:                 c.City,
		State:                c.State,
		PostalCode:           c.PostalCode,
		OpeningBalanceAmount: c.OpeningBalanceAmount.InexactFloat64(),
		OpeningBalanceType:   balanceTypeString(c.OpeningBalanceType),
		OpeningBalanceDate:   formatDate(c.OpeningBalanceDate),
		GSTAutofillEnabled:   c.GSTAutofillEnabled,
		IsActive:             c.IsActive,
		CanLogin:             c.CanLogin,
		NotifyClient:         c.NotifyClient,
		ContactPersonName:    c.ContactPersonName,
		ContactPersonPhone:   c.ContactPersonPhone,
		DateOfBirth:          formatDate(c.DateOfBirth),
		PhotoURL:             c.PhotoURL,
		CreatedBy:            c.CreatedBy,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
		Users:                make([]UserRead, 0, len(c.Users)),
		Tags:                 make([]TagRead, 0, len(c.Tags)),
	}
	for _, u := range c.Users {
		r.Users = append(r.Users, UserRead{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	}
	for _, t := range c.Tags {
		r.Tags = append(r.Tags, newTagRead(&t))
	}
	return r
}

func newClientDashboard(c *models.Client) ClientDashboard {
	return ClientDashboard{
		IsActive:          c.IsActive,
		ClientType:        string(c.ClientType),
		ContactPersonName: c.ContactPersonName,
		DateOfBirth:       formatDate(c.DateOfBirth),
		PAN:               c.PAN,
		Mobile:            c.Mobile,
		Email:             c.Email,
		City:              c.City,
		PostalCode:        c.PostalCode,
		State:             c.State,
	}
}

func newLedgerBalance(c *models.Client) LedgerBalance {
	return LedgerBalance{
		OpeningBalanceAmount: c.OpeningBalanceAmount.InexactFloat64(),
		OpeningBalanceType:   balanceTypeString(c.OpeningBalanceType),
		OpeningBalanceDate:   formatDate(c.OpeningBalanceDate),
	}
}

func newTagRead(t *models.Tag) TagRead {
	return TagRead{ID: t.ID, Name: t.Name, Color: t.Color}
}

func balanceTypeString(bt *models.BalanceType) *string {
	if bt == nil {
		return nil
	}
	s := string(*bt)
	return &s
}

// =============================================================================
// PORTAL VIEWS
// =============================================================================

// PortalRead is a portal catalog entry
type PortalRead struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	LoginURL string    `json:"login_url"`
}

// ClientPortalRead is the general credential view; only a masked username is exposed
type ClientPortalRead struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	Portal         PortalRead `json:"portal"`
	UsernameMasked string     `json:"username_masked"`
	LastRotatedAt  *time.Time `json:"last_rotated_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ClientPortalWithSecrets is the privileged credential view
type ClientPortalWithSecrets struct {
	ClientPortalRead
	Username *string `json:"username"`
	Password *string `json:"password"`
	Notes    *string `json:"notes"`
}

func newPortalRead(p *models.Portal) PortalRead {
	if p == nil {
		return PortalRead{}
	}
	return PortalRead{ID: p.ID, Name: p.Name, LoginURL: p.LoginURL}
}

func newClientPortalRead(cp *models.ClientPortal, username *string) ClientPortalRead {
	masked := security.MaskUsername("")
	if username != nil {
		masked = security.MaskUsername(*username)
	}
	return ClientPortalRead{
		ID:             cp.ID,
		ClientID:       cp.ClientID,
		Portal:         newPortalRead(cp.Portal),
		UsernameMasked: masked,
		LastRotatedAt:  cp.LastRotatedAt,
		CreatedAt:      cp.CreatedAt,
		UpdatedAt:      cp.UpdatedAt,
	}
}
