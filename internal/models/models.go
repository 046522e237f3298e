// Package models contains the persistent client-service data structures
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Keys are stored as char(36) so the same schema runs on postgres, mysql and sqlite.

// =============================================================================
// REFERENCED IDENTITY RECORDS
// =============================================================================

// CAAccount is a chartered-accountant account owned by the login service
type CAAccount struct {
	ID uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
}

// TableName returns the table name for CAAccount
func (CAAccount) TableName() string { return "ca_accounts" }

// User is a staff user owned by the login service
type User struct {
	ID    uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name  string    `json:"name" gorm:"not null;size:255"`
	Email string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role  string    `json:"role" gorm:"not null;size:50"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// =============================================================================
// CLIENTS
// =============================================================================

// Client is a customer record owned by an agency
type Client struct {
	ID                   uuid.UUID       `gorm:"type:char(36);primaryKey"`
	AgencyID             uuid.UUID       `gorm:"type:char(36);not null;index;uniqueIndex:uq_agency_id_customer_id,priority:1"`
	OrganizationID       *uuid.UUID      `gorm:"type:char(36)"`
	CustomerID           string          `gorm:"not null;size:64;uniqueIndex:uq_agency_id_customer_id,priority:2"`
	Name                 string          `gorm:"not null;size:255;index"`
	ClientType           ClientType      `gorm:"not null;size:40"`
	PAN                  *string         `gorm:"size:20"`
	GSTIN                *string         `gorm:"size:20"`
	DOB                  *datatypes.Date
	AssignedCAUserID     *uuid.UUID `gorm:"type:char(36)"`
	Mobile               *string    `gorm:"size:32"`
	SecondaryPhone       *string    `gorm:"size:32"`
	Email                *string    `gorm:"size:255"`
	AddressLine1         *string    `gorm:"size:255"`
	AddressLine2         *string    `gorm:"size:255"`
	City                 *string    `gorm:"size:100"`
	State                *string    `gorm:"size:100"`
	PostalCode           *string    `gorm:"size:20"`
	OpeningBalanceAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	OpeningBalanceType   *BalanceType    `gorm:"size:10"`
	OpeningBalanceDate   *datatypes.Date
	GSTAutofillEnabled   bool `gorm:"not null"`
	GSTLastSyncAt        *time.Time
	IsActive             bool    `gorm:"not null"`
	CanLogin             bool    `gorm:"not null"`
	NotifyClient         bool    `gorm:"not null"`
	ContactPersonName    *string `gorm:"size:255"`
	ContactPersonPhone   *string `gorm:"size:32"`
	DateOfBirth          *datatypes.Date
	PhotoURL             *string   `gorm:"size:1024"`
	CreatedBy            uuid.UUID `gorm:"type:char(36);not null"`
	CreatedAt            time.Time `gorm:"index"`
	UpdatedAt            time.Time

	// Relations
	AssignedCA *CAAccount      `gorm:"foreignKey:AssignedCAUserID"`
	Services   []ClientService `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE"`
	Portals    []ClientPortal  `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE"`
	Users      []User          `gorm:"many2many:client_user_association;constraint:OnDelete:CASCADE"`
	Tags       []Tag           `gorm:"many2many:client_tag_association;constraint:OnDelete:CASCADE"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ClientService links a client to a service defined by the services API
type ClientService struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	ClientID  uuid.UUID `json:"client_id" gorm:"type:char(36);not null;uniqueIndex:uq_client_id_service_id,priority:1"`
	ServiceID uuid.UUID `json:"service_id" gorm:"type:char(36);not null;uniqueIndex:uq_client_id_service_id,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *ClientService) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// =============================================================================
// PORTALS
// =============================================================================

// Portal is a catalog entry for an external login destination
type Portal struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null;size:255"`
	LoginURL  string    `json:"login_url" gorm:"not null;size:1024"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Portal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ClientPortal holds one client's credentials for a portal.
// The *Cipher columns hold AES-GCM ciphertext, never plaintext.
type ClientPortal struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey"`
	ClientID       uuid.UUID `gorm:"type:char(36);not null;index"`
	PortalID       uuid.UUID `gorm:"type:char(36);not null;index"`
	UsernameCipher *string   `gorm:"type:text"`
	PasswordCipher *string   `gorm:"type:text"`
	NotesCipher    *string   `gorm:"type:text"`
	LastRotatedAt  *time.Time
	CreatedBy      uuid.UUID `gorm:"type:char(36);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Portal *Portal `gorm:"foreignKey:PortalID"`
}

func (p *ClientPortal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// =============================================================================
// TAXONOMIES & SETTINGS
// =============================================================================

// Tag is an agency-wide label attachable to clients
type Tag struct {
	ID    uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name  string    `json:"name" gorm:"uniqueIndex;not null;size:100"`
	Color string    `json:"color" gorm:"not null;size:20"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// BusinessType is a catalog entry describing a client's line of business
type BusinessType struct {
	ID   uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name string    `json:"name" gorm:"uniqueIndex;not null;size:100"`
}

func (b *BusinessType) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// GeneralSetting holds per-agency policy flags. One row per agency.
type GeneralSetting struct {
	ID              uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	AgencyID        uuid.UUID `json:"agency_id" gorm:"type:char(36);uniqueIndex;not null"`
	AllowDuplicates bool      `json:"allow_duplicates" gorm:"not null"`
	CreatedBy       uuid.UUID `json:"created_by" gorm:"type:char(36);not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (g *GeneralSetting) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// DefaultCustomerIDFormat is used for agencies that never configured one
const DefaultCustomerIDFormat = "CLI-{YYYY}-{SEQ4}"

// AgencySetting carries the customer-id sequence of an agency
type AgencySetting struct {
	AgencyID         uuid.UUID `json:"agency_id" gorm:"type:char(36);primaryKey"`
	CustomerIDFormat string    `json:"customer_id_format" gorm:"not null;size:64"`
	CustomerSeqYear  int       `json:"customer_seq_year" gorm:"not null"`
	CustomerSeq      int       `json:"customer_seq" gorm:"not null"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// All returns every model in migration order
func All() []interface{} {
	return []interface{}{
		&CAAccount{},
		&User{},
		&Tag{},
		&BusinessType{},
		&Portal{},
		&Client{},
		&ClientService{},
		&ClientPortal{},
		&GeneralSetting{},
		&AgencySetting{},
	}
}
