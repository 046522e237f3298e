package engine

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
)

// buildClient validates create input and maps it onto a new model with defaults applied
func buildClient(in ClientInput) (*models.Client, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	clientType, err := parseClientType(in.ClientType)
	if err != nil {
		return nil, err
	}
	if err := checkOrganization(clientType, in.OrganizationID); err != nil {
		return nil, err
	}
	if in.OpeningBalanceAmount.IsNegative() {
		return nil, apperrors.NewValidationError("opening_balance_amount", "opening_balance_amount cannot be negative")
	}

	client := &models.Client{
		Name:                 in.Name,
		ClientType:           clientType,
		OrganizationID:       in.OrganizationID,
		PAN:                  normalizeUpper(in.PAN),
		GSTIN:                normalizeUpper(in.GSTIN),
		DOB:                  in.DOB.model(),
		AssignedCAUserID:     in.AssignedCAUserID,
		Mobile:               in.Mobile,
		SecondaryPhone:       in.SecondaryPhone,
		Email:                in.Email,
		AddressLine1:         in.AddressLine1,
		AddressLine2:         in.AddressLine2,
		City:                 in.City,
		State:                in.State,
		PostalCode:           in.PostalCode,
		OpeningBalanceAmount: in.OpeningBalanceAmount.Round(2),
		OpeningBalanceDate:   in.OpeningBalanceDate.model(),
		GSTAutofillEnabled:   boolOr(in.GSTAutofillEnabled, true),
		IsActive:             boolOr(in.IsActive, true),
		CanLogin:             boolOr(in.CanLogin, false),
		NotifyClient:         boolOr(in.NotifyClient, true),
		ContactPersonName:    in.ContactPersonName,
		ContactPersonPhone:   in.ContactPersonPhone,
		DateOfBirth:          in.DateOfBirth.model(),
	}

	if in.OpeningBalanceType != nil {
		bt, err := parseBalanceType(*in.OpeningBalanceType)
		if err != nil {
			return nil, err
		}
		client.OpeningBalanceType = &bt
	}
	return client, nil
}

// applyUpdate copies every present field of in onto c.
// Relations are handled by the caller.
func applyUpdate(c *models.Client, in *ClientUpdate) error {
	if in.Name.Set {
		name := strings.TrimSpace(in.Name.Value)
		if in.Name.Null || name == "" {
			return apperrors.NewValidationError("name", "name cannot be empty")
		}
		if err := validateVar("name", name, "max=255"); err != nil {
			return err
		}
		c.Name = name
	}
	if in.ClientType.Set {
		if in.ClientType.Null {
			return apperrors.NewValidationError("client_type", "client_type cannot be null")
		}
		ct, err := parseClientType(in.ClientType.Value)
		if err != nil {
			return err
		}
		c.ClientType = ct
	}
	if in.OrganizationID.Set {
		c.OrganizationID = in.OrganizationID.Ptr()
	}
	if in.ClientType.Set || in.OrganizationID.Set {
		if err := checkOrganization(c.ClientType, c.OrganizationID); err != nil {
			return err
		}
	}

	if in.PAN.Set {
		c.PAN = normalizeUpper(in.PAN.Ptr())
	}
	if in.GSTIN.Set {
		c.GSTIN = normalizeUpper(in.GSTIN.Ptr())
	}
	if in.DOB.Set {
		c.DOB = in.DOB.Ptr().model()
	}
	if in.AssignedCAUserID.Set {
		c.AssignedCAUserID = in.AssignedCAUserID.Ptr()
	}

	strs := []struct {
		field  string
		value  *Field[string]
		target **string
		rule   string
	}{
		{"mobile", &in.Mobile, &c.Mobile, "max=32"},
		{"secondary_phone", &in.SecondaryPhone, &c.SecondaryPhone, "max=32"},
		{"email", &in.Email, &c.Email, "email"},
		{"address_line1", &in.AddressLine1, &c.AddressLine1, "max=255"},
		{"address_line2", &in.AddressLine2, &c.AddressLine2, "max=255"},
		{"city", &in.City, &c.City, "max=100"},
		{"state", &in.State, &c.State, "max=100"},
		{"postal_code", &in.PostalCode, &c.PostalCode, "max=20"},
		{"contact_person_name", &in.ContactPersonName, &c.ContactPersonName, "max=255"},
		{"contact_person_phone", &in.ContactPersonPhone, &c.ContactPersonPhone, "max=32"},
	}
	for _, s := range strs {
		if !s.value.Set {
			continue
		}
		if s.value.Present() && s.value.Value != "" {
			if err := validateVar(s.field, s.value.Value, s.rule); err != nil {
				return err
			}
		}
		*s.target = s.value.Ptr()
	}

	if in.OpeningBalanceAmount.Set {
		amount := decimal.Zero
		if in.OpeningBalanceAmount.Present() {
			amount = in.OpeningBalanceAmount.Value
		}
		if amount.IsNegative() {
			return apperrors.NewValidationError("opening_balance_amount", "opening_balance_amount cannot be negative")
		}
		c.OpeningBalanceAmount = amount.Round(2)
	}
	if in.OpeningBalanceType.Set {
		if in.OpeningBalanceType.Null {
			c.OpeningBalanceType = nil
		} else {
			bt, err := parseBalanceType(in.OpeningBalanceType.Value)
			if err != nil {
				return err
			}
			c.OpeningBalanceType = &bt
		}
	}
	if in.OpeningBalanceDate.Set {
		c.OpeningBalanceDate = in.OpeningBalanceDate.Ptr().model()
	}
	if in.DateOfBirth.Set {
		c.DateOfBirth = in.DateOfBirth.Ptr().model()
	}

	flags := []struct {
		field  string
		value  *Field[bool]
		target *bool
	}{
		{"gst_autofill_enabled", &in.GSTAutofillEnabled, &c.GSTAutofillEnabled},
		{"is_active", &in.IsActive, &c.IsActive},
		{"can_login", &in.CanLogin, &c.CanLogin},
		{"notify_client", &in.NotifyClient, &c.NotifyClient},
	}
	for _, f := range flags {
		if !f.value.Set {
			continue
		}
		if f.value.Null {
			return apperrors.NewValidationError(f.field, f.field+" cannot be null")
		}
		*f.target = f.value.Value
	}
	return nil
}

func parseClientType(raw string) (models.ClientType, error) {
	ct, ok := models.ParseClientType(raw)
	if !ok {
		return "", apperrors.NewValidationError("client_type", fmt.Sprintf("invalid client_type %q", raw))
	}
	return ct, nil
}

func parseBalanceType(raw string) (models.BalanceType, error) {
	bt, ok := models.ParseBalanceType(raw)
	if !ok {
		return "", apperrors.NewValidationError("opening_balance_type", "opening_balance_type must be debit or credit")
	}
	return bt, nil
}

func checkOrganization(ct models.ClientType, orgID *uuid.UUID) error {
	if ct.RequiresOrganization() && (orgID == nil || *orgID == uuid.Nil) {
		return apperrors.NewValidationError("organization_id", "organization_id is required for non-individual clients")
	}
	return nil
}

func normalizeUpper(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

// =============================================================================
// LIST CURSOR
// =============================================================================

// listCursor is the position after the last row of a page
type listCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func encodeCursor(c listCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (listCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return listCursor{}, err
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return listCursor{}, fmt.Errorf("malformed cursor")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return listCursor{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return listCursor{}, err
	}
	return listCursor{CreatedAt: time.Unix(0, nanos), ID: parsed}, nil
}
