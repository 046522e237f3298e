package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aethra/clientdesk/internal/models"
)

const emptyValue = "(empty)"

// FieldChange is one human-readable before/after pair
type FieldChange struct {
	Label string
	Old   string
	New   string
}

func (c FieldChange) String() string {
	return fmt.Sprintf("%s: '%s' → '%s'", c.Label, c.Old, c.New)
}

// labelledValue is one rendered field of a client snapshot
type labelledValue struct {
	label string
	value string
}

// clientSnapshot renders every tracked client field in display order
func clientSnapshot(c *models.Client) []labelledValue {
	balanceType := ""
	if c.OpeningBalanceType != nil {
		balanceType = string(*c.OpeningBalanceType)
	}

	userNames := make([]string, 0, len(c.Users))
	for _, u := range c.Users {
		userNames = append(userNames, u.Name)
	}
	tagNames := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		tagNames = append(tagNames, t.Name)
	}

	return []labelledValue{
		{"Name", renderString(&c.Name)},
		{"Client Type", renderString((*string)(&c.ClientType))},
		{"Organization", renderUUID(c.OrganizationID)},
		{"PAN", renderString(c.PAN)},
		{"GSTIN", renderString(c.GSTIN)},
		{"DOB", renderDate(c.DOB)},
		{"Assigned CA", renderUUID(c.AssignedCAUserID)},
		{"Mobile", renderString(c.Mobile)},
		{"Secondary Phone", renderString(c.SecondaryPhone)},
		{"Email", renderString(c.Email)},
		{"Address Line 1", renderString(c.AddressLine1)},
		{"Address Line 2", renderString(c.AddressLine2)},
		{"City", renderString(c.City)},
		{"State", renderString(c.State)},
		{"Postal Code", renderString(c.PostalCode)},
		{"Opening Balance", c.OpeningBalanceAmount.StringFixed(2)},
		{"Opening Balance Type", renderString(&balanceType)},
		{"Opening Balance Date", renderDate(c.OpeningBalanceDate)},
		{"GST Autofill", renderBool(c.GSTAutofillEnabled)},
		{"Active", renderBool(c.IsActive)},
		{"Can Login", renderBool(c.CanLogin)},
		{"Notify Client", renderBool(c.NotifyClient)},
		{"Contact Person", renderString(c.ContactPersonName)},
		{"Contact Person Phone", renderString(c.ContactPersonPhone)},
		{"Date of Birth", renderDate(c.DateOfBirth)},
		{"Users", renderList(userNames)},
		{"Tags", renderList(tagNames)},
	}
}

// diffSnapshots lists the fields whose rendering differs
func diffSnapshots(before, after []labelledValue) []FieldChange {
	var changes []FieldChange
	for i := range before {
		if before[i].value != after[i].value {
			changes = append(changes, FieldChange{
				Label: before[i].label,
				Old:   before[i].value,
				New:   after[i].value,
			})
		}
	}
	return changes
}

// describeChanges joins changes into one activity detail line
func describeChanges(changes []FieldChange) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}

func renderString(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return emptyValue
	}
	return *s
}

func renderBool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func renderDate(d *datatypes.Date) string {
	if d == nil {
		return emptyValue
	}
	return time.Time(*d).Format(DateLayout)
}

func renderUUID(id *uuid.UUID) string {
	if id == nil {
		return emptyValue
	}
	return id.String()
}

func renderList(items []string) string {
	if len(items) == 0 {
		return emptyValue
	}
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
