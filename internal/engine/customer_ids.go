package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aethra/clientdesk/internal/database"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
)

var customerIDToken = regexp.MustCompile(`\{(YYYY|YY|SEQ(\d*))\}`)

// maxCustomerIDAttempts bounds the skip-ahead over ids already taken
const maxCustomerIDAttempts = 1000

// ValidateCustomerIDFormat checks that a format yields distinct ids
func ValidateCustomerIDFormat(format string) error {
	if format == "" {
		return apperrors.NewValidationError("customer_id_format", "customer_id_format cannot be empty")
	}
	if len(format) > 40 {
		return apperrors.NewValidationError("customer_id_format", "customer_id_format is too long (max 40 characters)")
	}
	hasSeq := false
	for _, m := range customerIDToken.FindAllStringSubmatch(format, -1) {
		if m[1] == "YYYY" || m[1] == "YY" {
			continue
		}
		hasSeq = true
		if m[2] != "" {
			if n, _ := strconv.Atoi(m[2]); n < 1 || n > 12 {
				return apperrors.NewValidationError("customer_id_format", "sequence width must be between 1 and 12")
			}
		}
	}
	if !hasSeq {
		return apperrors.NewValidationError("customer_id_format", "customer_id_format must contain a {SEQ} token")
	}
	return nil
}

// FormatCustomerID expands {YYYY}, {YY}, {SEQ} and {SEQn} in format
func FormatCustomerID(format string, year, seq int) string {
	return customerIDToken.ReplaceAllStringFunc(format, func(tok string) string {
		m := customerIDToken.FindStringSubmatch(tok)
		switch m[1] {
		case "YYYY":
			return fmt.Sprintf("%04d", year)
		case "YY":
			return fmt.Sprintf("%02d", year%100)
		}
		if m[2] == "" {
			return strconv.Itoa(seq)
		}
		width, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%0*d", width, seq)
	})
}

// formatHasYear reports whether format embeds the year
func formatHasYear(format string) bool {
	for _, m := range customerIDToken.FindAllStringSubmatch(format, -1) {
		if m[1] == "YYYY" || m[1] == "YY" {
			return true
		}
	}
	return false
}

// sequenceRestarts reports whether the sequence starts over at year.
// Only formats carrying a year token restart; others keep counting.
func sequenceRestarts(s *models.AgencySetting, year int) bool {
	return s.CustomerSeqYear != year && formatHasYear(s.CustomerIDFormat)
}

// nextCustomerID advances the agency sequence inside tx and returns a free id.
// The sequence restarts at 1 when the calendar year changes and the format has a year token.
func nextCustomerID(tx *gorm.DB, agencyID uuid.UUID, now time.Time) (string, error) {
	setting, err := lockAgencySetting(tx, agencyID)
	if err != nil {
		return "", err
	}

	year := now.Year()
	if sequenceRestarts(setting, year) {
		setting.CustomerSeq = 0
	}
	setting.CustomerSeqYear = year

	for i := 0; i < maxCustomerIDAttempts; i++ {
		setting.CustomerSeq++
		candidate := FormatCustomerID(setting.CustomerIDFormat, year, setting.CustomerSeq)

		var taken int64
		if err := tx.Model(&models.Client{}).
			Where("agency_id = ? AND customer_id = ?", agencyID, candidate).
			Count(&taken).Error; err != nil {
			return "", err
		}
		if taken > 0 {
			continue
		}

		if err := tx.Model(&models.AgencySetting{}).
			Where("agency_id = ?", agencyID).
			Updates(map[string]interface{}{
				"customer_seq_year": setting.CustomerSeqYear,
				"customer_seq":      setting.CustomerSeq,
				"updated_at":        now,
			}).Error; err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free customer id after %d attempts", maxCustomerIDAttempts)
}

// lockAgencySetting loads the agency row FOR UPDATE, creating it on first use
func lockAgencySetting(tx *gorm.DB, agencyID uuid.UUID) (*models.AgencySetting, error) {
	locked := func() *gorm.DB {
		if database.SupportsRowLocks(tx) {
			return tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		return tx
	}

	var setting models.AgencySetting
	err := locked().Where("agency_id = ?", agencyID).First(&setting).Error
	if err == nil {
		return &setting, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seed := models.AgencySetting{
		AgencyID:         agencyID,
		CustomerIDFormat: models.DefaultCustomerIDFormat,
	}
	// A concurrent request may have created the row since the read above
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	if err := locked().Where("agency_id = ?", agencyID).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}
