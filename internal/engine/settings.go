package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aethra/clientdesk/internal/database"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
)

// SettingsEngine manages per-agency settings
type SettingsEngine struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSettingsEngine creates a new settings engine
func NewSettingsEngine(db *gorm.DB, logger *zap.Logger) *SettingsEngine {
	return &SettingsEngine{db: db, logger: logger}
}

// GeneralSettingInput creates the agency's general setting
type GeneralSettingInput struct {
	AllowDuplicates bool `json:"allow_duplicates"`
}

// GeneralSettingUpdate patches a general setting
type GeneralSettingUpdate struct {
	AllowDuplicates Field[bool] `json:"allow_duplicates"`
}

// GeneralSettingRead is a general setting view
type GeneralSettingRead struct {
	ID              uuid.UUID `json:"id"`
	AgencyID        uuid.UUID `json:"agency_id"`
	AllowDuplicates bool      `json:"allow_duplicates"`
	CreatedBy       uuid.UUID `json:"created_by"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AgencySettingUpdate patches the customer id format
type AgencySettingUpdate struct {
	CustomerIDFormat Field[string] `json:"customer_id_format"`
}

// AgencySettingRead is the customer id configuration of an agency
type AgencySettingRead struct {
	AgencyID         uuid.UUID `json:"agency_id"`
	CustomerIDFormat string    `json:"customer_id_format"`
	CustomerSeqYear  int       `json:"customer_seq_year"`
	CustomerSeq      int       `json:"customer_seq"`
	NextCustomerID   string    `json:"next_customer_id"`
}

func newGeneralSettingRead(s *models.GeneralSetting) GeneralSettingRead {
	return GeneralSettingRead{
		ID:              s.ID,
		AgencyID:        s.AgencyID,
		AllowDuplicates: s.AllowDuplicates,
		CreatedBy:       s.CreatedBy,
		UpdatedAt:       s.UpdatedAt,
	}
}

// =============================================================================
// GENERAL SETTINGS
// =============================================================================

// CreateGeneral creates the single general setting of the caller's agency
func (e *SettingsEngine) CreateGeneral(ctx context.Context, actor Actor, in GeneralSettingInput) (*GeneralSettingRead, error) {
	setting := models.GeneralSetting{
		AgencyID:        actor.AgencyID,
		AllowDuplicates: in.AllowDuplicates,
		CreatedBy:       actor.UserID,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.GeneralSetting{}).Where("agency_id = ?", actor.AgencyID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperrors.NewDuplicateError("General setting", "General setting for this agency already exists.")
		}
		if err := tx.Create(&setting).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewDuplicateError("General setting", "General setting for this agency already exists.")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}
	e.logger.Info("general setting created",
		zap.String("agency_id", actor.AgencyID.String()),
		zap.Bool("allow_duplicates", setting.AllowDuplicates),
	)
	view := newGeneralSettingRead(&setting)
	return &view, nil
}

// ListGeneral returns the general settings of the agency (zero or one)
func (e *SettingsEngine) ListGeneral(ctx context.Context, agencyID uuid.UUID) ([]GeneralSettingRead, error) {
	var rows []models.GeneralSetting
	if err := e.db.WithContext(ctx).Where("agency_id = ?", agencyID).Find(&rows).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	out := make([]GeneralSettingRead, 0, len(rows))
	for i := range rows {
		out = append(out, newGeneralSettingRead(&rows[i]))
	}
	return out, nil
}

// UpdateGeneral patches a general setting of the agency
func (e *SettingsEngine) UpdateGeneral(ctx context.Context, agencyID, id uuid.UUID, in GeneralSettingUpdate) (*GeneralSettingRead, error) {
	db := e.db.WithContext(ctx)
	setting, err := loadGeneralSetting(db, agencyID, id)
	if err != nil {
		return nil, err
	}
	if in.AllowDuplicates.Set {
		if in.AllowDuplicates.Null {
			return nil, apperrors.NewValidationError("allow_duplicates", "allow_duplicates cannot be null")
		}
		setting.AllowDuplicates = in.AllowDuplicates.Value
	}
	if err := db.Save(setting).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	view := newGeneralSettingRead(setting)
	return &view, nil
}

// DeleteGeneral removes a general setting; the agency falls back to disallowing duplicates
func (e *SettingsEngine) DeleteGeneral(ctx context.Context, agencyID, id uuid.UUID) error {
	db := e.db.WithContext(ctx)
	if _, err := loadGeneralSetting(db, agencyID, id); err != nil {
		return err
	}
	if err := db.Where("id = ?", id).Delete(&models.GeneralSetting{}).Error; err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

func loadGeneralSetting(db *gorm.DB, agencyID, id uuid.UUID) (*models.GeneralSetting, error) {
	var setting models.GeneralSetting
	err := db.Where("id = ? AND agency_id = ?", id, agencyID).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Setting")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return &setting, nil
}

// =============================================================================
// AGENCY SETTINGS
// =============================================================================

// GetAgency returns the customer id configuration, defaults when never configured
func (e *SettingsEngine) GetAgency(ctx context.Context, agencyID uuid.UUID) (*AgencySettingRead, error) {
	setting := models.AgencySetting{AgencyID: agencyID, CustomerIDFormat: models.DefaultCustomerIDFormat}
	err := e.db.WithContext(ctx).Where("agency_id = ?", agencyID).First(&setting).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewInternalError(err)
	}
	return newAgencySettingRead(&setting, time.Now()), nil
}

// UpdateAgency changes the customer id format. The sequence is kept.
func (e *SettingsEngine) UpdateAgency(ctx context.Context, agencyID uuid.UUID, in AgencySettingUpdate) (*AgencySettingRead, error) {
	if !in.CustomerIDFormat.Set {
		return e.GetAgency(ctx, agencyID)
	}
	format := strings.TrimSpace(in.CustomerIDFormat.Value)
	if err := ValidateCustomerIDFormat(format); err != nil {
		return nil, err
	}

	var setting models.AgencySetting
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.AgencySetting{AgencyID: agencyID, CustomerIDFormat: format}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agency_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"customer_id_format", "updated_at"}),
		}).Create(&seed).Error; err != nil {
			return err
		}
		return tx.Where("agency_id = ?", agencyID).First(&setting).Error
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	e.logger.Info("customer id format updated",
		zap.String("agency_id", agencyID.String()),
		zap.String("format", format),
	)
	return newAgencySettingRead(&setting, time.Now()), nil
}

func newAgencySettingRead(s *models.AgencySetting, now time.Time) *AgencySettingRead {
	seq := s.CustomerSeq + 1
	if sequenceRestarts(s, now.Year()) {
		seq = 1
	}
	return &AgencySettingRead{
		AgencyID:         s.AgencyID,
		CustomerIDFormat: s.CustomerIDFormat,
		CustomerSeqYear:  s.CustomerSeqYear,
		CustomerSeq:      s.CustomerSeq,
		NextCustomerID:   FormatCustomerID(s.CustomerIDFormat, now.Year(), seq),
	}
}
