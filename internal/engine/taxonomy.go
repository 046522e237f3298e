package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/clientdesk/internal/database"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
)

// TaxonomyEngine manages tags and business types
type TaxonomyEngine struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTaxonomyEngine creates a new taxonomy engine
func NewTaxonomyEngine(db *gorm.DB, logger *zap.Logger) *TaxonomyEngine {
	return &TaxonomyEngine{db: db, logger: logger}
}

// TagInput creates a tag
type TagInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"required,max=20"`
}

// TagUpdate patches a tag
type TagUpdate struct {
	Name  Field[string] `json:"name"`
	Color Field[string] `json:"color"`
}

// BusinessTypeInput creates or renames a business type
type BusinessTypeInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

// BusinessTypeUpdate patches a business type
type BusinessTypeUpdate struct {
	Name Field[string] `json:"name"`
}

// BusinessTypeRead is a business type view
type BusinessTypeRead struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// =============================================================================
// TAGS
// =============================================================================

// ListTags returns all tags ordered by name
func (e *TaxonomyEngine) ListTags(ctx context.Context) ([]TagRead, error) {
	var tags []models.Tag
	if err := e.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	out := make([]TagRead, 0, len(tags))
	for i := range tags {
		out = append(out, newTagRead(&tags[i]))
	}
	return out, nil
}

// CreateTag adds a tag; names are unique
func (e *TaxonomyEngine) CreateTag(ctx context.Context, in TagInput) (*TagRead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	tag := models.Tag{Name: in.Name, Color: in.Color}
	if err := e.db.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, uniqueOrInternal(err, "Tag")
	}
	view := newTagRead(&tag)
	return &view, nil
}

// UpdateTag patches a tag
func (e *TaxonomyEngine) UpdateTag(ctx context.Context, id uuid.UUID, in TagUpdate) (*TagRead, error) {
	db := e.db.WithContext(ctx)
	var tag models.Tag
	if err := findByID(db, &tag, id, "Tag"); err != nil {
		return nil, err
	}
	if in.Name.Set {
		name, err := requiredText("name", in.Name, "max=100")
		if err != nil {
			return nil, err
		}
		tag.Name = name
	}
	if in.Color.Set {
		color, err := requiredText("color", in.Color, "max=20")
		if err != nil {
			return nil, err
		}
		tag.Color = color
	}
	if err := db.Save(&tag).Error; err != nil {
		return nil, uniqueOrInternal(err, "Tag")
	}
	view := newTagRead(&tag)
	return &view, nil
}

// DeleteTag removes a tag and detaches it from every client
func (e *TaxonomyEngine) DeleteTag(ctx context.Context, id uuid.UUID) error {
	return asAppError(e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag models.Tag
		if err := findByID(tx, &tag, id, "Tag"); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM "+clientTagTable+" WHERE tag_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Tag{}).Error
	}))
}

// =============================================================================
// BUSINESS TYPES
// =============================================================================

// ListBusinessTypes returns all business types ordered by name
func (e *TaxonomyEngine) ListBusinessTypes(ctx context.Context) ([]BusinessTypeRead, error) {
	var rows []models.BusinessType
	if err := e.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	out := make([]BusinessTypeRead, 0, len(rows))
	for _, r := range rows {
		out = append(out, BusinessTypeRead{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// CreateBusinessType adds a business type; names are unique
func (e *TaxonomyEngine) CreateBusinessType(ctx context.Context, in BusinessTypeInput) (*BusinessTypeRead, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	bt := models.BusinessType{Name: in.Name}
	if err := e.db.WithContext(ctx).Create(&bt).Error; err != nil {
		return nil, uniqueOrInternal(err, "Business type")
	}
	return &BusinessTypeRead{ID: bt.ID, Name: bt.Name}, nil
}

// UpdateBusinessType patches a business type
func (e *TaxonomyEngine) UpdateBusinessType(ctx context.Context, id uuid.UUID, in BusinessTypeUpdate) (*BusinessTypeRead, error) {
	db := e.db.WithContext(ctx)
	var bt models.BusinessType
	if err := findByID(db, &bt, id, "Business type"); err != nil {
		return nil, err
	}
	if in.Name.Set {
		name, err := requiredText("name", in.Name, "max=100")
		if err != nil {
			return nil, err
		}
		bt.Name = name
	}
	if err := db.Save(&bt).Error; err != nil {
		return nil, uniqueOrInternal(err, "Business type")
	}
	return &BusinessTypeRead{ID: bt.ID, Name: bt.Name}, nil
}

// DeleteBusinessType removes a business type
func (e *TaxonomyEngine) DeleteBusinessType(ctx context.Context, id uuid.UUID) error {
	db := e.db.WithContext(ctx)
	var bt models.BusinessType
	if err := findByID(db, &bt, id, "Business type"); err != nil {
		return err
	}
	if err := db.Where("id = ?", id).Delete(&models.BusinessType{}).Error; err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// findByID loads a row by primary key or returns NotFoundError for resource
func findByID(db *gorm.DB, dest interface{}, id uuid.UUID, resource string) error {
	if err := db.Where("id = ?", id).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFoundError(resource)
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}

// requiredText trims a patched value that may not be null or empty
func requiredText(field string, f Field[string], rule string) (string, error) {
	v := strings.TrimSpace(f.Value)
	if f.Null || v == "" {
		return "", apperrors.NewValidationError(field, field+" cannot be empty")
	}
	if err := validateVar(field, v, rule); err != nil {
		return "", err
	}
	return v, nil
}

func uniqueOrInternal(err error, resource string) error {
	if database.IsUniqueViolation(err) {
		return apperrors.NewDuplicateError(resource, resource+" with this name already exists.")
	}
	return apperrors.NewInternalError(err)
}
