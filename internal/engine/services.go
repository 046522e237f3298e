package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
)

// ServiceLinkEngine manages the services assigned to a client
type ServiceLinkEngine struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewServiceLinkEngine creates a new service link engine
func NewServiceLinkEngine(db *gorm.DB, logger *zap.Logger) *ServiceLinkEngine {
	return &ServiceLinkEngine{db: db, logger: logger}
}

// ServiceLinkInput is one element of a bulk add body
type ServiceLinkInput struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
}

// ServiceRemoveInput is the bulk remove body
type ServiceRemoveInput struct {
	ServiceIDs []uuid.UUID `json:"service_ids" validate:"required,min=1"`
}

// ServiceLink is a client-service link view
type ServiceLink struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	ServiceID uuid.UUID `json:"service_id"`
	CreatedAt time.Time `json:"created_at"`
}

func newServiceLink(s *models.ClientService) ServiceLink {
	return ServiceLink{ID: s.ID, ClientID: s.ClientID, ServiceID: s.ServiceID, CreatedAt: s.CreatedAt}
}

// Add links services to a client in one transaction and returns only the new links.
// Services already linked, or repeated in the body, are skipped.
func (e *ServiceLinkEngine) Add(ctx context.Context, agencyID, clientID uuid.UUID, in []ServiceLinkInput) ([]ServiceLink, error) {
	for _, item := range in {
		if err := validateStruct(item); err != nil {
			return nil, err
		}
	}

	var created []models.ClientService
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadClient(tx, agencyID, clientID); err != nil {
			return err
		}

		var existing []uuid.UUID
		if err := tx.Model(&models.ClientService{}).
			Where("client_id = ?", clientID).
			Pluck("service_id", &existing).Error; err != nil {
			return err
		}
		linked := make(map[uuid.UUID]struct{}, len(existing))
		for _, id := range existing {
			linked[id] = struct{}{}
		}

		for _, item := range in {
			if _, ok := linked[item.ServiceID]; ok {
				continue
			}
			linked[item.ServiceID] = struct{}{}
			created = append(created, models.ClientService{ClientID: clientID, ServiceID: item.ServiceID})
		}
		if len(created) == 0 {
			return nil
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		e.logger.Error("failed to link services", zap.String("client_id", clientID.String()), zap.Error(err))
		return nil, asAppError(err)
	}

	out := make([]ServiceLink, 0, len(created))
	for i := range created {
		out = append(out, newServiceLink(&created[i]))
	}
	return out, nil
}

// List returns the services linked to a client
func (e *ServiceLinkEngine) List(ctx context.Context, agencyID, clientID uuid.UUID) ([]ServiceLink, error) {
	db := e.db.WithContext(ctx)
	if _, err := loadClient(db, agencyID, clientID); err != nil {
		return nil, err
	}
	var rows []models.ClientService
	if err := db.Where("client_id = ?", clientID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	out := make([]ServiceLink, 0, len(rows))
	for i := range rows {
		out = append(out, newServiceLink(&rows[i]))
	}
	return out, nil
}

// Remove unlinks services from a client in one transaction
func (e *ServiceLinkEngine) Remove(ctx context.Context, agencyID, clientID uuid.UUID, in ServiceRemoveInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadClient(tx, agencyID, clientID); err != nil {
			return err
		}
		return tx.Where("client_id = ? AND service_id IN ?", clientID, dedupe(in.ServiceIDs)).
			Delete(&models.ClientService{}).Error
	})
	if err != nil {
		e.logger.Error("failed to unlink services", zap.String("client_id", clientID.String()), zap.Error(err))
		return asAppError(err)
	}
	return nil
}
