// Package engine - Portal Engine
// Manages the portal catalog and per-client encrypted credentials
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/clientdesk/internal/database"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
	"github.com/aethra/clientdesk/internal/security"
)

// PortalEngine handles portal catalog entries and client credentials
type PortalEngine struct {
	db     *gorm.DB
	cipher *security.FieldCipher
	logger *zap.Logger
	now    func() time.Time
}

// NewPortalEngine creates a new portal engine
func NewPortalEngine(db *gorm.DB, cipher *security.FieldCipher, logger *zap.Logger) *PortalEngine {
	return &PortalEngine{
		db:     db,
		cipher: cipher,
		logger: logger,
		now:    time.Now,
	}
}

// PortalInput creates a catalog entry
type PortalInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	LoginURL string `json:"login_url" validate:"required,url,max=1024"`
}

// PortalUpdate patches a catalog entry
type PortalUpdate struct {
	Name     Field[string] `json:"name"`
	LoginURL Field[string] `json:"login_url"`
}

// ClientPortalInput creates a credential set
type ClientPortalInput struct {
	PortalID uuid.UUID `json:"portal_id" validate:"required"`
	Username *string   `json:"username"`
	Password *string   `json:"password"`
	Notes    *string   `json:"notes"`
}

// ClientPortalUpdate patches a credential set. JSON null clears a secret.
type ClientPortalUpdate struct {
	PortalID Field[uuid.UUID] `json:"portal_id"`
	Username Field[string]    `json:"username"`
	Password Field[string]    `json:"password"`
	Notes    Field[string]    `json:"notes"`
}

// =============================================================================
// CATALOG
// =============================================================================

// ListPortals returns the catalog ordered by name
func (e *PortalEngine) ListPortals(ctx context.Context) ([]PortalRead, error) {
	var portals []models.Portal
	if err := e.db.WithContext(ctx).Order("name ASC").Find(&portals).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	out := make([]PortalRead, 0, len(portals))
	for i := range portals {
		out = append(out, newPortalRead(&portals[i]))
	}
	return out, nil
}

// GetPortal returns one catalog entry
func (e *PortalEngine) GetPortal(ctx context.Context, id uuid.UUID) (*PortalRead, error) {
	portal, err := e.loadPortal(e.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	view := newPortalRead(portal)
	return &view, nil
}

// CreatePortal adds a catalog entry; names are unique
func (e *PortalEngine) CreatePortal(ctx context.Context, in PortalInput) (*PortalRead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.LoginURL = strings.TrimSpace(in.LoginURL)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	portal := models.Portal{Name: in.Name, LoginURL: in.LoginURL}
	if err := e.db.WithContext(ctx).Create(&portal).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.NewDuplicateError("Portal", "Portal with this name already exists.")
		}
		return nil, apperrors.NewInternalError(err)
	}

	e.logger.Info("portal created", zap.String("portal_id", portal.ID.String()), zap.String("name", portal.Name))
	view := newPortalRead(&portal)
	return &view, nil
}

// UpdatePortal patches a catalog entry
func (e *PortalEngine) UpdatePortal(ctx context.Context, id uuid.UUID, in PortalUpdate) (*PortalRead, error) {
	db := e.db.WithContext(ctx)
	portal, err := e.loadPortal(db, id)
	if err != nil {
		return nil, err
	}

	if in.Name.Set {
		name := strings.TrimSpace(in.Name.Value)
		if in.Name.Null || name == "" {
			return nil, apperrors.NewValidationError("name", "name cannot be empty")
		}
		portal.Name = name
	}
	if in.LoginURL.Set {
		url := strings.TrimSpace(in.LoginURL.Value)
		if err := validateVar("login_url", url, "required,url,max=1024"); err != nil {
			return nil, err
		}
		portal.LoginURL = url
	}

	if err := db.Save(portal).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.NewDuplicateError("Portal", "Portal with this name already exists.")
		}
		return nil, apperrors.NewInternalError(err)
	}
	view := newPortalRead(portal)
	return &view, nil
}

// DeletePortal removes a catalog entry that no client credential references
func (e *PortalEngine) DeletePortal(ctx context.Context, id uuid.UUID) error {
	return asAppError(e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.loadPortal(tx, id); err != nil {
			return err
		}
		var inUse int64
		if err := tx.Model(&models.ClientPortal{}).Where("portal_id = ?", id).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return apperrors.NewValidationError("portal_id", "Portal is still used by client credentials.")
		}
		return tx.Where("id = ?", id).Delete(&models.Portal{}).Error
	}))
}

func (e *PortalEngine) loadPortal(db *gorm.DB, id uuid.UUID) (*models.Portal, error) {
	var portal models.Portal
	if err := db.Where("id = ?", id).First(&portal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Portal")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return &portal, nil
}

// =============================================================================
// CLIENT CREDENTIALS
// =============================================================================

// checkUsername rejects usernames that would be indistinguishable from a masked view
func checkUsername(username *string) error {
	if username != nil && strings.HasPrefix(*username, security.UsernameMask) {
		return apperrors.NewValidationError("username", "username cannot start with "+security.UsernameMask)
	}
	return nil
}

// CreateClientPortal stores an encrypted credential set for a client
func (e *PortalEngine) CreateClientPortal(ctx context.Context, actor Actor, clientID uuid.UUID, in ClientPortalInput) (*ClientPortalRead, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := checkUsername(in.Username); err != nil {
		return nil, err
	}

	db := e.db.WithContext(ctx)
	if _, err := loadClient(db, actor.AgencyID, clientID); err != nil {
		return nil, err
	}
	portal, err := e.loadPortal(db, in.PortalID)
	if err != nil {
		return nil, err
	}

	cp := models.ClientPortal{
		ClientID:  clientID,
		PortalID:  portal.ID,
		CreatedBy: actor.UserID,
	}
	if cp.UsernameCipher, err = e.cipher.EncryptPtr(in.Username); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if cp.PasswordCipher, err = e.cipher.EncryptPtr(in.Password); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if cp.NotesCipher, err = e.cipher.EncryptPtr(in.Notes); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if in.Password != nil {
		rotated := e.now()
		cp.LastRotatedAt = &rotated
	}

	if err := db.Omit("Portal").Create(&cp).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	cp.Portal = portal

	e.logger.Info("client portal created",
		zap.String("client_portal_id", cp.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("portal", portal.Name),
	)
	view := newClientPortalRead(&cp, in.Username)
	return &view, nil
}

// ListClientPortals returns the masked credential views of a client
func (e *PortalEngine) ListClientPortals(ctx context.Context, agencyID, clientID uuid.UUID) ([]ClientPortalRead, error) {
	rows, err := e.clientPortals(ctx, agencyID, clientID)
	if err != nil {
		return nil, err
	}
	out := make([]ClientPortalRead, 0, len(rows))
	for i := range rows {
		username, err := e.cipher.DecryptPtr(rows[i].UsernameCipher)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		out = append(out, newClientPortalRead(&rows[i], username))
	}
	return out, nil
}

// ListClientPortalSecrets returns the decrypted credential views of a client
func (e *PortalEngine) ListClientPortalSecrets(ctx context.Context, agencyID, clientID uuid.UUID) ([]ClientPortalWithSecrets, error) {
	rows, err := e.clientPortals(ctx, agencyID, clientID)
	if err != nil {
		return nil, err
	}
	out := make([]ClientPortalWithSecrets, 0, len(rows))
	for i := range rows {
		view, err := e.reveal(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// GetClientPortal returns one masked credential view
func (e *PortalEngine) GetClientPortal(ctx context.Context, agencyID, clientID, id uuid.UUID) (*ClientPortalRead, error) {
	cp, err := e.loadClientPortal(e.db.WithContext(ctx), agencyID, clientID, id)
	if err != nil {
		return nil, err
	}
	username, err := e.cipher.DecryptPtr(cp.UsernameCipher)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	view := newClientPortalRead(cp, username)
	return &view, nil
}

// GetClientPortalSecrets returns one decrypted credential view
func (e *PortalEngine) GetClientPortalSecrets(ctx context.Context, agencyID, clientID, id uuid.UUID) (*ClientPortalWithSecrets, error) {
	cp, err := e.loadClientPortal(e.db.WithContext(ctx), agencyID, clientID, id)
	if err != nil {
		return nil, err
	}
	return e.reveal(cp)
}

// UpdateClientPortal patches a credential set
func (e *PortalEngine) UpdateClientPortal(ctx context.Context, agencyID, clientID, id uuid.UUID, in ClientPortalUpdate) (*ClientPortalRead, error) {
	if err := checkUsername(in.Username.Ptr()); err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	cp, err := e.loadClientPortal(db, agencyID, clientID, id)
	if err != nil {
		return nil, err
	}

	if in.PortalID.Set {
		if in.PortalID.Null {
			return nil, apperrors.NewValidationError("portal_id", "portal_id cannot be null")
		}
		portal, err := e.loadPortal(db, in.PortalID.Value)
		if err != nil {
			return nil, err
		}
		cp.PortalID = portal.ID
		cp.Portal = portal
	}

	secrets := []struct {
		value  *Field[string]
		target **string
	}{
		{&in.Username, &cp.UsernameCipher},
		{&in.Password, &cp.PasswordCipher},
		{&in.Notes, &cp.NotesCipher},
	}
	for _, s := range secrets {
		if !s.value.Set {
			continue
		}
		enc, err := e.cipher.EncryptPtr(s.value.Ptr())
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		*s.target = enc
	}
	if in.Password.Set {
		rotated := e.now()
		cp.LastRotatedAt = &rotated
	}

	if err := db.Omit("Portal").Save(cp).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	username, err := e.cipher.DecryptPtr(cp.UsernameCipher)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	view := newClientPortalRead(cp, username)
	return &view, nil
}

// DeleteClientPortal removes a credential set
func (e *PortalEngine) DeleteClientPortal(ctx context.Context, agencyID, clientID, id uuid.UUID) error {
	db := e.db.WithContext(ctx)
	if _, err := e.loadClientPortal(db, agencyID, clientID, id); err != nil {
		return err
	}
	if err := db.Where("id = ?", id).Delete(&models.ClientPortal{}).Error; err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

func (e *PortalEngine) clientPortals(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.ClientPortal, error) {
	db := e.db.WithContext(ctx)
	if _, err := loadClient(db, agencyID, clientID); err != nil {
		return nil, err
	}
	var rows []models.ClientPortal
	if err := db.Preload("Portal").
		Where("client_id = ?", clientID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return rows, nil
}

// loadClientPortal resolves (client_id, id) inside the agency or returns NotFoundError
func (e *PortalEngine) loadClientPortal(db *gorm.DB, agencyID, clientID, id uuid.UUID) (*models.ClientPortal, error) {
	if _, err := loadClient(db, agencyID, clientID); err != nil {
		return nil, err
	}
	var cp models.ClientPortal
	err := db.Preload("Portal").Where("id = ? AND client_id = ?", id, clientID).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Client portal")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return &cp, nil
}

func (e *PortalEngine) reveal(cp *models.ClientPortal) (*ClientPortalWithSecrets, error) {
	username, err := e.cipher.DecryptPtr(cp.UsernameCipher)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	password, err := e.cipher.DecryptPtr(cp.PasswordCipher)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	notes, err := e.cipher.DecryptPtr(cp.NotesCipher)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &ClientPortalWithSecrets{
		ClientPortalRead: newClientPortalRead(cp, username),
		Username:         username,
		Password:         password,
		Notes:            notes,
	}, nil
}
