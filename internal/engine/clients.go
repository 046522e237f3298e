// Package engine - Client Engine
// Handles the client lifecycle and its derived sub-resources
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aethra/clientdesk/internal/activity"
	"github.com/aethra/clientdesk/internal/database"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/models"
	"github.com/aethra/clientdesk/internal/security"
	"github.com/aethra/clientdesk/internal/storage"
)

// Join tables of the client many-to-many relations
const (
	clientUserTable = "client_user_association"
	clientTagTable  = "client_tag_association"
)

// Actor is the authenticated caller acting within an agency
type Actor struct {
	UserID   uuid.UUID
	AgencyID uuid.UUID
}

// ClientEngine handles client CRUD, photos and read projections
type ClientEngine struct {
	db         *gorm.DB
	objects    storage.ObjectStore
	notifier   activity.Notifier
	presignTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewClientEngine creates a new client engine
func NewClientEngine(db *gorm.DB, objects storage.ObjectStore, notifier activity.Notifier, presignTTL time.Duration, logger *zap.Logger) *ClientEngine {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &ClientEngine{
		db:         db,
		objects:    objects,
		notifier:   notifier,
		presignTTL: presignTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// =============================================================================
// INPUT TYPES
// =============================================================================

// ClientInput is the flat field set accepted on create
type ClientInput struct {
	Name                 string          `json:"name" validate:"required,max=255"`
	ClientType           string          `json:"client_type" validate:"required"`
	OrganizationID       *uuid.UUID      `json:"organization_id"`
	PAN                  *string         `json:"pan" validate:"omitempty,max=20"`
	GSTIN                *string         `json:"gstin" validate:"omitempty,max=20"`
	DOB                  *Date           `json:"dob"`
	AssignedCAUserID     *uuid.UUID      `json:"assigned_ca_user_id"`
	Mobile               *string         `json:"mobile" validate:"omitempty,max=32"`
	SecondaryPhone       *string         `json:"secondary_phone" validate:"omitempty,max=32"`
	Email                *string         `json:"email" validate:"omitempty,email"`
	AddressLine1         *string         `json:"address_line1" validate:"omitempty,max=255"`
	AddressLine2         *string         `json:"address_line2" validate:"omitempty,max=255"`
	City                 *string         `json:"city" validate:"omitempty,max=100"`
	State                *string         `json:"state" validate:"omitempty,max=100"`
	PostalCode           *string         `json:"postal_code" validate:"omitempty,max=20"`
	OpeningBalanceAmount decimal.Decimal `json:"opening_balance_amount"`
	OpeningBalanceType   *string         `json:"opening_balance_type"`
	OpeningBalanceDate   *Date           `json:"opening_balance_date"`
	GSTAutofillEnabled   *bool           `json:"gst_autofill_enabled"`
	IsActive             *bool           `json:"is_active"`
	CanLogin             *bool           `json:"can_login"`
	NotifyClient         *bool           `json:"notify_client"`
	ContactPersonName    *string         `json:"contact_person_name" validate:"omitempty,max=255"`
	ContactPersonPhone   *string         `json:"contact_person_phone" validate:"omitempty,max=32"`
	DateOfBirth          *Date           `json:"date_of_birth"`
	UserIDs              []uuid.UUID     `json:"user_ids"`
	TagIDs               []uuid.UUID     `json:"tag_ids"`
}

// ClientUpdate is the allow-listed PATCH body. Absent fields are left untouched.
type ClientUpdate struct {
	Name                 Field[string]          `json:"name"`
	ClientType           Field[string]          `json:"client_type"`
	OrganizationID       Field[uuid.UUID]       `json:"organization_id"`
	PAN                  Field[string]          `json:"pan"`
	GSTIN                Field[string]          `json:"gstin"`
	DOB                  Field[Date]            `json:"dob"`
	AssignedCAUserID     Field[uuid.UUID]       `json:"assigned_ca_user_id"`
	Mobile               Field[string]          `json:"mobile"`
	SecondaryPhone       Field[string]          `json:"secondary_phone"`
	Email                Field[string]          `json:"email"`
	AddressLine1         Field[string]          `json:"address_line1"`
	AddressLine2         Field[string]          `json:"address_line2"`
	City                 Field[string]          `json:"city"`
	State                Field[string]          `json:"state"`
	PostalCode           Field[string]          `json:"postal_code"`
	OpeningBalanceAmount Field[decimal.Decimal] `json:"opening_balance_amount"`
	OpeningBalanceType   Field[string]          `json:"opening_balance_type"`
	OpeningBalanceDate   Field[Date]            `json:"opening_balance_date"`
	GSTAutofillEnabled   Field[bool]            `json:"gst_autofill_enabled"`
	IsActive             Field[bool]            `json:"is_active"`
	CanLogin             Field[bool]            `json:"can_login"`
	NotifyClient         Field[bool]            `json:"notify_client"`
	ContactPersonName    Field[string]          `json:"contact_person_name"`
	ContactPersonPhone   Field[string]          `json:"contact_person_phone"`
	DateOfBirth          Field[Date]            `json:"date_of_birth"`
	UserIDs              Field[[]uuid.UUID]     `json:"user_ids"`
	TagIDs               Field[[]uuid.UUID]     `json:"tag_ids"`
}

// PhotoUpload is an image to store for a client
type PhotoUpload struct {
	Body        io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// ListParams filters and pages the client list. Limit 0 returns everything.
type ListParams struct {
	Search string
	Limit  int
	Cursor string
}

// ClientPage is one page of clients
type ClientPage struct {
	Items      []ClientRead
	NextCursor string
}

// =============================================================================
// CRUD OPERATIONS
// =============================================================================

// Create validates and stores a new client and returns its full view
func (e *ClientEngine) Create(ctx context.Context, actor Actor, in ClientInput, photo *PhotoUpload) (*ClientRead, error) {
	client, err := buildClient(in)
	if err != nil {
		return nil, err
	}
	client.ID = uuid.New()
	client.AgencyID = actor.AgencyID
	client.CreatedBy = actor.UserID

	var photoKey string
	if photo != nil {
		url, key, err := e.uploadPhoto(ctx, client.ID, photo)
		if err != nil {
			return nil, err
		}
		client.PhotoURL = &url
		photoKey = key
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Holds the agency row lock until commit, so the name check below sees earlier creates
		customerID, err := nextCustomerID(tx, actor.AgencyID, e.now())
		if err != nil {
			return err
		}
		client.CustomerID = customerID

		if err := checkDuplicateName(tx, actor.AgencyID, client.Name, uuid.Nil); err != nil {
			return err
		}
		if err := checkAssignedCA(tx, client.AssignedCAUserID); err != nil {
			return err
		}
		userIDs, err := resolveUsers(tx, in.UserIDs)
		if err != nil {
			return err
		}
		tagIDs, err := resolveTags(tx, in.TagIDs)
		if err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(client).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewDuplicateError("Client", "Client with this customer id already exists.")
			}
			return err
		}
		if err := replaceJoin(tx, clientUserTable, "user_id", client.ID, userIDs); err != nil {
			return err
		}
		return replaceJoin(tx, clientTagTable, "tag_id", client.ID, tagIDs)
	})
	if err != nil {
		if photoKey != "" {
			e.discardObject(ctx, photoKey)
		}
		return nil, asAppError(err)
	}

	e.logger.Info("client created",
		zap.String("client_id", client.ID.String()),
		zap.String("customer_id", client.CustomerID),
		zap.String("agency_id", actor.AgencyID.String()),
	)
	e.notify(actor, activity.ActionClientCreated, client.ID,
		fmt.Sprintf("Created client '%s' (%s)", client.Name, client.CustomerID))

	return e.Get(ctx, actor.AgencyID, client.ID)
}

// List returns the agency's clients ordered by creation time
func (e *ClientEngine) List(ctx context.Context, agencyID uuid.UUID, params ListParams) (*ClientPage, error) {
	query := e.db.WithContext(ctx).
		Preload("Users").
		Preload("Tags").
		Where("agency_id = ?", agencyID)

	if term := strings.TrimSpace(params.Search); term != "" {
		byName, param, err := security.ContainsCondition("name", term)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		byCustomerID, _, err := security.ContainsCondition("customer_id", term)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		query = query.Where("("+byName+" OR "+byCustomerID+")", param, param)
	}

	if params.Cursor != "" {
		cur, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, apperrors.NewValidationError("cursor", "invalid cursor")
		}
		query = query.Where("((created_at > ?) OR (created_at = ? AND id > ?))", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	query = query.Order("created_at ASC").Order("id ASC")
	if params.Limit > 0 {
		query = query.Limit(params.Limit + 1)
	}

	var clients []models.Client
	if err := query.Find(&clients).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	page := &ClientPage{}
	if params.Limit > 0 && len(clients) > params.Limit {
		clients = clients[:params.Limit]
		last := clients[len(clients)-1]
		page.NextCursor = encodeCursor(listCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	page.Items = make([]ClientRead, 0, len(clients))
	for i := range clients {
		page.Items = append(page.Items, newClientRead(&clients[i]))
	}
	return page, nil
}

// Get returns one client of the agency
func (e *ClientEngine) Get(ctx context.Context, agencyID, id uuid.UUID) (*ClientRead, error) {
	client, err := loadClient(e.db.WithContext(ctx).Preload("Users").Preload("Tags"), agencyID, id)
	if err != nil {
		return nil, err
	}
	view := newClientRead(client)
	return &view, nil
}

// Update applies a partial update and emits one activity event describing every change
func (e *ClientEngine) Update(ctx context.Context, actor Actor, id uuid.UUID, in ClientUpdate) (*ClientRead, error) {
	var changes []FieldChange
	var name string

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := loadClient(tx.Preload("Users").Preload("Tags"), actor.AgencyID, id)
		if err != nil {
			return err
		}
		before := clientSnapshot(client)
		previousName := client.Name

		if err := applyUpdate(client, &in); err != nil {
			return err
		}
		if in.Name.Set && !strings.EqualFold(previousName, client.Name) {
			if err := reserveClientName(tx, actor.AgencyID, client.Name, client.ID); err != nil {
				return err
			}
		}
		if in.AssignedCAUserID.Present() {
			if err := checkAssignedCA(tx, client.AssignedCAUserID); err != nil {
				return err
			}
		}

		if in.UserIDs.Set {
			ids, err := resolveUsers(tx, in.UserIDs.Value)
			if err != nil {
				return err
			}
			if err := replaceJoin(tx, clientUserTable, "user_id", client.ID, ids); err != nil {
				return err
			}
			client.Users = nil
			if len(ids) > 0 {
				if err := tx.Where("id IN ?", ids).Find(&client.Users).Error; err != nil {
					return err
				}
			}
		}
		if in.TagIDs.Set {
			ids, err := resolveTags(tx, in.TagIDs.Value)
			if err != nil {
				return err
			}
			if err := replaceJoin(tx, clientTagTable, "tag_id", client.ID, ids); err != nil {
				return err
			}
			client.Tags = nil
			if len(ids) > 0 {
				if err := tx.Where("id IN ?", ids).Find(&client.Tags).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Omit(clause.Associations).Save(client).Error; err != nil {
			return err
		}

		changes = diffSnapshots(before, clientSnapshot(client))
		name = client.Name
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}

	if len(changes) > 0 {
		e.notify(actor, activity.ActionClientUpdated, id,
			fmt.Sprintf("Updated client '%s': %s", name, describeChanges(changes)))
	}
	return e.Get(ctx, actor.AgencyID, id)
}

// Delete removes a client together with its portals, service links and associations
func (e *ClientEngine) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	var deleted models.Client

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := loadClient(tx, actor.AgencyID, id)
		if err != nil {
			return err
		}
		deleted = *client
		return deleteClientRows(tx, id)
	})
	if err != nil {
		return asAppError(err)
	}

	e.logger.Info("client deleted",
		zap.String("client_id", id.String()),
		zap.String("agency_id", actor.AgencyID.String()),
	)
	e.notify(actor, activity.ActionClientDeleted, id,
		fmt.Sprintf("Deleted client '%s' (%s)", deleted.Name, deleted.CustomerID))

	if deleted.PhotoURL != nil {
		if key, ok := e.objects.KeyFromURL(*deleted.PhotoURL); ok {
			e.discardObject(ctx, key)
		}
	}
	return nil
}

// deleteClientRows runs the cascade explicitly so engines without enforced foreign keys match
func deleteClientRows(tx *gorm.DB, id uuid.UUID) error {
	if err := tx.Where("client_id = ?", id).Delete(&models.ClientService{}).Error; err != nil {
		return err
	}
	if err := tx.Where("client_id = ?", id).Delete(&models.ClientPortal{}).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM "+clientUserTable+" WHERE client_id = ?", id).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM "+clientTagTable+" WHERE client_id = ?", id).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", id).Delete(&models.Client{}).Error
}

// =============================================================================
// READ PROJECTIONS
// =============================================================================

// Dashboard returns the summary card of a client
func (e *ClientEngine) Dashboard(ctx context.Context, agencyID, id uuid.UUID) (*ClientDashboard, error) {
	client, err := loadClient(e.db.WithContext(ctx), agencyID, id)
	if err != nil {
		return nil, err
	}
	view := newClientDashboard(client)
	return &view, nil
}

// Ledger returns the opening balance of a client
func (e *ClientEngine) Ledger(ctx context.Context, agencyID, id uuid.UUID) (*LedgerBalance, error) {
	client, err := loadClient(e.db.WithContext(ctx), agencyID, id)
	if err != nil {
		return nil, err
	}
	view := newLedgerBalance(client)
	return &view, nil
}

// =============================================================================
// PHOTOS
// =============================================================================

// AttachPhoto stores or replaces the client photo. The previous object is removed best-effort.
func (e *ClientEngine) AttachPhoto(ctx context.Context, agencyID, id uuid.UUID, photo *PhotoUpload) (*ClientRead, error) {
	client, err := loadClient(e.db.WithContext(ctx), agencyID, id)
	if err != nil {
		return nil, err
	}

	url, key, err := e.uploadPhoto(ctx, client.ID, photo)
	if err != nil {
		return nil, err
	}

	previous := client.PhotoURL
	if err := e.db.WithContext(ctx).Model(&models.Client{}).
		Where("id = ?", client.ID).
		Update("photo_url", url).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if previous != nil {
		if oldKey, ok := e.objects.KeyFromURL(*previous); ok && oldKey != key {
			e.discardObject(ctx, oldKey)
		}
	}
	return e.Get(ctx, agencyID, id)
}

// PhotoLink returns a pre-signed URL for the client photo
func (e *ClientEngine) PhotoLink(ctx context.Context, agencyID, id uuid.UUID) (string, error) {
	client, err := loadClient(e.db.WithContext(ctx), agencyID, id)
	if err != nil {
		return "", err
	}
	if client.PhotoURL == nil {
		return "", apperrors.NewNotFoundError("Photo")
	}
	key, ok := e.objects.KeyFromURL(*client.PhotoURL)
	if !ok {
		return "", apperrors.NewInternalError(fmt.Errorf("photo url of client %s is not in the object store", id))
	}
	link, err := e.objects.Presign(ctx, key, e.presignTTL)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	return link, nil
}

// DeletePhoto removes the client photo from the object store and the record
func (e *ClientEngine) DeletePhoto(ctx context.Context, agencyID, id uuid.UUID) error {
	client, err := loadClient(e.db.WithContext(ctx), agencyID, id)
	if err != nil {
		return err
	}
	if client.PhotoURL == nil {
		return apperrors.NewNotFoundError("Photo")
	}
	if key, ok := e.objects.KeyFromURL(*client.PhotoURL); ok {
		if err := e.objects.Delete(ctx, key); err != nil {
			return apperrors.NewInternalError(err)
		}
	}
	if err := e.db.WithContext(ctx).Model(&models.Client{}).
		Where("id = ?", client.ID).
		Update("photo_url", nil).Error; err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// PhotoKey is the object key of a client photo
func PhotoKey(clientID uuid.UUID, filename string) string {
	return "clients/" + clientID.String() + strings.ToLower(filepath.Ext(filename))
}

func (e *ClientEngine) uploadPhoto(ctx context.Context, clientID uuid.UUID, photo *PhotoUpload) (string, string, error) {
	if photo.ContentType != "" && !strings.HasPrefix(photo.ContentType, "image/") {
		return "", "", apperrors.NewValidationError("photo", "photo must be an image")
	}
	key := PhotoKey(clientID, photo.Filename)
	url, err := e.objects.Upload(ctx, key, photo.Body, photo.Size, photo.ContentType)
	if err != nil {
		e.logger.Error("photo upload failed", zap.String("key", key), zap.Error(err))
		return "", "", apperrors.NewInternalError(err)
	}
	return url, key, nil
}

// discardObject deletes an object and only logs failures
func (e *ClientEngine) discardObject(ctx context.Context, key string) {
	if err := e.objects.Delete(ctx, key); err != nil {
		e.logger.Warn("failed to delete stale photo", zap.String("key", key), zap.Error(err))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *ClientEngine) notify(actor Actor, action string, clientID uuid.UUID, details string) {
	if e.notifier == nil {
		return
	}
	id := clientID
	e.notifier.Notify(activity.Event{
		UserID:   actor.UserID,
		Action:   action,
		Details:  details,
		ClientID: &id,
	})
}

// loadClient fetches one client of the agency or returns NotFoundError
func loadClient(db *gorm.DB, agencyID, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := db.Where("id = ? AND agency_id = ?", id, agencyID).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Client")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return &client, nil
}

// checkDuplicateName enforces the agency's duplicate-name policy.
// Agencies without a GeneralSetting row do not allow duplicates.
// reserveClientName takes the agency row lock before checking the name,
// serializing renames with creates of the same agency
func reserveClientName(tx *gorm.DB, agencyID uuid.UUID, name string, excludeID uuid.UUID) error {
	if _, err := lockAgencySetting(tx, agencyID); err != nil {
		return err
	}
	return checkDuplicateName(tx, agencyID, name, excludeID)
}

func checkDuplicateName(tx *gorm.DB, agencyID uuid.UUID, name string, excludeID uuid.UUID) error {
	var setting models.GeneralSetting
	err := tx.Where("agency_id = ?", agencyID).First(&setting).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil && setting.AllowDuplicates {
		return nil
	}

	q := tx.Model(&models.Client{}).
		Where("agency_id = ? AND LOWER(name) = ?", agencyID, strings.ToLower(strings.TrimSpace(name)))
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.NewDuplicateError("Client", "Client with this name already exists.")
	}
	return nil
}

func checkAssignedCA(tx *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	var count int64
	if err := tx.Model(&models.CAAccount{}).Where("id = ?", *id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.NewNotFoundError("Assigned CA")
	}
	return nil
}

func resolveUsers(tx *gorm.DB, ids []uuid.UUID) ([]uuid.UUID, error) {
	return resolveIDs(tx, &models.User{}, ids, "One or more users")
}

func resolveTags(tx *gorm.DB, ids []uuid.UUID) ([]uuid.UUID, error) {
	return resolveIDs(tx, &models.Tag{}, ids, "One or more tags")
}

// resolveIDs de-duplicates ids and fails with NotFoundError unless every one exists
func resolveIDs(tx *gorm.DB, model interface{}, ids []uuid.UUID, resource string) ([]uuid.UUID, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil, nil
	}
	var count int64
	if err := tx.Model(model).Where("id IN ?", unique).Count(&count).Error; err != nil {
		return nil, err
	}
	if int(count) != len(unique) {
		return nil, apperrors.NewNotFoundError(resource)
	}
	return unique, nil
}

// replaceJoin sets the rows of a client join table to exactly ids
func replaceJoin(tx *gorm.DB, table, refColumn string, clientID uuid.UUID, ids []uuid.UUID) error {
	if err := tx.Exec("DELETE FROM "+table+" WHERE client_id = ?", clientID).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, map[string]interface{}{"client_id": clientID, refColumn: id})
	}
	return tx.Table(table).Create(rows).Error
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// asAppError passes typed errors through and wraps everything else as InternalError
func asAppError(err error) error {
	var ae apperrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	return apperrors.NewInternalError(err)
}
