// Package api contains the HTTP API handlers for the client service
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aethra/clientdesk/internal/auth"
	"github.com/aethra/clientdesk/internal/engine"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/upstream"
)

const (
	agencyHeader = upstream.AgencyHeader

	ctxIdentity = "identity"
	ctxToken    = "token"
	ctxAgencyID = "agency_id"
)

// IdentityResolver turns a bearer token into the caller's identity
type IdentityResolver interface {
	Resolve(ctx context.Context, token, agencyID string) (*auth.Identity, error)
}

// CatalogProxy talks to the catalogs owned by sibling services
type CatalogProxy interface {
	ListServices(ctx context.Context, token, agencyID string) (json.RawMessage, error)
	ListOrganizations(ctx context.Context, token string) (json.RawMessage, error)
	InviteOrganizationUser(ctx context.Context, token string, orgID uuid.UUID, email string) error
}

// Engines groups the business engines served over HTTP
type Engines struct {
	Clients  *engine.ClientEngine
	Portals  *engine.PortalEngine
	Services *engine.ServiceLinkEngine
	Taxonomy *engine.TaxonomyEngine
	Settings *engine.SettingsEngine
}

// Handler contains all API handlers
type Handler struct {
	clients  *engine.ClientEngine
	portals  *engine.PortalEngine
	services *engine.ServiceLinkEngine
	taxonomy *engine.TaxonomyEngine
	settings *engine.SettingsEngine
	identity IdentityResolver
	catalog  CatalogProxy
	logger   *zap.Logger
	version  string
}

// NewHandler creates a new API handler
func NewHandler(engines Engines, identity IdentityResolver, catalog CatalogProxy, logger *zap.Logger, version string) *Handler {
	return &Handler{
		clients:  engines.Clients,
		portals:  engines.Portals,
		services: engines.Services,
		taxonomy: engines.Taxonomy,
		settings: engines.Settings,
		identity: identity,
		catalog:  catalog,
		logger:   logger,
		version:  version,
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// AuthMiddleware validates the bearer token through the login service
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.abort(c, apperrors.NewUnauthorizedError("Not authenticated"))
			return
		}

		identity, err := h.identity.Resolve(c.Request.Context(), token, c.GetHeader(agencyHeader))
		if err != nil {
			h.abort(c, err)
			return
		}

		c.Set(ctxIdentity, identity)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// AgencyMiddleware requires the agency header and stores the parsed id
func (h *Handler) AgencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(agencyHeader)
		if raw == "" {
			h.abort(c, apperrors.NewValidationError(agencyHeader, agencyHeader+" header is required"))
			return
		}
		agencyID, err := uuid.Parse(raw)
		if err != nil {
			h.abort(c, apperrors.NewValidationError(agencyHeader, "invalid "+agencyHeader+" header"))
			return
		}
		c.Set(ctxAgencyID, agencyID)
		c.Next()
	}
}

// PermissionMiddleware checks the caller's role against an action
func (h *Handler) PermissionMiddleware(action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.CheckPermission(identityFrom(c), action) {
			h.abort(c, apperrors.NewPermissionDeniedError(string(action), c.FullPath()))
			return
		}
		c.Next()
	}
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Health returns the health status
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "clientdesk",
		"version": h.version,
	})
}

// =============================================================================
// EXTERNAL CATALOGS
// =============================================================================

// ListExternalServices proxies the service API catalog
// GET /services
func (h *Handler) ListExternalServices(c *gin.Context) {
	raw, err := h.catalog.ListServices(c.Request.Context(), c.GetString(ctxToken), agencyFrom(c).String())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// ListOrganizations proxies the login API organization list
// GET /organizations
func (h *Handler) ListOrganizations(c *gin.Context) {
	raw, err := h.catalog.ListOrganizations(c.Request.Context(), c.GetString(ctxToken))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// InviteOrganizationUser forwards an organization invite to the login API
// POST /clients/invites/organization-user
func (h *Handler) InviteOrganizationUser(c *gin.Context) {
	var in engine.InviteInput
	if !h.bindJSON(c, &in) {
		return
	}
	if err := in.Normalize(); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.catalog.InviteOrganizationUser(c.Request.Context(), c.GetString(ctxToken), in.OrgID, in.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// respondError writes the JSON error body for err
func (h *Handler) respondError(c *gin.Context, err error) {
	status, body := apperrors.ToHTTPError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

func (h *Handler) abort(c *gin.Context, err error) {
	h.respondError(c, err)
	c.Abort()
}

func identityFrom(c *gin.Context) *auth.Identity {
	if v, ok := c.Get(ctxIdentity); ok {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

func agencyFrom(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxAgencyID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func actorFrom(c *gin.Context) engine.Actor {
	actor := engine.Actor{AgencyID: agencyFrom(c)}
	if id := identityFrom(c); id != nil {
		actor.UserID = id.ID
	}
	return actor
}

// uuidParam parses a path parameter or writes a 400 and returns false
func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.respondError(c, apperrors.NewValidationError(name, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes the request body or writes a 400 and returns false
func (h *Handler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		h.respondError(c, apperrors.NewBadRequestError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func parseIntParam(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
