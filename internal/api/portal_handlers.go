package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aethra/clientdesk/internal/auth"
	"github.com/aethra/clientdesk/internal/engine"
	apperrors "github.com/aethra/clientdesk/internal/errors"
)

// =============================================================================
// PORTAL CATALOG
// =============================================================================

// ListPortals returns the portal catalog
// GET /portals
func (h *Handler) ListPortals(c *gin.Context) {
	portals, err := h.portals.ListPortals(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, portals)
}

// GetPortal returns one catalog entry
// GET /portals/:id
func (h *Handler) GetPortal(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	portal, err := h.portals.GetPortal(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, portal)
}

// CreatePortal adds a catalog entry
// POST /portals
func (h *Handler) CreatePortal(c *gin.Context) {
	var in engine.PortalInput
	if !h.bindJSON(c, &in) {
		return
	}
	portal, err := h.portals.CreatePortal(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, portal)
}

// UpdatePortal patches a catalog entry
// PATCH /portals/:id
func (h *Handler) UpdatePortal(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.PortalUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	portal, err := h.portals.UpdatePortal(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, portal)
}

// DeletePortal removes a catalog entry
// DELETE /portals/:id
func (h *Handler) DeletePortal(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.portals.DeletePortal(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// CLIENT CREDENTIALS
// =============================================================================

// ListClientPortals returns masked credentials, or secrets with reveal=true
// GET /clients/:id/portals
func (h *Handler) ListClientPortals(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	reveal, ok := h.revealRequested(c)
	if !ok {
		return
	}

	var (
		out interface{}
		err error
	)
	if reveal {
		out, err = h.portals.ListClientPortalSecrets(c.Request.Context(), agencyFrom(c), clientID)
	} else {
		out, err = h.portals.ListClientPortals(c.Request.Context(), agencyFrom(c), clientID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetClientPortal returns one masked credential, or its secrets with reveal=true
// GET /clients/:id/portals/:portal_id
func (h *Handler) GetClientPortal(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "portal_id")
	if !ok {
		return
	}
	reveal, ok := h.revealRequested(c)
	if !ok {
		return
	}

	var (
		out interface{}
		err error
	)
	if reveal {
		out, err = h.portals.GetClientPortalSecrets(c.Request.Context(), agencyFrom(c), clientID, id)
	} else {
		out, err = h.portals.GetClientPortal(c.Request.Context(), agencyFrom(c), clientID, id)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateClientPortal stores a credential set
// POST /clients/:id/portals
func (h *Handler) CreateClientPortal(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.ClientPortalInput
	if !h.bindJSON(c, &in) {
		return
	}
	cp, err := h.portals.CreateClientPortal(c.Request.Context(), actorFrom(c), clientID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

// UpdateClientPortal patches a credential set
// PATCH /clients/:id/portals/:portal_id
func (h *Handler) UpdateClientPortal(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "portal_id")
	if !ok {
		return
	}
	var in engine.ClientPortalUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	cp, err := h.portals.UpdateClientPortal(c.Request.Context(), agencyFrom(c), clientID, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// DeleteClientPortal removes a credential set
// DELETE /clients/:id/portals/:portal_id
func (h *Handler) DeleteClientPortal(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "portal_id")
	if !ok {
		return
	}
	if err := h.portals.DeleteClientPortal(c.Request.Context(), agencyFrom(c), clientID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// revealRequested reports whether secrets were asked for and allowed.
// It writes a 403 and returns ok=false when the caller may not reveal them.
func (h *Handler) revealRequested(c *gin.Context) (reveal bool, ok bool) {
	if c.Query("reveal") != "true" {
		return false, true
	}
	if !auth.CheckPermission(identityFrom(c), auth.ActionReveal) {
		h.respondError(c, apperrors.NewPermissionDeniedError(string(auth.ActionReveal), "client portal secrets"))
		return false, false
	}
	return true, true
}
