package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aethra/clientdesk/internal/engine"
)

// =============================================================================
// SERVICE LINKS
// =============================================================================

// AddClientServices links services to a client
// POST /services/:id/services
func (h *Handler) AddClientServices(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in []engine.ServiceLinkInput
	if !h.bindJSON(c, &in) {
		return
	}
	links, err := h.services.Add(c.Request.Context(), agencyFrom(c), clientID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, links)
}

// ListClientServices returns the services linked to a client
// GET /services/:id/services
func (h *Handler) ListClientServices(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	links, err := h.services.List(c.Request.Context(), agencyFrom(c), clientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// RemoveClientServices unlinks services from a client
// DELETE /services/:id/services
func (h *Handler) RemoveClientServices(c *gin.Context) {
	clientID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.ServiceRemoveInput
	if !h.bindJSON(c, &in) {
		return
	}
	if err := h.services.Remove(c.Request.Context(), agencyFrom(c), clientID, in); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// GENERAL SETTINGS
// =============================================================================

// ListGeneralSettings returns the agency's general setting
// GET /settings/general
func (h *Handler) ListGeneralSettings(c *gin.Context) {
	settings, err := h.settings.ListGeneral(c.Request.Context(), agencyFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// CreateGeneralSetting creates the agency's general setting
// POST /settings/general
func (h *Handler) CreateGeneralSetting(c *gin.Context) {
	var in engine.GeneralSettingInput
	if !h.bindJSON(c, &in) {
		return
	}
	setting, err := h.settings.CreateGeneral(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, setting)
}

// UpdateGeneralSetting patches the agency's general setting
// PATCH /settings/general/:id
func (h *Handler) UpdateGeneralSetting(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.GeneralSettingUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	setting, err := h.settings.UpdateGeneral(c.Request.Context(), agencyFrom(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

// DeleteGeneralSetting removes the agency's general setting
// DELETE /settings/general/:id
func (h *Handler) DeleteGeneralSetting(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.settings.DeleteGeneral(c.Request.Context(), agencyFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAgencySetting returns the customer id configuration
// GET /settings/agency
func (h *Handler) GetAgencySetting(c *gin.Context) {
	setting, err := h.settings.GetAgency(c.Request.Context(), agencyFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

// UpdateAgencySetting changes the customer id format
// PATCH /settings/agency
func (h *Handler) UpdateAgencySetting(c *gin.Context) {
	var in engine.AgencySettingUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	setting, err := h.settings.UpdateAgency(c.Request.Context(), agencyFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

// =============================================================================
// TAGS
// =============================================================================

// ListTags returns all tags
// GET /settings/tags
func (h *Handler) ListTags(c *gin.Context) {
	tags, err := h.taxonomy.ListTags(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

// CreateTag adds a tag
// POST /settings/tags
func (h *Handler) CreateTag(c *gin.Context) {
	var in engine.TagInput
	if !h.bindJSON(c, &in) {
		return
	}
	tag, err := h.taxonomy.CreateTag(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

// UpdateTag patches a tag
// PATCH /settings/tags/:id
func (h *Handler) UpdateTag(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.TagUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	tag, err := h.taxonomy.UpdateTag(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

// DeleteTag removes a tag
// DELETE /settings/tags/:id
func (h *Handler) DeleteTag(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.taxonomy.DeleteTag(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// BUSINESS TYPES
// =============================================================================

// ListBusinessTypes returns all business types
// GET /settings/business-types
func (h *Handler) ListBusinessTypes(c *gin.Context) {
	rows, err := h.taxonomy.ListBusinessTypes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreateBusinessType adds a business type
// POST /settings/business-types
func (h *Handler) CreateBusinessType(c *gin.Context) {
	var in engine.BusinessTypeInput
	if !h.bindJSON(c, &in) {
		return
	}
	bt, err := h.taxonomy.CreateBusinessType(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bt)
}

// UpdateBusinessType patches a business type
// PATCH /settings/business-types/:id
func (h *Handler) UpdateBusinessType(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.BusinessTypeUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	bt, err := h.taxonomy.UpdateBusinessType(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bt)
}

// DeleteBusinessType removes a business type
// DELETE /settings/business-types/:id
func (h *Handler) DeleteBusinessType(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.taxonomy.DeleteBusinessType(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
