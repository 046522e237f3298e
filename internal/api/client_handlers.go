package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aethra/clientdesk/internal/engine"
	apperrors "github.com/aethra/clientdesk/internal/errors"
)

const (
	nextCursorHeader = "X-Next-Cursor"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxPhotoBytes    = 10 << 20
)

// =============================================================================
// CLIENT ENDPOINTS
// =============================================================================

// ListClients returns the agency's clients, or an xlsx export with format=xlsx
// GET /clients
func (h *Handler) ListClients(c *gin.Context) {
	agencyID := agencyFrom(c)
	search := c.Query("search")

	if strings.EqualFold(c.Query("format"), "xlsx") {
		data, err := h.clients.Export(c.Request.Context(), agencyID, search)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="clients.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, data)
		return
	}

	limit, err := parseIntParam(c.Query("limit"), 0)
	if err != nil || limit < 0 {
		h.respondError(c, apperrors.NewValidationError("limit", "limit must be a non-negative integer"))
		return
	}

	page, err := h.clients.List(c.Request.Context(), agencyID, engine.ListParams{
		Search: search,
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if page.NextCursor != "" {
		c.Header(nextCursorHeader, page.NextCursor)
	}
	c.JSON(http.StatusOK, page.Items)
}

// CreateClient creates a client from a JSON body or a multipart form with an optional photo
// POST /clients
func (h *Handler) CreateClient(c *gin.Context) {
	var (
		in    engine.ClientInput
		photo *engine.PhotoUpload
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var err error
		if in, err = clientInputFromForm(c); err != nil {
			h.respondError(c, err)
			return
		}
		upload, cleanup, err := photoFromForm(c, false)
		if err != nil {
			h.respondError(c, err)
			return
		}
		defer cleanup()
		photo = upload
	} else if !h.bindJSON(c, &in) {
		return
	}

	client, err := h.clients.Create(c.Request.Context(), actorFrom(c), in, photo)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// GetClient returns one client
// GET /clients/:id
func (h *Handler) GetClient(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	client, err := h.clients.Get(c.Request.Context(), agencyFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient applies a partial update
// PATCH /clients/:id
func (h *Handler) UpdateClient(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var in engine.ClientUpdate
	if !h.bindJSON(c, &in) {
		return
	}
	client, err := h.clients.Update(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient removes a client and everything it owns
// DELETE /clients/:id
func (h *Handler) DeleteClient(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.clients.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetClientDashboard returns the summary card
// GET /clients/:id/dashboard
func (h *Handler) GetClientDashboard(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.clients.Dashboard(c.Request.Context(), agencyFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetLedgerBalance returns the opening balance
// GET /clients/:id/ledger-balance
func (h *Handler) GetLedgerBalance(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	view, err := h.clients.Ledger(c.Request.Context(), agencyFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// =============================================================================
// PHOTO ENDPOINTS
// =============================================================================

// UploadClientPhoto stores or replaces the client photo
// POST /clients/:id/photo
func (h *Handler) UploadClientPhoto(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	photo, cleanup, err := photoFromForm(c, true)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer cleanup()

	client, err := h.clients.AttachPhoto(c.Request.Context(), agencyFrom(c), id, photo)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// GetClientPhoto redirects to a short-lived signed URL
// GET /clients/:id/photo
func (h *Handler) GetClientPhoto(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	link, err := h.clients.PhotoLink(c.Request.Context(), agencyFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, link)
}

// DeleteClientPhoto removes the client photo
// DELETE /clients/:id/photo
func (h *Handler) DeleteClientPhoto(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.clients.DeletePhoto(c.Request.Context(), agencyFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// FORM DECODING
// =============================================================================

// photoFromForm opens the "photo" file of a multipart request.
// cleanup is always safe to call.
func photoFromForm(c *gin.Context, required bool) (*engine.PhotoUpload, func(), error) {
	noop := func() {}
	header, err := c.FormFile("photo")
	if err != nil {
		if required {
			return nil, noop, apperrors.NewValidationError("photo", "photo file is required")
		}
		return nil, noop, nil
	}
	if header.Size > maxPhotoBytes {
		return nil, noop, apperrors.NewValidationError("photo", "photo exceeds 10 MB")
	}
	file, err := header.Open()
	if err != nil {
		return nil, noop, apperrors.NewBadRequestError("unreadable photo upload")
	}
	return &engine.PhotoUpload{
		Body:        file,
		Size:        header.Size,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, func() { file.Close() }, nil
}

// clientInputFromForm maps multipart fields onto ClientInput.
// Lists accept repeated keys or comma-separated values.
func clientInputFromForm(c *gin.Context) (engine.ClientInput, error) {
	in := engine.ClientInput{
		Name:               c.PostForm("name"),
		ClientType:         c.PostForm("client_type"),
		PAN:                formString(c, "pan"),
		GSTIN:              formString(c, "gstin"),
		Mobile:             formString(c, "mobile"),
		SecondaryPhone:     formString(c, "secondary_phone"),
		Email:              formString(c, "email"),
		AddressLine1:       formString(c, "address_line1"),
		AddressLine2:       formString(c, "address_line2"),
		City:               formString(c, "city"),
		State:              formString(c, "state"),
		PostalCode:         formString(c, "postal_code"),
		OpeningBalanceType: formString(c, "opening_balance_type"),
		ContactPersonName:  formString(c, "contact_person_name"),
		ContactPersonPhone: formString(c, "contact_person_phone"),
	}

	var err error
	if in.OrganizationID, err = formUUID(c, "organization_id"); err != nil {
		return in, err
	}
	if in.AssignedCAUserID, err = formUUID(c, "assigned_ca_user_id"); err != nil {
		return in, err
	}
	if in.DOB, err = formDate(c, "dob"); err != nil {
		return in, err
	}
	if in.DateOfBirth, err = formDate(c, "date_of_birth"); err != nil {
		return in, err
	}
	if in.OpeningBalanceDate, err = formDate(c, "opening_balance_date"); err != nil {
		return in, err
	}
	if raw := strings.TrimSpace(c.PostForm("opening_balance_amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return in, apperrors.NewValidationError("opening_balance_amount", "opening_balance_amount must be a number")
		}
		in.OpeningBalanceAmount = amount
	}

	flags := []struct {
		key    string
		target **bool
	}{
		{"is_active", &in.IsActive},
		{"can_login", &in.CanLogin},
		{"notify_client", &in.NotifyClient},
		{"gst_autofill_enabled", &in.GSTAutofillEnabled},
	}
	for _, f := range flags {
		if *f.target, err = formBool(c, f.key); err != nil {
			return in, err
		}
	}

	if in.UserIDs, err = formUUIDList(c, "user_ids"); err != nil {
		return in, err
	}
	if in.TagIDs, err = formUUIDList(c, "tag_ids"); err != nil {
		return in, err
	}
	return in, nil
}

func formString(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func formUUID(c *gin.Context, key string) (*uuid.UUID, error) {
	v := formString(c, key)
	if v == nil {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*v))
	if err != nil {
		return nil, apperrors.NewValidationError(key, "invalid "+key)
	}
	return &id, nil
}

func formDate(c *gin.Context, key string) (*engine.Date, error) {
	v := formString(c, key)
	if v == nil {
		return nil, nil
	}
	d, err := engine.ParseDate(*v)
	if err != nil {
		return nil, apperrors.NewValidationError(key, err.Error())
	}
	return &d, nil
}

func formBool(c *gin.Context, key string) (*bool, error) {
	v := formString(c, key)
	if v == nil {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(*v))
	if err != nil {
		return nil, apperrors.NewValidationError(key, key+" must be true or false")
	}
	return &b, nil
}

func formUUIDList(c *gin.Context, key string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, raw := range c.PostFormArray(key) {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, apperrors.NewValidationError(key, "invalid id in "+key)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
