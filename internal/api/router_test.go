package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aethra/clientdesk/internal/activity"
	"github.com/aethra/clientdesk/internal/auth"
	"github.com/aethra/clientdesk/internal/config"
	"github.com/aethra/clientdesk/internal/database"
	"github.com/aethra/clientdesk/internal/engine"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/security"
	"github.com/aethra/clientdesk/internal/storage"
)

const (
	adminToken    = "admin-token"
	teamToken     = "team-token"
	downToken     = "down-token"
	testPhotoBase = "https://photos.test"
)

type fakeIdentity struct {
	identities map[string]*auth.Identity
}

func (f *fakeIdentity) Resolve(ctx context.Context, token, agencyID string) (*auth.Identity, error) {
	if token == downToken {
		return nil, apperrors.NewUpstreamUnavailableError("login", errors.New("connection refused"))
	}
	id, ok := f.identities[token]
	if !ok {
		return nil, apperrors.NewUnauthorizedError("Invalid token")
	}
	return id, nil
}

type fakeCatalog struct {
	services json.RawMessage
	err      error
	invites  []string
}

func (f *fakeCatalog) ListServices(ctx context.Context, token, agencyID string) (json.RawMessage, error) {
	return f.services, f.err
}

func (f *fakeCatalog) ListOrganizations(ctx context.Context, token string) (json.RawMessage, error) {
	return json.RawMessage(`[{"id":"org-1"}]`), f.err
}

func (f *fakeCatalog) InviteOrganizationUser(ctx context.Context, token string, orgID uuid.UUID, email string) error {
	if f.err != nil {
		return f.err
	}
	f.invites = append(f.invites, orgID.String()+"/"+email)
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *recordingEmitter) Emit(ctx context.Context, e activity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) byAction(action string) []activity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []activity.Event
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type testServer struct {
	router     *gin.Engine
	dispatcher *activity.Dispatcher
	emitter    *recordingEmitter
	catalog    *fakeCatalog
	objects    *storage.MemoryStore
	agencyID   uuid.UUID
	admin      *auth.Identity
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver:       database.DialectSQLite,
		DSN:          fmt.Sprintf("file:api_%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, zap.NewNop()))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cipher, err := security.NewFieldCipher("test-encryption-key")
	require.NoError(t, err)

	s := &testServer{
		emitter:  &recordingEmitter{},
		catalog:  &fakeCatalog{services: json.RawMessage(`[{"id":"svc-1","name":"GST filing"}]`)},
		objects:  storage.NewMemoryStore(testPhotoBase),
		agencyID: uuid.New(),
		admin:    &auth.Identity{ID: uuid.New(), Role: auth.RoleAgencyAdmin},
	}
	reg := prometheus.NewRegistry()
	s.dispatcher = activity.NewDispatcher(s.emitter, time.Second, zap.NewNop(), reg)

	engines := Engines{
		Clients:  engine.NewClientEngine(db, s.objects, s.dispatcher, time.Hour, zap.NewNop()),
		Portals:  engine.NewPortalEngine(db, cipher, zap.NewNop()),
		Services: engine.NewServiceLinkEngine(db, zap.NewNop()),
		Taxonomy: engine.NewTaxonomyEngine(db, zap.NewNop()),
		Settings: engine.NewSettingsEngine(db, zap.NewNop()),
	}
	identity := &fakeIdentity{identities: map[string]*auth.Identity{
		adminToken: s.admin,
		teamToken:  {ID: uuid.New(), Role: auth.RoleCATeam},
	}}
	handler := NewHandler(engines, identity, s.catalog, zap.NewNop(), "test")
	s.router = SetupRouter(handler, config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}, NewMetrics(reg), zap.NewNop())
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.authorize(req, token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(agencyHeader, s.agencyID.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func photoRequest(t *testing.T, method, path string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="photo"; filename="face.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// =============================================================================
// CLIENT LIFECYCLE
// =============================================================================

func TestClientLifecycle(t *testing.T) {
	s := newTestServer(t)
	org := uuid.New()

	w := s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{
		"name":            "Acme",
		"client_type":     "llp",
		"organization_id": org,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[engine.ClientRead](t, w)
	assert.NotEmpty(t, created.CustomerID)
	assert.Equal(t, "llp", created.ClientType)

	w = s.do(t, http.MethodPatch, "/clients/"+created.ID.String(), adminToken, map[string]interface{}{"name": "Acme Corp"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Acme Corp", decode[engine.ClientRead](t, w).Name)

	s.dispatcher.Wait()
	updates := s.emitter.byAction(activity.ActionClientUpdated)
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].Details, "Name: 'Acme' → 'Acme Corp'")
	assert.Equal(t, s.admin.ID, updates[0].UserID)
	require.NotNil(t, updates[0].ClientID)
	assert.Equal(t, created.ID, *updates[0].ClientID)

	w = s.do(t, http.MethodDelete, "/clients/"+created.ID.String(), adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/clients", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range decode[[]engine.ClientRead](t, w) {
		assert.NotEqual(t, created.ID, c.ID)
	}

	w = s.do(t, http.MethodGet, "/clients/"+created.ID.String(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.dispatcher.Wait()
	assert.Len(t, s.emitter.byAction(activity.ActionClientCreated), 1)
	assert.Len(t, s.emitter.byAction(activity.ActionClientDeleted), 1)
}

func TestCreateClientValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Acme", "client_type": "llp"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[map[string]interface{}](t, w)["error"])

	w = s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Solo", "client_type": "individual"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "solo", "client_type": "individual"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListClientsPaginatesWithHeader(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"One", "Two", "Three"} {
		w := s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": name, "client_type": "individual"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/clients?limit=2", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]engine.ClientRead](t, w), 2)
	cursor := w.Header().Get(nextCursorHeader)
	require.NotEmpty(t, cursor)

	w = s.do(t, http.MethodGet, "/clients?limit=2&cursor="+cursor, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]engine.ClientRead](t, w), 1)
	assert.Empty(t, w.Header().Get(nextCursorHeader))

	w = s.do(t, http.MethodGet, "/clients?limit=abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportClientsAsWorkbook(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Exported", "client_type": "individual"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/clients?format=xlsx", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clients.xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

// =============================================================================
// PORTALS
// =============================================================================

func TestPortalFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/portals", adminToken, map[string]string{"name": "GST", "login_url": "https://gst.gov.in"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	portal := decode[engine.PortalRead](t, w)

	w = s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Holder", "client_type": "individual"})
	require.Equal(t, http.StatusCreated, w.Code)
	client := decode[engine.ClientRead](t, w)
	base := "/clients/" + client.ID.String() + "/portals"

	w = s.do(t, http.MethodPost, base, adminToken, map[string]interface{}{
		"portal_id": portal.ID,
		"username":  "holder-login",
		"password":  "pa55",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cp := decode[engine.ClientPortalRead](t, w)
	assert.Equal(t, security.UsernameMask+"ogin", cp.UsernameMasked)
	assert.NotContains(t, w.Body.String(), "pa55")

	w = s.do(t, http.MethodGet, base+"/"+cp.ID.String(), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "holder-login")

	w = s.do(t, http.MethodGet, base+"/"+cp.ID.String()+"?reveal=true", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	secrets := decode[engine.ClientPortalWithSecrets](t, w)
	require.NotNil(t, secrets.Username)
	assert.Equal(t, "holder-login", *secrets.Username)

	w = s.do(t, http.MethodGet, base+"?reveal=true", teamToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, base+"/"+cp.ID.String(), adminToken, map[string]string{"username": "renamed-user"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, security.UsernameMask+"user", decode[engine.ClientPortalRead](t, w).UsernameMasked)

	w = s.do(t, http.MethodDelete, base+"/"+cp.ID.String(), adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, base+"/"+cp.ID.String(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortalCatalogIsRoleGated(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/portals", teamToken, map[string]string{"name": "MCA", "login_url": "https://mca.gov.in"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/portals", teamToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// PHOTOS
// =============================================================================

func TestPhotoUploadRedirectAndDelete(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Pictured", "client_type": "individual"})
	require.Equal(t, http.StatusCreated, w.Code)
	client := decode[engine.ClientRead](t, w)
	photoPath := "/clients/" + client.ID.String() + "/photo"

	req := photoRequest(t, http.MethodPost, photoPath, nil)
	s.authorize(req, adminToken)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[engine.ClientRead](t, w)
	require.NotNil(t, updated.PhotoURL)

	w = s.do(t, http.MethodGet, photoPath, adminToken, nil)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.NotEmpty(t, location)
	assert.NotEqual(t, *updated.PhotoURL, location)

	w = s.do(t, http.MethodDelete, photoPath, adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, photoPath, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateClientFromMultipartForm(t *testing.T) {
	s := newTestServer(t)
	tag := s.do(t, http.MethodPost, "/settings/tags", adminToken, map[string]string{"name": "VIP"})
	require.Equal(t, http.StatusCreated, tag.Code, tag.Body.String())
	tagID := decode[engine.TagRead](t, tag).ID

	req := photoRequest(t, http.MethodPost, "/clients", map[string]string{
		"name":        "Form client",
		"client_type": "individual",
		"is_active":   "false",
		"tag_ids":     tagID.String(),
	})
	s.authorize(req, adminToken)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[engine.ClientRead](t, w)
	assert.False(t, created.IsActive)
	require.NotNil(t, created.PhotoURL)
	require.Len(t, created.Tags, 1)
	assert.Equal(t, "VIP", created.Tags[0].Name)
}

// =============================================================================
// SERVICES AND SETTINGS
// =============================================================================

func TestServiceLinks(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Served", "client_type": "individual"})
	require.Equal(t, http.StatusCreated, w.Code)
	client := decode[engine.ClientRead](t, w)
	path := "/services/" + client.ID.String() + "/services"
	service := uuid.New()

	body := []map[string]interface{}{{"service_id": service}}
	w = s.do(t, http.MethodPost, path, adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, path, adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, decode[[]engine.ServiceLink](t, w))

	w = s.do(t, http.MethodGet, path, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]engine.ServiceLink](t, w), 1)

	w = s.do(t, http.MethodDelete, path, adminToken, map[string]interface{}{"service_ids": []uuid.UUID{service}})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/services", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"svc-1","name":"GST filing"}]`, w.Body.String())
}

func TestInviteOrganizationUser(t *testing.T) {
	s := newTestServer(t)
	org := uuid.New()
	path := "/clients/invites/organization-user"

	w := s.do(t, http.MethodPost, path, adminToken, map[string]interface{}{"org_id": org, "email": " New.User@Example.com "})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, []string{org.String() + "/new.user@example.com"}, s.catalog.invites)

	w = s.do(t, http.MethodPost, path, adminToken, map[string]interface{}{"org_id": org, "email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[map[string]string](t, w)["error"])

	w = s.do(t, http.MethodPost, path, adminToken, map[string]interface{}{"email": "a@b.co"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, s.catalog.invites, 1)
}

func TestGeneralSettingControlsDuplicates(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/settings/general", adminToken, map[string]bool{"allow_duplicates": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/settings/general", adminToken, map[string]bool{"allow_duplicates": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/clients", adminToken, map[string]interface{}{"name": "Twin", "client_type": "individual"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/settings/agency", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, s.agencyID, decode[engine.AgencySettingRead](t, w).AgencyID)
}

// =============================================================================
// AUTH AND UPSTREAMS
// =============================================================================

func TestAuthFailures(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/clients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated", decode[map[string]interface{}](t, w)["message"])

	w = s.do(t, http.MethodGet, "/clients", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/clients", downToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/clients", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set(agencyHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogProxyUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.catalog.err = apperrors.NewUpstreamUnavailableError("services", errors.New("timeout"))

	w := s.do(t, http.MethodGet, "/services", adminToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/organizations", adminToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]interface{}](t, w)["status"])

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}
