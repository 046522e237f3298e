package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aethra/clientdesk/internal/activity"
	"github.com/aethra/clientdesk/internal/auth"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/store"
)

func profileServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, "/profile/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentityResolve(t *testing.T) {
	uid := uuid.New()
	agency := uuid.New().String()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, agency, r.Header.Get(AgencyHeader))
		json.NewEncoder(w).Encode(map[string]string{"id": uid.String(), "role": "AGENCY_ADMIN", "email": "a@b.c"})
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, time.Second, nil, time.Minute, zap.NewNop())
	id, err := c.Resolve(context.Background(), "tok", agency)
	require.NoError(t, err)
	assert.Equal(t, uid, id.ID)
	assert.Equal(t, auth.RoleAgencyAdmin, id.Role)
	assert.Equal(t, "a@b.c", id.Email)
}

func TestIdentityRejectedToken(t *testing.T) {
	srv := profileServer(t, http.StatusUnauthorized, `{"detail":"Token expired"}`, nil)
	c := NewIdentityClient(srv.URL, time.Second, nil, time.Minute, zap.NewNop())

	_, err := c.Resolve(context.Background(), "tok", "")
	var ue *apperrors.UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Token expired", ue.Error())
}

func TestIdentityMalformedBody(t *testing.T) {
	srv := profileServer(t, http.StatusOK, `not json`, nil)
	c := NewIdentityClient(srv.URL, time.Second, nil, time.Minute, zap.NewNop())

	_, err := c.Resolve(context.Background(), "tok", "")
	var ie *apperrors.InternalError
	assert.ErrorAs(t, err, &ie)
}

func TestIdentityUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewIdentityClient(url, time.Second, nil, time.Minute, zap.NewNop())
	_, err := c.Resolve(context.Background(), "tok", "")
	status, _ := apperrors.ToHTTPError(err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestIdentityCachesProfile(t *testing.T) {
	var hits int32
	srv := profileServer(t, http.StatusOK, `{"id":"`+uuid.NewString()+`","role":"CA_TEAM"}`, &hits)

	mr := miniredis.RunT(t)
	kv := store.NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	c := NewIdentityClient(srv.URL, time.Second, kv, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		id, err := c.Resolve(context.Background(), "tok", "")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleCATeam, id.Role)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	mr.FastForward(2 * time.Minute)
	_, err := c.Resolve(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCatalogPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/services/":
			w.Write([]byte(`[{"id":"s1","name":"GST filing"}]`))
		case "/organizations/":
			w.Write([]byte(`[{"id":"o1"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.URL, time.Second, zap.NewNop())
	services, err := c.ListServices(context.Background(), "tok", "agency")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"s1","name":"GST filing"}]`, string(services))

	orgs, err := c.ListOrganizations(context.Background(), "tok")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"o1"}]`, string(orgs))
}

func TestCatalogUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.URL, time.Second, zap.NewNop())
	_, err := c.ListOrganizations(context.Background(), "tok")
	status, _ := apperrors.ToHTTPError(err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestInviteOrganizationUser(t *testing.T) {
	org := uuid.New()
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.URL.Path != "/organizations/"+org.String()+"/invites/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.URL, time.Second, zap.NewNop())
	require.NoError(t, c.InviteOrganizationUser(context.Background(), "tok", org, "a@b.co"))
	assert.Equal(t, "a@b.co", body["email"])

	err := c.InviteOrganizationUser(context.Background(), "tok", uuid.New(), "a@b.co")
	status, _ := apperrors.ToHTTPError(err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestActivityLogEmit(t *testing.T) {
	var got activity.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/activity-logs/", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewActivityLogClient(srv.URL, time.Second)
	cid := uuid.New()
	err := c.Emit(context.Background(), activity.Event{
		UserID: uuid.New(), Action: activity.ActionClientUpdated, Details: "x", ClientID: &cid,
	})
	require.NoError(t, err)
	assert.Equal(t, activity.ActionClientUpdated, got.Action)
	assert.Equal(t, cid, *got.ClientID)
}

func TestActivityLogEmitFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewActivityLogClient(srv.URL, time.Second)
	assert.Error(t, c.Emit(context.Background(), activity.Event{Action: "x"}))
}
