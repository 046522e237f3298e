// Package upstream holds HTTP clients for the sibling services this one depends on
package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aethra/clientdesk/internal/auth"
	apperrors "github.com/aethra/clientdesk/internal/errors"
	"github.com/aethra/clientdesk/internal/store"
)

// AgencyHeader carries the caller's agency to this and sibling services
const AgencyHeader = "X-Agency-ID"

// profileResponse is the subset of the login service profile we rely on
type profileResponse struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IdentityClient resolves bearer tokens through the login service
type IdentityClient struct {
	httpClient *resty.Client
	cache      store.KV
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewIdentityClient creates a login service client. cache may be nil.
func NewIdentityClient(loginURL string, timeout time.Duration, cache store.KV, cacheTTL time.Duration, logger *zap.Logger) *IdentityClient {
	return &IdentityClient{
		httpClient: newRestyClient(loginURL, timeout),
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Resolve returns the identity behind a bearer token.
// Rejected tokens yield UnauthorizedError, transport failures UpstreamUnavailableError.
func (c *IdentityClient) Resolve(ctx context.Context, token, agencyID string) (*auth.Identity, error) {
	key := profileCacheKey(token, agencyID)
	if body, ok := c.cached(ctx, key); ok {
		if id, err := decodeIdentity([]byte(body)); err == nil {
			return id, nil
		}
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token)
	if agencyID != "" {
		req.SetHeader(AgencyHeader, agencyID)
	}

	resp, err := req.Get("/profile/")
	if err != nil {
		c.logger.Warn("login service unreachable", zap.Error(err))
		return nil, apperrors.NewUpstreamUnavailableError("authentication service", err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.NewUnauthorizedError(errorDetail(resp.Body()))
	}

	id, err := decodeIdentity(resp.Body())
	if err != nil {
		c.logger.Error("invalid response from authentication service", zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}

	c.store(ctx, key, token, string(resp.Body()))
	return id, nil
}

func (c *IdentityClient) cached(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	body, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			c.logger.Warn("profile cache read failed", zap.Error(err))
		}
		return "", false
	}
	return body, true
}

func (c *IdentityClient) store(ctx context.Context, key, token, body string) {
	if c.cache == nil {
		return
	}
	ttl := auth.CacheTTL(token, c.cacheTTL, time.Now())
	if ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, body, ttl); err != nil {
		c.logger.Warn("profile cache write failed", zap.Error(err))
	}
}

func profileCacheKey(token, agencyID string) string {
	sum := sha256.Sum256([]byte(token + "|" + agencyID))
	return "profile:" + hex.EncodeToString(sum[:])
}

func decodeIdentity(body []byte) (*auth.Identity, error) {
	var p profileResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("profile id %q: %w", p.ID, err)
	}
	if p.Role == "" {
		return nil, fmt.Errorf("profile has no role")
	}
	return &auth.Identity{
		ID:    id,
		Role:  auth.Role(p.Role),
		Email: p.Email,
		Name:  p.Name,
	}, nil
}

// errorDetail pulls the "detail" message out of an upstream error body
func errorDetail(body []byte) string {
	var e struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if s, ok := e.Detail.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}
