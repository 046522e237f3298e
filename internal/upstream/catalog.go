package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/aethra/clientdesk/internal/errors"
)

// CatalogClient proxies the service and organization catalogs and organization invites
type CatalogClient struct {
	services *resty.Client
	login    *resty.Client
	logger   *zap.Logger
}

// NewCatalogClient creates a catalog proxy
func NewCatalogClient(serviceAPIURL, loginURL string, timeout time.Duration, logger *zap.Logger) *CatalogClient {
	return &CatalogClient{
		services: newRestyClient(serviceAPIURL, timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		login: newRestyClient(loginURL, timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		logger: logger,
	}
}

// ListServices returns the service API's catalog as-is
func (c *CatalogClient) ListServices(ctx context.Context, token, agencyID string) (json.RawMessage, error) {
	req := c.services.R().SetContext(ctx).SetAuthToken(token)
	if agencyID != "" {
		req.SetHeader(AgencyHeader, agencyID)
	}
	return c.passthrough(req, "/services/", "service API")
}

// ListOrganizations returns the login service's organization list as-is
func (c *CatalogClient) ListOrganizations(ctx context.Context, token string) (json.RawMessage, error) {
	req := c.login.R().SetContext(ctx).SetAuthToken(token)
	return c.passthrough(req, "/organizations/", "login API")
}

// InviteOrganizationUser asks the login service to invite email into the organization
func (c *CatalogClient) InviteOrganizationUser(ctx context.Context, token string, orgID uuid.UUID, email string) error {
	resp, err := c.login.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"email": email}).
		Post("/organizations/" + orgID.String() + "/invites/")
	if err != nil {
		c.logger.Warn("login API unreachable", zap.Error(err))
		return apperrors.NewUpstreamUnavailableError("login API", err)
	}
	switch {
	case resp.IsSuccess():
		c.logger.Info("organization invite sent", zap.String("org_id", orgID.String()))
		return nil
	case resp.StatusCode() == http.StatusNotFound:
		return apperrors.NewNotFoundError("Organization")
	default:
		c.logger.Warn("login API rejected invite", zap.Int("status_code", resp.StatusCode()))
		return apperrors.NewUpstreamUnavailableError("login API", fmt.Errorf("status %d", resp.StatusCode()))
	}
}

func (c *CatalogClient) passthrough(req *resty.Request, path, upstream string) (json.RawMessage, error) {
	resp, err := req.Get(path)
	if err != nil {
		c.logger.Warn("catalog upstream unreachable", zap.String("upstream", upstream), zap.Error(err))
		return nil, apperrors.NewUpstreamUnavailableError(upstream, err)
	}
	if !resp.IsSuccess() {
		c.logger.Warn("catalog upstream returned error",
			zap.String("upstream", upstream),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, apperrors.NewUpstreamUnavailableError(upstream, fmt.Errorf("status %d", resp.StatusCode()))
	}
	if !json.Valid(resp.Body()) {
		return nil, apperrors.NewInternalError(fmt.Errorf("%s returned invalid JSON", upstream))
	}
	return json.RawMessage(resp.Body()), nil
}
