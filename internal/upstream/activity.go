package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aethra/clientdesk/internal/activity"
)

// ActivityLogClient posts activity events to the finance service
type ActivityLogClient struct {
	httpClient *resty.Client
}

// NewActivityLogClient creates an activity.Emitter backed by the finance API
func NewActivityLogClient(financeAPIURL string, timeout time.Duration) *ActivityLogClient {
	return &ActivityLogClient{
		httpClient: newRestyClient(financeAPIURL, timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Emit implements activity.Emitter
func (c *ActivityLogClient) Emit(ctx context.Context, e activity.Event) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(e).
		Post("/activity-logs/")
	if err != nil {
		return fmt.Errorf("failed to call activity log: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("activity log returned status %d", resp.StatusCode())
	}
	return nil
}
