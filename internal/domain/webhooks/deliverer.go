package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradeconnect/server/internal/clock"
)

const DefaultDeliveryTimeout = 10 * time.Second

// Deliverer pushes a stored delivery to its endpoint. It is driven by the
// job queue, which owns retry scheduling; Deliver records the outcome and
// returns an error when the attempt should be retried.
type Deliverer struct {
	repo       Repository
	httpClient *http.Client
	clock      clock.Clock
}

func NewDeliverer(repo Repository, clk clock.Clock, timeout time.Duration) *Deliverer {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Deliverer{
		repo:       repo,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clk,
	}
}

func (d *Deliverer) Deliver(ctx context.Context, deliveryID string) error {
	delivery, err := d.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery == nil {
		return ErrDeliveryNotFound
	}
	if delivery.Status == DeliveryDelivered {
		return nil
	}

	endpoint, err := d.repo.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		return err
	}
	if endpoint == nil || !endpoint.Active {
		// Endpoint removed or paused since the event fired; drop quietly.
		return d.repo.MarkFailed(ctx, deliveryID, 0, "endpoint inactive", delivery.Attempts+1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(endpoint.Secret, delivery.Payload))
	req.Header.Set("X-TradeConnect-Event", delivery.EventType)
	req.Header.Set("X-TradeConnect-Delivery", delivery.ID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if markErr := d.repo.MarkFailed(ctx, deliveryID, 0, err.Error(), delivery.Attempts+1); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := fmt.Sprintf("endpoint returned %d", resp.StatusCode)
		if markErr := d.repo.MarkFailed(ctx, deliveryID, resp.StatusCode, reason, delivery.Attempts+1); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		return fmt.Errorf("deliver webhook: %s", reason)
	}

	return d.repo.MarkDelivered(ctx, deliveryID, resp.StatusCode, d.clock.Now())
}
