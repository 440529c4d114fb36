// Package escrow holds the clients for the external escrow gateway. The
// gateway owns the actual money movement; this package only speaks its narrow
// contract: create a hold, release it to the stylist, or refund part of it to
// the customer. All three calls are safe for the caller to retry.
package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPGateway talks to the escrow service over HTTP. Timeouts are enforced
// here, not by the settlement coordinator.
type HTTPGateway struct {
	BaseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type createEscrowRequest struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
}

type createEscrowResponse struct {
	EscrowID string `json:"escrow_id"`
}

type refundEscrowRequest struct {
	Amount int64 `json:"amount"`
}

// CreateEscrow places a hold for the booking's quoted amount and returns the
// gateway's opaque reference. The booking id doubles as the gateway-side
// idempotency key, so a retried create returns the existing hold.
func (g *HTTPGateway) CreateEscrow(ctx context.Context, bookingID string, amount int64) (string, error) {
	body, err := json.Marshal(createEscrowRequest{BookingID: bookingID, Amount: amount})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/api/escrows", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", bookingID)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("escrow gateway error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("escrow creation failed: status %d", resp.StatusCode)
	}

	var out createEscrowResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid escrow gateway response: %w", err)
	}
	if out.EscrowID == "" {
		return "", fmt.Errorf("escrow gateway returned empty escrow id")
	}
	return out.EscrowID, nil
}

// ReleaseEscrow pays the held amount out to the stylist. Idempotent by escrow
// reference on the gateway side.
func (g *HTTPGateway) ReleaseEscrow(ctx context.Context, escrowID string) error {
	url := fmt.Sprintf("%s/api/escrows/%s/release", g.BaseURL, escrowID)
	return g.post(ctx, url, nil)
}

// RefundEscrow returns part of the held amount to the customer. Idempotent by
// escrow reference on the gateway side.
func (g *HTTPGateway) RefundEscrow(ctx context.Context, escrowID string, amount int64) error {
	body, err := json.Marshal(refundEscrowRequest{Amount: amount})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/escrows/%s/refund", g.BaseURL, escrowID)
	return g.post(ctx, url, body)
}

func (g *HTTPGateway) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("escrow gateway error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("escrow gateway returned status %d", resp.StatusCode)
	}
	return nil
}
