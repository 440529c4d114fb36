package escrow

import (
	"context"
	"fmt"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// InitStripe initializes the Stripe API with the secret key.
func InitStripe() {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
}

// StripeGateway implements the escrow contract on Stripe: a hold is a
// manual-capture PaymentIntent, release is a capture, and refund is a partial
// refund against the intent. Stripe deduplicates by intent id, which keeps
// all three calls retriable.
type StripeGateway struct {
	Currency string
}

func NewStripeGateway(currency string) *StripeGateway {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{Currency: currency}
}

func (g *StripeGateway) CreateEscrow(ctx context.Context, bookingID string, amount int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(g.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", bookingID)
	params.SetIdempotencyKey("escrow-create-" + bookingID)

	intent, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe payment intent for booking %s: %w", bookingID, err)
	}
	return intent.ID, nil
}

func (g *StripeGateway) ReleaseEscrow(ctx context.Context, escrowID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("escrow-release-" + escrowID)

	if _, err := paymentintent.Capture(escrowID, params); err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// Already captured: a retried release is a no-op.
			return nil
		}
		return fmt.Errorf("stripe capture for escrow %s: %w", escrowID, err)
	}
	return nil
}

func (g *StripeGateway) RefundEscrow(ctx context.Context, escrowID string, amount int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(escrowID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey("escrow-refund-" + escrowID)

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("stripe refund for escrow %s: %w", escrowID, err)
	}
	return nil
}
