// Package payment parses invoice lifecycle webhooks from payment providers.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/artpar/relayledger/ports"
)

// ErrMissingInvoiceID is returned when an invoice event carries no invoice id.
var ErrMissingInvoiceID = errors.New("payment: event has no invoice id")

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	WebhookSecret string
}

// StripeWebhooks implements ports.InvoiceWebhookParser for Stripe.
type StripeWebhooks struct {
	config StripeConfig
}

// NewStripeWebhooks creates a Stripe webhook parser.
func NewStripeWebhooks(config StripeConfig) (*StripeWebhooks, error) {
	if config.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is required")
	}
	return &StripeWebhooks{config: config}, nil
}

// Name returns the provider name.
func (p *StripeWebhooks) Name() string {
	return "stripe"
}

// ParseInvoiceEvent verifies the signature and classifies the event.
// Events unrelated to invoice payment come back as InvoiceEventIgnored.
func (p *StripeWebhooks) ParseInvoiceEvent(payload []byte, signature string) (ports.InvoiceEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return ports.InvoiceEvent{}, err
	}

	out := ports.InvoiceEvent{
		ID:      event.ID,
		RawType: string(event.Type),
		Type:    mapStripeEvent(event.Type),
	}
	if out.Type == ports.InvoiceEventIgnored {
		return out, nil
	}

	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return ports.InvoiceEvent{}, fmt.Errorf("decode invoice: %w", err)
	}
	if inv.ID == "" {
		return ports.InvoiceEvent{}, ErrMissingInvoiceID
	}
	out.ProviderInvoiceID = inv.ID
	return out, nil
}

func mapStripeEvent(t stripe.EventType) ports.InvoiceEventType {
	switch t {
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentSucceeded:
		return ports.InvoiceEventPaid
	case stripe.EventTypeInvoicePaymentFailed:
		return ports.InvoiceEventFailed
	default:
		return ports.InvoiceEventIgnored
	}
}

var _ ports.InvoiceWebhookParser = (*StripeWebhooks)(nil)
