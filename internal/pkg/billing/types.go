package billing

import (
	"errors"
	"time"
)

// Failure taxonomy. Controllers translate these into HTTP statuses; anything
// else bubbles up as a generic 500.
var (
	// ErrInvalidPriceKey is returned for checkout requests with an unmapped
	// price selector. No provider resources are created.
	ErrInvalidPriceKey = errors.New("invalid stripe price key")
	// ErrNoLinkedCustomer is returned when a portal session is requested for
	// a user without a linked Stripe customer. No provider call is made.
	ErrNoLinkedCustomer = errors.New("user does not have a stripe customer id")
	// ErrSignatureVerification covers webhook deliveries whose signature does
	// not verify against the configured secret.
	ErrSignatureVerification = errors.New("webhook signature verification failed")
	// ErrMalformedPayload covers webhook bodies that do not parse as events.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrSecretNotConfigured is returned outside dev mode when no webhook
	// signing secret is configured. The secret is mandatory in production.
	ErrSecretNotConfigured = errors.New("stripe webhook secret is not configured")
)

// Customer is the provider customer subset the reconciler needs.
type Customer struct {
	ID       string
	Email    string
	Metadata map[string]string
}

// CheckoutSessionObject is the data.object payload of a
// checkout.session.completed event. Customer and Subscription arrive as plain
// ids on webhook payloads.
type CheckoutSessionObject struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// SubscriptionObject is the provider subscription shape used by the
// reconciler. It is parsed from raw webhook JSON (or converted from an SDK
// retrieval) rather than taken from SDK event types, because the period
// fields have moved between the subscription and its line items across
// provider API versions and both locations must be readable.
type SubscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAt           int64             `json:"cancel_at"`
	CanceledAt         int64             `json:"canceled_at"`
	TrialEnd           int64             `json:"trial_end"`
	Items              SubscriptionItems `json:"items"`
}

type SubscriptionItems struct {
	Data []SubscriptionItem `json:"data"`
}

type SubscriptionItem struct {
	Price              PriceRef `json:"price"`
	CurrentPeriodStart int64    `json:"current_period_start"`
	CurrentPeriodEnd   int64    `json:"current_period_end"`
}

type PriceRef struct {
	ID string `json:"id"`
}

// PriceID returns the price id of the first line item.
func (s *SubscriptionObject) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// PeriodStart prefers the top-level field and falls back to the first line
// item. Returns 0 when neither location carries a value.
func (s *SubscriptionObject) PeriodStart() int64 {
	if s.CurrentPeriodStart != 0 {
		return s.CurrentPeriodStart
	}
	if len(s.Items.Data) > 0 {
		return s.Items.Data[0].CurrentPeriodStart
	}
	return 0
}

// PeriodEnd prefers the top-level field and falls back to the first line item.
func (s *SubscriptionObject) PeriodEnd() int64 {
	if s.CurrentPeriodEnd != 0 {
		return s.CurrentPeriodEnd
	}
	if len(s.Items.Data) > 0 {
		return s.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	StripeEventID  string
	EventType      string
	PayloadJSON    string
	SignatureValid bool
}

func unixTime(v int64, fallback time.Time) time.Time {
	if v == 0 {
		return fallback
	}
	return time.Unix(v, 0).UTC()
}

func unixTimePtr(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}
