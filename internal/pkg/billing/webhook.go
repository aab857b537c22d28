package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Webhook event types this layer reconciles. Everything else is logged and
// ignored.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// MaxWebhookBodyBytes bounds webhook request bodies.
const MaxWebhookBodyBytes = 1 << 20 // 1 MiB

// IsReconcilableEvent reports whether eventType dispatches to the reconciler.
func IsReconcilableEvent(eventType string) bool {
	switch eventType {
	case EventCheckoutSessionCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	default:
		return false
	}
}

// ParseEvent authenticates and parses a webhook delivery.
//
// With a configured secret the body must verify against the Stripe-Signature
// header; mismatches and unparsable payloads fail with
// ErrSignatureVerification. Without a secret the body is parsed as plain JSON,
// but only when allowInsecure is set (dev mode) — in any other mode a missing
// secret is a configuration error, never a downgrade to unauthenticated
// processing.
func ParseEvent(payload []byte, signatureHeader, secret string, allowInsecure bool) (*stripe.Event, error) {
	secret = strings.TrimSpace(secret)
	if secret != "" {
		event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
		}
		return &event, nil
	}

	if !allowInsecure {
		return nil, ErrSecretNotConfigured
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &event, nil
}
