package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/appgoblin/AppGoblin/internal/pkg/billing"
	"github.com/appgoblin/AppGoblin/internal/pkg/constants"
	"github.com/appgoblin/AppGoblin/internal/pkg/env"
	"github.com/appgoblin/AppGoblin/internal/pkg/metrics/counter"
	"github.com/appgoblin/AppGoblin/internal/pkg/usercontext"
)

var billingService *billing.Service

// InitializeBillingController injects the billing service built at startup.
// The Stripe client lives inside the service; no controller talks to the
// provider directly.
func InitializeBillingController(svc *billing.Service) {
	billingService = svc
}

// HandleStripeWebhook receives provider webhook deliveries. Responding 200
// tells Stripe the event was received, not that reconciliation changed
// anything; 4xx/5xx responses trigger Stripe's own redelivery.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	if len(rawBody) > billing.MaxWebhookBodyBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payload_too_large"})
	}

	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := billing.ParseEvent(rawBody, signature, secret, env.IsDev())
	if err != nil {
		if errors.Is(err, billing.ErrSecretNotConfigured) {
			log.Printf("stripe webhook refused: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
		}
		log.Printf("stripe webhook rejected: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	created, stored, err := billingService.RecordWebhookEvent(billing.WebhookEventInput{
		StripeEventID:  event.ID,
		EventType:      string(event.Type),
		PayloadJSON:    string(rawBody),
		SignatureValid: secret != "",
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if err := counter.AddWebhookReceived(string(event.Type)); err != nil {
		log.Printf("webhook counter update failed: %v", err)
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	if !billing.IsReconcilableEvent(string(event.Type)) || event.Data == nil {
		_ = billingService.MarkWebhookProcessed(stored.ID, nil)
		log.Printf("ignoring stripe event type %s", event.Type)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	handleErr := billingService.HandleEvent(ctx, string(event.Type), event.Data.Raw)
	_ = billingService.MarkWebhookProcessed(stored.ID, handleErr)
	if handleErr != nil {
		if err := counter.AddWebhookFailed(string(event.Type)); err != nil {
			log.Printf("webhook counter update failed: %v", err)
		}
		log.Printf("stripe webhook handling failed for %s: %v\npayload: %s", event.ID, handleErr, rawBody)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_handling_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandleSubscribe starts a hosted checkout for the submitted price key and
// redirects the browser to Stripe.
func HandleSubscribe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	// Users with a live subscription manage it in the portal instead.
	if userCtx.PaidAccess {
		return c.Redirect(constants.AccountRoute, fiber.StatusSeeOther)
	}

	priceKey := strings.TrimSpace(c.FormValue("price_key", billing.PriceKeyAppDev))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := billingService.CreateCheckoutSession(ctx, userCtx.UserID, userCtx.Email, priceKey)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPriceKey) {
			return flash.WithError(c, fiber.Map{"type": "error", "message": "Unknown subscription plan"}).Redirect(constants.PricingRoute, fiber.StatusSeeOther)
		}
		log.Printf("checkout session for user %d failed: %v", userCtx.UserID, err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not start checkout, please try again"}).Redirect(constants.PricingRoute, fiber.StatusSeeOther)
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandlePortal redirects to the hosted billing-management portal.
func HandlePortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := billingService.CreatePortalSession(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNoLinkedCustomer) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_billing_account"})
		}
		log.Printf("portal session for user %d failed: %v", userCtx.UserID, err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not open the billing portal"}).Redirect(constants.AccountRoute, fiber.StatusSeeOther)
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}
