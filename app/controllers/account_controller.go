package controllers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/appgoblin/AppGoblin/internal/pkg/entitlements"
	"github.com/appgoblin/AppGoblin/internal/pkg/usercontext"
)

// HandleAccount returns the viewer's account state with the latest
// subscription row, if any.
func HandleAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sub, err := billingService.CurrentSubscription(userCtx.UserID)
	if err != nil {
		log.Printf("loading subscription for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}

	resp := fiber.Map{
		"user": fiber.Map{
			"id":             userCtx.UserID,
			"email":          userCtx.Email,
			"email_verified": userCtx.EmailVerified,
		},
		"subscription": nil,
		"plan":         entitlements.PlanFree,
		"features":     entitlements.ForPlan(entitlements.PlanFree),
	}
	if sub != nil {
		plan := entitlements.PlanForPriceKey(billingService.PriceKeyFor(sub.StripePriceID))
		if sub.IsPaid() {
			resp["plan"] = plan
			resp["features"] = entitlements.ForPlan(plan)
		}
		resp["subscription"] = fiber.Map{
			"status":             sub.Status,
			"price_id":           sub.StripePriceID,
			"current_period_end": formatTimePtr(&sub.CurrentPeriodEnd),
			"cancel_at":          formatTimePtr(sub.CancelAt),
			"canceled_at":        formatTimePtr(sub.CanceledAt),
			"paid_access":        sub.IsPaid(),
		}
	}

	return c.JSON(resp)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
