package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/appgoblin/AppGoblin/app/controllers"
	"github.com/appgoblin/AppGoblin/internal/pkg/apiclient"
	"github.com/appgoblin/AppGoblin/internal/pkg/constants"
	"github.com/appgoblin/AppGoblin/internal/pkg/metrics/counter"
	"github.com/appgoblin/AppGoblin/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhook deliveries are signature-authenticated and retried by Stripe
	// on failure, so they stay outside the rate limiter.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	api := app.Group("/api", limiter.New())
	api.Get("/health", func(ctx *fiber.Ctx) error {
		resp := fiber.Map{"status": "ok"}
		if received, failed, err := counter.Snapshot(); err == nil {
			resp["webhooks_received"] = received
			resp["webhooks_failed"] = failed
		}
		return ctx.Status(fiber.StatusOK).JSON(resp)
	})

	controllers.InitializeDataController(apiclient.NewFromEnv())
	me := api.Group("/me", middleware.RequireAPISessionAuth)
	me.Get("/apps", controllers.HandleUserApps)
	me.Get("/requests", controllers.HandleUserRequests)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
