package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/appgoblin/AppGoblin/app/controllers"
	"github.com/appgoblin/AppGoblin/internal/pkg/billing"
	"github.com/appgoblin/AppGoblin/internal/pkg/constants"
	"github.com/appgoblin/AppGoblin/internal/pkg/database"
	"github.com/appgoblin/AppGoblin/internal/pkg/middleware"
	"github.com/appgoblin/AppGoblin/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Build the billing service once and hand it to everything that needs
	// it. The Stripe client is the only place the secret key is read.
	billingService := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv())
	controllers.InitializeBillingController(billingService)
	middleware.SetPaidAccessResolver(billingService)

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerBillingRoutes(app)
}

func (h HttpRouter) registerBillingRoutes(app *fiber.App) {
	app.Get(constants.AccountRoute, middleware.RequireAuth, controllers.HandleAccount)
	app.Post(constants.PortalRoute, middleware.RequireFullAuth, controllers.HandlePortal)
	app.Post(constants.SubscribeRoute, middleware.RequireFullAuth, controllers.HandleSubscribe)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
