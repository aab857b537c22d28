package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/appgoblin/AppGoblin/internal/pkg/billing"
	"github.com/appgoblin/AppGoblin/internal/pkg/cache"
	"github.com/appgoblin/AppGoblin/internal/pkg/database"
	"github.com/appgoblin/AppGoblin/internal/pkg/env"
	"github.com/appgoblin/AppGoblin/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Deliveries without a configured secret are rejected per-request
	// outside dev; surface the misconfiguration at startup too.
	if !env.IsDev() && env.GetEnv("STRIPE_WEBHOOK_SECRET", "") == "" {
		log.Println("warning: STRIPE_WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}
	if missing := billing.LoadPriceMapFromEnv().MissingKeys(); len(missing) > 0 {
		log.Printf("warning: unmapped price keys: %v", missing)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: billing.MaxWebhookBodyBytes,
	})

	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}
