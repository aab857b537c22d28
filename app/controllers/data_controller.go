package controllers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/appgoblin/AppGoblin/internal/pkg/apiclient"
	"github.com/appgoblin/AppGoblin/internal/pkg/usercontext"
)

var dataAPI *apiclient.Client

// InitializeDataController injects the backend data API client.
func InitializeDataController(client *apiclient.Client) {
	dataAPI = client
}

// HandleUserApps proxies the viewer's tracked apps from the data backend.
func HandleUserApps(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var apps []map[string]any
	err := dataAPI.Get(c.UserContext(), "/apps", "user-apps", &apps, apiclient.WithUserID(userCtx.UserID))
	if err != nil {
		return dataAPIError(c, "user-apps", err)
	}
	return c.JSON(fiber.Map{"apps": apps})
}

// HandleUserRequests proxies the viewer's API request history.
func HandleUserRequests(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var requests []map[string]any
	err := dataAPI.Get(c.UserContext(), "/requests", "user-requests", &requests, apiclient.WithUserID(userCtx.UserID))
	if err != nil {
		return dataAPIError(c, "user-requests", err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

func dataAPIError(c *fiber.Ctx, name string, err error) error {
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) {
		return c.Status(statusErr.StatusCode).JSON(fiber.Map{"error": statusErr.Message})
	}
	if errors.Is(err, context.Canceled) {
		return c.SendStatus(fiber.StatusRequestTimeout)
	}
	log.Printf("data api call %s failed: %v", name, err)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "backend_unavailable"})
}
