package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID        uint   `json:"user_id"`
	Email         string `json:"email"`
	IsLoggedIn    bool   `json:"is_logged_in"`
	EmailVerified bool   `json:"email_verified"`
	PaidAccess    bool   `json:"paid_access"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals("USER_CONTEXT"); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// HasPaidAccess reports whether the current user holds an active or trialing
// subscription.
func HasPaidAccess(c *fiber.Ctx) bool {
	return GetUserContext(c).PaidAccess
}
