package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/appgoblin/AppGoblin/internal/pkg/authgate"
	"github.com/appgoblin/AppGoblin/internal/pkg/usercontext"
)

func viewerFromCtx(c *fiber.Ctx) authgate.Viewer {
	u := usercontext.GetUserContext(c)
	return authgate.Viewer{
		LoggedIn:      u.IsLoggedIn,
		EmailVerified: u.EmailVerified,
		PaidAccess:    u.PaidAccess,
	}
}

func enforce(c *fiber.Ctx, d authgate.Decision) error {
	if d.Authorized {
		return c.Next()
	}
	return c.Redirect(d.RedirectTo, fiber.StatusSeeOther)
}

// RequireAuth ensures a logged-in session; otherwise redirects to login with
// the current path as the post-login return target.
func RequireAuth(c *fiber.Ctx) error {
	return enforce(c, authgate.RequireAuth(viewerFromCtx(c), c.Path()))
}

// RequireFullAuth ensures a logged-in session with a verified email address.
func RequireFullAuth(c *fiber.Ctx) error {
	return enforce(c, authgate.RequireFullAuth(viewerFromCtx(c), c.Path()))
}

// RequirePaidSubscription ensures full auth plus an active or trialing
// subscription; unpaid users land on the pricing page.
func RequirePaidSubscription(c *fiber.Ctx) error {
	return enforce(c, authgate.RequirePaidSubscription(viewerFromCtx(c)))
}

// RequireAPISessionAuth is the JSON flavor of RequireAuth for API routes:
// 401 instead of a redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}
