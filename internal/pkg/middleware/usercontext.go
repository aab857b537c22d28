package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/appgoblin/AppGoblin/internal/pkg/billing"
	"github.com/appgoblin/AppGoblin/internal/pkg/session"
	"github.com/appgoblin/AppGoblin/internal/pkg/usercontext"
)

// paidAccessResolver is asked for the viewer's subscription state on every
// cache miss. Wired to the billing service at startup.
var paidAccessResolver func(userID uint) (bool, error)

// SetPaidAccessResolver injects the subscription lookup used by
// UserContextMiddleware. Passing the billing service keeps this package free
// of a direct database dependency.
func SetPaidAccessResolver(svc *billing.Service) {
	if svc == nil {
		paidAccessResolver = nil
		return
	}
	paidAccessResolver = svc.CachedPaidAccess
}

// UserContextMiddleware populates the request-scoped user context from the
// session for every request. Paid access comes from the billing service,
// which caches the answer in Redis and invalidates it when webhook
// reconciliation changes the user's subscription.
func UserContextMiddleware(c *fiber.Ctx) error {
	anonymous := func() error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return anonymous()
	}

	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		return anonymous()
	}

	email := session.GetSessionValue(c, usercontext.KeyUserEmail)
	emailVerified := session.GetSessionValue(c, usercontext.KeyEmailVerified) == "true"

	paidAccess := false
	if paidAccessResolver != nil {
		paid, err := paidAccessResolver(userID)
		if err != nil {
			// Fail closed; the next request retries the lookup.
			log.Printf("paid access lookup for user %d failed: %v", userID, err)
		} else {
			paidAccess = paid
		}
	}

	c.Locals("USER_CONTEXT", usercontext.UserContext{
		UserID:        userID,
		Email:         email,
		IsLoggedIn:    true,
		EmailVerified: emailVerified,
		PaidAccess:    paidAccess,
	})
	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUserID, userID)
	return c.Next()
}
