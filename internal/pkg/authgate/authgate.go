// Package authgate decides whether a request may proceed to a guarded route.
// Guards return an explicit Decision value instead of aborting control flow,
// so callers (Fiber middleware, tests) handle the redirect themselves.
package authgate

import (
	"net/url"
	"strings"

	"github.com/appgoblin/AppGoblin/internal/pkg/constants"
)

// Decision is the outcome of a route guard. When Authorized is false,
// RedirectTo carries the target the caller should send the user to.
type Decision struct {
	Authorized bool
	RedirectTo string
}

func allow() Decision {
	return Decision{Authorized: true}
}

func deny(target string) Decision {
	return Decision{Authorized: false, RedirectTo: target}
}

// Viewer is the subset of user state the guards need.
type Viewer struct {
	LoggedIn      bool
	EmailVerified bool
	PaidAccess    bool
}

// LoginURL builds the login URL with an optional redirectTo back-reference.
func LoginURL(redirectTo string) string {
	if redirectTo == "" {
		return constants.LoginRoute
	}
	return constants.LoginRoute + "?redirectTo=" + url.QueryEscape(redirectTo)
}

// RequireAuth admits logged-in viewers; everyone else is sent to login with
// redirectTo set to currentPath so they return after signing in.
func RequireAuth(v Viewer, currentPath string) Decision {
	if !v.LoggedIn {
		return deny(LoginURL(currentPath))
	}
	return allow()
}

// RequireEmailVerified must be checked after RequireAuth.
func RequireEmailVerified(v Viewer) Decision {
	if !v.EmailVerified {
		return deny(constants.VerifyEmailRoute)
	}
	return allow()
}

// RequireFullAuth combines the login and email-verification gates.
func RequireFullAuth(v Viewer, currentPath string) Decision {
	if d := RequireAuth(v, currentPath); !d.Authorized {
		return d
	}
	return RequireEmailVerified(v)
}

// RequirePaidSubscription admits viewers whose latest subscription is active
// or trialing; everyone else is sent to the pricing page.
func RequirePaidSubscription(v Viewer) Decision {
	if !v.LoggedIn || !v.PaidAccess {
		return deny(constants.PricingRoute)
	}
	return allow()
}

// RedirectIfAuthenticated keeps signed-in viewers off auth pages (login,
// signup). A valid redirectTo query value wins over the home page.
func RedirectIfAuthenticated(v Viewer, redirectTo string) Decision {
	if !v.LoggedIn {
		return allow()
	}
	if !v.EmailVerified {
		return deny(constants.VerifyEmailRoute)
	}
	if IsSafeRedirect(redirectTo) {
		return deny(redirectTo)
	}
	return deny(constants.HomeRoute)
}

// IsSafeRedirect accepts same-origin paths only, and keeps auth pages out to
// avoid redirect loops.
func IsSafeRedirect(value string) bool {
	if value == "" {
		return false
	}
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return false
	}
	if strings.HasPrefix(value, "/auth") {
		return false
	}
	return true
}
