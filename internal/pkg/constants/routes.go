package constants

// Static route constants
const (
	HomeRoute          = "/"
	LoginRoute         = "/auth/login"
	VerifyEmailRoute   = "/auth/verify-email"
	AccountRoute       = "/account"
	PricingRoute       = "/pricing"
	SubscribeRoute     = "/pricing/subscribe"
	PortalRoute        = "/account/portal"
	StripeWebhookRoute = "/api/stripe/webhook"
)
