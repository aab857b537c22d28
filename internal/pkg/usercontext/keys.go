package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	KeyUserID        = "user_id"
	KeyUserEmail     = "user_email"
	KeyEmailVerified = "email_verified"
	KeyPaidAccess    = "paid_access"
	KeyFromProtected = "from_protected"
)
