package models

import "time"

// Subscription status tokens as delivered by Stripe. The layer treats the
// status as an opaque string except for the paid-access subset below.
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
)

// Subscription is the durable record of a user's billing state, one row per
// Stripe subscription id. A user may accumulate historical rows across plan
// changes and resubscriptions; rows are never deleted, cancellation is a
// status transition.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;index" json:"stripe_customer_id"`
	StripePriceID        string     `gorm:"type:varchar(191);not null" json:"stripe_price_id"`
	Status               string     `gorm:"type:varchar(32);not null;index" json:"status"`
	CurrentPeriodStart   time.Time  `gorm:"type:timestamp;not null" json:"current_period_start"`
	CurrentPeriodEnd     time.Time  `gorm:"type:timestamp;not null" json:"current_period_end"`
	CancelAt             *time.Time `gorm:"type:timestamp;default:null" json:"cancel_at,omitempty"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	TrialEnd             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	SeatsTotal           int        `gorm:"not null;default:1" json:"seats_total"`
	SeatsUsed            int        `gorm:"not null;default:0" json:"seats_used"`
	CreatedAt            time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPaid reports whether this row grants paid access.
func (s *Subscription) IsPaid() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}
