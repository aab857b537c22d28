package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/appgoblin/AppGoblin/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	UserByID(userID uint) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	UserByStripeCustomerID(customerID string) (*models.User, error)
	// LinkStripeCustomerIfAbsent stores customerID on the user only when no
	// customer is linked yet, and returns the id that ends up on the row. A
	// concurrent first-time link wins by being read back instead of
	// overwritten.
	LinkStripeCustomerIfAbsent(userID uint, customerID string) (string, error)
	// LinkStripeCustomer unconditionally links customerID to the user. Used
	// by the reconciler to repair mappings found via metadata or email.
	LinkStripeCustomer(userID uint, customerID string) error
	// UpsertSubscription inserts or updates the row keyed by
	// StripeSubscriptionID and refreshes sub with the stored state.
	// periodsSynthesized marks period dates the caller substituted because
	// the delivery carried none; those never participate in the stale-event
	// comparison and never overwrite real stored dates.
	UpsertSubscription(sub *models.Subscription, periodsSynthesized bool) error
	LatestSubscription(userID uint) (*models.Subscription, error)
	LatestPaidSubscription(userID uint) (*models.Subscription, error)
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) UserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) UserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) UserByStripeCustomerID(customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) LinkStripeCustomerIfAbsent(userID uint, customerID string) (string, error) {
	res := r.db.Model(&models.User{}).
		Where("id = ? AND stripe_customer_id IS NULL", userID).
		Update("stripe_customer_id", customerID)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return "", res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return customerID, nil
	}

	// Either another writer linked a customer first or the conditional update
	// hit the unique index; adopt whatever the row holds now.
	user, err := r.UserByID(userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", gorm.ErrRecordNotFound
	}
	return *user.StripeCustomerID, nil
}

func (r *gormRepository) LinkStripeCustomer(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", customerID).Error
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription, periodsSynthesized bool) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if createErr := tx.Create(sub).Error; createErr != nil {
				if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
					return createErr
				}
				// Concurrent delivery won the insert; apply as update.
				if err := tx.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(&existing).Error; err != nil {
					return err
				}
				return applySubscriptionUpdate(tx, &existing, sub, periodsSynthesized)
			}
			return nil
		}
		if err != nil {
			return err
		}
		return applySubscriptionUpdate(tx, &existing, sub, periodsSynthesized)
	})
	if err != nil {
		return err
	}

	// Refresh sub with the stored row after the upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(sub).Error
}

func applySubscriptionUpdate(tx *gorm.DB, existing, incoming *models.Subscription, periodsSynthesized bool) error {
	updates, apply := mergeSubscriptionUpdate(existing, incoming, periodsSynthesized)
	if !apply {
		return nil
	}
	return tx.Model(&models.Subscription{}).Where("id = ?", existing.ID).Updates(updates).Error
}

// mergeSubscriptionUpdate decides how an incoming delivery lands on an
// existing row. Only the mutable fields are overwritten; user_id,
// stripe_customer_id and the seat counters are sticky from the first insert.
// A delivery whose period end is older than the stored one is dropped
// entirely so out-of-order webhooks cannot regress state. Synthesized period
// dates carry no ordering information: they skip that comparison and leave
// the stored period columns untouched, so a delivery without period fields
// (a cancellation, typically) still lands.
func mergeSubscriptionUpdate(existing, incoming *models.Subscription, periodsSynthesized bool) (map[string]interface{}, bool) {
	if !periodsSynthesized && incoming.CurrentPeriodEnd.Before(existing.CurrentPeriodEnd) {
		return nil, false
	}
	updates := map[string]interface{}{
		"status":          incoming.Status,
		"stripe_price_id": incoming.StripePriceID,
		"cancel_at":       incoming.CancelAt,
		"canceled_at":     incoming.CanceledAt,
		"trial_end":       incoming.TrialEnd,
		"updated_at":      time.Now(),
	}
	if !periodsSynthesized {
		updates["current_period_start"] = incoming.CurrentPeriodStart
		updates["current_period_end"] = incoming.CurrentPeriodEnd
	}
	return updates, true
}

func (r *gormRepository) LatestSubscription(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) LatestPaidSubscription(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("stripe_event_id = ?", event.StripeEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
