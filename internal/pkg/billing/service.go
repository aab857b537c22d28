package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/appgoblin/AppGoblin/app/models"
	"github.com/appgoblin/AppGoblin/internal/pkg/env"
)

// Service reconciles Stripe state into local subscription rows and creates
// provider-hosted checkout/portal sessions.
type Service struct {
	repo     Repository
	provider ProviderAPI
	prices   PriceMap
	baseURL  string

	// invalidateAccess drops a user's cached paid-access answer after a
	// subscription row changes. Swapped out in tests.
	invalidateAccess func(userID uint)
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, provider ProviderAPI, prices PriceMap, baseURL string) *Service {
	return &Service{
		repo:             repo,
		provider:         provider,
		prices:           prices,
		baseURL:          strings.TrimRight(baseURL, "/"),
		invalidateAccess: InvalidatePaidAccess,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle, reading
// the price map and public base URL from the environment.
func NewServiceFromDB(db *gorm.DB, provider ProviderAPI) *Service {
	return NewService(NewRepository(db), provider, LoadPriceMapFromEnv(), env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"))
}

// EnsureCustomer returns the user's Stripe customer id, creating and linking
// a provider customer on first use. The customer is tagged with the internal
// user id so webhook processing can resolve the user even before the link
// lands.
func (s *Service) EnsureCustomer(ctx context.Context, userID uint, email string) (string, error) {
	user, err := s.repo.UserByID(userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	cust, err := s.provider.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	linked, err := s.repo.LinkStripeCustomerIfAbsent(userID, cust.ID)
	if err != nil {
		return "", err
	}
	if linked != cust.ID {
		// A concurrent call linked first; its customer id wins and the one we
		// just created stays unused at the provider.
		log.Printf("stripe customer race for user %d: created %s, adopting %s", userID, cust.ID, linked)
	}
	return linked, nil
}

// CreateCheckoutSession creates a subscription-mode hosted checkout session
// and returns its URL. The price selector is validated before any provider
// resource is touched.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, email, priceKey string) (string, error) {
	priceID, err := s.prices.Resolve(priceKey)
	if err != nil {
		return "", err
	}

	customerID, err := s.EnsureCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	url, err := s.provider.CreateCheckoutSession(ctx, customerID, priceID,
		s.baseURL+"/account?success=true",
		s.baseURL+"/pricing?canceled=true",
	)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return url, nil
}

// CreatePortalSession returns a hosted billing-management URL for a user that
// already has a linked Stripe customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint) (string, error) {
	user, err := s.repo.UserByID(userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", ErrNoLinkedCustomer
	}

	url, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, s.baseURL+"/account")
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}

// HandleEvent dispatches a parsed webhook event. Unrecognized types are
// logged and ignored.
func (s *Service) HandleEvent(ctx context.Context, eventType string, objectJSON []byte) error {
	switch eventType {
	case EventCheckoutSessionCompleted:
		var session CheckoutSessionObject
		if err := unmarshalObject(objectJSON, &session); err != nil {
			return err
		}
		return s.ReconcileCheckoutSession(ctx, &session)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub SubscriptionObject
		if err := unmarshalObject(objectJSON, &sub); err != nil {
			return err
		}
		return s.ReconcileSubscription(ctx, &sub)
	default:
		log.Printf("ignoring unhandled stripe event type %s", eventType)
		return nil
	}
}

// ReconcileCheckoutSession reacts to checkout.session.completed: it only acts
// on subscription-mode sessions carrying a subscription id, retrieving the
// full subscription and reconciling it. Anything else is a logged no-op.
func (s *Service) ReconcileCheckoutSession(ctx context.Context, session *CheckoutSessionObject) error {
	if session.Mode != "subscription" || session.Subscription == "" {
		log.Printf("checkout session %s: mode %q or missing subscription id, skipping", session.ID, session.Mode)
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("retrieve subscription %s: %w", session.Subscription, err)
	}
	return s.ReconcileSubscription(ctx, sub)
}

// ReconcileSubscription upserts the durable subscription row for a provider
// subscription object. The internal user is resolved via the linked customer
// id, then the provider customer's userId metadata, then the customer's
// email; events whose user cannot be resolved are dropped after logging (the
// provider's delivery retry is the only recovery path).
func (s *Service) ReconcileSubscription(ctx context.Context, sub *SubscriptionObject) error {
	if sub.ID == "" || sub.Customer == "" {
		log.Printf("subscription object missing id or customer, skipping")
		return nil
	}

	now := time.Now().UTC()
	periodStart := sub.PeriodStart()
	periodEnd := sub.PeriodEnd()
	periodsSynthesized := periodStart == 0 || periodEnd == 0
	if periodsSynthesized {
		// Lossy fallback: substitute now so an inserted row stays
		// well-formed. The repository knows these are not real dates.
		log.Printf("subscription %s missing period dates (start=%d end=%d)", sub.ID, periodStart, periodEnd)
	}

	user, err := s.resolveUser(ctx, sub.Customer)
	if err != nil {
		return err
	}
	if user == nil {
		log.Printf("no user found for stripe customer %s, dropping event for subscription %s", sub.Customer, sub.ID)
		return nil
	}

	row := &models.Subscription{
		UserID:               user.ID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.Customer,
		StripePriceID:        sub.PriceID(),
		Status:               sub.Status,
		CurrentPeriodStart:   unixTime(periodStart, now),
		CurrentPeriodEnd:     unixTime(periodEnd, now),
		CancelAt:             unixTimePtr(sub.CancelAt),
		CanceledAt:           unixTimePtr(sub.CanceledAt),
		TrialEnd:             unixTimePtr(sub.TrialEnd),
		SeatsTotal:           1,
		SeatsUsed:            0,
	}
	if err := s.repo.UpsertSubscription(row, periodsSynthesized); err != nil {
		return err
	}
	s.invalidateAccess(user.ID)
	return nil
}

// resolveUser runs the fallback chain: stored customer link, then customer
// metadata userId, then customer email. Matches found via the fallbacks are
// linked so future lookups hit the first branch. A nil user with nil error
// means the chain found nothing.
func (s *Service) resolveUser(ctx context.Context, customerID string) (*models.User, error) {
	user, err := s.repo.UserByStripeCustomerID(customerID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cust, err := s.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe customer %s: %w", customerID, err)
	}

	if raw, ok := cust.Metadata["userId"]; ok && raw != "" {
		if id, convErr := strconv.ParseUint(raw, 10, 64); convErr == nil {
			user, err = s.repo.UserByID(uint(id))
			if err == nil {
				return s.linkResolvedUser(user, customerID), nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}

	if cust.Email != "" {
		user, err = s.repo.UserByEmail(cust.Email)
		if err == nil {
			return s.linkResolvedUser(user, customerID), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

func (s *Service) linkResolvedUser(user *models.User, customerID string) *models.User {
	if err := s.repo.LinkStripeCustomer(user.ID, customerID); err != nil {
		// The upsert still proceeds with the resolved user; only the repair
		// of future first-branch lookups failed.
		log.Printf("linking stripe customer %s to user %d failed: %v", customerID, user.ID, err)
		return user
	}
	cid := customerID
	user.StripeCustomerID = &cid
	return user
}

// HasPaidAccess reports whether the user's most recent active or trialing
// subscription row exists.
func (s *Service) HasPaidAccess(userID uint) (bool, error) {
	_, err := s.repo.LatestPaidSubscription(userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// PriceKeyFor reverse-maps a Stripe price id to its checkout selector key,
// or "" for price ids no longer in the configured map.
func (s *Service) PriceKeyFor(priceID string) string {
	return s.prices.KeyForPriceID(priceID)
}

// CurrentSubscription returns the user's most recent subscription row, or nil
// when the user never subscribed.
func (s *Service) CurrentSubscription(userID uint) (*models.Subscription, error) {
	sub, err := s.repo.LatestSubscription(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. Deliveries
// without an event id (insecure dev parses) are deduplicated by payload hash.
func (s *Service) RecordWebhookEvent(in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	eventID := strings.TrimSpace(in.StripeEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		StripeEventID:  eventID,
		EventType:      strings.TrimSpace(in.EventType),
		PayloadJSON:    in.PayloadJSON,
		SignatureValid: in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

func unmarshalObject(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
