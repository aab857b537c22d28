package controllers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/appgoblin/AppGoblin/app/models"
	"github.com/appgoblin/AppGoblin/internal/pkg/billing"
	"github.com/appgoblin/AppGoblin/internal/pkg/env"
	"github.com/appgoblin/AppGoblin/internal/pkg/usercontext"
)

// memRepository is a minimal in-memory billing.Repository for controller
// tests. Ordering and anti-regression semantics are covered in the billing
// package; here a last-write-wins upsert is enough.
type memRepository struct {
	users         map[uint]*models.User
	subscriptions map[string]*models.Subscription
	events        map[string]*models.BillingWebhookEvent
	nextEventID   uint
	upsertCalls   int
}

func newMemRepository() *memRepository {
	return &memRepository{
		users:         make(map[uint]*models.User),
		subscriptions: make(map[string]*models.Subscription),
		events:        make(map[string]*models.BillingWebhookEvent),
	}
}

func (r *memRepository) UserByID(userID uint) (*models.User, error) {
	if u, ok := r.users[userID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepository) UserByEmail(email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepository) UserByStripeCustomerID(customerID string) (*models.User, error) {
	for _, u := range r.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepository) LinkStripeCustomerIfAbsent(userID uint, customerID string) (string, error) {
	u, ok := r.users[userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	if u.StripeCustomerID != nil && *u.StripeCustomerID != "" {
		return *u.StripeCustomerID, nil
	}
	cid := customerID
	u.StripeCustomerID = &cid
	return cid, nil
}

func (r *memRepository) LinkStripeCustomer(userID uint, customerID string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cid := customerID
	u.StripeCustomerID = &cid
	return nil
}

func (r *memRepository) UpsertSubscription(sub *models.Subscription, periodsSynthesized bool) error {
	r.upsertCalls++
	copied := *sub
	r.subscriptions[sub.StripeSubscriptionID] = &copied
	return nil
}

func (r *memRepository) LatestSubscription(userID uint) (*models.Subscription, error) {
	var latest *models.Subscription
	for _, s := range r.subscriptions {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r *memRepository) LatestPaidSubscription(userID uint) (*models.Subscription, error) {
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.IsPaid() {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	if existing, ok := r.events[event.StripeEventID]; ok {
		return false, existing, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	r.events[event.StripeEventID] = event
	return true, event, nil
}

func (r *memRepository) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// memProvider fakes the Stripe API surface the controllers reach through the
// service.
type memProvider struct {
	customers   map[string]*billing.Customer
	checkoutURL string
	portalURL   string
	created     int
}

func newMemProvider() *memProvider {
	return &memProvider{
		customers:   make(map[string]*billing.Customer),
		checkoutURL: "https://checkout.stripe.example/cs_test_1",
		portalURL:   "https://billing.stripe.example/ps_test_1",
	}
}

func (p *memProvider) CreateCustomer(ctx context.Context, email string, userID uint) (*billing.Customer, error) {
	p.created++
	c := &billing.Customer{
		ID:       fmt.Sprintf("cus_test_%d", p.created),
		Email:    email,
		Metadata: map[string]string{"userId": fmt.Sprintf("%d", userID)},
	}
	p.customers[c.ID] = c
	return c, nil
}

func (p *memProvider) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	if c, ok := p.customers[customerID]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no such customer: %s", customerID)
}

func (p *memProvider) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	return p.checkoutURL, nil
}

func (p *memProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return p.portalURL, nil
}

func (p *memProvider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.SubscriptionObject, error) {
	return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
}

const testWebhookSecret = "whsec_controller_test"

func setupBillingApp(t *testing.T, viewer *usercontext.UserContext) (*fiber.App, *memRepository, *memProvider) {
	t.Helper()

	env.Env = map[string]string{
		"APP_ENV":               "prod",
		"STRIPE_WEBHOOK_SECRET": testWebhookSecret,
	}
	t.Cleanup(func() { env.Env = nil })

	repo := newMemRepository()
	provider := newMemProvider()
	prices := billing.PriceMap{
		billing.PriceKeyAppDev: "price_app_dev",
		billing.PriceKeyB2BSDK: "price_b2b_sdk",
	}
	InitializeBillingController(billing.NewService(repo, provider, prices, "https://appgoblin.example"))

	app := fiber.New()
	if viewer != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("USER_CONTEXT", *viewer)
			return c.Next()
		})
	}
	app.Post("/api/stripe/webhook", HandleStripeWebhook)
	app.Post("/pricing/subscribe", HandleSubscribe)
	app.Post("/account/portal", HandlePortal)
	app.Get("/account", HandleAccount)

	return app, repo, provider
}

func signedWebhookRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testWebhookSecret)
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func subscriptionEventPayload(eventID, eventType, subID, customerID, status string, periodEnd int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "subscription",
				"customer": %q,
				"status": %q,
				"current_period_start": %d,
				"current_period_end": %d,
				"items": {"data": [{"price": {"id": "price_app_dev"}}]}
			}
		}
	}`, eventID, eventType, subID, customerID, status, periodEnd-2592000, periodEnd)
}

func TestHandleStripeWebhookReconcilesSubscription(t *testing.T) {
	app, repo, _ := setupBillingApp(t, nil)

	cid := "cus_hook_1"
	repo.users[7] = &models.User{ID: 7, Email: "dev@example.com", StripeCustomerID: &cid}

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	payload := subscriptionEventPayload("evt_1", billing.EventSubscriptionUpdated, "sub_hook_1", cid, "active", periodEnd)

	resp, err := app.Test(signedWebhookRequest(t, payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	sub, ok := repo.subscriptions["sub_hook_1"]
	if !ok {
		t.Fatal("expected subscription row after webhook")
	}
	if sub.UserID != 7 || sub.Status != "active" || sub.StripePriceID != "price_app_dev" {
		t.Errorf("unexpected row: %+v", sub)
	}

	stored, ok := repo.events["evt_1"]
	if !ok {
		t.Fatal("expected stored webhook event")
	}
	if stored.ProcessedAt == nil || stored.ProcessingError != "" {
		t.Errorf("event not marked processed cleanly: %+v", stored)
	}
}

func TestHandleStripeWebhookDuplicateDelivery(t *testing.T) {
	app, repo, _ := setupBillingApp(t, nil)

	cid := "cus_hook_2"
	repo.users[8] = &models.User{ID: 8, Email: "dup@example.com", StripeCustomerID: &cid}

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	payload := subscriptionEventPayload("evt_dup", billing.EventSubscriptionUpdated, "sub_hook_2", cid, "active", periodEnd)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(signedWebhookRequest(t, payload))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	if repo.upsertCalls != 1 {
		t.Errorf("expected exactly one upsert, got %d", repo.upsertCalls)
	}
}

func TestHandleStripeWebhookRejectsBadSignature(t *testing.T) {
	app, repo, _ := setupBillingApp(t, nil)

	payload := subscriptionEventPayload("evt_bad", billing.EventSubscriptionUpdated, "sub_x", "cus_x", "active", time.Now().Unix())
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(repo.events) != 0 {
		t.Error("rejected delivery must not be persisted")
	}
}

func TestHandleStripeWebhookMissingSecretOutsideDev(t *testing.T) {
	app, _, _ := setupBillingApp(t, nil)
	env.Env = map[string]string{"APP_ENV": "prod"}

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{"id":"evt_ns","type":"customer.subscription.updated","data":{"object":{}}}`))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHandleStripeWebhookIgnoresUnknownEventType(t *testing.T) {
	app, repo, _ := setupBillingApp(t, nil)

	payload := `{"id":"evt_ping","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`
	resp, err := app.Test(signedWebhookRequest(t, payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["ignored"] != true {
		t.Errorf("expected ignored=true, got %v", body)
	}
	if stored := repo.events["evt_ping"]; stored == nil || stored.ProcessedAt == nil {
		t.Error("ignored event should still be stored and marked processed")
	}
}

func TestHandleSubscribeRedirectsToCheckout(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 12, Email: "buyer@example.com", IsLoggedIn: true, EmailVerified: true}
	app, repo, provider := setupBillingApp(t, viewer)
	repo.users[12] = &models.User{ID: 12, Email: "buyer@example.com"}

	req := httptest.NewRequest(http.MethodPost, "/pricing/subscribe", strings.NewReader("price_key=b2b_sdk"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != provider.checkoutURL {
		t.Errorf("expected redirect to %s, got %s", provider.checkoutURL, loc)
	}
	if repo.users[12].StripeCustomerID == nil {
		t.Error("checkout should have linked a stripe customer")
	}
}

func TestHandleSubscribeInvalidPriceKeyRedirectsToPricing(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 12, Email: "buyer@example.com", IsLoggedIn: true, EmailVerified: true}
	app, repo, provider := setupBillingApp(t, viewer)
	repo.users[12] = &models.User{ID: 12, Email: "buyer@example.com"}

	req := httptest.NewRequest(http.MethodPost, "/pricing/subscribe", strings.NewReader("price_key=enterprise_gold"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/pricing" {
		t.Errorf("expected redirect to /pricing, got %s", loc)
	}
	if provider.created != 0 {
		t.Error("invalid price key must not create provider resources")
	}
}

func TestHandleSubscribeAlreadyPaidRedirectsToAccount(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 12, Email: "buyer@example.com", IsLoggedIn: true, EmailVerified: true, PaidAccess: true}
	app, _, provider := setupBillingApp(t, viewer)

	req := httptest.NewRequest(http.MethodPost, "/pricing/subscribe", strings.NewReader("price_key=app_dev"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/account" {
		t.Errorf("expected redirect to /account, got %s", loc)
	}
	if provider.created != 0 {
		t.Error("paid user must not reach the provider")
	}
}

func TestHandlePortalWithoutLinkedCustomer(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 30, Email: "noacct@example.com", IsLoggedIn: true, EmailVerified: true}
	app, repo, _ := setupBillingApp(t, viewer)
	repo.users[30] = &models.User{ID: 30, Email: "noacct@example.com"}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/account/portal", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandlePortalRedirects(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 31, Email: "acct@example.com", IsLoggedIn: true, EmailVerified: true}
	app, repo, provider := setupBillingApp(t, viewer)
	cid := "cus_portal"
	repo.users[31] = &models.User{ID: 31, Email: "acct@example.com", StripeCustomerID: &cid}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/account/portal", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != provider.portalURL {
		t.Errorf("expected redirect to %s, got %s", provider.portalURL, loc)
	}
}

func TestHandleAccountWithSubscription(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 40, Email: "sub@example.com", IsLoggedIn: true, EmailVerified: true}
	app, repo, _ := setupBillingApp(t, viewer)

	end := time.Now().Add(14 * 24 * time.Hour).UTC().Truncate(time.Second)
	repo.subscriptions["sub_acct"] = &models.Subscription{
		UserID:               40,
		StripeSubscriptionID: "sub_acct",
		StripePriceID:        "price_app_dev",
		Status:               models.SubscriptionStatusActive,
		CurrentPeriodEnd:     end,
		CreatedAt:            time.Now(),
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Subscription *struct {
			Status           string `json:"status"`
			CurrentPeriodEnd string `json:"current_period_end"`
			PaidAccess       bool   `json:"paid_access"`
		} `json:"subscription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Subscription == nil {
		t.Fatal("expected subscription in response")
	}
	if body.Subscription.Status != "active" || !body.Subscription.PaidAccess {
		t.Errorf("unexpected subscription: %+v", body.Subscription)
	}
	if body.Subscription.CurrentPeriodEnd != end.Format(time.RFC3339) {
		t.Errorf("expected period end %s, got %s", end.Format(time.RFC3339), body.Subscription.CurrentPeriodEnd)
	}
}

func TestHandleAccountWithoutSubscription(t *testing.T) {
	viewer := &usercontext.UserContext{UserID: 41, Email: "fresh@example.com", IsLoggedIn: true, EmailVerified: true}
	app, _, _ := setupBillingApp(t, viewer)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/account", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["subscription"] != nil {
		t.Errorf("expected null subscription, got %v", body["subscription"])
	}
}
