package billing

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/appgoblin/AppGoblin/internal/pkg/env"
)

// ProviderAPI is the payment-provider surface the billing service depends on.
// Tests substitute a fake; production wiring uses StripeClient.
type ProviderAPI interface {
	CreateCustomer(ctx context.Context, email string, userID uint) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionObject, error)
}

// StripeClient wraps the Stripe SDK behind ProviderAPI. It is constructed
// once at startup and injected into the service; there is no package-level
// provider state.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api}
}

func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(env.MustGetEnv("STRIPE_SECRET_KEY"))
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email string, userID uint) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("userId", strconv.FormatUint(uint64(userID), 10))
	params.SetIdempotencyKey(uuid.NewString())

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return nil, err
	}
	return customerFromStripe(cust), nil
}

func (c *StripeClient) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, err
	}
	return customerFromStripe(cust), nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:                 stripe.String(customerID),
		BillingAddressCollection: stripe.String("auto"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionObject, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func customerFromStripe(cust *stripe.Customer) *Customer {
	return &Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Metadata: cust.Metadata,
	}
}

// subscriptionFromStripe converts an SDK retrieval into the wire shape the
// reconciler consumes. Current SDK versions carry the period window on the
// line items only; older webhook payloads still carry it top-level, which is
// why SubscriptionObject reads both.
func subscriptionFromStripe(sub *stripe.Subscription) *SubscriptionObject {
	out := &SubscriptionObject{
		ID:         sub.ID,
		Status:     string(sub.Status),
		CancelAt:   sub.CancelAt,
		CanceledAt: sub.CanceledAt,
		TrialEnd:   sub.TrialEnd,
	}
	if sub.Customer != nil {
		out.Customer = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			converted := SubscriptionItem{
				CurrentPeriodStart: item.CurrentPeriodStart,
				CurrentPeriodEnd:   item.CurrentPeriodEnd,
			}
			if item.Price != nil {
				converted.Price = PriceRef{ID: item.Price.ID}
			}
			out.Items.Data = append(out.Items.Data, converted)
		}
	}
	return out
}
