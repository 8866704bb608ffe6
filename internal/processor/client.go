// Package processor talks to the payment processor: customers, ephemeral
// keys and payment intents on the way out, signed webhook events on the way
// in.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

var ErrProcessor = errors.New("payment processor error")

// MetadataOrderID links a payment intent back to its order.
const MetadataOrderID = "order_id"

type Config struct {
	SecretKey           string
	Currency            string
	EphemeralKeyVersion string
	// Backends overrides the processor endpoints, mostly for tests.
	Backends *stripe.Backends
}

type Client struct {
	api                 *client.API
	currency            string
	ephemeralKeyVersion string
}

type IntentRequest struct {
	OrderID    int64
	CustomerID string
	Amount     int64
}

type Intent struct {
	ID           string
	ClientSecret string
}

func NewClient(cfg Config) *Client {
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	version := cfg.EphemeralKeyVersion
	if version == "" {
		version = stripe.APIVersion
	}
	return &Client{
		api:                 client.New(cfg.SecretKey, cfg.Backends),
		currency:            currency,
		ephemeralKeyVersion: version,
	}
}

// CreateCustomer creates the remote customer for a user. The idempotency key
// makes concurrent first purchases by the same user converge on one customer
// while the processor remembers the key.
func (c *Client) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
		params.AddMetadata("email", email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.SetIdempotencyKey("customer-" + userID)

	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create customer: %v", ErrProcessor, err)
	}
	return customer.ID, nil
}

func (c *Client) CreateEphemeralKey(ctx context.Context, customerID string) (string, error) {
	params := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(c.ephemeralKeyVersion),
	}
	params.Context = ctx

	key, err := c.api.EphemeralKeys.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create ephemeral key: %v", ErrProcessor, err)
	}
	return key.Secret, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(c.currency),
		Customer: stripe.String(req.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, strconv.FormatInt(req.OrderID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("order-%d-intent", req.OrderID))

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: create payment intent: %v", ErrProcessor, err)
	}
	return Intent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}
