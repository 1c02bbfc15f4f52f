package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Static errors for checkout creation.
var (
	// ErrAPIKeyRequired is returned when no provider API key is configured.
	ErrAPIKeyRequired = errors.New("payment: API key is required")
	// ErrProductRequired is returned when no product id is given.
	ErrProductRequired = errors.New("payment: product ID is required")
	// ErrCheckoutFailed is returned when the provider rejects the checkout.
	ErrCheckoutFailed = errors.New("payment: checkout request failed")
	// ErrNoCheckoutURL is returned when the provider response has no URL.
	ErrNoCheckoutURL = errors.New("payment: no checkout URL returned")
)

// DefaultAPIURL is the payment provider's production API.
const DefaultAPIURL = "https://api.creem.io"

// CheckoutMetadata is attached to the checkout and echoed back in webhooks.
type CheckoutMetadata struct {
	InternalCustomerID string `json:"internal_customer_id"`
	Email              string `json:"email,omitempty"`
}

type checkoutRequest struct {
	ProductID  string           `json:"product_id"`
	SuccessURL string           `json:"success_url,omitempty"`
	Metadata   CheckoutMetadata `json:"metadata"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	URL         string `json:"url"`
	Message     string `json:"message"`
	Error       string `json:"error"`
}

// CheckoutClient creates hosted checkout sessions.
type CheckoutClient struct {
	apiKey     string
	baseURL    string
	successURL string
	httpClient *http.Client
}

// CheckoutOption configures a CheckoutClient.
type CheckoutOption func(*CheckoutClient)

// WithCheckoutHTTPClient sets a custom HTTP client.
func WithCheckoutHTTPClient(c *http.Client) CheckoutOption {
	return func(cc *CheckoutClient) {
		cc.httpClient = c
	}
}

// WithSuccessURL sets where the provider redirects after payment.
func WithSuccessURL(u string) CheckoutOption {
	return func(cc *CheckoutClient) {
		cc.successURL = u
	}
}

// NewCheckoutClient creates a CheckoutClient. An empty baseURL uses DefaultAPIURL.
func NewCheckoutClient(baseURL, apiKey string, opts ...CheckoutOption) (*CheckoutClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	c := &CheckoutClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateCheckout opens a checkout for productID and returns its URL.
// Checkouts are not idempotent, so failures are not retried.
func (c *CheckoutClient) CreateCheckout(ctx context.Context, productID string, meta CheckoutMetadata) (string, error) {
	if productID == "" {
		return "", ErrProductRequired
	}

	body, err := json.Marshal(checkoutRequest{
		ProductID:  productID,
		SuccessURL: c.successURL,
		Metadata:   meta,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out checkoutResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil && resp.StatusCode < 300 {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = out.Error
		}
		if msg == "" {
			msg = string(respBody)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrCheckoutFailed, resp.StatusCode, msg)
	}

	checkoutURL := out.CheckoutURL
	if checkoutURL == "" {
		checkoutURL = out.URL
	}
	if checkoutURL == "" {
		return "", ErrNoCheckoutURL
	}
	return checkoutURL, nil
}
