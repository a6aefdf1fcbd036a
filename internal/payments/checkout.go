package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

const (
	successPathSuffix = "/payment/success"
	cancelPathSuffix  = "/payment/cancel"
)

// SessionItem is one line of a checkout session. Price is in major
// currency units; the provider wants minor units, so it is converted on
// the way out.
type SessionItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
}

// CheckoutClient creates provider-hosted checkout sessions. It holds no
// local state; the session lives entirely in the provider.
type CheckoutClient struct {
	cfg        Config
	httpClient *http.Client
}

func NewCheckoutClient(cfg Config, httpClient *http.Client) *CheckoutClient {
	return &CheckoutClient{cfg: cfg, httpClient: httpClient}
}

type sessionLineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Quantity   int    `json:"quantity"`
}

type createSessionRequest struct {
	Mode          string            `json:"mode"`
	LineItems     []sessionLineItem `json:"line_items"`
	CustomerEmail string            `json:"customer_email"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata"`
}

type createSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateSession builds a checkout session for an order and returns the
// provider-issued redirect URL. The order id and email travel as opaque
// metadata the provider echoes back verbatim on completion; that
// round-trip is the only correlation between the session and the order.
func (c *CheckoutClient) CreateSession(ctx context.Context, orderID, email, currency string, items []SessionItem) (string, error) {
	if currency == "" {
		currency = c.cfg.Currency
	}

	lineItems := make([]sessionLineItem, 0, len(items))
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = item.MenuItemID
		}
		lineItems = append(lineItems, sessionLineItem{
			Name:       name,
			UnitAmount: int64(math.Round(item.Price * 100)),
			Currency:   currency,
			Quantity:   item.Quantity,
		})
	}

	reqBody := createSessionRequest{
		Mode:          "payment",
		LineItems:     lineItems,
		CustomerEmail: email,
		SuccessURL:    c.cfg.FrontendBaseURL + successPathSuffix,
		CancelURL:     c.cfg.FrontendBaseURL + cancelPathSuffix,
		Metadata: map[string]string{
			"order_id": orderID,
			"email":    email,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ProviderAPIURL+"/v1/checkout/sessions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ProviderAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call payment provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var session createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}

	if session.URL == "" {
		return "", fmt.Errorf("payment provider returned no redirect url")
	}

	return session.URL, nil
}
