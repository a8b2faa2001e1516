// Package broker fetches order state from the brokerage REST service.
// Session management and authentication live on the broker side; this
// client only reads the order book.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Order is one row of the broker's order book. Only COMPLETE orders
// carry a meaningful fill price and quantity.
type Order struct {
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	TradingSymbol  string    `json:"tradingsymbol"`
	TransactionTyp string    `json:"transaction_type"`
	Quantity       int64     `json:"quantity"`
	AveragePrice   float64   `json:"average_price"`
	OrderTimestamp time.Time `json:"order_timestamp"`
	Exchange       string    `json:"exchange"`
	Product        string    `json:"product"`
}

// StatusComplete is the terminal filled state
const StatusComplete = "COMPLETE"

// Client talks to the broker service
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a broker client
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "broker").Logger(),
	}
}

// FetchOrders retrieves today's order book
func (c *Client) FetchOrders(ctx context.Context) ([]Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("broker returned %d: %s", resp.StatusCode, string(body))
	}

	var orders []Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	c.log.Debug().Int("orders", len(orders)).Msg("Orders fetched")
	return orders, nil
}
