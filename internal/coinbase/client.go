package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrReadOnly is returned by trading operations when the client has no
// signer (public market data mode, the old coinbase_public.py behavior).
var ErrReadOnly = errors.New("coinbase: client is read-only, no credentials configured")

// Client talks to the Coinbase Advanced Trade API. One client, one signer:
// the auth scheme is decided at construction, not by which script happened
// to run last.
type Client struct {
	baseURL     string
	signer      Signer
	httpClient  *http.Client
	rateLimiter *RateLimiter
	maxRetries  int
}

// NewClient creates an authenticated client. signer may be nil, which
// yields a read-only client limited to public market data.
func NewClient(baseURL string, signer Signer) *Client {
	return &Client{
		baseURL:     baseURL,
		signer:      signer,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rateLimiter: NewRateLimiter(),
		maxRetries:  3,
	}
}

// RateLimiterStatus exposes the limiter snapshot for diagnostics
func (c *Client) RateLimiterStatus() map[string]interface{} {
	return c.rateLimiter.Status()
}

// request performs one authenticated API call with rate limiting and
// bounded retries on transient failures. Error responses come back as
// *APIError; nothing is swallowed or replaced with fallback values.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, payload, out interface{}, priority RequestPriority) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("coinbase: encoding request: %w", err)
		}
	}

	private := c.signer != nil

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !c.rateLimiter.Wait(private, priority, 5*time.Second) {
			lastErr = errors.New("coinbase: rate limit budget exhausted")
			continue
		}

		endpoint := c.baseURL + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		if c.signer != nil {
			if err := c.signer.Sign(req, body); err != nil {
				return err
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("coinbase: request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("coinbase: reading response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.rateLimiter.RecordRateLimitError()
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: "rate limited"}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
			_ = json.Unmarshal(respBody, apiErr)
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("coinbase: decoding response: %w", err)
			}
		}
		return nil
	}

	return lastErr
}

// ListAccounts returns all brokerage accounts, following pagination
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}

	var accounts []Account
	cursor := ""

	for {
		query := url.Values{}
		query.Set("limit", "250")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page struct {
			Accounts []Account `json:"accounts"`
			HasNext  bool      `json:"has_next"`
			Cursor   string    `json:"cursor"`
		}
		if err := c.request(ctx, http.MethodGet, "/api/v3/brokerage/accounts", query, nil, &page, PriorityHigh); err != nil {
			return nil, err
		}

		accounts = append(accounts, page.Accounts...)
		if !page.HasNext || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	return accounts, nil
}

// GetProduct fetches a single product. Falls back to the public market
// data endpoint when the client is read-only.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	path := "/api/v3/brokerage/products/" + productID
	if c.signer == nil {
		path = "/api/v3/brokerage/market/products/" + productID
	}

	var product Product
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &product, PriorityNormal); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetTicker returns best bid/ask for a product
func (c *Client) GetTicker(ctx context.Context, productID string) (*Ticker, error) {
	path := "/api/v3/brokerage/best_bid_ask"
	if c.signer == nil {
		path = "/api/v3/brokerage/market/best_bid_ask"
	}

	query := url.Values{}
	query.Set("product_ids", productID)

	var resp struct {
		Pricebooks []struct {
			ProductID string `json:"product_id"`
			Bids      []struct {
				Price string `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
			} `json:"asks"`
			Time time.Time `json:"time"`
		} `json:"pricebooks"`
	}
	if err := c.request(ctx, http.MethodGet, path, query, nil, &resp, PriorityNormal); err != nil {
		return nil, err
	}

	if len(resp.Pricebooks) == 0 {
		return nil, &APIError{StatusCode: 404, Message: fmt.Sprintf("no pricebook for %s", productID)}
	}

	book := resp.Pricebooks[0]
	ticker := &Ticker{ProductID: book.ProductID, Time: book.Time}
	if len(book.Bids) > 0 {
		ticker.BestBid = parseFloat(book.Bids[0].Price)
	}
	if len(book.Asks) > 0 {
		ticker.BestAsk = parseFloat(book.Asks[0].Price)
	}
	if ticker.BestBid > 0 && ticker.BestAsk > 0 {
		ticker.Price = (ticker.BestBid + ticker.BestAsk) / 2
	}
	return ticker, nil
}

// GetCandles fetches OHLCV buckets for a product. granularity is a
// Coinbase granularity name, e.g. "ONE_MINUTE", "FIVE_MINUTE", "ONE_HOUR".
func (c *Client) GetCandles(ctx context.Context, productID, granularity string, start, end time.Time) ([]Candle, error) {
	path := fmt.Sprintf("/api/v3/brokerage/products/%s/candles", productID)
	if c.signer == nil {
		path = fmt.Sprintf("/api/v3/brokerage/market/products/%s/candles", productID)
	}

	query := url.Values{}
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	query.Set("granularity", granularity)

	var resp struct {
		Candles []struct {
			Start  string `json:"start"`
			Open   string `json:"open"`
			High   string `json:"high"`
			Low    string `json:"low"`
			Close  string `json:"close"`
			Volume string `json:"volume"`
		} `json:"candles"`
	}
	if err := c.request(ctx, http.MethodGet, path, query, nil, &resp, PriorityNormal); err != nil {
		return nil, err
	}

	candles := make([]Candle, len(resp.Candles))
	for i, raw := range resp.Candles {
		startUnix, _ := strconv.ParseInt(raw.Start, 10, 64)
		candles[i] = Candle{
			Start:  time.Unix(startUnix, 0).UTC(),
			Open:   parseFloat(raw.Open),
			High:   parseFloat(raw.High),
			Low:    parseFloat(raw.Low),
			Close:  parseFloat(raw.Close),
			Volume: parseFloat(raw.Volume),
		}
	}
	return candles, nil
}

// CreateMarketOrder places a market IOC order sized in quote currency
// (buy $5 of BTC, not 0.0000X BTC). Returns the order result including
// fills and fees.
func (c *Client) CreateMarketOrder(ctx context.Context, productID, side string, quoteSize float64) (*OrderResponse, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}

	payload := map[string]interface{}{
		"client_order_id": uuid.NewString(),
		"product_id":      productID,
		"side":            side,
		"order_configuration": map[string]interface{}{
			"market_market_ioc": map[string]string{
				"quote_size": strconv.FormatFloat(quoteSize, 'f', 2, 64),
			},
		},
	}

	var resp struct {
		Success       bool   `json:"success"`
		OrderID       string `json:"order_id"`
		FailureReason string `json:"failure_reason"`
		ErrorResponse struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"error_response"`
		SuccessResponse struct {
			OrderID       string `json:"order_id"`
			ProductID     string `json:"product_id"`
			Side          string `json:"side"`
			ClientOrderID string `json:"client_order_id"`
		} `json:"success_response"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/v3/brokerage/orders", nil, payload, &resp, PriorityCritical); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &APIError{
			StatusCode: 200,
			Code:       resp.ErrorResponse.Error,
			Message:    resp.ErrorResponse.Message,
			Details:    resp.FailureReason,
		}
	}

	return &OrderResponse{
		OrderID:       resp.SuccessResponse.OrderID,
		ClientOrderID: resp.SuccessResponse.ClientOrderID,
		ProductID:     resp.SuccessResponse.ProductID,
		Side:          resp.SuccessResponse.Side,
		Status:        OrderStatusOpen,
	}, nil
}

// CancelOrders cancels a batch of orders by ID and returns the IDs that
// were actually accepted for cancellation
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}
	if len(orderIDs) == 0 {
		return nil, nil
	}

	payload := map[string]interface{}{"order_ids": orderIDs}

	var resp struct {
		Results []struct {
			Success bool   `json:"success"`
			OrderID string `json:"order_id"`
		} `json:"results"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", nil, payload, &resp, PriorityCritical); err != nil {
		return nil, err
	}

	var cancelled []string
	for _, result := range resp.Results {
		if result.Success {
			cancelled = append(cancelled, result.OrderID)
		}
	}
	return cancelled, nil
}

// ListOpenOrders returns orders with OPEN status
func (c *Client) ListOpenOrders(ctx context.Context) ([]Order, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}

	query := url.Values{}
	query.Set("order_status", OrderStatusOpen)

	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v3/brokerage/orders/historical/batch", query, nil, &resp, PriorityHigh); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetServerTime returns Coinbase's server time; used as the cheapest
// authenticated connectivity check
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var resp struct {
		EpochSeconds string `json:"epochSeconds"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v3/time", nil, nil, &resp, PriorityLow); err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(resp.EpochSeconds, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("coinbase: parsing server time: %w", err)
	}
	return time.Unix(secs, 0).UTC(), nil
}
