package coinbase

import (
	"fmt"
	"strconv"
	"time"
)

// Account represents a Coinbase brokerage account (one per currency)
type Account struct {
	UUID             string  `json:"uuid"`
	Name             string  `json:"name"`
	Currency         string  `json:"currency"`
	AvailableBalance Balance `json:"available_balance"`
	Hold             Balance `json:"hold"`
	Active           bool    `json:"active"`
	Type             string  `json:"type"`
}

// Balance is a currency amount as Coinbase returns it (decimal string)
type Balance struct {
	Value    float64 `json:"value,string"`
	Currency string  `json:"currency"`
}

// Product represents a tradable product (e.g. BTC-USD)
type Product struct {
	ProductID       string  `json:"product_id"`
	Price           float64 `json:"price,string"`
	PricePercent24h float64 `json:"price_percentage_change_24h,string"`
	Volume24h       float64 `json:"volume_24h,string"`
	BaseCurrency    string  `json:"base_currency_id"`
	QuoteCurrency   string  `json:"quote_currency_id"`
	Status          string  `json:"status"`
	QuoteMinSize    float64 `json:"quote_min_size,string"`
	BaseIncrement   float64 `json:"base_increment,string"`
}

// Ticker holds best bid/ask for a product
type Ticker struct {
	ProductID string
	BestBid   float64
	BestAsk   float64
	Price     float64
	Time      time.Time
}

// Candle represents one OHLCV bucket
type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Order side and status constants as the Advanced Trade API spells them
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderStatusOpen      = "OPEN"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusFailed    = "FAILED"
)

// OrderResponse represents the result of placing an order
type OrderResponse struct {
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	ProductID     string  `json:"product_id"`
	Side          string  `json:"side"`
	Status        string  `json:"status"`
	FilledSize    float64 `json:"filled_size,string"`
	AverageFilled float64 `json:"average_filled_price,string"`
	TotalFees     float64 `json:"total_fees,string"`
}

// Order represents an order as returned by the historical orders endpoint
type Order struct {
	OrderID        string    `json:"order_id"`
	ClientOrderID  string    `json:"client_order_id"`
	ProductID      string    `json:"product_id"`
	Side           string    `json:"side"`
	Status         string    `json:"status"`
	CreatedTime    time.Time `json:"created_time"`
	FilledSize     float64   `json:"filled_size,string"`
	AverageFilled  float64   `json:"average_filled_price,string"`
	TotalFees      float64   `json:"total_fees,string"`
	TotalValueUSD  float64   `json:"total_value_after_fees,string"`
}

// APIError is a typed error for Coinbase API failures. The originals
// swallowed these and returned hardcoded fallback numbers; callers here
// get the status code and Coinbase error identifier instead.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	Details    string `json:"error_details"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("coinbase: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("coinbase: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether the error is a 429 response
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
