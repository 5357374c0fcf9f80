package coinbase

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is an in-memory Exchange for dry-run mode and tests. Prices
// follow a random walk around seeded values; orders fill immediately at
// the current price with a flat taker fee.
type MockClient struct {
	mu       sync.Mutex
	balances map[string]float64
	prices   map[string]float64
	orders   []Order
	feeRate  float64
	rng      *rand.Rand
}

// NewMockClient creates a mock exchange seeded with a USD balance and
// reference prices for the given products
func NewMockClient(usdBalance float64, prices map[string]float64) *MockClient {
	seeded := make(map[string]float64, len(prices))
	for product, price := range prices {
		seeded[product] = price
	}
	return &MockClient{
		balances: map[string]float64{"USD": usdBalance},
		prices:   seeded,
		feeRate:  0.006,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPrice overrides a product price, useful for deterministic tests
func (m *MockClient) SetPrice(productID string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[productID] = price
}

func (m *MockClient) currentPrice(productID string) (float64, error) {
	price, ok := m.prices[productID]
	if !ok {
		return 0, &APIError{StatusCode: 404, Code: "NOT_FOUND", Message: fmt.Sprintf("unknown product %s", productID)}
	}
	// small random drift so strategies see movement
	drift := 1 + (m.rng.Float64()-0.5)*0.002
	price *= drift
	m.prices[productID] = price
	return price, nil
}

func baseCurrency(productID string) string {
	for i := 0; i < len(productID); i++ {
		if productID[i] == '-' {
			return productID[:i]
		}
	}
	return productID
}

func (m *MockClient) ListAccounts(_ context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]Account, 0, len(m.balances))
	for currency, value := range m.balances {
		accounts = append(accounts, Account{
			UUID:             uuid.NewString(),
			Name:             currency + " Wallet",
			Currency:         currency,
			AvailableBalance: Balance{Value: value, Currency: currency},
			Active:           true,
			Type:             "ACCOUNT_TYPE_CRYPTO",
		})
	}
	return accounts, nil
}

func (m *MockClient) GetProduct(_ context.Context, productID string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, err := m.currentPrice(productID)
	if err != nil {
		return nil, err
	}
	return &Product{
		ProductID:     productID,
		Price:         price,
		BaseCurrency:  baseCurrency(productID),
		QuoteCurrency: "USD",
		Status:        "online",
		QuoteMinSize:  1,
		BaseIncrement: 1e-8,
	}, nil
}

func (m *MockClient) GetTicker(_ context.Context, productID string) (*Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, err := m.currentPrice(productID)
	if err != nil {
		return nil, err
	}
	spread := price * 0.0005
	return &Ticker{
		ProductID: productID,
		BestBid:   price - spread,
		BestAsk:   price + spread,
		Price:     price,
		Time:      time.Now(),
	}, nil
}

func (m *MockClient) GetCandles(_ context.Context, productID, _ string, start, end time.Time) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, err := m.currentPrice(productID)
	if err != nil {
		return nil, err
	}

	span := end.Sub(start)
	buckets := int(span / time.Minute)
	if buckets < 1 {
		buckets = 1
	}
	if buckets > 300 {
		buckets = 300
	}

	candles := make([]Candle, buckets)
	current := price
	for i := buckets - 1; i >= 0; i-- {
		open := current * (1 + (m.rng.Float64()-0.5)*0.004)
		high := math.Max(open, current) * (1 + m.rng.Float64()*0.001)
		low := math.Min(open, current) * (1 - m.rng.Float64()*0.001)
		candles[i] = Candle{
			Start:  end.Add(-time.Duration(buckets-i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  current,
			Volume: 10 + m.rng.Float64()*100,
		}
		current = open
	}
	return candles, nil
}

func (m *MockClient) CreateMarketOrder(_ context.Context, productID, side string, quoteSize float64) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, err := m.currentPrice(productID)
	if err != nil {
		return nil, err
	}

	base := baseCurrency(productID)
	fees := quoteSize * m.feeRate
	size := (quoteSize - fees) / price

	switch side {
	case SideBuy:
		if m.balances["USD"] < quoteSize {
			return nil, &APIError{StatusCode: 400, Code: "INSUFFICIENT_FUND", Message: "insufficient USD balance"}
		}
		m.balances["USD"] -= quoteSize
		m.balances[base] += size
	case SideSell:
		if m.balances[base]*price < quoteSize {
			return nil, &APIError{StatusCode: 400, Code: "INSUFFICIENT_FUND", Message: fmt.Sprintf("insufficient %s balance", base)}
		}
		m.balances[base] -= quoteSize / price
		m.balances["USD"] += quoteSize - fees
	default:
		return nil, &APIError{StatusCode: 400, Code: "INVALID_SIDE", Message: side}
	}

	resp := &OrderResponse{
		OrderID:       uuid.NewString(),
		ClientOrderID: uuid.NewString(),
		ProductID:     productID,
		Side:          side,
		Status:        OrderStatusFilled,
		FilledSize:    size,
		AverageFilled: price,
		TotalFees:     fees,
	}
	m.orders = append(m.orders, Order{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		ProductID:     productID,
		Side:          side,
		Status:        OrderStatusFilled,
		CreatedTime:   time.Now(),
		FilledSize:    size,
		AverageFilled: price,
		TotalFees:     fees,
	})
	return resp, nil
}

func (m *MockClient) CancelOrders(_ context.Context, orderIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cancelled []string
	for _, id := range orderIDs {
		for i := range m.orders {
			if m.orders[i].OrderID == id && m.orders[i].Status == OrderStatusOpen {
				m.orders[i].Status = OrderStatusCancelled
				cancelled = append(cancelled, id)
			}
		}
	}
	return cancelled, nil
}

func (m *MockClient) ListOpenOrders(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []Order
	for _, order := range m.orders {
		if order.Status == OrderStatusOpen {
			open = append(open, order)
		}
	}
	return open, nil
}

func (m *MockClient) GetServerTime(_ context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}
