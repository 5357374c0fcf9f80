package coinbase

import (
	"context"
	"time"
)

// Exchange is the surface the bot, portfolio and risk layers depend on.
// *Client implements it against the live API; MockClient implements it
// in-memory for dry runs and tests.
type Exchange interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetTicker(ctx context.Context, productID string) (*Ticker, error)
	GetCandles(ctx context.Context, productID, granularity string, start, end time.Time) ([]Candle, error)
	CreateMarketOrder(ctx context.Context, productID, side string, quoteSize float64) (*OrderResponse, error)
	CancelOrders(ctx context.Context, orderIDs []string) ([]string, error)
	ListOpenOrders(ctx context.Context) ([]Order, error)
	GetServerTime(ctx context.Context) (time.Time, error)
}

var _ Exchange = (*Client)(nil)
var _ Exchange = (*MockClient)(nil)
