package coinbase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coinbase-trading-bot/internal/logging"
)

// TickerUpdate is one price tick from the websocket feed
type TickerUpdate struct {
	ProductID string
	Price     float64
	BestBid   float64
	BestAsk   float64
	Time      time.Time
}

// TickerStream maintains a websocket subscription to the ticker channel
// and fans updates out on a channel. It reconnects with backoff when the
// connection drops; consumers just read from Updates().
type TickerStream struct {
	url      string
	products []string
	updates  chan TickerUpdate
	logger   *logging.Logger

	mu        sync.RWMutex
	connected bool
	lastTick  time.Time
}

// NewTickerStream creates a stream for the given products. Call Run to
// start it.
func NewTickerStream(url string, products []string) *TickerStream {
	return &TickerStream{
		url:      url,
		products: products,
		updates:  make(chan TickerUpdate, 256),
		logger:   logging.WithComponent("ticker-stream"),
	}
}

// Updates returns the channel ticks are delivered on
func (s *TickerStream) Updates() <-chan TickerUpdate {
	return s.updates
}

// IsConnected reports whether the websocket is currently up
func (s *TickerStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastTick returns the time of the most recent update
func (s *TickerStream) LastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// Run connects and processes messages until ctx is cancelled. Reconnects
// automatically with backoff capped at 30 seconds.
func (s *TickerStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := s.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				close(s.updates)
				return
			}
			s.logger.Warn("Websocket disconnected, reconnecting", "error", err.Error(), "backoff", backoff.String())
		}

		select {
		case <-ctx.Done():
			close(s.updates)
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *TickerStream) setConnected(up bool) {
	s.mu.Lock()
	s.connected = up
	s.mu.Unlock()
}

func (s *TickerStream) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subscribe := map[string]interface{}{
		"type":        "subscribe",
		"channel":     "ticker",
		"product_ids": s.products,
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return err
	}

	s.setConnected(true)
	defer s.setConnected(false)
	s.logger.Info("Websocket connected", "products", len(s.products))

	// close the connection when ctx is cancelled to unblock ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(raw)
	}
}

func (s *TickerStream) handleMessage(raw []byte) {
	var msg struct {
		Channel string `json:"channel"`
		Events  []struct {
			Tickers []struct {
				ProductID string `json:"product_id"`
				Price     string `json:"price"`
				BestBid   string `json:"best_bid"`
				BestAsk   string `json:"best_ask"`
			} `json:"tickers"`
		} `json:"events"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Channel != "ticker" {
		return
	}

	for _, event := range msg.Events {
		for _, tick := range event.Tickers {
			update := TickerUpdate{
				ProductID: tick.ProductID,
				Price:     parseFloat(tick.Price),
				BestBid:   parseFloat(tick.BestBid),
				BestAsk:   parseFloat(tick.BestAsk),
				Time:      time.Now(),
			}
			if update.Price == 0 {
				continue
			}

			s.mu.Lock()
			s.lastTick = update.Time
			s.mu.Unlock()

			select {
			case s.updates <- update:
			default:
				// consumer is behind, drop the tick rather than block the reader
			}
		}
	}
}
