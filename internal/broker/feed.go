package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"track_record/internal/domain"
	"track_record/internal/infra"
)

const readTimeout = 60 * time.Second

// tickerMessage is the feed's ticker frame.
type tickerMessage struct {
	Type       string  `json:"type"` // ticker
	Code       string  `json:"code"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

// FeedWorker maintains a WebSocket market data connection and pushes mark
// prices into a PriceSink (the paper broker). Auto-reconnects with
// exponential backoff.
type FeedWorker struct {
	wsURL   string
	symbols []string
	sink    domain.PriceSink

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewFeedWorker creates a feed worker for the given symbols.
func NewFeedWorker(wsURL string, symbols []string, sink domain.PriceSink) *FeedWorker {
	return &FeedWorker{
		wsURL:   wsURL,
		symbols: symbols,
		sink:    sink,
	}
}

// Connect starts the connection loop in the background.
func (w *FeedWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *FeedWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	var backoff infra.Backoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			delay := backoff.Next()
			slog.Warn("feed connection failed",
				slog.Any("error", err),
				slog.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			backoff.Reset()
			w.readLoop(ctx)
		}
	}
}

func (w *FeedWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)

	conn, _, err := dialer.DialContext(ctx, w.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("feed connected", slog.Int("subs", len(w.symbols)))
	return nil
}

func (w *FeedWorker) subscribe() error {
	msg := []map[string]interface{}{
		{"ticket": fmt.Sprintf("track-%d", time.Now().UnixNano())},
		{"type": "ticker", "codes": w.symbols},
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *FeedWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *FeedWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *FeedWorker) handleMessage(msg []byte) {
	var tick tickerMessage
	if json.Unmarshal(msg, &tick) != nil || tick.Type != "ticker" {
		return
	}
	w.sink.UpdatePrice(tick.Code, decimal.NewFromFloat(tick.TradePrice))
}

// IsConnected reports the current connection state.
func (w *FeedWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *FeedWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the worker and closes the connection.
func (w *FeedWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
