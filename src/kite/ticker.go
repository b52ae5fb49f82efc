package kite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// WSBaseURL is the Kite ticker WebSocket endpoint
	WSBaseURL = "wss://ws.kite.trade"
	// WSReconnectInterval is the wait between reconnect attempts
	WSReconnectInterval = 5 * time.Second
	// WSReadTimeout resets on every frame; the server heartbeats every second
	WSReadTimeout = 30 * time.Second
	// WSWriteTimeout bounds control and subscribe writes
	WSWriteTimeout = 10 * time.Second
)

// Tick is one LTP update for a subscribed instrument
type Tick struct {
	Token int64
	LTP   float64
}

// Ticker streams live prices over the Kite WebSocket in LTP mode. Prices
// are cached per token so pollers can read the latest value without
// consuming the stream.
type Ticker struct {
	log         *logrus.Entry
	apiKey      string
	accessToken string

	conn      *websocket.Conn
	connMutex sync.RWMutex

	subscribed map[int64]bool
	subMutex   sync.Mutex

	prices     map[int64]float64
	priceMutex sync.RWMutex

	onTick func(Tick)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTicker creates a ticker for the given session credentials
func NewTicker(log *logrus.Logger, apiKey, accessToken string) *Ticker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ticker{
		log:         log.WithField("component", "ticker"),
		apiKey:      apiKey,
		accessToken: accessToken,
		subscribed:  make(map[int64]bool),
		prices:      make(map[int64]float64),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnTick installs a callback invoked for every price update. Must be set
// before Connect.
func (t *Ticker) OnTick(fn func(Tick)) { t.onTick = fn }

// Connect dials the WebSocket and starts the read loop. Reconnection with
// resubscription is automatic until Close is called.
func (t *Ticker) Connect(ctx context.Context) error {
	if err := t.dial(ctx); err != nil {
		return err
	}
	go t.readLoop()
	return nil
}

// Close shuts the ticker down
func (t *Ticker) Close() error {
	t.cancel()

	t.connMutex.Lock()
	defer t.connMutex.Unlock()
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

// IsConnected reports whether the socket is currently up
func (t *Ticker) IsConnected() bool {
	t.connMutex.RLock()
	defer t.connMutex.RUnlock()
	return t.conn != nil
}

// SubscribeLTP subscribes the given instrument tokens in LTP mode
func (t *Ticker) SubscribeLTP(tokens ...int64) error {
	if len(tokens) == 0 {
		return nil
	}

	t.subMutex.Lock()
	for _, token := range tokens {
		t.subscribed[token] = true
	}
	t.subMutex.Unlock()

	return t.sendSubscribe(tokens)
}

// Unsubscribe removes instrument tokens from the stream
func (t *Ticker) Unsubscribe(tokens ...int64) error {
	if len(tokens) == 0 {
		return nil
	}

	t.subMutex.Lock()
	for _, token := range tokens {
		delete(t.subscribed, token)
	}
	t.subMutex.Unlock()

	t.priceMutex.Lock()
	for _, token := range tokens {
		delete(t.prices, token)
	}
	t.priceMutex.Unlock()

	return t.sendJSON(map[string]interface{}{"a": "unsubscribe", "v": tokens})
}

// LTP returns the last cached price for a token
func (t *Ticker) LTP(token int64) (float64, bool) {
	t.priceMutex.RLock()
	defer t.priceMutex.RUnlock()
	ltp, ok := t.prices[token]
	return ltp, ok
}

// dial establishes the WebSocket connection
func (t *Ticker) dial(ctx context.Context) error {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()

	if t.conn != nil {
		return fmt.Errorf("kite: ticker already connected")
	}

	q := url.Values{
		"api_key":      {t.apiKey},
		"access_token": {t.accessToken},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, WSBaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("kite: dial ticker: %w", err)
	}

	t.conn = conn
	return nil
}

// sendSubscribe subscribes tokens and switches them to LTP mode
func (t *Ticker) sendSubscribe(tokens []int64) error {
	if err := t.sendJSON(map[string]interface{}{"a": "subscribe", "v": tokens}); err != nil {
		return err
	}
	return t.sendJSON(map[string]interface{}{"a": "mode", "v": []interface{}{"ltp", tokens}})
}

// sendJSON writes one text frame
func (t *Ticker) sendJSON(msg interface{}) error {
	t.connMutex.RLock()
	conn := t.conn
	t.connMutex.RUnlock()

	if conn == nil {
		return fmt.Errorf("kite: ticker not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kite: marshal ticker message: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(WSWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop consumes frames until shutdown, reconnecting on failure
func (t *Ticker) readLoop() {
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		t.connMutex.RLock()
		conn := t.conn
		t.connMutex.RUnlock()

		if conn == nil {
			if !t.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(WSReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.log.WithError(err).Warn("Ticker read failed, reconnecting")
			t.dropConn()
			if !t.reconnect() {
				return
			}
			continue
		}

		switch msgType {
		case websocket.BinaryMessage:
			t.handleBinary(data)
		case websocket.TextMessage:
			t.handleText(data)
		}
	}
}

// dropConn closes and clears the current connection
func (t *Ticker) dropConn() {
	t.connMutex.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connMutex.Unlock()
}

// reconnect dials until it succeeds or the ticker is closed, then restores
// all subscriptions. Returns false when the ticker was closed.
func (t *Ticker) reconnect() bool {
	for {
		select {
		case <-t.ctx.Done():
			return false
		case <-time.After(WSReconnectInterval):
		}

		if err := t.dial(t.ctx); err != nil {
			t.log.WithError(err).Warn("Ticker reconnect failed")
			continue
		}

		t.subMutex.Lock()
		tokens := make([]int64, 0, len(t.subscribed))
		for token := range t.subscribed {
			tokens = append(tokens, token)
		}
		t.subMutex.Unlock()

		if len(tokens) > 0 {
			if err := t.sendSubscribe(tokens); err != nil {
				t.log.WithError(err).Warn("Ticker resubscribe failed")
				t.dropConn()
				continue
			}
		}
		t.log.WithField("tokens", len(tokens)).Info("Ticker reconnected")
		return true
	}
}

// handleBinary decodes a tick frame. Layout: int16 packet count, then per
// packet an int16 length followed by the packet bytes. An LTP packet is the
// int32 instrument token and the int32 price in paise. A one byte frame is
// the server heartbeat.
func (t *Ticker) handleBinary(data []byte) {
	if len(data) < 2 {
		return
	}
	count := int(binary.BigEndian.Uint16(data[0:2]))
	offset := 2

	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			return
		}
		length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+length > len(data) || length < 8 {
			return
		}

		packet := data[offset : offset+length]
		offset += length

		token := int64(binary.BigEndian.Uint32(packet[0:4]))
		ltp := float64(int32(binary.BigEndian.Uint32(packet[4:8]))) / 100

		t.priceMutex.Lock()
		t.prices[token] = ltp
		t.priceMutex.Unlock()

		if t.onTick != nil {
			t.onTick(Tick{Token: token, LTP: ltp})
		}
	}
}

// handleText logs postbacks and error messages pushed over the socket
func (t *Ticker) handleText(data []byte) {
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	switch msg.Type {
	case "error":
		t.log.WithField("message", string(msg.Data)).Error("Ticker server error")
	case "order":
		t.log.Debug("Order postback received")
	}
}
