// Package kite is a minimal Zerodha Kite Connect v3 client covering the
// surface this system needs: historical candles, quotes, margins, regular
// orders, positions and the instrument dump.
package kite

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"niftytrader-go/src/models"
)

const (
	// BaseURL is the Kite Connect REST endpoint
	BaseURL = "https://api.kite.trade"
	// APIVersion is sent as the X-Kite-Version header
	APIVersion = "3"
	// DefaultTimeout bounds every REST call
	DefaultTimeout = 30 * time.Second

	timeLayout   = "2006-01-02 15:04:05"
	candleLayout = "2006-01-02T15:04:05-0700"
)

// expiryLayouts are the date formats seen in instrument dumps over time
var expiryLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"02 Jan 2006",
	"Jan 02 2006",
}

// parseExpiry parses an instrument expiry date, zero time when unparseable
func parseExpiry(raw string) time.Time {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Client is a Kite Connect REST API client
type Client struct {
	apiKey      string
	accessToken string
	httpClient  *http.Client
	baseURL     string
}

// loadEnvFile loads the .env file from the project root (the directory
// containing go.mod). Missing files are not an error, the process
// environment may already be populated.
func loadEnvFile() error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	rootDir := workDir
	for {
		if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(rootDir)
		if parent == rootDir {
			return nil
		}
		rootDir = parent
	}

	_ = godotenv.Load(filepath.Join(rootDir, ".env"))
	return nil
}

// NewClient creates a client with an existing access token
func NewClient(apiKey, accessToken string) *Client {
	return &Client{
		apiKey:      apiKey,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		baseURL:     BaseURL,
	}
}

// NewClientFromEnv creates a client from the environment (or a .env file at
// the project root). Requires KITE_API_KEY and KITE_ACCESS_TOKEN.
func NewClientFromEnv() (*Client, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	apiKey := os.Getenv("KITE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("KITE_API_KEY is not set")
	}
	accessToken := os.Getenv("KITE_ACCESS_TOKEN")
	if accessToken == "" {
		return nil, fmt.Errorf("KITE_ACCESS_TOKEN is not set")
	}

	return NewClient(apiKey, accessToken), nil
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimSuffix(u, "/") }

// AccessToken returns the current session token
func (c *Client) AccessToken() string { return c.accessToken }

// GenerateSession exchanges a login request token for an access token and
// installs it on the client. The checksum is SHA-256 over
// api_key + request_token + api_secret.
func (c *Client) GenerateSession(ctx context.Context, requestToken, apiSecret string) (string, error) {
	sum := sha256.Sum256([]byte(c.apiKey + requestToken + apiSecret))
	form := url.Values{
		"api_key":       {c.apiKey},
		"request_token": {requestToken},
		"checksum":      {hex.EncodeToString(sum[:])},
	}

	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session/token", form, &data); err != nil {
		return "", err
	}
	if data.AccessToken == "" {
		return "", fmt.Errorf("kite: session response carried no access token")
	}
	c.accessToken = data.AccessToken
	return data.AccessToken, nil
}

// doRequest executes one REST call and returns the raw response body.
// Error status codes are decoded into APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil && method != http.MethodGet {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("kite: build request: %w", err)
	}
	req.Header.Set("X-Kite-Version", APIVersion)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// doJSON executes a REST call and unmarshals the data field of the standard
// {"status": ..., "data": ...} envelope into out.
func (c *Client) doJSON(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	respBody, err := c.doRequest(ctx, method, path, form)
	if err != nil {
		return err
	}

	var envelope struct {
		Status    string          `json:"status"`
		Data      json.RawMessage `json:"data"`
		Message   string          `json:"message"`
		ErrorType string          `json:"error_type"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("kite: decode response: %w", err)
	}
	if envelope.Status == "error" {
		return &APIError{Status: http.StatusOK, ErrorType: envelope.ErrorType, Message: envelope.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("kite: decode data: %w", err)
	}
	return nil
}

// decodeAPIError converts an error response body into an APIError
func decodeAPIError(status int, body []byte) error {
	var envelope struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Message == "" {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &APIError{Status: status, Message: msg}
	}
	return &APIError{Status: status, ErrorType: envelope.ErrorType, Message: envelope.Message}
}

// HistoricalCandles fetches candles for an instrument token. The interval is
// a Kite interval name such as "minute", "2minute" or "5minute".
func (c *Client) HistoricalCandles(ctx context.Context, token int64, interval string, from, to time.Time) ([]models.Candle, error) {
	q := url.Values{
		"from": {from.Format(timeLayout)},
		"to":   {to.Format(timeLayout)},
	}
	path := fmt.Sprintf("/instruments/historical/%d/%s?%s", token, interval, q.Encode())

	var data struct {
		Candles [][]interface{} `json:"candles"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(data.Candles))
	for _, row := range data.Candles {
		if len(row) < 6 {
			continue
		}
		ts, ok := row[0].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(candleLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("kite: parse candle timestamp %q: %w", ts, err)
		}
		candles = append(candles, models.Candle{
			Timestamp: t,
			Open:      asFloat(row[1]),
			High:      asFloat(row[2]),
			Low:       asFloat(row[3]),
			Close:     asFloat(row[4]),
			Volume:    asFloat(row[5]),
		})
	}
	return candles, nil
}

// asFloat coerces a JSON number to float64
func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// LTP returns last traded prices for the given "EXCHANGE:SYMBOL" keys
func (c *Client) LTP(ctx context.Context, keys ...string) (map[string]float64, error) {
	q := url.Values{}
	for _, k := range keys {
		q.Add("i", k)
	}

	var data map[string]struct {
		LastPrice float64 `json:"last_price"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/quote/ltp?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(data))
	for k, v := range data {
		out[k] = v.LastPrice
	}
	return out, nil
}

// Quote is the full market quote for one instrument
type Quote struct {
	InstrumentToken int64   `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	Volume          float64 `json:"volume"`
	OI              float64 `json:"oi"`
	OHLC            struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
}

// Quotes returns full quotes for the given "EXCHANGE:SYMBOL" keys. The API
// accepts at most 500 instruments per call; batching is the caller's job.
func (c *Client) Quotes(ctx context.Context, keys ...string) (map[string]Quote, error) {
	q := url.Values{}
	for _, k := range keys {
		q.Add("i", k)
	}

	var data map[string]Quote
	if err := c.doJSON(ctx, http.MethodGet, "/quote?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// AvailableBalance returns the live available balance of the equity segment
func (c *Client) AvailableBalance(ctx context.Context) (float64, error) {
	var data struct {
		Available struct {
			LiveBalance float64 `json:"live_balance"`
			Cash        float64 `json:"cash"`
		} `json:"available"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/user/margins/equity", nil, &data); err != nil {
		return 0, err
	}
	if data.Available.LiveBalance > 0 {
		return data.Available.LiveBalance, nil
	}
	return data.Available.Cash, nil
}

// PlaceOrder submits a regular order and returns the broker order ID
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	form := url.Values{
		"exchange":         {req.Exchange},
		"tradingsymbol":    {req.Symbol},
		"transaction_type": {req.TransactionType},
		"quantity":         {strconv.Itoa(req.Quantity)},
		"product":          {req.Product},
		"order_type":       {req.OrderType},
		"validity":         {"DAY"},
	}
	if req.Tag != "" {
		form.Set("tag", req.Tag)
	}

	var data struct {
		OrderID string `json:"order_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/orders/regular", form, &data); err != nil {
		return "", err
	}
	return data.OrderID, nil
}

// CancelOrder cancels a pending regular order
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/orders/regular/"+orderID, nil, nil)
}

// OrderState returns the latest state in the order's history
func (c *Client) OrderState(ctx context.Context, orderID string) (models.OrderState, error) {
	var data []struct {
		Status         string  `json:"status"`
		AveragePrice   float64 `json:"average_price"`
		FilledQuantity int     `json:"filled_quantity"`
		StatusMessage  string  `json:"status_message"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/orders/"+orderID, nil, &data); err != nil {
		return models.OrderState{}, err
	}
	if len(data) == 0 {
		return models.OrderState{}, fmt.Errorf("kite: order %s has no history", orderID)
	}

	last := data[len(data)-1]
	return models.OrderState{
		OrderID:       orderID,
		Status:        last.Status,
		AveragePrice:  last.AveragePrice,
		FilledQty:     last.FilledQuantity,
		StatusMessage: last.StatusMessage,
	}, nil
}

// NetPositions returns the day's net positions
func (c *Client) NetPositions(ctx context.Context) ([]models.NetPosition, error) {
	var data struct {
		Net []struct {
			TradingSymbol string  `json:"tradingsymbol"`
			Exchange      string  `json:"exchange"`
			Quantity      int     `json:"quantity"`
			AveragePrice  float64 `json:"average_price"`
		} `json:"net"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/portfolio/positions", nil, &data); err != nil {
		return nil, err
	}

	out := make([]models.NetPosition, 0, len(data.Net))
	for _, p := range data.Net {
		out = append(out, models.NetPosition{
			Symbol:       p.TradingSymbol,
			Exchange:     p.Exchange,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
		})
	}
	return out, nil
}

// Instruments downloads and parses the instrument dump for one exchange.
// The endpoint returns CSV, not the JSON envelope.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]models.Instrument, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/instruments/"+exchange, nil)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("kite: read instrument header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "name", "expiry", "strike", "lot_size", "instrument_type", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("kite: instrument dump missing column %q", required)
		}
	}

	var instruments []models.Instrument
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("kite: read instrument row: %w", err)
		}

		token, _ := strconv.ParseInt(record[col["instrument_token"]], 10, 64)
		strike, _ := strconv.ParseFloat(record[col["strike"]], 64)
		lotSize, _ := strconv.Atoi(record[col["lot_size"]])

		var expiry time.Time
		if raw := record[col["expiry"]]; raw != "" {
			expiry = parseExpiry(raw)
		}

		instruments = append(instruments, models.Instrument{
			Token:      token,
			Symbol:     record[col["tradingsymbol"]],
			Name:       record[col["name"]],
			Exchange:   record[col["exchange"]],
			Expiry:     expiry,
			Strike:     strike,
			OptionType: record[col["instrument_type"]],
			LotSize:    lotSize,
		})
	}
	return instruments, nil
}
