package kite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftytrader-go/src/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("testkey", "testtoken")
	c.SetBaseURL(server.URL)
	return c
}

func TestDoRequestSetsAuthHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
		assert.Equal(t, "token testkey:testtoken", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"status":"success","data":{}}`)
	})

	err := c.doJSON(context.Background(), http.MethodGet, "/user/margins/equity", nil, nil)
	assert.NoError(t, err)
}

func TestAvailableBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/margins/equity", r.URL.Path)
		fmt.Fprint(w, `{"status":"success","data":{"available":{"live_balance":50000.25,"cash":48000}}}`)
	})

	balance, err := c.AvailableBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50000.25, balance, 1e-9)
}

func TestHistoricalCandles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instruments/historical/256265/5minute", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("from"))
		assert.NotEmpty(t, r.URL.Query().Get("to"))
		fmt.Fprint(w, `{"status":"success","data":{"candles":[
			["2026-08-25T09:15:00+0530",25000.1,25010.5,24995.0,25005.2,125000],
			["2026-08-25T09:20:00+0530",25005.2,25020.0,25001.0,25018.7,98000]
		]}}`)
	})

	from := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	candles, err := c.HistoricalCandles(context.Background(), 256265, "5minute", from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.InDelta(t, 25000.1, candles[0].Open, 1e-9)
	assert.InDelta(t, 25018.7, candles[1].Close, 1e-9)
	assert.InDelta(t, 98000.0, candles[1].Volume, 1e-9)
	assert.Equal(t, 9, candles[0].Timestamp.Hour())
}

func TestLTP(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"NSE:NIFTY 50"}, r.URL.Query()["i"])
		fmt.Fprint(w, `{"status":"success","data":{"NSE:NIFTY 50":{"instrument_token":256265,"last_price":25480.5}}}`)
	})

	prices, err := c.LTP(context.Background(), "NSE:NIFTY 50")
	require.NoError(t, err)
	assert.InDelta(t, 25480.5, prices["NSE:NIFTY 50"], 1e-9)
}

func TestPlaceOrderForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/regular", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "NFO", r.PostForm.Get("exchange"))
		assert.Equal(t, "NIFTY26AUG25100CE", r.PostForm.Get("tradingsymbol"))
		assert.Equal(t, "BUY", r.PostForm.Get("transaction_type"))
		assert.Equal(t, "450", r.PostForm.Get("quantity"))
		assert.Equal(t, "MIS", r.PostForm.Get("product"))
		assert.Equal(t, "MARKET", r.PostForm.Get("order_type"))
		assert.Equal(t, "DAY", r.PostForm.Get("validity"))
		fmt.Fprint(w, `{"status":"success","data":{"order_id":"230825000001"}}`)
	})

	orderID, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Exchange:        "NFO",
		Symbol:          "NIFTY26AUG25100CE",
		TransactionType: models.TransactionBuy,
		Quantity:        450,
		Product:         models.ProductIntraday,
		OrderType:       models.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, "230825000001", orderID)
}

func TestOrderStateReturnsLatestHistoryEntry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/230825000001", r.URL.Path)
		fmt.Fprint(w, `{"status":"success","data":[
			{"status":"OPEN","average_price":0,"filled_quantity":0},
			{"status":"COMPLETE","average_price":96.05,"filled_quantity":450}
		]}`)
	})

	state, err := c.OrderState(context.Background(), "230825000001")
	require.NoError(t, err)
	assert.True(t, state.Filled())
	assert.InDelta(t, 96.05, state.AveragePrice, 1e-9)
	assert.Equal(t, 450, state.FilledQty)
}

func TestNetPositions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/portfolio/positions", r.URL.Path)
		fmt.Fprint(w, `{"status":"success","data":{"net":[
			{"tradingsymbol":"NIFTY26AUG25100CE","exchange":"NFO","quantity":450,"average_price":96.05}
		],"day":[]}}`)
	})

	positions, err := c.NetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "NIFTY26AUG25100CE", positions[0].Symbol)
	assert.Equal(t, 450, positions[0].Quantity)
}

func TestTokenErrorIsAuthNotTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"error","message":"Token is invalid or has expired.","error_type":"TokenException"}`)
	})

	_, err := c.AvailableBalance(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"error","message":"Gateway is down","error_type":"GatewayException"}`)
	})

	_, err := c.AvailableBalance(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsAuthError(err))
}

func TestErrorEnvelopeWithOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","message":"Insufficient funds","error_type":"OrderException"}`)
	})

	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "Insufficient funds")
}

func TestInstrumentsCSV(t *testing.T) {
	csvBody := "instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange\n" +
		"12345,48,NIFTY26SEP25500CE,NIFTY,0,2026-09-03,25500,0.05,75,CE,NFO-OPT,NFO\n" +
		"12346,49,NIFTY26SEP25500PE,NIFTY,0,2026-09-03,25500,0.05,75,PE,NFO-OPT,NFO\n"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instruments/NFO", r.URL.Path)
		fmt.Fprint(w, csvBody)
	})

	instruments, err := c.Instruments(context.Background(), "NFO")
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	ce := instruments[0]
	assert.Equal(t, int64(12345), ce.Token)
	assert.Equal(t, "NIFTY26SEP25500CE", ce.Symbol)
	assert.Equal(t, "NIFTY", ce.Name)
	assert.InDelta(t, 25500.0, ce.Strike, 1e-9)
	assert.Equal(t, 75, ce.LotSize)
	assert.Equal(t, "CE", ce.OptionType)
	assert.Equal(t, 2026, ce.Expiry.Year())
	assert.Equal(t, time.September, ce.Expiry.Month())
}

func TestParseExpiryLayouts(t *testing.T) {
	assert.Equal(t, 2026, parseExpiry("2026-09-03").Year())
	assert.Equal(t, time.September, parseExpiry("03-09-2026").Month())
	assert.Equal(t, 3, parseExpiry("2026-09-03 00:00:00").Day())
	assert.True(t, parseExpiry("garbage").IsZero())
}

func TestGenerateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "testkey", r.PostForm.Get("api_key"))
		assert.Equal(t, "reqtoken", r.PostForm.Get("request_token"))
		assert.Len(t, r.PostForm.Get("checksum"), 64, "hex encoded sha256")
		fmt.Fprint(w, `{"status":"success","data":{"access_token":"fresh-token"}}`)
	})

	token, err := c.GenerateSession(context.Background(), "reqtoken", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, "fresh-token", c.AccessToken())
}
