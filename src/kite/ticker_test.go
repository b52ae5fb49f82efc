package kite

import (
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ltpPacket(token int64, pricePaise int32) []byte {
	pkt := make([]byte, 8)
	binary.BigEndian.PutUint32(pkt[0:4], uint32(token))
	binary.BigEndian.PutUint32(pkt[4:8], uint32(pricePaise))
	return pkt
}

func tickFrame(packets ...[]byte) []byte {
	frame := make([]byte, 2)
	binary.BigEndian.PutUint16(frame[0:2], uint16(len(packets)))
	for _, pkt := range packets {
		lenField := make([]byte, 2)
		binary.BigEndian.PutUint16(lenField, uint16(len(pkt)))
		frame = append(frame, lenField...)
		frame = append(frame, pkt...)
	}
	return frame
}

func TestHandleBinaryDecodesLTP(t *testing.T) {
	tk := NewTicker(logrus.New(), "key", "token")
	var ticks []Tick
	tk.OnTick(func(tick Tick) { ticks = append(ticks, tick) })

	tk.handleBinary(tickFrame(
		ltpPacket(256265, 2548050), // 25480.50
		ltpPacket(12345, 9605),     // 96.05
	))

	require.Len(t, ticks, 2)
	assert.Equal(t, int64(256265), ticks[0].Token)
	assert.InDelta(t, 25480.50, ticks[0].LTP, 1e-9)

	ltp, ok := tk.LTP(12345)
	require.True(t, ok)
	assert.InDelta(t, 96.05, ltp, 1e-9)
}

func TestHandleBinaryIgnoresHeartbeat(t *testing.T) {
	tk := NewTicker(logrus.New(), "key", "token")
	called := false
	tk.OnTick(func(Tick) { called = true })

	tk.handleBinary([]byte{0})
	assert.False(t, called)
}

func TestHandleBinaryTruncatedFrame(t *testing.T) {
	tk := NewTicker(logrus.New(), "key", "token")

	frame := tickFrame(ltpPacket(256265, 2548050))
	// claim two packets but carry one
	binary.BigEndian.PutUint16(frame[0:2], 2)

	assert.NotPanics(t, func() { tk.handleBinary(frame) })
}

func TestLTPUnknownToken(t *testing.T) {
	tk := NewTicker(logrus.New(), "key", "token")
	_, ok := tk.LTP(999)
	assert.False(t, ok)
}

func TestUnsubscribeClearsCache(t *testing.T) {
	tk := NewTicker(logrus.New(), "key", "token")
	tk.handleBinary(tickFrame(ltpPacket(42, 100)))

	_, ok := tk.LTP(42)
	require.True(t, ok)

	// not connected, the write fails, but local state must still clear
	_ = tk.Unsubscribe(42)
	_, ok = tk.LTP(42)
	assert.False(t, ok)
}
