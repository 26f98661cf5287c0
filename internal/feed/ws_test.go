package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSFeedDeliversQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := []string{
		`{"instrument_id":"BTCUSD.SIM","bid":"20000","ask":"20001","last":"20000.5","ts_event":1}`,
		`not json`,
		`{"bid":"1","ask":"2"}`, // missing instrument: dropped
		`{"instrument_id":"ETHUSD.SIM","bid":"1500","ask":"1501","last":"1500.5","ts_event":2}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection open until the client walks away.
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	quotes := make(chan Quote, 8)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	f := NewWSFeed(url, func(q Quote) { quotes <- q })
	f.Start()
	defer f.Stop()

	var got []Quote
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case q := <-quotes:
			got = append(got, q)
		case <-timeout:
			t.Fatalf("timed out, got %d quotes", len(got))
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, "BTCUSD.SIM", string(got[0].InstrumentID))
	assert.True(t, got[0].Bid.Equal(decimal.NewFromInt(20000)))
	assert.True(t, got[0].Ask.Equal(decimal.NewFromInt(20001)))
	assert.Equal(t, "ETHUSD.SIM", string(got[1].InstrumentID))
}

func TestWSFeedStopIsIdempotent(t *testing.T) {
	f := NewWSFeed("ws://127.0.0.1:1/nowhere", func(Quote) {})
	f.Start()
	f.Stop()
	f.Stop()
}
