package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTE FEED - Websocket adapter driving the sim venue's matching cores
// ═══════════════════════════════════════════════════════════════════════════════

// Quote is one top-of-book observation.
type Quote struct {
	InstrumentID model.InstrumentID `json:"instrument_id"`
	Bid          decimal.Decimal    `json:"bid"`
	Ask          decimal.Decimal    `json:"ask"`
	Last         decimal.Decimal    `json:"last"`
	TsEvent      int64              `json:"ts_event"`
}

// QuoteSink consumes decoded quotes; runs on the feed goroutine, so sinks
// hand off to the engine's inbound channel rather than mutating state.
type QuoteSink func(q Quote)

// WSFeed streams quotes from a websocket endpoint with reconnect/backoff.
type WSFeed struct {
	url  string
	sink QuoteSink

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWSFeed creates a feed for one endpoint.
func NewWSFeed(url string, sink QuoteSink) *WSFeed {
	return &WSFeed{url: url, sink: sink}
}

// Start connects and begins streaming. Reconnects with capped backoff until
// Stop is called.
func (f *WSFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.mu.Unlock()

	f.wg.Add(1)
	go f.run()
	log.Info().Str("url", f.url).Msg("📡 Quote feed started")
}

// Stop closes the connection and halts the read loop.
func (f *WSFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		_ = f.conn.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
	log.Info().Msg("quote feed stopped")
}

func (f *WSFeed) run() {
	defer f.wg.Done()
	backoff := time.Second
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("feed dial failed")
			select {
			case <-f.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		log.Info().Str("url", f.url).Msg("feed connected")

		f.readLoop(conn)

		f.mu.Lock()
		f.conn = nil
		stopped := !f.running
		f.mu.Unlock()
		if stopped {
			return
		}
		log.Warn().Msg("feed disconnected, reconnecting")
	}
}

func (f *WSFeed) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var q Quote
		if err := json.Unmarshal(data, &q); err != nil {
			log.Warn().Err(err).Msg("malformed quote frame dropped")
			continue
		}
		if q.InstrumentID == "" {
			continue
		}
		f.sink(q)
	}
}
