// cmd/wssim is a synthetic exchange WebSocket server: it accepts a
// connection, waits for a "candles" subscribe request in the same
// {"event":"subscribe","channel":...,"params":...} envelope
// pkg/exchangesocket.Socket.Subscribe sends, then streams a random walk
// of closed candles back in the {"channel":"candles","data":...}
// envelope pkg/exchangesocket.Socket expects. Useful for driving
// cmd/execengine end-to-end without a live exchange connection.
//
// Adapted from the teacher's internal/marketdata/wssim, which was a
// client dialing a custom tick server; this is the server side of that
// same idea, emitting model.Candle instead of model.Tick since this
// spec's exchange feed is pre-aggregated candles, not raw ticks.
//
// Usage:
//
//	go run ./cmd/wssim --addr :9001 --symbol tBTCUSD --tf 1m --interval 1s
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"livestratexec/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscribeRequest struct {
	Event   string         `json:"event"`
	Channel string         `json:"channel"`
	Params  map[string]any `json:"params"`
}

type envelope struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// walker generates a random-walk candle series, seeded from a starting
// price, with a fixed tick step per bucket.
type walker struct {
	mu     sync.Mutex
	price  float64
	symbol string
	tf     string
	period time.Duration
	mts    int64
}

func newWalker(symbol, tf string, startPrice float64, period time.Duration) *walker {
	return &walker{
		price:  startPrice,
		symbol: symbol,
		tf:     tf,
		period: period,
		mts:    time.Now().UnixMilli(),
	}
}

func (w *walker) next() model.Candle {
	w.mu.Lock()
	defer w.mu.Unlock()

	open := w.price
	delta := (rand.Float64() - 0.5) * open * 0.002
	closePrice := open + delta
	high := open
	low := open
	if closePrice > high {
		high = closePrice
	}
	if closePrice < low {
		low = closePrice
	}
	high += rand.Float64() * open * 0.0005
	low -= rand.Float64() * open * 0.0005

	c := model.Candle{
		Symbol: w.symbol,
		TF:     w.tf,
		MTS:    w.mts,
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(closePrice),
		Volume: decimal.NewFromFloat(rand.Float64() * 10),
	}

	w.price = closePrice
	w.mts += w.period.Milliseconds()
	return c
}

func main() {
	addr := flag.String("addr", ":9001", "listen address")
	symbol := flag.String("symbol", "tBTCUSD", "instrument symbol")
	tf := flag.String("tf", "1m", "candle timeframe")
	interval := flag.Duration("interval", time.Second, "wall-clock interval between emitted candles")
	startPrice := flag.Float64("price", 60000, "starting price")
	flag.Parse()

	w := newWalker(*symbol, *tf, *startPrice, *interval)

	http.HandleFunc("/ws", func(rw http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(rw, req, nil)
		if err != nil {
			log.Printf("[wssim] upgrade failed: %v", err)
			return
		}
		log.Printf("[wssim] client connected from %s", req.RemoteAddr)
		go serveConn(conn, w, *interval)
	})

	log.Printf("[wssim] listening on %s, emitting %s/%s every %s", *addr, *symbol, *tf, *interval)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("[wssim] listen failed: %v", err)
	}
}

func serveConn(conn *websocket.Conn, w *walker, interval time.Duration) {
	defer conn.Close()

	subscribed := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req subscribeRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				log.Printf("[wssim] bad subscribe request: %v", err)
				continue
			}
			if req.Event == "subscribe" && req.Channel == "candles" {
				once.Do(func() { close(subscribed) })
			}
		}
	}()

	select {
	case <-subscribed:
	case <-time.After(10 * time.Second):
		log.Printf("[wssim] no subscribe received within 10s, streaming anyway")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		env := envelope{Channel: "candles", Data: w.next()}
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("[wssim] write failed, closing: %v", err)
			return
		}
	}
}
