// Package gateway fans the Result Emitter's events out to WebSocket
// dashboard clients, and durably-stored candles/results out over a small
// REST surface. Adapted (trimmed) from the teacher's multi-token,
// multi-indicator dashboard hub: the teacher's Hub juggled N tokens × N
// timeframes × N indicator display configs behind a per-client SUBSCRIBE
// protocol; this engine runs exactly one symbol/timeframe per instance
// (spec §2 Engine), so there is nothing left for a client to subscribe to
// beyond "the stream this process serves" — every connected client simply
// receives everything the Hub broadcasts.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// Hub manages WebSocket dashboard clients and the Redis PubSub fan-out
// feeding them, for one symbol/timeframe pair.
type Hub struct {
	Rdb    *goredis.Client
	Symbol string
	TF     string

	mu         sync.RWMutex
	clients    map[*Client]bool
	latest     map[string]latestEntry
	replayBufs map[string]*ReplayBuffer
	seq        int64
	channelSeq map[string]int64
}

// NewHub creates a Hub serving the given symbol/timeframe.
func NewHub(rdb *goredis.Client, symbol, tf string) *Hub {
	return &Hub{
		Rdb:        rdb,
		Symbol:     symbol,
		TF:         tf,
		clients:    make(map[*Client]bool),
		latest:     make(map[string]latestEntry),
		replayBufs: make(map[string]*ReplayBuffer),
		channelSeq: make(map[string]int64),
	}
}

// CandleChannel is the Redis PubSub channel this Hub's candles arrive on.
func (h *Hub) CandleChannel() string { return "pub:candle:" + h.Symbol + ":" + h.TF }

// ResultChannel is the Redis PubSub channel this Hub's execution results
// arrive on.
func (h *Hub) ResultChannel() string { return "pub:result:" + h.Symbol + ":" + h.TF }

// Run subscribes to this Hub's two channels and fans every message out to
// connected clients. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.Rdb.Subscribe(ctx, h.CandleChannel(), h.ResultChannel())
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to %s, %s", h.CandleChannel(), h.ResultChannel())

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// broadcast hand-crafts an envelope and fans it out to every connected
// client, tracking per-channel sequence numbers for replay/gap-detection
// and storing the envelope in a per-channel replay buffer.
func (h *Hub) broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeq[channel]++
	chSeq := h.channelSeq[channel]
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: chSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(500)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, chSeq, 10)
	buf = append(buf, '}')

	rb.Push(chSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

// HandleWSRequest registers a new dashboard client on an already-upgraded
// connection.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{conn: conn, send: make(chan []byte, 256), hub: h}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", h.ClientCount())

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient deregisters a client.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount reports the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetLatestAll returns a snapshot of the latest message on every channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// StartMetricsBroadcast periodically sends system resource metrics to
// every connected dashboard client.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := CollectMetrics(start)
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":    "metrics",
				"metrics": m,
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
