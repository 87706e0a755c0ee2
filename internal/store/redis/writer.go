package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
	"unsafe"

	"livestratexec/internal/emitter"
	"livestratexec/internal/metrics"
	"livestratexec/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: keep a rolling window of recent candles/results per symbol.
	streamMaxLen     = 10800
	defaultLatestTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer durably fans out processed engine events — candles and execution
// results; trades are not written — to Redis Streams (for replay/backfill consumers like
// internal/gateway) plus a latest-value key and a pubsub channel (for
// dashboards that only want the live tip).
type Writer struct {
	client  *goredis.Client
	metrics *metrics.Metrics
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// SetMetrics wires instrumentation after construction.
func (w *Writer) SetMetrics(m *metrics.Metrics) { w.metrics = m }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads candles from candleCh and writes them to Redis. Blocks until
// ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, c)
		}
	}
}

// RunResults reads execution result snapshots and writes them to Redis
// Streams for durable replay by gateway/backtest consumers.
func (w *Writer) RunResults(ctx context.Context, resultCh <-chan emitter.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-resultCh:
			if !ok {
				return
			}
			w.writeResult(ctx, snap)
		}
	}
}

// writeCandle performs pipelined writes for a closed candle.
func (w *Writer) writeCandle(ctx context.Context, c model.Candle) {
	if w.metrics != nil {
		start := time.Now()
		defer func() { w.metrics.RedisWriteDur.Observe(time.Since(start).Seconds()) }()
	}
	latestKey := fmt.Sprintf("candle:latest:%s:%s", c.Symbol, c.TF)
	streamKey := fmt.Sprintf("candle:%s:%s", c.Symbol, c.TF)
	pubsubCh := fmt.Sprintf("pub:candle:%s:%s", c.Symbol, c.TF)
	jsonData := string(c.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error for %s: %v", c.Key(), err)
	}
}

// writeResult publishes an execution result snapshot to its Redis Stream.
// Live (intrabar) snapshots are pubsub-only; closed-candle snapshots get
// the full XADD + SET-latest + PUBLISH treatment so a restarted gateway can
// replay recent history.
func (w *Writer) writeResult(ctx context.Context, snap emitter.Snapshot) {
	if w.metrics != nil {
		start := time.Now()
		defer func() { w.metrics.RedisWriteDur.Observe(time.Since(start).Seconds()) }()
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[redis] marshal result error: %v", err)
		return
	}
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	pubsubCh := fmt.Sprintf("pub:result:%s:%s", snap.Symbol, snap.TF)

	if snap.Intrabar {
		w.client.Publish(ctx, pubsubCh, jsonData)
		return
	}

	streamKey := fmt.Sprintf("result:%s:%s", snap.Symbol, snap.TF)
	latestKey := fmt.Sprintf("result:latest:%s:%s", snap.Symbol, snap.TF)

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] result pipeline error for %s/%s: %v", snap.Symbol, snap.TF, err)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
