// Package metrics exposes Prometheus counters/histograms and a /healthz
// liveness surface for cmd/execengine. Adapted from the teacher's
// mdengine/indengine metrics set: the TF resampler, indicator engine, and
// NSE market-session (ADR-006) gauges/counters are dropped along with the
// components they measured (internal/indicator's multi-TF Engine and
// internal/markethours are both gone — see DESIGN.md), replaced with
// gauges/counters for the collaborators this spec's engine actually runs:
// the Serial Processor's candle/signal throughput, the ring buffer between
// the candle decoder and Event Intake, and the Redis circuit breaker.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one execengine instance.
type Metrics struct {
	CandlesTotal    prometheus.Counter
	SignalsTotal    *prometheus.CounterVec // labels: action (BUY/SELL/EXIT)
	WSReconnects    prometheus.Counter
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	CandleLag       prometheus.Gauge

	RingBufOverflow prometheus.Counter

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	E2ELatency prometheus.Histogram // candle-arrival to Result Emitter latency

	// The Lifecycle Manager's own ambient counters (messages processed,
	// queue depth, pauses, watchdog fires, fetch throttle waits,
	// dropped/duplicate events), incremented at each collaborator's real
	// call site rather than here.
	MessagesProcessedTotal prometheus.Counter
	QueueDepth             prometheus.Gauge
	PausesTotal            prometheus.Counter
	WatchdogFiresTotal     prometheus.Counter
	FetchThrottleWaits     prometheus.Counter
	DroppedEventsTotal     *prometheus.CounterVec // labels: reason (stale-candle/duplicate-trade)
}

// NewMetrics registers and returns this instance's Prometheus collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_candles_total",
			Help: "Total candles closed by the Serial Processor",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execengine_signals_total",
			Help: "Total strategy signals emitted, by action",
		}, []string{"action"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_ws_reconnects_total",
			Help: "Total exchange WebSocket reconnection attempts",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execengine_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execengine_candle_lag_seconds",
			Help: "Lag between a candle's mts and its processing time",
		}),

		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped candle updates)",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),

		E2ELatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execengine_e2e_latency_seconds",
			Help:    "End-to-end latency from candle arrival to Result Emitter broadcast",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		MessagesProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_messages_processed_total",
			Help: "Total messages dispatched by the Serial Processor",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execengine_queue_depth",
			Help: "Pending message count in the Serial Processor's queue",
		}),
		PausesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_pauses_total",
			Help: "Total times the Pause/Resume Controller froze processing on socket loss",
		}),
		WatchdogFiresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_watchdog_fires_total",
			Help: "Total synthetic candles synthesized by the Closure Timer",
		}),
		FetchThrottleWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execengine_fetch_throttle_waits_total",
			Help: "Total REST candle fetches that had to wait on the rate limiter",
		}),
		DroppedEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execengine_dropped_events_total",
			Help: "Total events dropped by the Serial Processor, by reason",
		}, []string{"reason"}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.SignalsTotal,
		m.WSReconnects,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.CandleLag,
		m.RingBufOverflow,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.E2ELatency,
		m.MessagesProcessedTotal,
		m.QueueDepth,
		m.PausesTotal,
		m.WatchdogFiresTotal,
		m.FetchThrottleWaits,
		m.DroppedEventsTotal,
	)

	return m
}

// HealthStatus tracks the liveness of execengine's external dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastCandleTime  string  `json:"last_candle_time"`
		CandleAge       string  `json:"candle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
