// cmd/execengine is the live strategy execution engine binary: it wires
// one internal/engine.Engine around one Strategy, connected to a live
// exchange feed, and keeps running until terminated.
//
// Usage:
//
//	go run ./cmd/execengine
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livestratexec/config"
	"livestratexec/internal/api"
	"livestratexec/internal/emitter"
	"livestratexec/internal/engine"
	"livestratexec/internal/metrics"
	"livestratexec/internal/notification"
	"livestratexec/internal/portfolio"
	"livestratexec/internal/restclient"
	"livestratexec/internal/store/redis"
	"livestratexec/internal/store/sqlite"
	"livestratexec/internal/strategy"

	"livestratexec/pkg/exchangesocket"
)

// resultRecorder forwards Result Emitter snapshots into the durable Redis
// and SQLite write paths, buffering onto a channel for sqlite's batched
// writer and calling the Redis BufferedWriter's synchronous write
// directly (it already buffers internally during circuit-open state).
type resultRecorder struct {
	redisWriter *redis.BufferedWriter
	sqliteCh    chan<- emitter.Snapshot
	log         *slog.Logger
}

func (r *resultRecorder) OnError(err error) {
	r.log.Error("engine error", "error", err)
}

func (r *resultRecorder) OnOpenedPosition(evt emitter.OpenedPosition) {
	r.log.Info("position opened", "symbol", evt.Symbol, "qty", evt.Position.Qty, "avg_price", evt.Position.AvgPrice)
}

func (r *resultRecorder) OnExecutionResults(snap emitter.Snapshot) {
	if err := r.redisWriter.WriteResult(snap); err != nil {
		r.log.Warn("redis: write result failed", "error", err)
	}
	select {
	case r.sqliteCh <- snap:
	default:
		r.log.Warn("sqlite: result channel full, dropping snapshot", "symbol", snap.Symbol, "mts", snap.MTS)
	}
}

var _ emitter.Observer = (*resultRecorder)(nil)

var processStart = time.Now()

// newNotifier picks the alert backend ObserverBridge sends to, per
// NOTIFY_CHANNEL. Falls back to LogNotifier if a channel is selected
// without the config it needs, rather than failing to start.
func newNotifier(cfg *config.Config) notification.Notifier {
	switch cfg.NotifyChannel {
	case "telegram":
		if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
			log.Printf("[execengine] NOTIFY_CHANNEL=telegram but TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID unset, falling back to log notifier")
			return notification.NewLogNotifier()
		}
		return notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case "webhook":
		if cfg.WebhookURL == "" {
			log.Printf("[execengine] NOTIFY_CHANNEL=webhook but WEBHOOK_URL unset, falling back to log notifier")
			return notification.NewLogNotifier()
		}
		return notification.NewWebhookNotifier(cfg.WebhookURL)
	default:
		return notification.NewLogNotifier()
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger := slog.Default()

	cfg := config.Load()
	log.Printf("[execengine] starting %s/%s against %s", cfg.Symbol, cfg.Timeframe, cfg.WSURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics()

	ws := exchangesocket.New(exchangesocket.Config{
		URL:         cfg.WSURL,
		AuthHeaders: cfg.AuthHeaders,
		Logger:      logger,
		Metrics:     m,
	})
	rest := restclient.New(restclient.Config{
		BaseURL: cfg.RESTBaseURL,
		Headers: cfg.AuthHeaders,
	})

	// Order placement (internal/execution's PaperExecutor + Journal) is the
	// strategy's own collaborator, not the host's: spec's engine never
	// inspects or routes a Signal itself, so a strategy that wants to act
	// on its own signals wires PaperExecutor internally. SMACrossover is a
	// reference callback implementation only and does not place orders.
	strat := strategy.NewSMACrossover(cfg.FastPeriod, cfg.SlowPeriod, cfg.Qty, cfg.EnableRSI, cfg.RSIPeriod, logger)
	pf := portfolio.New(cfg.Capital)

	redisWriter, err := redis.New(redis.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Fatalf("[execengine] redis connect failed: %v", err)
	}
	defer redisWriter.Close()
	redisWriter.SetMetrics(m)
	cb := redis.NewCircuitBreaker(5, 30*time.Second)
	cb.OnStateChange = func(from, to redis.State) {
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == redis.StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
	}
	bufferedRedis := redis.NewBufferedWriter(ctx, redisWriter, cb, 10000)
	bufferedRedis.OnBuffer = func() { m.RedisBufferedWrites.Inc() }

	sqliteWriter, err := sqlite.New(sqlite.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[execengine] sqlite open failed: %v", err)
	}
	defer sqliteWriter.Close()
	sqliteWriter.SetMetrics(m)
	resultCh := make(chan emitter.Snapshot, 1024)
	go sqliteWriter.RunResults(ctx, resultCh)

	eng, err := engine.New(engine.Config{
		Strategy:   strat,
		RestClient: rest,
		WSManager:  ws,
		PerfMgr:    pf,
		Options: engine.Options{
			Symbol:    cfg.Symbol,
			Timeframe: cfg.Timeframe,
		},
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		log.Fatalf("[execengine] engine init failed: %v", err)
	}

	eng.Emitter().Subscribe(&resultRecorder{redisWriter: bufferedRedis, sqliteCh: resultCh, log: logger})
	eng.Emitter().Subscribe(notification.NewObserverBridge(ctx, newNotifier(cfg)))

	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	defer metricsSrv.Stop(context.Background())

	adminRouter := api.NewRouter(api.Deps{
		Symbol:  cfg.Symbol,
		TF:      cfg.Timeframe,
		Started: processStart,
		Paused:  eng.Paused,
		Controls: api.Controls{
			Pause:  eng.Pause,
			Resume: eng.Resume,
			Stop:   eng.StopExecution,
		},
	})
	adminMux := http.NewServeMux()
	adminMux.Handle("/api/v1/", http.StripPrefix("/api/v1", adminRouter))
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: adminMux}
	go func() {
		log.Printf("[execengine] admin surface listening on %s", cfg.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[execengine] admin server error: %v", err)
		}
	}()
	defer adminSrv.Shutdown(context.Background())

	go func() {
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[execengine] ws run exited: %v", err)
		}
	}()

	if err := eng.Execute(ctx); err != nil {
		log.Fatalf("[execengine] execute failed: %v", err)
	}
	log.Printf("[execengine] live, serving %s/%s", cfg.Symbol, cfg.Timeframe)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[execengine] shutting down...")
	if err := eng.StopExecution(); err != nil {
		log.Printf("[execengine] stop execution error: %v", err)
	}
	cancel()
}
