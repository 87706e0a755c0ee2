// cmd/gateway serves the dashboard WebSocket/REST surface for a single
// symbol/timeframe: it fans out the candles and execution results
// internal/store/redis publishes, and answers history queries from
// internal/store/sqlite.
//
// Usage:
//
//	SYMBOL=tBTCUSD TF=1m go run ./cmd/gateway
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livestratexec/internal/api"
	"livestratexec/internal/gateway"
	sqlitestore "livestratexec/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[gateway] starting...")

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	listenAddr := getEnv("GATEWAY_ADDR", ":9090")
	symbol := getEnv("SYMBOL", "tBTCUSD")
	tf := getEnv("TF", "1m")
	dbPath := getEnv("SQLITE_PATH", "data/candles.db")

	rdb := goredis.NewClient(&goredis.Options{Addr: redisAddr, Password: redisPassword})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[gateway] redis connection failed: %v", err)
	}
	log.Printf("[gateway] redis connected at %s", redisAddr)

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		log.Fatalf("[gateway] sqlite open failed: %v", err)
	}
	defer reader.Close()

	hub := gateway.NewHub(rdb, symbol, tf)
	go hub.Run(ctx)
	go hub.StartMetricsBroadcast(ctx, processStart)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, reader, processStart)
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", api.NewRouter(api.Deps{
		Symbol:      symbol,
		TF:          tf,
		Started:     processStart,
		ClientCount: hub.ClientCount,
	})))

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[gateway] serving %s/%s at http://localhost%s", symbol, tf, listenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[gateway] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[gateway] shutting down...")
	cancel()
	srv.Shutdown(context.Background())
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
