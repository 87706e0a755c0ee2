package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"livestratexec/internal/model"
)

var allowedOrigins = parseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS"))

func parseAllowedOrigins(s string) []string {
	if s == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func checkOrigin(r *http.Request) bool {
	for _, o := range allowedOrigins {
		if o == "*" {
			return true
		}
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       checkOrigin,
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	origin := "*"
	for _, o := range allowedOrigins {
		if o != "*" {
			origin = strings.Join(allowedOrigins, ", ")
			break
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// CandleHistory is the subset of sqlite.Reader's read surface the gateway
// needs for the /api/candles endpoint, kept as an interface so tests can
// supply a fake without opening a real database.
type CandleHistory interface {
	ReadCandles(symbol, tf string, afterMTS int64) ([]model.Candle, error)
}

// RegisterRoutes registers the dashboard's WebSocket and REST routes.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, history CandleHistory, processStart time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	mux.HandleFunc("/api/candles", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		afterMTS := int64(0)
		if s := r.URL.Query().Get("after"); s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				afterMTS = v
			}
		}

		candles, err := history.ReadCandles(hub.Symbol, hub.TF, afterMTS)
		if err != nil {
			json.NewEncoder(w).Encode([]CandleOut{})
			return
		}

		out := make([]CandleOut, len(candles))
		for i, c := range candles {
			out[i] = CandleOut{
				MTS:    c.MTS,
				Open:   c.Open.InexactFloat64(),
				High:   c.High.InexactFloat64(),
				Low:    c.Low.InexactFloat64(),
				Close:  c.Close.InexactFloat64(),
				Volume: c.Volume.InexactFloat64(),
				Symbol: c.Symbol,
				TF:     c.TF,
			}
		}
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol": hub.Symbol,
			"tf":     hub.TF,
		})
	})

	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CollectMetrics(processStart))
	})

	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})
}
