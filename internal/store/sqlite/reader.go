package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backtest replay and
// dashboard backfill.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads closed candles for a symbol/tf after a given MTS,
// ordered ascending — the replay source for `cmd/backtest`.
func (r *Reader) ReadCandles(symbol, tf string, afterMTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, mts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND mts > ?
		ORDER BY mts ASC
	`, symbol, tf, afterMTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var open, high, low, close, volume string
		if err := rows.Scan(&c.Symbol, &c.TF, &c.MTS, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		if c.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("parse open: %w", err)
		}
		if c.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("parse high: %w", err)
		}
		if c.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("parse low: %w", err)
		}
		if c.Close, err = decimal.NewFromString(close); err != nil {
			return nil, fmt.Errorf("parse close: %w", err)
		}
		if c.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadLatestStrategyState loads the most recent strategy state checkpoint
// for a symbol, used by the Lifecycle Manager to resume after a restart.
func (r *Reader) ReadLatestStrategyState(symbol string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(`
		SELECT data FROM strategy_state
		WHERE symbol = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, symbol).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read strategy_state: %w", err)
	}
	return data, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
