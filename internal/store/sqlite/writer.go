package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"livestratexec/internal/emitter"
	"livestratexec/internal/metrics"
	"livestratexec/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/results.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching. It
// persists closed candles and execution result snapshots so a `cmd/backtest`
// replay or a restarted `cmd/gateway` dashboard has durable history beyond
// whatever Redis still has buffered.
type Writer struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// SetMetrics wires instrumentation after construction.
func (w *Writer) SetMetrics(m *metrics.Metrics) { w.metrics = m }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			mts    INTEGER NOT NULL,
			open   TEXT    NOT NULL,
			high   TEXT    NOT NULL,
			low    TEXT    NOT NULL,
			close  TEXT    NOT NULL,
			volume TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf, mts)
		);

		CREATE TABLE IF NOT EXISTS execution_results (
			symbol          TEXT    NOT NULL,
			tf              TEXT    NOT NULL,
			mts             INTEGER NOT NULL,
			intrabar        INTEGER NOT NULL,
			realized_pnl    REAL    NOT NULL,
			unrealized_pnl  REAL    NOT NULL,
			reference_price REAL    NOT NULL,
			data            TEXT    NOT NULL,
			created_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_results_symbol_tf_mts
			ON execution_results (symbol, tf, mts);

		CREATE TABLE IF NOT EXISTS strategy_state (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			data       BLOB    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads closed candles from candleCh and inserts them in batched
// transactions. Flushes every batchSize candles OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertCandleBatch(batch); err != nil {
			log.Printf("[sqlite] candle batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertCandleBatch(candles []model.Candle) error {
	if w.metrics != nil {
		start := time.Now()
		defer func() { w.metrics.SQLiteCommitDur.Observe(time.Since(start).Seconds()) }()
	}
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, mts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.TF, c.MTS, c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RunResults reads execution result snapshots from resultCh and inserts them
// in batched transactions.
func (w *Writer) RunResults(ctx context.Context, resultCh <-chan emitter.Snapshot) {
	batch := make([]emitter.Snapshot, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.insertResultBatch(batch); err != nil {
			log.Printf("[sqlite] result batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case snap, ok := <-resultCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, snap)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertResultBatch(snaps []emitter.Snapshot) error {
	if w.metrics != nil {
		start := time.Now()
		defer func() { w.metrics.SQLiteCommitDur.Observe(time.Since(start).Seconds()) }()
	}
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO execution_results
			(symbol, tf, mts, intrabar, realized_pnl, unrealized_pnl, reference_price, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range snaps {
		data, err := json.Marshal(s)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal result: %w", err)
		}
		intrabar := 0
		if s.Intrabar {
			intrabar = 1
		}
		_, err = stmt.Exec(s.Symbol, s.TF, s.MTS, intrabar, s.RealizedPnl, s.UnrealizedPnl, s.ReferencePrice, string(data))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastCandleMTS returns the last stored candle timestamp for a symbol/tf.
// Returns 0 if none exist.
func (w *Writer) GetLastCandleMTS(symbol, tf string) (int64, error) {
	var mts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(mts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&mts)
	if err != nil {
		return 0, err
	}
	if !mts.Valid {
		return 0, nil
	}
	return mts.Int64, nil
}

// SaveStrategyState persists an opaque strategy state blob, keeping a history
// of checkpoints per symbol (the Lifecycle Manager resumes from the latest).
func (w *Writer) SaveStrategyState(symbol string, data []byte) error {
	_, err := w.db.Exec(`INSERT INTO strategy_state (symbol, data) VALUES (?, ?)`, symbol, data)
	if err != nil {
		return fmt.Errorf("sqlite insert strategy_state: %w", err)
	}

	_, err = w.db.Exec(`
		DELETE FROM strategy_state
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM strategy_state WHERE symbol = ? ORDER BY created_at DESC, id DESC LIMIT 10
		)`, symbol, symbol)
	if err != nil {
		log.Printf("[sqlite] prune strategy_state warning: %v", err)
	}

	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
