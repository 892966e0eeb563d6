package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/models"
	"options-analytics/internal/performance"
)

// historyBatchSize bounds the rows written per transaction.
const historyBatchSize = 500

// Options configures a SQLiteStore.
type Options struct {
	// Clock supplies "now" for freshness and provider windows.
	Clock func() time.Time
	// MaxAge makes the store refuse to serve data older than this when used
	// as a provider. Zero serves data of any age.
	MaxAge time.Duration
	// StaleThresholds overrides DefaultStaleThresholds per data type.
	StaleThresholds map[DataType]time.Duration
}

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithOptions(dbPath, Options{})
}

// NewSQLiteStoreWithOptions creates a new SQLite-based data store.
func NewSQLiteStoreWithOptions(dbPath string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.StaleThresholds == nil {
		opts.StaleThresholds = DefaultStaleThresholds
	}

	store := &SQLiteStore{db: db, opts: opts}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes. Instants are stored as
// unix milliseconds in UTC.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Last traded prices
	CREATE TABLE IF NOT EXISTS last_prices (
		symbol TEXT PRIMARY KEY,
		price REAL NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Price history samples, keyed by sampling interval in seconds
	CREATE TABLE IF NOT EXISTS history (
		symbol TEXT NOT NULL,
		interval_secs INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		currency TEXT,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		dividends REAL NOT NULL DEFAULT 0,
		stock_splits REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, interval_secs, timestamp)
	);

	-- Option contracts, one chain per symbol and expiry
	CREATE TABLE IF NOT EXISTS option_contracts (
		symbol TEXT NOT NULL,
		expiry INTEGER NOT NULL,
		option_type TEXT NOT NULL,
		strike REAL NOT NULL,
		contract_symbol TEXT,
		spot REAL NOT NULL,
		implied_volatility REAL NOT NULL,
		last_price REAL NOT NULL,
		bid REAL,
		open_interest REAL,
		volume REAL,
		currency TEXT,
		last_trade INTEGER,
		PRIMARY KEY (symbol, expiry, option_type, strike)
	);

	-- When each kind of data was last stored per symbol
	CREATE TABLE IF NOT EXISTS sync_log (
		data_type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (data_type, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_option_contracts_symbol ON option_contracts(symbol, expiry);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func normSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) markSynced(ctx context.Context, db execer, dataType DataType, symbol string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_log (data_type, symbol, updated_at) VALUES (?, ?, ?)
	`, string(dataType), symbol, toMillis(at))
	if err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return nil
}

// SaveLastPrice stores the last traded price of symbol observed at at.
func (s *SQLiteStore) SaveLastPrice(ctx context.Context, symbol string, price float64, at time.Time) error {
	symbol = normSymbol(symbol)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO last_prices (symbol, price, updated_at) VALUES (?, ?, ?)
	`, symbol, price, toMillis(at))
	if err != nil {
		return fmt.Errorf("failed to save last price: %w", err)
	}
	return s.markSynced(ctx, s.db, DataTypeLastPrice, symbol, at)
}

// GetLastPrice returns the stored last price and when it was observed.
func (s *SQLiteStore) GetLastPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	var price float64
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT price, updated_at FROM last_prices WHERE symbol = ?
	`, normSymbol(symbol)).Scan(&price, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, apperrors.ErrSymbolNotFound
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to query last price: %w", err)
	}
	return price, fromMillis(updated), nil
}

// SaveHistory stores history samples, replacing samples at the same instants.
func (s *SQLiteStore) SaveHistory(ctx context.Context, symbol string, interval time.Duration, history models.StockHistory) error {
	if len(history) == 0 {
		return nil
	}
	symbol = normSymbol(symbol)
	secs := int64(interval / time.Second)

	batches := performance.NewBatchProcessor(historyBatchSize, func(rows []models.StockHistoryDatum) error {
		return s.insertHistory(ctx, symbol, secs, rows)
	})
	for _, d := range history {
		if err := batches.Add(d); err != nil {
			return err
		}
	}
	if err := batches.Flush(); err != nil {
		return err
	}

	return s.markSynced(ctx, s.db, DataTypeHistory, symbol, s.opts.Clock())
}

func (s *SQLiteStore) insertHistory(ctx context.Context, symbol string, secs int64, rows []models.StockHistoryDatum) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO history
			(symbol, interval_secs, timestamp, currency, open, high, low, close, volume, dividends, stock_splits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range rows {
		_, err := stmt.ExecContext(ctx, symbol, secs, toMillis(d.Time), d.Currency,
			d.Open, d.High, d.Low, d.Close, d.Volume, d.Dividends, d.StockSplits)
		if err != nil {
			return fmt.Errorf("failed to insert history sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetHistory returns the samples with from <= time <= to, ordered by time.
func (s *SQLiteStore) GetHistory(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) (models.StockHistory, error) {
	symbol = normSymbol(symbol)
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, currency, open, high, low, close, volume, dividends, stock_splits
		FROM history
		WHERE symbol = ? AND interval_secs = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, int64(interval/time.Second), toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history models.StockHistory
	for rows.Next() {
		var ts int64
		var currency sql.NullString
		d := models.StockHistoryDatum{Symbol: symbol}
		if err := rows.Scan(&ts, &currency, &d.Open, &d.High, &d.Low, &d.Close, &d.Volume, &d.Dividends, &d.StockSplits); err != nil {
			return nil, fmt.Errorf("failed to scan history sample: %w", err)
		}
		d.Time = fromMillis(ts)
		d.Currency = currency.String
		history = append(history, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return history, nil
}

// SaveOptionChain replaces the stored chain for the chain's symbol and expiry.
func (s *SQLiteStore) SaveOptionChain(ctx context.Context, chain models.OptionChain, at time.Time) error {
	symbol := normSymbol(chain.Symbol)
	expiry := toMillis(chain.Expiry)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM option_contracts WHERE symbol = ? AND expiry = ?`, symbol, expiry); err != nil {
		return fmt.Errorf("failed to clear option chain: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_contracts
			(symbol, expiry, option_type, strike, contract_symbol, spot, implied_volatility,
			 last_price, bid, open_interest, volume, currency, last_trade)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, side := range [][]models.MarketSnapshot{chain.Calls, chain.Puts} {
		for _, c := range side {
			_, err := stmt.ExecContext(ctx, symbol, expiry, c.OptionType().String(), c.Strike(), c.Symbol(),
				c.CurrentStockPrice(), c.ImpliedVolatility(), c.LastPrice(), c.Bid(), c.OpenInterest(),
				c.Volume(), c.Currency(), toMillis(c.LastTrade()))
			if err != nil {
				return fmt.Errorf("failed to insert option contract: %w", err)
			}
		}
	}

	if err := s.markSynced(ctx, tx, DataTypeOptionChain, symbol, at); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetOptionChain returns the stored chain for symbol and expiry.
func (s *SQLiteStore) GetOptionChain(ctx context.Context, symbol string, expiry time.Time) (models.OptionChain, error) {
	symbol = normSymbol(symbol)
	rows, err := s.db.QueryContext(ctx, `
		SELECT option_type, strike, contract_symbol, spot, implied_volatility, last_price,
		       bid, open_interest, volume, currency, last_trade
		FROM option_contracts
		WHERE symbol = ? AND expiry = ?
	`, symbol, toMillis(expiry))
	if err != nil {
		return models.OptionChain{}, fmt.Errorf("failed to query option chain: %w", err)
	}
	defer rows.Close()

	var calls, puts []models.MarketSnapshot
	for rows.Next() {
		var (
			typ                       string
			contract, currency        sql.NullString
			bid, openInterest, volume sql.NullFloat64
			lastTrade                 sql.NullInt64
		)
		p := models.SnapshotParams{OptionExpiry: fromMillis(toMillis(expiry))}
		if err := rows.Scan(&typ, &p.Strike, &contract, &p.CurrentStockPrice, &p.ImpliedVolatility, &p.LastPrice,
			&bid, &openInterest, &volume, &currency, &lastTrade); err != nil {
			return models.OptionChain{}, fmt.Errorf("failed to scan option contract: %w", err)
		}

		p.Symbol = contract.String
		p.Bid = bid.Float64
		p.OpenInterest = openInterest.Float64
		p.Volume = volume.Float64
		p.Currency = currency.String
		p.LastTrade = fromMillis(lastTrade.Int64)
		if p.OptionType, err = models.ParseOptionType(typ); err != nil {
			return models.OptionChain{}, apperrors.NewDataError("option_chain", symbol, "corrupt option type", err)
		}

		snap, err := models.NewMarketSnapshot(p)
		if err != nil {
			return models.OptionChain{}, apperrors.NewDataError("option_chain", symbol, "invalid stored contract", err)
		}
		switch snap.OptionType() {
		case models.OptionTypeCall:
			calls = append(calls, snap)
		case models.OptionTypePut:
			puts = append(puts, snap)
		}
	}

	if err := rows.Err(); err != nil {
		return models.OptionChain{}, fmt.Errorf("error iterating option contracts: %w", err)
	}

	return models.NewOptionChain(symbol, fromMillis(toMillis(expiry)), calls, puts), nil
}

// ListExpiries returns the stored expiries of symbol in ascending order.
func (s *SQLiteStore) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT expiry FROM option_contracts WHERE symbol = ?
	`, normSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query expiries: %w", err)
	}
	defer rows.Close()

	var expiries []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("failed to scan expiry: %w", err)
		}
		expiries = append(expiries, fromMillis(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expiries: %w", err)
	}

	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

// Freshness reports how recently a kind of data was stored for symbol.
func (s *SQLiteStore) Freshness(ctx context.Context, dataType DataType, symbol string) (*DataFreshness, error) {
	symbol = normSymbol(symbol)
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT updated_at FROM sync_log WHERE data_type = ? AND symbol = ?
	`, string(dataType), symbol).Scan(&updated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get freshness: %w", err)
	}
	return newFreshness(dataType, symbol, fromMillis(updated), s.opts.Clock(), s.opts.StaleThresholds), nil
}
