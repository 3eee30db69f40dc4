// Package storage provides SQLite-backed persistence for the observation
// series and the signal history.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/qvintus/ethsignal/internal/models"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database for all persistence operations.
type Store struct {
	db         *sql.DB
	maxSignals int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/ethsignal/data.db.
func New(maxSignals int, dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "ethsignal", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Store{db: db, maxSignals: maxSignals}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			date       TEXT NOT NULL,
			asset      TEXT NOT NULL,
			chain      TEXT NOT NULL DEFAULT '',
			source     TEXT NOT NULL,
			metric     TEXT NOT NULL,
			value      REAL NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (date, asset, chain, source, metric)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_metric_date ON observations(metric, date)`,
		`CREATE TABLE IF NOT EXISTS signals (
			date              TEXT PRIMARY KEY,
			run_id            TEXT NOT NULL,
			action            TEXT NOT NULL,
			price_usd         REAL,
			sm_zscore_7d      REAL,
			sm_zscore_30d     REAL,
			price_return_7d   REAL,
			exchange_flow_usd REAL,
			divergence_7d     REAL,
			missing           TEXT NOT NULL DEFAULT '[]',
			created_at        INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendObservation inserts a new observation. An existing row with the same
// (date, asset, chain, source, metric) identity fails with
// models.ErrMalformedSeries instead of overwriting.
func (s *Store) AppendObservation(o models.Observation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO observations (date, asset, chain, source, metric, value, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		models.Day(o.Date).Format(time.DateOnly), o.Asset, o.Chain, string(o.Source), string(o.Metric),
		o.Value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: duplicate observation for %s %s on %s",
			models.ErrMalformedSeries, o.Asset, o.Metric, models.Day(o.Date).Format(time.DateOnly))
	}
	return nil
}

// UpsertObservation inserts an observation, keeping the newest value for an
// existing identity. Same-day re-runs replace the day's row instead of
// failing, which keeps the append idempotent per date.
func (s *Store) UpsertObservation(o models.Observation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO observations (date, asset, chain, source, metric, value, created_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(date, asset, chain, source, metric) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at`,
		models.Day(o.Date).Format(time.DateOnly), o.Asset, o.Chain, string(o.Source), string(o.Metric),
		o.Value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert observation: %w", err)
	}
	return nil
}

// LoadSeries reads the full series for one (asset, metric) pair in date
// order. Ordering and uniqueness are re-checked while building the series,
// so a corrupted store surfaces as models.ErrMalformedSeries.
func (s *Store) LoadSeries(asset string, metric models.MetricName) (*models.Series, error) {
	rows, err := s.db.Query(`
		SELECT date, asset, chain, source, metric, value
		FROM observations WHERE asset = ? AND metric = ? ORDER BY date ASC`,
		asset, string(metric))
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	series := models.NewSeries(metric)
	for rows.Next() {
		var o models.Observation
		var date, source string
		if err := rows.Scan(&date, &o.Asset, &o.Chain, &source, &o.Metric, &o.Value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.Date, err = time.ParseInLocation(time.DateOnly, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", models.ErrMalformedSeries, date)
		}
		o.Source = models.Source(source)
		if err := series.Append(o); err != nil {
			return nil, err
		}
	}
	return series, rows.Err()
}

// UpsertSignal writes the run's signal record, replacing any earlier record
// for the same date, then rotates the history down to maxSignals rows.
func (s *Store) UpsertSignal(sig *models.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}
	missing := sig.Missing
	if missing == nil {
		missing = []string{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("failed to marshal missing inputs: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO signals
			(date, run_id, action, price_usd, sm_zscore_7d, sm_zscore_30d,
			 price_return_7d, exchange_flow_usd, divergence_7d, missing, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
			run_id = excluded.run_id,
			action = excluded.action,
			price_usd = excluded.price_usd,
			sm_zscore_7d = excluded.sm_zscore_7d,
			sm_zscore_30d = excluded.sm_zscore_30d,
			price_return_7d = excluded.price_return_7d,
			exchange_flow_usd = excluded.exchange_flow_usd,
			divergence_7d = excluded.divergence_7d,
			missing = excluded.missing,
			created_at = excluded.created_at`,
		models.Day(sig.Date).Format(time.DateOnly), sig.RunID, string(sig.Action),
		nullable(sig.PriceUSD), nullable(sig.SMZScore7d), nullable(sig.SMZScore30d),
		nullable(sig.PriceReturn7d), nullable(sig.NetExchangeFlowUSD), nullable(sig.Divergence7d),
		string(missingJSON), sig.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert signal: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM signals WHERE date NOT IN (
			SELECT date FROM signals ORDER BY date DESC LIMIT ?
		)`, s.maxSignals); err != nil {
		return fmt.Errorf("failed to rotate signals: %w", err)
	}

	return tx.Commit()
}

// GetSignal returns the signal recorded for the given date.
func (s *Store) GetSignal(date time.Time) (*models.Signal, error) {
	row := s.db.QueryRow(`SELECT `+signalCols+` FROM signals WHERE date = ?`,
		models.Day(date).Format(time.DateOnly))
	sig, err := scanSignal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("signal not found: %s", models.Day(date).Format(time.DateOnly))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

// RecentSignals returns up to n signals, newest first.
func (s *Store) RecentSignals(n int) ([]*models.Signal, error) {
	rows, err := s.db.Query(`SELECT `+signalCols+` FROM signals ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := []*models.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

const signalCols = `date, run_id, action, price_usd, sm_zscore_7d, sm_zscore_30d,
	price_return_7d, exchange_flow_usd, divergence_7d, missing, created_at`

func scanSignal(scan func(...any) error) (*models.Signal, error) {
	var sig models.Signal
	var date, action, missingJSON string
	var price, z7, z30, ret, flow, div sql.NullFloat64
	var createdAtNano int64

	err := scan(&date, &sig.RunID, &action, &price, &z7, &z30, &ret, &flow, &div,
		&missingJSON, &createdAtNano)
	if err != nil {
		return nil, err
	}

	sig.Date, err = time.ParseInLocation(time.DateOnly, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad signal date %q: %w", date, err)
	}
	sig.Action = models.Action(action)
	sig.PriceUSD = metric(price)
	sig.SMZScore7d = metric(z7)
	sig.SMZScore30d = metric(z30)
	sig.PriceReturn7d = metric(ret)
	sig.NetExchangeFlowUSD = metric(flow)
	sig.Divergence7d = metric(div)
	if err := json.Unmarshal([]byte(missingJSON), &sig.Missing); err != nil {
		return nil, fmt.Errorf("bad missing inputs %q: %w", missingJSON, err)
	}
	sig.CreatedAt = time.Unix(0, createdAtNano)
	return &sig, nil
}

func nullable(m models.Metric) any {
	if !m.Valid {
		return nil
	}
	return m.Value
}

func metric(v sql.NullFloat64) models.Metric {
	if !v.Valid {
		return models.None()
	}
	return models.Some(v.Float64)
}
