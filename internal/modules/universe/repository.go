package universe

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/database"
)

const dateLayout = "2006-01-02"

// Repository provides access to the asset universe and returns history store.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new universe repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "universe_repo").Logger(),
	}
}

// SaveAsset inserts or updates one asset.
func (r *Repository) SaveAsset(asset Asset) error {
	_, err := r.db.Exec(`
		INSERT INTO assets (symbol, asset_group) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET asset_group = excluded.asset_group
	`, asset.Symbol, asset.Group)
	if err != nil {
		return fmt.Errorf("failed to save asset %s: %w", asset.Symbol, err)
	}
	return nil
}

// ListAssets returns all known assets ordered by symbol.
func (r *Repository) ListAssets() ([]Asset, error) {
	rows, err := r.db.Query(`SELECT symbol, asset_group FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.Symbol, &a.Group); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// SaveReturns bulk-inserts return observations for one asset inside a single
// transaction.
func (r *Repository) SaveReturns(symbol string, dates []time.Time, returns []float64) error {
	if len(dates) != len(returns) {
		return fmt.Errorf("dates and returns length mismatch: %d vs %d", len(dates), len(returns))
	}

	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_returns (symbol, date, ret) VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET ret = excluded.ret
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range dates {
			if _, err := stmt.Exec(symbol, dates[i].Format(dateLayout), returns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadHistory loads the most recent `periods` return rows for the given
// assets, oldest first. Every asset must have a return for every date in the
// window; a missing observation is an input-validation failure, not something
// the repository imputes.
func (r *Repository) LoadHistory(assets []Asset, periods int) (*History, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets requested")
	}
	if periods <= 0 {
		return nil, fmt.Errorf("periods must be positive, got %d", periods)
	}

	// Candidate dates: the most recent dates carried by the first asset.
	dates, err := r.recentDates(assets[0].Symbol, periods)
	if err != nil {
		return nil, err
	}
	if len(dates) < periods {
		return nil, fmt.Errorf("only %d periods available for %s, want %d", len(dates), assets[0].Symbol, periods)
	}

	hist := &History{
		Assets:  assets,
		Dates:   dates,
		Returns: make([][]float64, len(dates)),
	}
	for i := range hist.Returns {
		hist.Returns[i] = make([]float64, len(assets))
	}

	dateIndex := make(map[string]int, len(dates))
	for i, d := range dates {
		dateIndex[d.Format(dateLayout)] = i
	}

	for col, asset := range assets {
		rows, err := r.db.Query(`
			SELECT date, ret FROM daily_returns
			WHERE symbol = ? AND date >= ? AND date <= ?
			ORDER BY date ASC
		`, asset.Symbol, dates[0].Format(dateLayout), dates[len(dates)-1].Format(dateLayout))
		if err != nil {
			return nil, fmt.Errorf("failed to query returns for %s: %w", asset.Symbol, err)
		}

		seen := 0
		for rows.Next() {
			var dateStr string
			var ret float64
			if err := rows.Scan(&dateStr, &ret); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan return for %s: %w", asset.Symbol, err)
			}
			idx, ok := dateIndex[dateStr]
			if !ok {
				continue
			}
			hist.Returns[idx][col] = ret
			seen++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		if seen < len(dates) {
			return nil, fmt.Errorf("asset %s has gaps: %d of %d dates present in window", asset.Symbol, seen, len(dates))
		}
	}

	r.log.Debug().
		Int("assets", len(assets)).
		Int("periods", len(dates)).
		Msg("Loaded returns history")

	return hist, nil
}

// recentDates returns the most recent `limit` observation dates for a symbol,
// in ascending order.
func (r *Repository) recentDates(symbol string, limit int) ([]time.Time, error) {
	rows, err := r.db.Query(`
		SELECT date FROM daily_returns
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates for %s: %w", symbol, err)
	}
	defer rows.Close()

	var descending []time.Time
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("malformed date %q for %s: %w", dateStr, symbol, err)
		}
		descending = append(descending, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ascending := make([]time.Time, len(descending))
	for i, d := range descending {
		ascending[len(descending)-1-i] = d
	}
	return ascending, nil
}
