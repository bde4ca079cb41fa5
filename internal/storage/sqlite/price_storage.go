package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

// PriceStorage implements interfaces.PriceStorage for SQLite
type PriceStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewPriceStorage creates a new PriceStorage instance
func NewPriceStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.PriceStorage {
	return &PriceStorage{db: db, logger: logger}
}

const priceColumns = `ticker, current_price, change_rate, change_amount, volume,
	open, high, low, trading_value, market_status, data_source, updated_at`

// UpsertPrices merges one polling batch. Rows whose current price is zero
// are skipped; a zero quote must never reach consumers.
func (s *PriceStorage) UpsertPrices(ctx context.Context, prices []models.RealtimePrice) error {
	if len(prices) == 0 {
		return nil
	}

	query := `
		INSERT INTO realtime_prices (` + priceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			current_price = excluded.current_price,
			change_rate = excluded.change_rate,
			change_amount = excluded.change_amount,
			volume = excluded.volume,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			trading_value = excluded.trading_value,
			market_status = excluded.market_status,
			data_source = excluded.data_source,
			updated_at = excluded.updated_at
	`

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare price upsert: %w", err)
		}
		defer stmt.Close()

		skipped := 0
		for _, p := range prices {
			if p.CurrentPrice == 0 {
				skipped++
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				p.Ticker, p.CurrentPrice, p.ChangeRate, p.ChangeAmount, p.Volume,
				p.Open, p.High, p.Low, p.TradingValue, string(p.MarketStatus),
				p.DataSource, p.UpdatedAt.Unix()); err != nil {
				return fmt.Errorf("failed to upsert price %s: %w", p.Ticker, err)
			}
		}
		if skipped > 0 {
			s.logger.Debug().Int("skipped", skipped).Msg("Dropped zero-price quotes")
		}
		return nil
	})
}

// GetPrice returns the cached quote for one ticker
func (s *PriceStorage) GetPrice(ctx context.Context, ticker string) (*models.RealtimePrice, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+priceColumns+` FROM realtime_prices WHERE ticker = ?`, ticker)

	p, err := scanPrice(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("realtime price %s: %w", ticker, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price %s: %w", ticker, err)
	}
	return p, nil
}

// GetFresh returns cached quotes younger than maxAge, silently omitting
// stale or missing tickers.
func (s *PriceStorage) GetFresh(ctx context.Context, tickers []string, maxAge time.Duration) ([]models.RealtimePrice, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	cutoff := time.Now().Add(-maxAge).Unix()
	placeholders := strings.Repeat("?,", len(tickers))
	query := fmt.Sprintf(
		`SELECT `+priceColumns+` FROM realtime_prices WHERE ticker IN (%s) AND updated_at >= ?`,
		placeholders[:len(placeholders)-1])

	args := make([]any, 0, len(tickers)+1)
	for _, t := range tickers {
		args = append(args, t)
	}
	args = append(args, cutoff)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fresh prices: %w", err)
	}
	defer rows.Close()

	var prices []models.RealtimePrice
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		prices = append(prices, *p)
	}
	return prices, rows.Err()
}

func scanPrice(row rowScanner) (*models.RealtimePrice, error) {
	var p models.RealtimePrice
	var status string
	var source sql.NullString
	var updatedAt int64

	err := row.Scan(&p.Ticker, &p.CurrentPrice, &p.ChangeRate, &p.ChangeAmount,
		&p.Volume, &p.Open, &p.High, &p.Low, &p.TradingValue, &status, &source, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.MarketStatus = models.MarketStatus(status)
	p.DataSource = source.String
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}
