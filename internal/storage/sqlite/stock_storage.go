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

// StockStorage implements interfaces.StockStorage for SQLite
type StockStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewStockStorage creates a new StockStorage instance
func NewStockStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.StockStorage {
	return &StockStorage{db: db, logger: logger}
}

const stockColumns = `ticker, name, market, bps, per, pbr, eps, div, dps, roe,
	debt_ratio, revenue_growth, market_cap, trading_value, filter_status,
	last_filter_check, updated_at`

// UpsertStocks replaces universe rows keyed on ticker in one transaction
func (s *StockStorage) UpsertStocks(ctx context.Context, stocks []models.FilteredStock) error {
	if len(stocks) == 0 {
		return nil
	}

	query := `
		INSERT INTO filtered_stocks (` + stockColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			market = excluded.market,
			bps = excluded.bps,
			per = excluded.per,
			pbr = excluded.pbr,
			eps = excluded.eps,
			div = excluded.div,
			dps = excluded.dps,
			roe = excluded.roe,
			debt_ratio = excluded.debt_ratio,
			revenue_growth = excluded.revenue_growth,
			market_cap = excluded.market_cap,
			trading_value = excluded.trading_value,
			filter_status = excluded.filter_status,
			last_filter_check = excluded.last_filter_check,
			updated_at = excluded.updated_at
	`

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare stock upsert: %w", err)
		}
		defer stmt.Close()

		for _, st := range stocks {
			if _, err := stmt.ExecContext(ctx,
				st.Ticker, st.Name, string(st.Market), st.BPS, st.PER, st.PBR, st.EPS,
				st.DIV, st.DPS, st.ROE, st.DebtRatio, st.RevenueGrowth, st.MarketCap,
				st.TradingValue, string(st.FilterStatus),
				st.LastFilterCheck.Unix(), st.UpdatedAt.Unix()); err != nil {
				return fmt.Errorf("failed to upsert stock %s: %w", st.Ticker, err)
			}
		}
		return nil
	})
}

// GetStock retrieves one universe row
func (s *StockStorage) GetStock(ctx context.Context, ticker string) (*models.FilteredStock, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM filtered_stocks WHERE ticker = ?`, ticker)

	st, err := scanStock(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock %s: %w", ticker, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", ticker, err)
	}
	return st, nil
}

// ListPassing returns all tickers with filter_status=pass
func (s *StockStorage) ListPassing(ctx context.Context) ([]models.FilteredStock, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+stockColumns+` FROM filtered_stocks WHERE filter_status = 'pass' ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list passing stocks: %w", err)
	}
	defer rows.Close()

	return scanStocks(rows)
}

// Search filters the universe by the request parameters
func (s *StockStorage) Search(ctx context.Context, filter interfaces.StockFilter) ([]models.FilteredStock, error) {
	var conds []string
	var args []any

	if filter.Keyword != "" {
		if strings.Contains(filter.Keyword, ",") || isNumeric(filter.Keyword) {
			tickers := []string{}
			for _, t := range strings.Split(filter.Keyword, ",") {
				if norm, err := models.NormalizeTicker(t); err == nil {
					tickers = append(tickers, norm)
				}
			}
			if len(tickers) > 0 {
				placeholders := strings.Repeat("?,", len(tickers))
				conds = append(conds, fmt.Sprintf("ticker IN (%s)", placeholders[:len(placeholders)-1]))
				for _, t := range tickers {
					args = append(args, t)
				}
			}
		} else {
			conds = append(conds, "name LIKE ?")
			args = append(args, "%"+filter.Keyword+"%")
		}
	}
	if filter.Market != "" {
		conds = append(conds, "market = ?")
		args = append(args, strings.ToUpper(filter.Market))
	}
	if filter.MinPER > 0 {
		conds = append(conds, "per >= ?")
		args = append(args, filter.MinPER)
	}
	if filter.MaxPER > 0 {
		conds = append(conds, "per <= ?")
		args = append(args, filter.MaxPER)
	}
	if filter.MinPBR > 0 {
		conds = append(conds, "pbr >= ?")
		args = append(args, filter.MinPBR)
	}
	if filter.MaxPBR > 0 {
		conds = append(conds, "pbr <= ?")
		args = append(args, filter.MaxPBR)
	}
	if filter.MinMktCap > 0 {
		conds = append(conds, "market_cap >= ?")
		args = append(args, filter.MinMktCap)
	}

	query := `SELECT ` + stockColumns + ` FROM filtered_stocks`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + sortColumn(filter.SortBy) + " DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search stocks: %w", err)
	}
	defer rows.Close()

	return scanStocks(rows)
}

// LastUpdated returns the newest updated_at across the universe
func (s *StockStorage) LastUpdated(ctx context.Context) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT MAX(updated_at) FROM filtered_stocks`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last update: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0), nil
}

func sortColumn(sortBy string) string {
	switch sortBy {
	case "per", "pbr", "roe", "trading_value", "market_cap":
		return sortBy
	default:
		return "market_cap"
	}
}

func isNumeric(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(strings.TrimSpace(s)) > 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (*models.FilteredStock, error) {
	var st models.FilteredStock
	var market, status string
	var lastCheck sql.NullInt64
	var updatedAt int64

	err := row.Scan(&st.Ticker, &st.Name, &market, &st.BPS, &st.PER, &st.PBR,
		&st.EPS, &st.DIV, &st.DPS, &st.ROE, &st.DebtRatio, &st.RevenueGrowth,
		&st.MarketCap, &st.TradingValue, &status, &lastCheck, &updatedAt)
	if err != nil {
		return nil, err
	}

	st.Market = models.Market(market)
	st.FilterStatus = models.FilterStatus(status)
	if lastCheck.Valid {
		st.LastFilterCheck = time.Unix(lastCheck.Int64, 0)
	}
	st.UpdatedAt = time.Unix(updatedAt, 0)
	return &st, nil
}

func scanStocks(rows *sql.Rows) ([]models.FilteredStock, error) {
	var stocks []models.FilteredStock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock row: %w", err)
		}
		stocks = append(stocks, *st)
	}
	return stocks, rows.Err()
}
