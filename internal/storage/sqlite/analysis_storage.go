package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

// AnalysisStorage implements interfaces.AnalysisStorage for SQLite
type AnalysisStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewAnalysisStorage creates a new AnalysisStorage instance
func NewAnalysisStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.AnalysisStorage {
	return &AnalysisStorage{db: db, logger: logger}
}

// Upsert writes one analysis, replacing any existing (ticker, date) row
func (s *AnalysisStorage) Upsert(ctx context.Context, result *models.AnalysisResult) error {
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis payload: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO analysis_results (ticker, date, payload, generated_at, model, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			payload = excluded.payload,
			generated_at = excluded.generated_at,
			model = excluded.model,
			tokens_used = excluded.tokens_used`,
		result.Ticker, dateKey(result.Date), string(payload),
		result.GeneratedAt.Unix(), result.Model, result.TokensUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert analysis %s: %w", result.Ticker, err)
	}
	return nil
}

// Get returns the cached analysis for (ticker, date)
func (s *AnalysisStorage) Get(ctx context.Context, ticker string, date time.Time) (*models.AnalysisResult, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT ticker, date, payload, generated_at, model, tokens_used
		FROM analysis_results WHERE ticker = ? AND date = ?`,
		ticker, dateKey(date))

	var r models.AnalysisResult
	var d, payload string
	var model sql.NullString
	var generatedAt int64
	err := row.Scan(&r.Ticker, &d, &payload, &generatedAt, &model, &r.TokensUsed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis %s/%s: %w", ticker, dateKey(date), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", ticker, err)
	}

	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode analysis payload %s: %w", ticker, err)
	}
	r.Date, _ = time.Parse("2006-01-02", d)
	r.GeneratedAt = time.Unix(generatedAt, 0)
	r.Model = model.String
	return &r, nil
}

// Delete removes a cached analysis so the next request regenerates it.
// Deleting a missing row is not an error.
func (s *AnalysisStorage) Delete(ctx context.Context, ticker string, date time.Time) error {
	res, err := s.db.db.ExecContext(ctx,
		`DELETE FROM analysis_results WHERE ticker = ? AND date = ?`,
		ticker, dateKey(date))
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", ticker, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug().Str("ticker", ticker).Str("date", dateKey(date)).Msg("Invalidated cached analysis")
	}
	return nil
}

// Popular returns tickers ordered by cached-analysis count
func (s *AnalysisStorage) Popular(ctx context.Context, limit int) ([]models.PopularTicker, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT ticker, COUNT(*) AS cnt, MAX(date)
		FROM analysis_results
		GROUP BY ticker
		ORDER BY cnt DESC, ticker
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular tickers: %w", err)
	}
	defer rows.Close()

	var popular []models.PopularTicker
	for rows.Next() {
		var p models.PopularTicker
		if err := rows.Scan(&p.Ticker, &p.Count, &p.Latest); err != nil {
			return nil, fmt.Errorf("failed to scan popular row: %w", err)
		}
		popular = append(popular, p)
	}
	return popular, rows.Err()
}
