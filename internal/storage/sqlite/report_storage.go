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

// ReportStorage implements interfaces.ReportStorage for SQLite
type ReportStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{db: db, logger: logger}
}

// Upsert writes one report, replacing any existing (report_type, date) row
func (s *ReportStorage) Upsert(ctx context.Context, result *models.ReportResult) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO report_results (report_type, date, payload, generated_at, model, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_type, date) DO UPDATE SET
			payload = excluded.payload,
			generated_at = excluded.generated_at,
			model = excluded.model,
			tokens_used = excluded.tokens_used`,
		string(result.ReportType), dateKey(result.Date), string(result.Payload),
		result.GeneratedAt.Unix(), result.Model, result.TokensUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert %s report: %w", result.ReportType, err)
	}
	return nil
}

// Get returns the report for (reportType, date)
func (s *ReportStorage) Get(ctx context.Context, reportType models.ReportType, date time.Time) (*models.ReportResult, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT report_type, date, payload, generated_at, model, tokens_used
		FROM report_results WHERE report_type = ? AND date = ?`,
		string(reportType), dateKey(date))

	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s/%s: %w", reportType, dateKey(date), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s report: %w", reportType, err)
	}
	return r, nil
}

// History returns recent reports of one type, newest first
func (s *ReportStorage) History(ctx context.Context, reportType models.ReportType, limit int) ([]models.ReportResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 7
	}
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT report_type, date, payload, generated_at, model, tokens_used
		FROM report_results WHERE report_type = ?
		ORDER BY date DESC LIMIT ?`,
		string(reportType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query report history: %w", err)
	}
	defer rows.Close()

	var results []models.ReportResult
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// Stats aggregates all generated reports
func (s *ReportStorage) Stats(ctx context.Context) (*interfaces.ReportStats, error) {
	stats := &interfaces.ReportStats{ByType: make(map[string]int)}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT report_type, COUNT(*), COALESCE(SUM(tokens_used), 0), MAX(date)
		FROM report_results GROUP BY report_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate report stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var count, tokens int
		var latest sql.NullString
		if err := rows.Scan(&typ, &count, &tokens, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan report stats: %w", err)
		}
		stats.ByType[typ] = count
		stats.Total += count
		stats.TotalTokens += tokens
		if latest.Valid && latest.String > stats.LatestDate {
			stats.LatestDate = latest.String
		}
	}
	return stats, rows.Err()
}

func scanReport(row rowScanner) (*models.ReportResult, error) {
	var r models.ReportResult
	var typ, d, payload string
	var model sql.NullString
	var generatedAt int64

	err := row.Scan(&typ, &d, &payload, &generatedAt, &model, &r.TokensUsed)
	if err != nil {
		return nil, err
	}

	r.ReportType = models.ReportType(typ)
	r.Date, _ = time.Parse("2006-01-02", d)
	r.Payload = json.RawMessage(payload)
	r.GeneratedAt = time.Unix(generatedAt, 0)
	r.Model = model.String
	return &r, nil
}
