package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

// dateKey formats a date the way all date-keyed tables store it
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// TriggerStorage implements interfaces.TriggerStorage for SQLite
type TriggerStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewTriggerStorage creates a new TriggerStorage instance
func NewTriggerStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.TriggerStorage {
	return &TriggerStorage{db: db, logger: logger}
}

const triggerColumns = `id, date, session, ticker, name, trigger_type, price,
	change_rate, volume, trading_value, composite_score, detected_at`

// ReplaceSession deletes then inserts all rows for (date, session) in one
// transaction, making re-runs idempotent.
func (s *TriggerStorage) ReplaceSession(ctx context.Context, date time.Time, session models.Session, results []models.TriggerResult) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM trigger_results WHERE date = ? AND session = ?`,
			dateKey(date), string(session)); err != nil {
			return fmt.Errorf("failed to clear trigger session: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO trigger_results
				(date, session, ticker, name, trigger_type, price, change_rate,
				 volume, trading_value, composite_score, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare trigger insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range results {
			if _, err := stmt.ExecContext(ctx,
				dateKey(date), string(session), r.Ticker, r.Name, string(r.TriggerType),
				r.Price, r.ChangeRate, r.Volume, r.TradingValue, r.CompositeScore,
				r.DetectedAt.Unix()); err != nil {
				return fmt.Errorf("failed to insert trigger %s/%s: %w", r.Ticker, r.TriggerType, err)
			}
		}
		return nil
	})
}

// ListBySession returns detections for (date, session) ordered by score
func (s *TriggerStorage) ListBySession(ctx context.Context, date time.Time, session models.Session) ([]models.TriggerResult, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM trigger_results
		 WHERE date = ? AND session = ?
		 ORDER BY trigger_type, composite_score DESC`,
		dateKey(date), string(session))
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// CountBySession counts detections for (date, session)
func (s *TriggerStorage) CountBySession(ctx context.Context, date time.Time, session models.Session) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trigger_results WHERE date = ? AND session = ?`,
		dateKey(date), string(session)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count triggers: %w", err)
	}
	return count, nil
}

// ListByType returns detections of one type on a date
func (s *TriggerStorage) ListByType(ctx context.Context, triggerType models.TriggerType, date time.Time, limit int) ([]models.TriggerResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM trigger_results
		 WHERE trigger_type = ? AND date = ?
		 ORDER BY composite_score DESC LIMIT ?`,
		string(triggerType), dateKey(date), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers by type: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// HistoryByTicker returns a ticker's detections over the trailing window
func (s *TriggerStorage) HistoryByTicker(ctx context.Context, ticker string, days int) ([]models.TriggerResult, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	since := dateKey(time.Now().AddDate(0, 0, -days))
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM trigger_results
		 WHERE ticker = ? AND date >= ?
		 ORDER BY date DESC, detected_at DESC`,
		ticker, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger history: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// LatestDate returns the most recent date with any detection
func (s *TriggerStorage) LatestDate(ctx context.Context) (time.Time, error) {
	var d sql.NullString
	err := s.db.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM trigger_results`).Scan(&d)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest trigger date: %w", err)
	}
	if !d.Valid {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", d.String)
}

// Stats aggregates detections over a date range
func (s *TriggerStorage) Stats(ctx context.Context, start, end time.Time) (*interfaces.TriggerStats, error) {
	stats := &interfaces.TriggerStats{
		StartDate: dateKey(start),
		EndDate:   dateKey(end),
		ByType:    make(map[string]int),
		BySession: make(map[string]int),
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT trigger_type, session, COUNT(*) FROM trigger_results
		 WHERE date >= ? AND date <= ?
		 GROUP BY trigger_type, session`,
		stats.StartDate, stats.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trigger stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, session string
		var count int
		if err := rows.Scan(&typ, &session, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.ByType[typ] += count
		stats.BySession[session] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

func scanTriggers(rows *sql.Rows) ([]models.TriggerResult, error) {
	var results []models.TriggerResult
	for rows.Next() {
		var r models.TriggerResult
		var date, session, typ string
		var detectedAt int64
		if err := rows.Scan(&r.ID, &date, &session, &r.Ticker, &r.Name, &typ,
			&r.Price, &r.ChangeRate, &r.Volume, &r.TradingValue,
			&r.CompositeScore, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger row: %w", err)
		}
		r.Date, _ = time.Parse("2006-01-02", date)
		r.Session = models.Session(session)
		r.TriggerType = models.TriggerType(typ)
		r.DetectedAt = time.Unix(detectedAt, 0)
		results = append(results, r)
	}
	return results, rows.Err()
}
