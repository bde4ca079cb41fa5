package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/specula/internal/models"
)

// StockFilter narrows filtered-universe listings. Keyword may be a name
// substring or a comma list of tickers.
type StockFilter struct {
	Keyword   string
	Market    string
	MinPER    float64
	MaxPER    float64
	MinPBR    float64
	MaxPBR    float64
	MinMktCap float64
	SortBy    string // "market_cap", "per", "pbr", "trading_value", "roe"
	Limit     int
}

// StockStorage owns the filtered-universe table
type StockStorage interface {
	UpsertStocks(ctx context.Context, stocks []models.FilteredStock) error
	GetStock(ctx context.Context, ticker string) (*models.FilteredStock, error)
	ListPassing(ctx context.Context) ([]models.FilteredStock, error)
	Search(ctx context.Context, filter StockFilter) ([]models.FilteredStock, error)
	LastUpdated(ctx context.Context) (time.Time, error)
}

// PriceStorage owns the realtime hot cache
type PriceStorage interface {
	UpsertPrices(ctx context.Context, prices []models.RealtimePrice) error
	GetPrice(ctx context.Context, ticker string) (*models.RealtimePrice, error)
	// GetFresh returns only rows younger than maxAge; stale rows are omitted.
	GetFresh(ctx context.Context, tickers []string, maxAge time.Duration) ([]models.RealtimePrice, error)
}

// TriggerStats aggregates detections over a date range
type TriggerStats struct {
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Total     int            `json:"total"`
	ByType    map[string]int `json:"by_type"`
	BySession map[string]int `json:"by_session"`
}

// TriggerStorage owns trigger detections
type TriggerStorage interface {
	// ReplaceSession atomically swaps all rows for (date, session).
	ReplaceSession(ctx context.Context, date time.Time, session models.Session, results []models.TriggerResult) error
	ListBySession(ctx context.Context, date time.Time, session models.Session) ([]models.TriggerResult, error)
	CountBySession(ctx context.Context, date time.Time, session models.Session) (int, error)
	ListByType(ctx context.Context, triggerType models.TriggerType, date time.Time, limit int) ([]models.TriggerResult, error)
	HistoryByTicker(ctx context.Context, ticker string, days int) ([]models.TriggerResult, error)
	LatestDate(ctx context.Context) (time.Time, error)
	Stats(ctx context.Context, start, end time.Time) (*TriggerStats, error)
}

// AnalysisStorage owns the date-keyed analysis cache
type AnalysisStorage interface {
	Upsert(ctx context.Context, result *models.AnalysisResult) error
	Get(ctx context.Context, ticker string, date time.Time) (*models.AnalysisResult, error)
	Delete(ctx context.Context, ticker string, date time.Time) error
	// Popular returns tickers by number of cached analyses, most first.
	Popular(ctx context.Context, limit int) ([]models.PopularTicker, error)
}

// ReportStats aggregates generated reports
type ReportStats struct {
	Total       int            `json:"total"`
	ByType      map[string]int `json:"by_type"`
	TotalTokens int            `json:"total_tokens"`
	LatestDate  string         `json:"latest_date,omitempty"`
}

// ReportStorage owns market reports
type ReportStorage interface {
	Upsert(ctx context.Context, result *models.ReportResult) error
	Get(ctx context.Context, reportType models.ReportType, date time.Time) (*models.ReportResult, error)
	History(ctx context.Context, reportType models.ReportType, limit int) ([]models.ReportResult, error)
	Stats(ctx context.Context) (*ReportStats, error)
}

// StorageManager aggregates all table owners behind one lifecycle
type StorageManager interface {
	Stocks() StockStorage
	Prices() PriceStorage
	Triggers() TriggerStorage
	Analyses() AnalysisStorage
	Reports() ReportStorage
	Ping(ctx context.Context) error
	Close() error
}
