package sqlite

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
)

// Manager wires all table owners over one shared connection
type Manager struct {
	db       *SQLiteDB
	stocks   interfaces.StockStorage
	prices   interfaces.PriceStorage
	triggers interfaces.TriggerStorage
	analyses interfaces.AnalysisStorage
	reports  interfaces.ReportStorage
	logger   arbor.ILogger
}

// NewManager opens the database and constructs every storage
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		stocks:   NewStockStorage(db, logger),
		prices:   NewPriceStorage(db, logger),
		triggers: NewTriggerStorage(db, logger),
		analyses: NewAnalysisStorage(db, logger),
		reports:  NewReportStorage(db, logger),
		logger:   logger,
	}, nil
}

func (m *Manager) Stocks() interfaces.StockStorage      { return m.stocks }
func (m *Manager) Prices() interfaces.PriceStorage      { return m.prices }
func (m *Manager) Triggers() interfaces.TriggerStorage  { return m.triggers }
func (m *Manager) Analyses() interfaces.AnalysisStorage { return m.analyses }
func (m *Manager) Reports() interfaces.ReportStorage    { return m.reports }

// Ping verifies the underlying connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.Ping(ctx)
}

// Close shuts the shared connection
func (m *Manager) Close() error {
	m.logger.Info().Msg("Closing storage")
	return m.db.Close()
}
