package triggers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/indicators"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

// prevLookbackDays bounds the previous-trading-day probe
const prevLookbackDays = 10

// snapshotSource is the market-data surface the engine reads
type snapshotSource interface {
	Snapshot(ctx context.Context, date time.Time) (*models.MarketSnapshot, error)
	PreviousTradingDay(ctx context.Context, date time.Time, maxLookback int) (time.Time, error)
}

// cacheInvalidator is the analysis-cache sweep kicked after afternoon
// runs; it scans realtime prices and drops rows whose ticker moved past
// the invalidation threshold.
type cacheInvalidator interface {
	InvalidateOnSurge(ctx context.Context, date time.Time) (int, error)
}

// Engine runs one session's three detectors over the filtered universe
// and replaces that session's stored rows atomically.
type Engine struct {
	market      snapshotSource
	stocks      interfaces.StockStorage
	store       interfaces.TriggerStorage
	invalidator cacheInvalidator
	logger      arbor.ILogger
}

// NewEngine creates a trigger engine. The invalidator may be nil when no
// analysis cache is wired.
func NewEngine(market snapshotSource, stocks interfaces.StockStorage, store interfaces.TriggerStorage, invalidator cacheInvalidator, logger arbor.ILogger) *Engine {
	return &Engine{
		market:      market,
		stocks:      stocks,
		store:       store,
		invalidator: invalidator,
		logger:      logger,
	}
}

// RunSession fires the session's detectors and persists the survivors.
// Re-running the same (date, session) replaces the prior rows, so the run
// is idempotent. Returns the number of stored detections.
func (e *Engine) RunSession(ctx context.Context, date time.Time, session models.Session) (int, error) {
	started := time.Now()

	candidates, snapDate, err := e.buildCandidates(ctx, date)
	if err != nil {
		return 0, err
	}

	types := models.MorningTriggers
	if session == models.SessionAfternoon {
		types = models.AfternoonTriggers
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []models.TriggerResult
		runErr  error
	)
	now := time.Now()
	for _, tt := range types {
		d, ok := detectors[tt]
		if !ok {
			return 0, fmt.Errorf("unknown trigger type: %s", tt)
		}
		wg.Add(1)
		go func(d detector) {
			defer wg.Done()
			rows, err := d.run(snapDate, session, candidates, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				runErr = fmt.Errorf("failed to run %s detector: %w", d.Type, err)
				return
			}
			results = append(results, rows...)
		}(d)
	}
	wg.Wait()
	if runErr != nil {
		return 0, runErr
	}

	if err := e.store.ReplaceSession(ctx, snapDate, session, results); err != nil {
		return 0, fmt.Errorf("failed to store %s triggers: %w", session, err)
	}

	if session == models.SessionAfternoon && e.invalidator != nil {
		if dropped, err := e.invalidator.InvalidateOnSurge(ctx, snapDate); err != nil {
			e.logger.Warn().Err(err).Msg("Analysis cache sweep failed")
		} else if dropped > 0 {
			e.logger.Info().Int("dropped", dropped).Msg("Stale analyses invalidated")
		}
	}

	e.logger.Info().
		Str("session", string(session)).
		Str("date", snapDate.Format("2006-01-02")).
		Int("detections", len(results)).
		Str("elapsed", time.Since(started).String()).
		Msg("Trigger session completed")
	return len(results), nil
}

// buildCandidates joins the current and previous snapshots over the
// passing universe. A missing previous day degrades to prev-less
// candidates instead of failing the run.
func (e *Engine) buildCandidates(ctx context.Context, date time.Time) ([]candidate, time.Time, error) {
	snap, err := e.market.Snapshot(ctx, date)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var prevRows map[string]models.SnapshotRow
	prevDate, err := e.market.PreviousTradingDay(ctx, snap.Date, prevLookbackDays)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Previous trading day unavailable, volume deltas disabled")
	} else if prevSnap, err := e.market.Snapshot(ctx, prevDate); err != nil {
		e.logger.Warn().Err(err).Msg("Previous snapshot unavailable, volume deltas disabled")
	} else {
		prevRows = prevSnap.Rows
	}

	universe, err := e.stocks.ListPassing(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load universe: %w", err)
	}

	candidates := make([]candidate, 0, len(universe))
	for _, st := range universe {
		row, ok := snap.Rows[st.Ticker]
		if !ok || row.Close == 0 {
			continue
		}
		c := candidate{
			Ticker: st.Ticker,
			Name:   st.Name,
			Row:    row,
		}
		if prev, ok := prevRows[st.Ticker]; ok && prev.Volume > 0 {
			c.PrevRow = prev
			c.HasPrev = true
			c.VolumeChange = indicators.VolumeChange(prev.Volume, row.Volume)
		}
		candidates = append(candidates, c)
	}
	return candidates, snap.Date, nil
}
