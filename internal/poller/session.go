package poller

import (
	"time"

	"github.com/ternarybob/specula/internal/models"
)

// Phase is one intraday session window
type Phase string

const (
	PhasePrep           Phase = "prep"            // universe refresh window
	PhasePreMarket      Phase = "pre_market"      //
	PhaseOpeningAuction Phase = "opening_auction" // expected values only
	PhaseRegular        Phase = "regular"         //
	PhaseClosingAuction Phase = "closing_auction" // expected values only
	PhasePostClose      Phase = "post_close"      //
	PhaseAfterHours     Phase = "after_hours"     //
	PhaseClosed         Phase = "closed"          //
)

// phaseWindow is a [start, end) clock range in exchange-local time
type phaseWindow struct {
	phase      Phase
	start, end int // minutes since midnight
}

var phaseTable = []phaseWindow{
	{PhasePrep, 7*60 + 30, 8*60 + 30},
	{PhasePreMarket, 8*60 + 30, 8*60 + 40},
	{PhaseOpeningAuction, 8*60 + 40, 9 * 60},
	{PhaseRegular, 9 * 60, 15*60 + 20},
	{PhaseClosingAuction, 15*60 + 20, 15*60 + 30},
	{PhasePostClose, 15*60 + 30, 16 * 60},
	{PhaseAfterHours, 16 * 60, 18 * 60},
}

// ResolvePhase maps a wall-clock instant onto the session phase table.
// Weekends are always closed.
func ResolvePhase(now time.Time) Phase {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	for _, w := range phaseTable {
		if minutes >= w.start && minutes < w.end {
			return w.phase
		}
	}
	return PhaseClosed
}

// IsAuction reports whether quotes carry expected values only
func (p Phase) IsAuction() bool {
	return p == PhaseOpeningAuction || p == PhaseClosingAuction
}

// MarketStatus maps the phase onto the persisted quote status
func (p Phase) MarketStatus() models.MarketStatus {
	switch p {
	case PhasePrep, PhasePreMarket, PhaseOpeningAuction:
		return models.MarketPreOpen
	case PhaseRegular, PhaseClosingAuction:
		return models.MarketOpen
	case PhasePostClose, PhaseAfterHours:
		return models.MarketAfterHours
	default:
		return models.MarketClosed
	}
}

// NextPrepStart returns the next 07:30 strictly after now, skipping to
// Monday across weekends.
func NextPrepStart(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 7, 30, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	for wd := next.Weekday(); wd == time.Saturday || wd == time.Sunday; wd = next.Weekday() {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
