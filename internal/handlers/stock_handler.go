package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/services/marketdata"
)

// StockHandler serves the filtered universe and per-ticker market data
type StockHandler struct {
	market *marketdata.Service
	stocks interfaces.StockStorage
	logger arbor.ILogger
}

// NewStockHandler creates a stock handler
func NewStockHandler(market *marketdata.Service, stocks interfaces.StockStorage, logger arbor.ILogger) *StockHandler {
	return &StockHandler{market: market, stocks: stocks, logger: logger}
}

// SearchHandler handles GET /api/v1/stocks with filter query parameters
func (h *StockHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter := interfaces.StockFilter{
		Keyword:   r.URL.Query().Get("keyword"),
		Market:    r.URL.Query().Get("market"),
		MinPER:    QueryFloat(r, "min_per", 0),
		MaxPER:    QueryFloat(r, "max_per", 0),
		MinPBR:    QueryFloat(r, "min_pbr", 0),
		MaxPBR:    QueryFloat(r, "max_pbr", 0),
		MinMktCap: QueryFloat(r, "min_market_cap", 0),
		SortBy:    r.URL.Query().Get("sort_by"),
		Limit:     QueryInt(r, "limit", 50),
	}

	stocks, err := h.stocks.Search(r.Context(), filter)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, stocks)
}

// GetHandler handles GET /api/v1/stocks/{ticker} (static fundamentals)
func (h *StockHandler) GetHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	stock, err := h.stocks.GetStock(r.Context(), ticker)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, stock)
}

// PriceHandler handles GET /api/v1/stocks/{ticker}/price
func (h *StockHandler) PriceHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	end, ok := QueryDate(w, r, "end_date")
	if !ok {
		return
	}

	var start time.Time
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		var okStart bool
		start, okStart = QueryDate(w, r, "start_date")
		if !okStart {
			return
		}
	} else {
		// period is a day count ending at end_date
		start = end.AddDate(0, 0, -QueryInt(r, "period", 30))
	}

	bars, err := h.market.History(r.Context(), ticker, start, end)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, bars)
}

// CurrentHandler handles GET /api/v1/stocks/{ticker}/current
func (h *StockHandler) CurrentHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	price, err := h.market.RealtimeOne(r.Context(), ticker)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, price)
}

// TechnicalHandler handles GET /api/v1/stocks/{ticker}/technical
func (h *StockHandler) TechnicalHandler(w http.ResponseWriter, r *http.Request, ticker string) {
	date, ok := QueryDate(w, r, "date")
	if !ok {
		return
	}

	technicals, err := h.market.Technicals(r.Context(), ticker, date)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteData(w, technicals)
}

// Route dispatches /api/v1/stocks/ sub-paths
func (h *StockHandler) Route(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/stocks/"

	ticker := PathSegment(r.URL.Path, prefix, 0)
	if !ValidTicker(ticker) {
		WriteError(w, http.StatusBadRequest, "invalid ticker "+strings.TrimSpace(ticker))
		return
	}
	if !RequireMethod(w, r, "GET") {
		return
	}

	switch PathSegment(r.URL.Path, prefix, 1) {
	case "":
		h.GetHandler(w, r, ticker)
	case "price":
		h.PriceHandler(w, r, ticker)
	case "current":
		h.CurrentHandler(w, r, ticker)
	case "technical":
		h.TechnicalHandler(w, r, ticker)
	default:
		WriteError(w, http.StatusNotFound, "not found")
	}
}
