package sqlite

const schemaSQL = `
-- Filtered universe. Written by the financial batch, read-only elsewhere.
-- Monetary sizes in 100M KRW.
CREATE TABLE IF NOT EXISTS filtered_stocks (
	ticker TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	market TEXT NOT NULL,
	bps REAL DEFAULT 0,
	per REAL DEFAULT 0,
	pbr REAL DEFAULT 0,
	eps REAL DEFAULT 0,
	div REAL DEFAULT 0,
	dps REAL DEFAULT 0,
	roe REAL DEFAULT 0,
	debt_ratio REAL DEFAULT 0,
	revenue_growth REAL DEFAULT 0,
	market_cap REAL DEFAULT 0,
	trading_value REAL DEFAULT 0,
	filter_status TEXT NOT NULL DEFAULT 'unknown',
	last_filter_check INTEGER,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_filtered_status ON filtered_stocks(filter_status);
CREATE INDEX IF NOT EXISTS idx_filtered_market ON filtered_stocks(market, filter_status);

-- Realtime hot cache. One row per ticker, merged each polling cycle.
CREATE TABLE IF NOT EXISTS realtime_prices (
	ticker TEXT PRIMARY KEY,
	current_price REAL NOT NULL,
	change_rate REAL DEFAULT 0,
	change_amount REAL DEFAULT 0,
	volume INTEGER DEFAULT 0,
	open REAL DEFAULT 0,
	high REAL DEFAULT 0,
	low REAL DEFAULT 0,
	trading_value REAL DEFAULT 0,
	market_status TEXT NOT NULL,
	data_source TEXT,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_realtime_updated ON realtime_prices(updated_at);

-- Trigger detections. A (date, session) run replaces its rows atomically.
CREATE TABLE IF NOT EXISTS trigger_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	session TEXT NOT NULL,
	ticker TEXT NOT NULL,
	name TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	price REAL DEFAULT 0,
	change_rate REAL DEFAULT 0,
	volume INTEGER DEFAULT 0,
	trading_value REAL DEFAULT 0,
	composite_score REAL NOT NULL,
	detected_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trigger_unique
	ON trigger_results(date, session, ticker, trigger_type);
CREATE INDEX IF NOT EXISTS idx_trigger_date ON trigger_results(date, session);
CREATE INDEX IF NOT EXISTS idx_trigger_ticker ON trigger_results(ticker, date DESC);
CREATE INDEX IF NOT EXISTS idx_trigger_type ON trigger_results(trigger_type, date DESC);

-- Company analyses, date-keyed cache.
CREATE TABLE IF NOT EXISTS analysis_results (
	ticker TEXT NOT NULL,
	date TEXT NOT NULL,
	payload TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	model TEXT,
	tokens_used INTEGER DEFAULT 0,
	PRIMARY KEY (ticker, date)
);

CREATE INDEX IF NOT EXISTS idx_analysis_date ON analysis_results(date DESC);

-- Market reports, at most one per (report_type, date).
CREATE TABLE IF NOT EXISTS report_results (
	report_type TEXT NOT NULL,
	date TEXT NOT NULL,
	payload TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	model TEXT,
	tokens_used INTEGER DEFAULT 0,
	PRIMARY KEY (report_type, date)
);

CREATE INDEX IF NOT EXISTS idx_report_date ON report_results(date DESC);
`
