package database

// Schema defines every table the ledger needs. Statements are
// idempotent so Migrate can run on every startup.
//
// open_positions holds both standalone positions and basket rows
// (is_basket = 1). A basket row stores total invested capital and lot
// count separately; the per-lot price is derived at read time.
const Schema = `
CREATE TABLE IF NOT EXISTS open_positions (
    id INTEGER PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty INTEGER NOT NULL,
    avg_price REAL NOT NULL DEFAULT 0,
    invested REAL NOT NULL DEFAULT 0,
    entry_date TEXT NOT NULL,
    exchange TEXT,
    product TEXT,
    max_exposure REAL NOT NULL DEFAULT 0,
    strategy_type TEXT NOT NULL DEFAULT 'TRENDING',
    is_basket INTEGER NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL DEFAULT 0,
    stop_loss REAL,
    created_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_open_positions_symbol ON open_positions(symbol);

CREATE TABLE IF NOT EXISTS closed_records (
    id INTEGER PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty INTEGER NOT NULL,
    entry_price REAL NOT NULL DEFAULT 0,
    exit_price REAL NOT NULL DEFAULT 0,
    entry_date TEXT NOT NULL,
    exit_date TEXT NOT NULL,
    pnl REAL NOT NULL DEFAULT 0,
    closure_type TEXT NOT NULL DEFAULT 'FULL',
    exchange TEXT,
    product TEXT,
    strategy_type TEXT NOT NULL DEFAULT 'TRENDING',
    basket_id INTEGER,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_records_symbol ON closed_records(symbol);
CREATE INDEX IF NOT EXISTS idx_closed_records_exit_date ON closed_records(exit_date);
CREATE INDEX IF NOT EXISTS idx_closed_records_closure_type ON closed_records(closure_type);

CREATE TABLE IF NOT EXISTS basket_constituents (
    id INTEGER PRIMARY KEY,
    basket_id INTEGER NOT NULL REFERENCES open_positions(id) ON DELETE CASCADE,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty INTEGER NOT NULL,
    avg_price REAL NOT NULL DEFAULT 0,
    entry_date TEXT NOT NULL,
    exchange TEXT,
    product TEXT
);

CREATE INDEX IF NOT EXISTS idx_basket_constituents_basket ON basket_constituents(basket_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_basket_constituents_symbol ON basket_constituents(symbol);

CREATE TABLE IF NOT EXISTS orderbook (
    order_id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty INTEGER NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    order_timestamp TEXT NOT NULL,
    exchange TEXT,
    product TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orderbook_symbol ON orderbook(symbol);

CREATE TABLE IF NOT EXISTS daily_equity (
    date TEXT PRIMARY KEY,
    account_value REAL NOT NULL,
    realized_pnl REAL NOT NULL DEFAULT 0,
    unrealized_pnl REAL NOT NULL DEFAULT 0,
    ema_10 REAL,
    ema_21 REAL,
    ema_50 REAL,
    ema_200 REAL
);
`
