package database

// Schema is the single source of truth for the pixiu store. All statements
// are idempotent (IF NOT EXISTS) so Migrate can run on every startup.
// Dates are stored as YYYY-MM-DD strings throughout.
const Schema = `
CREATE TABLE IF NOT EXISTS funds (
    fund_code   TEXT PRIMARY KEY,
    fund_name   TEXT NOT NULL,
    fund_type   TEXT,
    company     TEXT,
    created_at  TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS fund_nav (
    fund_code    TEXT NOT NULL,
    nav_date     TEXT NOT NULL,
    nav          REAL NOT NULL,
    acc_nav      REAL,
    daily_return REAL,
    PRIMARY KEY (fund_code, nav_date)
);
CREATE INDEX IF NOT EXISTS idx_fund_nav_date ON fund_nav(nav_date);

CREATE TABLE IF NOT EXISTS market_indices (
    index_code TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    open       REAL,
    high       REAL,
    low        REAL,
    close      REAL NOT NULL,
    volume     REAL,
    amount     REAL,
    PRIMARY KEY (index_code, trade_date)
);

CREATE TABLE IF NOT EXISTS portfolio (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    fund_code       TEXT NOT NULL,
    shares          REAL NOT NULL,
    cost_price      REAL NOT NULL,
    current_nav     REAL,
    buy_date        TEXT NOT NULL,
    status          TEXT DEFAULT 'holding',
    sell_date       TEXT,
    sell_nav        REAL,
    profit_loss     REAL,
    profit_loss_pct REAL,
    notes           TEXT
);
CREATE INDEX IF NOT EXISTS idx_portfolio_status ON portfolio(status);

CREATE TABLE IF NOT EXISTS trades (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_date  TEXT NOT NULL,
    fund_code   TEXT NOT NULL,
    action      TEXT NOT NULL,
    amount      REAL,
    nav         REAL,
    shares      REAL,
    fee         REAL,
    reason      TEXT,
    confidence  REAL,
    report_path TEXT,
    status      TEXT DEFAULT 'pending',
    created_at  TEXT DEFAULT (datetime('now', 'localtime'))
);
CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(trade_date);

CREATE TABLE IF NOT EXISTS account_snapshots (
    snapshot_date     TEXT PRIMARY KEY,
    total_value       REAL NOT NULL,
    cash              REAL NOT NULL,
    invested          REAL NOT NULL,
    total_profit_loss REAL,
    total_return_pct  REAL,
    max_drawdown_pct  REAL,
    holdings_json     TEXT,
    created_at        TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS analysis_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_date TEXT NOT NULL,
    analysis_type TEXT NOT NULL,
    summary       TEXT,
    doc_path      TEXT,
    created_at    TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS watchlist (
    fund_code     TEXT PRIMARY KEY,
    added_date    TEXT NOT NULL,
    reason        TEXT,
    target_action TEXT,
    notes         TEXT,
    category      TEXT DEFAULT 'equity'
);

CREATE TABLE IF NOT EXISTS sector_snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_date TEXT NOT NULL,
    sector_name   TEXT NOT NULL,
    change_pct    REAL,
    net_inflow    REAL,
    rank          INTEGER,
    created_at    TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS hotspots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    detect_date TEXT NOT NULL,
    sector_name TEXT NOT NULL,
    score       REAL,
    reason      TEXT,
    status      TEXT DEFAULT 'active',
    created_at  TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS signal_validation (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    signal_date   TEXT NOT NULL,
    fund_code     TEXT NOT NULL,
    strategy_name TEXT NOT NULL,
    signal_type   TEXT NOT NULL,
    confidence    REAL,
    regime        TEXT,
    nav_at_signal REAL,
    nav_after_7d  REAL,
    nav_after_30d REAL,
    return_7d     REAL,
    return_30d    REAL,
    is_correct_7d  INTEGER,
    is_correct_30d INTEGER,
    validated_at  TEXT,
    created_at    TEXT DEFAULT (datetime('now', 'localtime')),
    UNIQUE (signal_date, fund_code, strategy_name)
);
CREATE INDEX IF NOT EXISTS idx_signal_validation_fund ON signal_validation(fund_code, signal_date);

CREATE TABLE IF NOT EXISTS strategy_performance (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    period_end          TEXT NOT NULL,
    strategy_name       TEXT NOT NULL,
    regime              TEXT NOT NULL,
    total_signals       INTEGER DEFAULT 0,
    correct_signals     INTEGER DEFAULT 0,
    win_rate            REAL,
    avg_return          REAL,
    avg_confidence      REAL,
    confidence_accuracy REAL,
    recommended_weight  REAL,
    updated_at          TEXT DEFAULT (datetime('now', 'localtime')),
    UNIQUE (period_end, strategy_name, regime)
);

CREATE TABLE IF NOT EXISTS knowledge_base (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    category             TEXT NOT NULL,
    content              TEXT NOT NULL,
    source_reflection_id INTEGER,
    times_validated      INTEGER DEFAULT 0,
    is_active            INTEGER DEFAULT 1,
    created_at           TEXT DEFAULT (datetime('now', 'localtime'))
);
CREATE INDEX IF NOT EXISTS idx_knowledge_active ON knowledge_base(is_active, category);

CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
    content,
    category,
    content='knowledge_base',
    content_rowid='id',
    tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS agent_decisions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    decision_date  TEXT NOT NULL,
    market_context TEXT,
    quant_signals  TEXT,
    llm_analysis   TEXT,
    llm_decision   TEXT,
    confidence     REAL,
    reasoning      TEXT,
    challenge      TEXT,
    model_used     TEXT,
    tokens_used    INTEGER,
    created_at     TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS reflections (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    reflection_date  TEXT NOT NULL,
    decision_id      INTEGER,
    period           TEXT NOT NULL,
    original_signal  TEXT,
    actual_outcome   TEXT,
    was_correct      INTEGER,
    reflection_text  TEXT,
    lessons          TEXT,
    cognitive_update TEXT,
    created_at       TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS index_valuation (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_date    TEXT NOT NULL,
    index_code    TEXT NOT NULL,
    pe            REAL,
    pe_percentile REAL,
    pb            REAL,
    pb_percentile REAL,
    created_at    TEXT DEFAULT (datetime('now', 'localtime')),
    UNIQUE (trade_date, index_code)
);

CREATE TABLE IF NOT EXISTS macro_indicators (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    indicator_date TEXT NOT NULL,
    indicator_name TEXT NOT NULL,
    value          REAL,
    created_at     TEXT DEFAULT (datetime('now', 'localtime')),
    UNIQUE (indicator_date, indicator_name)
);

CREATE TABLE IF NOT EXISTS sentiment_indicators (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_date     TEXT NOT NULL,
    indicator_name TEXT NOT NULL,
    value          REAL,
    percentile     REAL,
    created_at     TEXT DEFAULT (datetime('now', 'localtime')),
    UNIQUE (trade_date, indicator_name)
);

CREATE TABLE IF NOT EXISTS fund_managers (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    fund_code    TEXT NOT NULL,
    manager_name TEXT NOT NULL,
    tenure_years REAL,
    grade        TEXT,
    score        REAL,
    evaluated_at TEXT DEFAULT (datetime('now', 'localtime')),
    UNIQUE (fund_code, manager_name)
);

CREATE TABLE IF NOT EXISTS scenario_analysis (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_date TEXT NOT NULL,
    scenario_type TEXT NOT NULL,
    content       TEXT,
    created_at    TEXT DEFAULT (datetime('now', 'localtime'))
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    stored_at  TEXT NOT NULL
);
`
