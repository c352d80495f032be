package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS games (
    id TEXT PRIMARY KEY,
    seed INTEGER NOT NULL DEFAULT 0,
    day INTEGER NOT NULL DEFAULT 0,
    date TEXT NOT NULL DEFAULT '',
    next_id INTEGER NOT NULL DEFAULT 1,
    state_json TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS questions (
    game_id TEXT NOT NULL REFERENCES games(id),
    id INTEGER NOT NULL,
    text TEXT NOT NULL,
    status TEXT NOT NULL,
    scenario_id TEXT NOT NULL DEFAULT '',
    created_date TEXT NOT NULL,
    resolution_date TEXT NOT NULL,
    resolved_outcome INTEGER,
    predetermined_outcome INTEGER NOT NULL,
    PRIMARY KEY (game_id, id)
);
CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(game_id, status);

CREATE TABLE IF NOT EXISTS agents (
    game_id TEXT NOT NULL REFERENCES games(id),
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    balance REAL NOT NULL,
    starting_balance REAL NOT NULL,
    risk_threshold REAL NOT NULL,
    PRIMARY KEY (game_id, id)
);

CREATE TABLE IF NOT EXISTS positions (
    game_id TEXT NOT NULL REFERENCES games(id),
    agent_id TEXT NOT NULL,
    question_id INTEGER NOT NULL,
    side TEXT NOT NULL,
    shares REAL NOT NULL,
    cost_basis REAL NOT NULL,
    closed INTEGER NOT NULL DEFAULT 0,
    payout REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (game_id, agent_id, question_id)
);

CREATE TABLE IF NOT EXISTS markets (
    game_id TEXT NOT NULL REFERENCES games(id),
    question_id INTEGER NOT NULL,
    yes_shares REAL NOT NULL,
    no_shares REAL NOT NULL,
    fee_accumulator REAL NOT NULL,
    last_updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (game_id, question_id)
);

CREATE TABLE IF NOT EXISTS market_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id TEXT NOT NULL REFERENCES games(id),
    question_id INTEGER NOT NULL,
    day INTEGER NOT NULL,
    yes_shares REAL NOT NULL,
    no_shares REAL NOT NULL,
    fee_accumulator REAL NOT NULL,
    yes_price REAL NOT NULL,
    snapshot_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_snapshots_question_day ON market_snapshots(game_id, question_id, day);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id TEXT NOT NULL REFERENCES games(id),
    day INTEGER NOT NULL,
    type TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_game_seq ON events(game_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);

CREATE TABLE IF NOT EXISTS bets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id TEXT NOT NULL REFERENCES games(id),
    day INTEGER NOT NULL,
    agent_id TEXT NOT NULL,
    question_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    side TEXT NOT NULL,
    amount REAL NOT NULL,
    shares REAL NOT NULL,
    price REAL NOT NULL,
    fee REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bets_agent ON bets(game_id, agent_id);

CREATE TABLE IF NOT EXISTS reputation_deltas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id TEXT NOT NULL,
    question_id INTEGER NOT NULL,
    outcome_correct INTEGER NOT NULL,
    magnitude REAL NOT NULL,
    recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_reputation_agent ON reputation_deltas(agent_id);
`
