package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS requests (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id            TEXT NOT NULL DEFAULT '',
    project               TEXT NOT NULL DEFAULT '',
    model                 TEXT NOT NULL,
    ts_ms                 INTEGER NOT NULL,
    input_tokens          INTEGER NOT NULL DEFAULT 0,
    output_tokens         INTEGER NOT NULL DEFAULT 0,
    cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
    cost                  REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_requests_ts ON requests(ts_ms);
CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_id);
`
