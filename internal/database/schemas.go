package database

// schemas maps database names to their embedded SQL schema. All statements are
// idempotent so they can run on every startup.
var schemas = map[string]string{
	"history": `
CREATE TABLE IF NOT EXISTS assets (
	symbol      TEXT PRIMARY KEY,
	asset_group TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS daily_returns (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	ret    REAL NOT NULL,
	PRIMARY KEY (symbol, date),
	FOREIGN KEY (symbol) REFERENCES assets(symbol)
);

CREATE INDEX IF NOT EXISTS idx_daily_returns_date ON daily_returns(date);
`,
	"artifacts": `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	payload    BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_kind ON snapshots(kind, created_at);
`,
}
