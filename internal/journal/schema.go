package journal

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	time TEXT NOT NULL,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	order_type TEXT NOT NULL,
	limit_price TEXT,
	stop_price TEXT,
	fingerprint TEXT NOT NULL,
	passed INTEGER NOT NULL,
	errors TEXT NOT NULL,
	warnings TEXT NOT NULL,
	broker_order_id TEXT NOT NULL,
	note TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(time);

CREATE TABLE IF NOT EXISTS pnl (
	id TEXT PRIMARY KEY,
	time TEXT NOT NULL,
	date TEXT NOT NULL,
	amount TEXT NOT NULL,
	order_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pnl_date ON pnl(date);
`
