package store

// 数量与价格以 TEXT 存储，读写两侧统一用 decimal 解析，
// 避免 REAL 带来的精度漂移。
const schema = `
CREATE TABLE IF NOT EXISTS blotter (
	id INTEGER PRIMARY KEY,
	abbreviation TEXT NOT NULL,
	name TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS trade_type (
	id INTEGER PRIMARY KEY,
	abbreviation TEXT NOT NULL,
	description TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS destination (
	id INTEGER PRIMARY KEY,
	abbreviation TEXT NOT NULL,
	description TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS execution_status (
	id INTEGER PRIMARY KEY,
	abbreviation TEXT NOT NULL,
	description TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS trade_order (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id INTEGER NOT NULL,
	portfolio_id TEXT NOT NULL,
	security_id TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity TEXT NOT NULL,
	quantity_sent TEXT NOT NULL DEFAULT '0',
	limit_price TEXT,
	trade_timestamp TEXT NOT NULL,
	blotter_id INTEGER NOT NULL REFERENCES blotter(id),
	submitted INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS execution (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_timestamp TEXT NOT NULL,
	quantity_ordered TEXT NOT NULL,
	quantity_placed TEXT NOT NULL DEFAULT '0',
	quantity_filled TEXT NOT NULL DEFAULT '0',
	limit_price TEXT,
	execution_service_id INTEGER,
	execution_status_id INTEGER NOT NULL REFERENCES execution_status(id),
	blotter_id INTEGER NOT NULL REFERENCES blotter(id),
	trade_type_id INTEGER NOT NULL REFERENCES trade_type(id),
	trade_order_id INTEGER NOT NULL REFERENCES trade_order(id),
	destination_id INTEGER NOT NULL REFERENCES destination(id),
	version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_execution_trade_order ON execution(trade_order_id);
CREATE INDEX IF NOT EXISTS idx_execution_status ON execution(execution_status_id);

CREATE TABLE IF NOT EXISTS compensation_dead_letter (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id INTEGER NOT NULL,
	trade_order_id INTEGER NOT NULL,
	original_quantity_sent TEXT NOT NULL,
	original_submitted INTEGER NOT NULL,
	error_message TEXT NOT NULL,
	failure_timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dead_letter_ts ON compensation_dead_letter(failure_timestamp);
`
