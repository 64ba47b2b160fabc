// Package journal persists trade records to a local SQLite database.
// The journal is write-behind bookkeeping: failures are logged by the
// caller and never affect in-memory trading state.
package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/swingbot/goswing/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id     TEXT NOT NULL UNIQUE,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	quantity     REAL NOT NULL,
	entry_price  REAL NOT NULL,
	stop_loss    REAL NOT NULL,
	take_profit  REAL NOT NULL,
	entry_time   INTEGER NOT NULL,
	status       TEXT NOT NULL,
	exit_price   REAL,
	exit_time    INTEGER,
	exit_reason  TEXT,
	pnl          REAL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
`

// Journal is a SQLite-backed trade log.
type Journal struct {
	db *sql.DB
}

// Open creates (or opens) the journal database at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create journal directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open journal database")
	}
	// modernc sqlite is single-writer; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply journal schema")
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOpen inserts a newly opened position.
func (j *Journal) RecordOpen(pos *domain.Position) error {
	_, err := j.db.Exec(`
		INSERT INTO trades (order_id, symbol, side, quantity, entry_price,
			stop_loss, take_profit, entry_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.OrderID, pos.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice,
		pos.StopLoss, pos.TakeProfit, pos.EntryTime.Unix(), string(pos.Status),
	)
	return errors.Wrap(err, "insert trade")
}

// RecordClose updates the row with the position's exit fields.
func (j *Journal) RecordClose(pos *domain.Position) error {
	result, err := j.db.Exec(`
		UPDATE trades
		SET status = ?, exit_price = ?, exit_time = ?, exit_reason = ?, pnl = ?
		WHERE order_id = ?`,
		string(pos.Status), pos.ExitPrice, pos.ExitTime.Unix(),
		string(pos.ExitReason), pos.PnL, pos.OrderID,
	)
	if err != nil {
		return errors.Wrap(err, "update trade")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Errorf("no journal row for order %s", pos.OrderID)
	}
	return nil
}

// RecentTrades returns the most recent trades, newest first. limit <= 0
// returns everything.
func (j *Journal) RecentTrades(limit int) ([]*domain.Position, error) {
	query := `
		SELECT order_id, symbol, side, quantity, entry_price, stop_loss,
			take_profit, entry_time, status, exit_price, exit_time,
			exit_reason, pnl
		FROM trades ORDER BY entry_time DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var trades []*domain.Position
	for rows.Next() {
		var (
			pos        domain.Position
			side       string
			status     string
			entryUnix  int64
			exitPrice  sql.NullFloat64
			exitUnix   sql.NullInt64
			exitReason sql.NullString
			pnl        sql.NullFloat64
		)
		if err := rows.Scan(&pos.OrderID, &pos.Symbol, &side, &pos.Quantity,
			&pos.EntryPrice, &pos.StopLoss, &pos.TakeProfit, &entryUnix,
			&status, &exitPrice, &exitUnix, &exitReason, &pnl); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		pos.Side = domain.Side(side)
		pos.Status = domain.PositionStatus(status)
		pos.EntryTime = time.Unix(entryUnix, 0)
		if exitPrice.Valid {
			pos.ExitPrice = exitPrice.Float64
		}
		if exitUnix.Valid {
			pos.ExitTime = time.Unix(exitUnix.Int64, 0)
		}
		if exitReason.Valid {
			pos.ExitReason = domain.ExitReason(exitReason.String)
		}
		if pnl.Valid {
			pos.PnL = pnl.Float64
		}
		trades = append(trades, &pos)
	}
	return trades, errors.Wrap(rows.Err(), "iterate trades")
}
