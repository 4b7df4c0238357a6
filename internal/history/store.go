// Package history 实现成交历史的 SQLite 落库。
// 每笔平仓交易一条记录，重启后熔断器的当日盈亏从这里恢复。
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/late-build/fathom/internal/domain"
)

var histLog = logrus.WithField("component", "history")

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  position_id   TEXT NOT NULL,
  strategy      TEXT NOT NULL,
  mint          TEXT NOT NULL,
  symbol        TEXT NOT NULL DEFAULT '',
  entry_price   REAL NOT NULL,
  exit_price    REAL NOT NULL,
  qty           REAL NOT NULL,
  size_usd      REAL NOT NULL,
  pnl_usd       TEXT NOT NULL,
  fee_usd       TEXT NOT NULL,
  exit_reason   TEXT NOT NULL,
  entry_time    INTEGER NOT NULL,
  exit_time     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_time ON closed_trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_closed_trades_strategy ON closed_trades(strategy);
`

// Store 成交历史存储
type Store struct {
	db *sql.DB
}

// Open 打开（必要时建表）历史库
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc 驱动下多连接写库容易锁冲突
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭历史库
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record 写入一笔平仓交易
func (s *Store) Record(trade domain.ClosedTrade) error {
	_, err := s.db.Exec(`
INSERT INTO closed_trades
  (position_id, strategy, mint, symbol, entry_price, exit_price, qty, size_usd,
   pnl_usd, fee_usd, exit_reason, entry_time, exit_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.PositionID, trade.Strategy, trade.Mint, trade.Symbol,
		trade.EntryPrice, trade.ExitPrice, trade.Qty, trade.SizeUSD,
		trade.PnLUSD.String(), trade.FeeUSD.String(), string(trade.ExitReason),
		trade.EntryTime.UnixNano(), trade.ExitTime.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", trade.PositionID, err)
	}
	return nil
}

// Recent 按平仓时间倒序返回最近 n 笔交易
func (s *Store) Recent(n int) ([]domain.ClosedTrade, error) {
	rows, err := s.db.Query(`
SELECT position_id, strategy, mint, symbol, entry_price, exit_price, qty, size_usd,
       pnl_usd, fee_usd, exit_reason, entry_time, exit_time
FROM closed_trades ORDER BY exit_time DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// Since 返回某时刻之后平仓的全部交易（时间升序）
func (s *Store) Since(t time.Time) ([]domain.ClosedTrade, error) {
	rows, err := s.db.Query(`
SELECT position_id, strategy, mint, symbol, entry_price, exit_price, qty, size_usd,
       pnl_usd, fee_usd, exit_reason, entry_time, exit_time
FROM closed_trades WHERE exit_time >= ? ORDER BY exit_time ASC`, t.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.ClosedTrade, error) {
	var out []domain.ClosedTrade
	for rows.Next() {
		var tr domain.ClosedTrade
		var pnl, fee, reason string
		var entryNano, exitNano int64
		if err := rows.Scan(
			&tr.PositionID, &tr.Strategy, &tr.Mint, &tr.Symbol,
			&tr.EntryPrice, &tr.ExitPrice, &tr.Qty, &tr.SizeUSD,
			&pnl, &fee, &reason, &entryNano, &exitNano,
		); err != nil {
			return nil, err
		}
		var err error
		if tr.PnLUSD, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("parse pnl %q: %w", pnl, err)
		}
		if tr.FeeUSD, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("parse fee %q: %w", fee, err)
		}
		tr.ExitReason = domain.ExitReason(reason)
		tr.EntryTime = time.Unix(0, entryNano)
		tr.ExitTime = time.Unix(0, exitNano)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// DailyPnLUSD 某天（UTC）已实现盈亏合计，熔断器重启恢复用
func (s *Store) DailyPnLUSD(day time.Time) (decimal.Decimal, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows, err := s.db.Query(`
SELECT pnl_usd FROM closed_trades WHERE exit_time >= ? AND exit_time < ?`,
		start.UnixNano(), end.UnixNano())
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			histLog.Warnf("bad pnl value %q, skipped", raw)
			continue
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

// Stats 按策略聚合的简单统计
type Stats struct {
	Strategy string          `json:"strategy"`
	Trades   int             `json:"trades"`
	Wins     int             `json:"wins"`
	PnLUSD   decimal.Decimal `json:"pnlUsd"`
}

// StatsByStrategy 各策略的成交统计
func (s *Store) StatsByStrategy() ([]Stats, error) {
	rows, err := s.db.Query(`
SELECT strategy, pnl_usd FROM closed_trades ORDER BY strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agg := make(map[string]*Stats)
	var order []string
	for rows.Next() {
		var strategyID, raw string
		if err := rows.Scan(&strategyID, &raw); err != nil {
			return nil, err
		}
		st, ok := agg[strategyID]
		if !ok {
			st = &Stats{Strategy: strategyID}
			agg[strategyID] = st
			order = append(order, strategyID)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		st.Trades++
		if v.IsPositive() {
			st.Wins++
		}
		st.PnLUSD = st.PnLUSD.Add(v)
	}
	out := make([]Stats, 0, len(order))
	for _, id := range order {
		out = append(out, *agg[id])
	}
	return out, rows.Err()
}
