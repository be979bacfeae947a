package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yashasviy/cave-treasure-api/treasure"
)

const insertTransfer = `
INSERT INTO treasure_transfers (id, from_key, to_key, amount, from_balance, to_balance, principal, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Journal appends completed transfers to Postgres. It is an audit trail and
// never a source of balances.
type Journal struct {
	conn *sql.DB
}

func NewJournal(conn *sql.DB) *Journal {
	return &Journal{conn: conn}
}

func (j *Journal) Record(ctx context.Context, record treasure.Record) error {
	_, err := j.conn.ExecContext(ctx, insertTransfer,
		record.ID,
		record.From,
		record.To,
		record.Amount,
		record.FromBalance,
		record.ToBalance,
		record.Initiator,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record transfer %s: %w", record.ID, err)
	}
	return nil
}

// Recent returns the newest transfers, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]treasure.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.conn.QueryContext(ctx, `
SELECT id, from_key, to_key, amount, from_balance, to_balance, principal, created_at
FROM treasure_transfers
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var records []treasure.Record
	for rows.Next() {
		var r treasure.Record
		if err := rows.Scan(&r.ID, &r.From, &r.To, &r.Amount, &r.FromBalance, &r.ToBalance, &r.Initiator, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
