package main

import (
	"database/sql"
	"sort"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS receipts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		date         TEXT NOT NULL DEFAULT '',
		store        TEXT NOT NULL DEFAULT '',
		total_amount TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL DEFAULT '',
		needs_fix    INTEGER NOT NULL DEFAULT 0,
		disposition  TEXT NOT NULL,
		actor        TEXT DEFAULT '',
		channel_id   TEXT DEFAULT '',
		message_ts   TEXT DEFAULT '',
		recorded_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_date ON receipts(date);
	CREATE INDEX IF NOT EXISTS idx_receipts_disposition ON receipts(disposition);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// InsertReceiptRecord records one terminal disposition in the ledger.
// Rejected records are kept too, for auditability.
func InsertReceiptRecord(db *sql.DB, rec ReceiptRecord, disposition, actor, channelID, messageTS string) error {
	needsFix := 0
	if rec.NeedsFix {
		needsFix = 1
	}
	_, err := db.Exec(
		`INSERT INTO receipts (date, store, total_amount, category, needs_fix, disposition, actor, channel_id, message_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Date, rec.Store, rec.TotalAmount, rec.Category, needsFix,
		disposition, actor, channelID, messageTS,
	)
	return err
}

type CategoryTotal struct {
	Category string
	Total    float64
}

// MonthlyCategoryTotals sums kept records (accepted, flagged or timed out)
// for the given YYYY-MM month, grouped by category and sorted by amount
// descending.
func MonthlyCategoryTotals(db *sql.DB, month string) ([]CategoryTotal, float64, error) {
	rows, err := db.Query(
		`SELECT category, total_amount FROM receipts
		 WHERE disposition IN ('accept', 'flag', 'auto_flag')
		   AND date LIKE ? || '-%'`,
		month,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	byCategory := make(map[string]float64)
	var monthTotal float64
	for rows.Next() {
		var category, amount string
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, 0, err
		}
		f, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			continue
		}
		if category == "" {
			category = "その他"
		}
		byCategory[category] += f
		monthTotal += f
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	totals := make([]CategoryTotal, 0, len(byCategory))
	for c, t := range byCategory {
		totals = append(totals, CategoryTotal{Category: c, Total: t})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Category < totals[j].Category
	})
	return totals, monthTotal, nil
}
