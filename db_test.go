package main

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "receiptbot-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertReceiptRecord(t *testing.T) {
	db := newTestDB(t)

	rec := ReceiptRecord{Date: "2026-08-15", Store: "ラーメン太郎", TotalAmount: "1280", Category: "外食", NeedsFix: true}
	if err := InsertReceiptRecord(db, rec, "flag", "U123", "C123", "1.001"); err != nil {
		t.Fatalf("InsertReceiptRecord failed: %v", err)
	}

	var store, disposition string
	var needsFix int
	err := db.QueryRow(`SELECT store, disposition, needs_fix FROM receipts WHERE message_ts = ?`, "1.001").
		Scan(&store, &disposition, &needsFix)
	if err != nil {
		t.Fatalf("query inserted row: %v", err)
	}
	if store != "ラーメン太郎" || disposition != "flag" || needsFix != 1 {
		t.Fatalf("unexpected row: store=%q disposition=%q needs_fix=%d", store, disposition, needsFix)
	}
}

func TestMonthlyCategoryTotals(t *testing.T) {
	db := newTestDB(t)

	insert := func(date, category, amount, disposition string) {
		t.Helper()
		rec := ReceiptRecord{Date: date, Category: category, TotalAmount: amount}
		if err := InsertReceiptRecord(db, rec, disposition, "U1", "C1", date+category); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	insert("2026-08-01", "外食", "1000", "accept")
	insert("2026-08-10", "外食", "2000", "flag")
	insert("2026-08-20", "食費", "500", "auto_flag")
	insert("2026-08-25", "趣味", "9999", "reject") // rejected records are excluded
	insert("2026-07-01", "外食", "400", "accept")  // other month

	totals, monthTotal, err := MonthlyCategoryTotals(db, "2026-08")
	if err != nil {
		t.Fatalf("MonthlyCategoryTotals failed: %v", err)
	}
	if monthTotal != 3500 {
		t.Fatalf("unexpected month total: %v", monthTotal)
	}
	if len(totals) != 2 {
		t.Fatalf("expected 2 categories, got %v", totals)
	}
	if totals[0].Category != "外食" || totals[0].Total != 3000 {
		t.Errorf("expected 外食 first with 3000, got %+v", totals[0])
	}
	if totals[1].Category != "食費" || totals[1].Total != 500 {
		t.Errorf("expected 食費 second with 500, got %+v", totals[1])
	}
}

func TestMonthlyCategoryTotalsEmptyMonth(t *testing.T) {
	db := newTestDB(t)
	totals, monthTotal, err := MonthlyCategoryTotals(db, "2026-01")
	if err != nil {
		t.Fatalf("MonthlyCategoryTotals failed: %v", err)
	}
	if len(totals) != 0 || monthTotal != 0 {
		t.Fatalf("expected empty result, got %v total=%v", totals, monthTotal)
	}
}
