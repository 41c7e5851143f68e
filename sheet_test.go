package main

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func newTestSheet(t *testing.T) (*Sheet, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipts.xlsx")
	s, err := OpenSheet(path)
	if err != nil {
		t.Fatalf("OpenSheet failed: %v", err)
	}
	return s, path
}

func TestAppendRecordCreatesMonthlySheetWithHeader(t *testing.T) {
	s, path := newTestSheet(t)

	rec := ReceiptRecord{Date: "2026-08-15", Store: "ラーメン太郎", TotalAmount: "1280", Category: "外食"}
	if !s.AppendRecord(rec) {
		t.Fatal("AppendRecord failed")
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen spreadsheet: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("2026-08")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	for i, want := range sheetHeader {
		if rows[0][i] != want {
			t.Errorf("header column %d: got %q, want %q", i, rows[0][i], want)
		}
	}
	if rows[1][0] != "2026-08-15" || rows[1][1] != "ラーメン太郎" || rows[1][2] != "1280" || rows[1][3] != "外食" {
		t.Errorf("unexpected data row: %v", rows[1])
	}
	if len(rows[1]) > 4 && rows[1][4] != "" {
		t.Errorf("flag column should be empty for clean record, got %q", rows[1][4])
	}
}

func TestAppendRecordRoutesByMonth(t *testing.T) {
	s, path := newTestSheet(t)

	s.AppendRecord(ReceiptRecord{Date: "2026-07-31", Store: "a", TotalAmount: "100", Category: "食費"})
	s.AppendRecord(ReceiptRecord{Date: "2026-08-01", Store: "b", TotalAmount: "200", Category: "食費"})
	s.AppendRecord(ReceiptRecord{Date: "2026-08-20", Store: "c", TotalAmount: "300", Category: "食費"})

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen spreadsheet: %v", err)
	}
	defer f.Close()

	july, _ := f.GetRows("2026-07")
	august, _ := f.GetRows("2026-08")
	if len(july) != 2 {
		t.Errorf("expected 1 July record, got %d rows", len(july))
	}
	if len(august) != 3 {
		t.Errorf("expected 2 August records, got %d rows", len(august))
	}
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		t.Error("default sheet should have been removed")
	}
}

func TestAppendRecordFlagColumn(t *testing.T) {
	s, path := newTestSheet(t)

	s.AppendRecord(ReceiptRecord{Date: "2026-08-15", Store: "x", TotalAmount: "500", Category: "食費", NeedsFix: true})

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen spreadsheet: %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows("2026-08")
	if len(rows) != 2 || rows[1][4] != "TRUE" {
		t.Fatalf("expected TRUE in flag column, rows=%v", rows)
	}
}

func TestAppendRecordBadDateFallsBackToCurrentMonth(t *testing.T) {
	s, _ := newTestSheet(t)

	if !s.AppendRecord(ReceiptRecord{Date: "不明", Store: "x", TotalAmount: "500", Category: "食費"}) {
		t.Fatal("AppendRecord should succeed with unparseable date")
	}
	title := monthlySheetTitle("不明")
	if idx, _ := s.file.GetSheetIndex(title); idx == -1 {
		t.Fatalf("expected fallback sheet %q to exist", title)
	}
}

func TestOpenSheetAppendsToExistingFile(t *testing.T) {
	s, path := newTestSheet(t)
	s.AppendRecord(ReceiptRecord{Date: "2026-08-01", Store: "a", TotalAmount: "100", Category: "食費"})

	reopened, err := OpenSheet(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.AppendRecord(ReceiptRecord{Date: "2026-08-02", Store: "b", TotalAmount: "200", Category: "食費"})

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen spreadsheet: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("2026-08")
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows after reopen, got %d", len(rows))
	}
}

func TestWriteSummarySheet(t *testing.T) {
	s, path := newTestSheet(t)
	s.AppendRecord(ReceiptRecord{Date: "2026-08-01", Store: "a", TotalAmount: "100", Category: "食費"})

	totals := []CategoryTotal{{Category: "外食", Total: 3000}, {Category: "食費", Total: 1500}}
	if err := s.WriteSummary("2026-08 summary", totals, 4500); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen spreadsheet: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("2026-08 summary")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 2 categories + total, got %d rows", len(rows))
	}
	if rows[1][0] != "外食" || rows[1][1] != "3000" {
		t.Errorf("unexpected first category row: %v", rows[1])
	}
	if rows[3][0] != "合計" || rows[3][1] != "4500" {
		t.Errorf("unexpected total row: %v", rows[3])
	}
}
