package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

var sheetHeader = []string{"date", "store", "total_amount", "category", "flag_needs_fix"}

// Sheet is the spreadsheet sink. Records are routed to one worksheet per
// month, named YYYY-MM after the receipt date.
type Sheet struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

func OpenSheet(path string) (*Sheet, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open spreadsheet: %w", err)
		}
		return &Sheet{path: path, file: f}, nil
	}
	return &Sheet{path: path, file: excelize.NewFile()}, nil
}

// AppendRecord appends one row to the record's monthly worksheet and saves
// the file. It returns false on any failure; the caller decides how to
// surface that.
func (s *Sheet) AppendRecord(rec ReceiptRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := monthlySheetTitle(rec.Date)
	if err := s.ensureSheet(title); err != nil {
		log.Printf("sheet ensure failed title=%s err=%v", title, err)
		return false
	}

	rows, err := s.file.GetRows(title)
	if err != nil {
		log.Printf("sheet read failed title=%s err=%v", title, err)
		return false
	}
	row := len(rows) + 1

	flag := ""
	if rec.NeedsFix {
		flag = "TRUE"
	}
	values := []interface{}{rec.Date, rec.Store, rec.TotalAmount, rec.Category, flag}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := s.file.SetCellValue(title, cell, v); err != nil {
			log.Printf("sheet write failed cell=%s err=%v", cell, err)
			return false
		}
	}

	if err := s.file.SaveAs(s.path); err != nil {
		log.Printf("sheet save failed path=%s err=%v", s.path, err)
		return false
	}
	log.Printf("sheet appended title=%s row=%d store=%q", title, row, rec.Store)
	return true
}

// WriteSummary writes a per-category breakdown to its own worksheet,
// replacing any previous summary of the same title.
func (s *Sheet) WriteSummary(title string, totals []CategoryTotal, monthTotal float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index, _ := s.file.GetSheetIndex(title); index != -1 {
		if err := s.file.DeleteSheet(title); err != nil {
			return fmt.Errorf("reset summary sheet: %w", err)
		}
	}
	if _, err := s.file.NewSheet(title); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	_ = s.file.SetCellValue(title, "A1", "category")
	_ = s.file.SetCellValue(title, "B1", "total")
	row := 2
	for _, t := range totals {
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		_ = s.file.SetCellValue(title, cellA, t.Category)
		_ = s.file.SetCellValue(title, cellB, t.Total)
		row++
	}
	cellA, _ := excelize.CoordinatesToCellName(1, row)
	cellB, _ := excelize.CoordinatesToCellName(2, row)
	_ = s.file.SetCellValue(title, cellA, "合計")
	_ = s.file.SetCellValue(title, cellB, monthTotal)

	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("save spreadsheet: %w", err)
	}
	return nil
}

func (s *Sheet) ensureSheet(title string) error {
	if index, _ := s.file.GetSheetIndex(title); index != -1 {
		return nil
	}
	if _, err := s.file.NewSheet(title); err != nil {
		return err
	}
	for i, h := range sheetHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := s.file.SetCellValue(title, cell, h); err != nil {
			return err
		}
	}
	_ = s.file.SetColWidth(title, "A", "A", 12)
	_ = s.file.SetColWidth(title, "B", "B", 28)
	_ = s.file.SetColWidth(title, "C", "D", 14)
	_ = s.file.SetColWidth(title, "E", "E", 14)

	// Drop excelize's default sheet once a real one exists.
	if index, _ := s.file.GetSheetIndex("Sheet1"); index != -1 && title != "Sheet1" {
		_ = s.file.DeleteSheet("Sheet1")
	}
	return nil
}

// monthlySheetTitle derives the worksheet name from the receipt date,
// falling back to the current month when the date is unparseable.
func monthlySheetTitle(date string) string {
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Format("2006-01")
	}
	return time.Now().Format("2006-01")
}
