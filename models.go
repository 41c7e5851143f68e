package main

import (
	"encoding/json"
	"time"
)

type WorkKind int

const (
	// KindSubmission is a freshly posted receipt image; bytes are fetched
	// from the chat platform when the item is processed.
	KindSubmission WorkKind = iota
	// KindReanalysis re-runs extraction on bytes carried from an earlier
	// pending review.
	KindReanalysis
	// KindShutdown makes the worker that dequeues it exit. Used for
	// graceful draining only.
	KindShutdown
)

type WorkItem struct {
	Kind          WorkKind
	ChannelID     string
	FileURL       string // private download URL (submission)
	FileName      string
	ImageData     []byte // carried bytes (reanalysis)
	OriginalMsgID string // result message being reanalyzed
	StatusMsgID   string // progress anchor message
	EnqueuedAt    time.Time
}

// ExtractionField is one extracted value with its model confidence.
// Present is false when the call failed or the model returned nothing.
type ExtractionField struct {
	Value      string
	Present    bool
	Confidence float64
}

func fieldOf(value string, confidence float64) ExtractionField {
	if value == "" {
		return ExtractionField{}
	}
	return ExtractionField{Value: value, Present: true, Confidence: confidence}
}

// ExtractionResult is the structured record produced by one orchestration
// run. Immutable once assembled; dispositions copy it via Record.
type ExtractionResult struct {
	Store               ExtractionField
	Date                ExtractionField // YYYY-MM-DD
	TotalAmount         ExtractionField // normalized integer (or decimal) string
	Category            ExtractionField
	RegistrationNumbers []string // deduped, capped, "T" + 13 digits
	NeedsFix            bool
}

// Valid reports whether the result is complete enough to record without a
// re-run, plus the names of whatever is missing.
func (r ExtractionResult) Valid() (bool, []string) {
	var missing []string
	if !r.Store.Present {
		missing = append(missing, "store")
	}
	if !r.Date.Present {
		missing = append(missing, "date")
	}
	if !r.Category.Present {
		missing = append(missing, "category")
	}
	if !r.TotalAmount.Present {
		missing = append(missing, "total_amount")
	}
	return len(missing) == 0, missing
}

func (r ExtractionResult) Record() ReceiptRecord {
	return ReceiptRecord{
		Date:        r.Date.Value,
		Store:       r.Store.Value,
		TotalAmount: r.TotalAmount.Value,
		Category:    r.Category.Value,
		NeedsFix:    r.NeedsFix,
	}
}

// ReceiptRecord is the row shape the sink and the ledger receive.
type ReceiptRecord struct {
	Date        string
	Store       string
	TotalAmount string
	Category    string
	NeedsFix    bool
}

// CategoryOptions is the closed set the category classification call is
// constrained to.
var CategoryOptions = []string{
	"外食",
	"食費",
	"日用品(消耗品)",
	"日用品(非消耗品)",
	"交通費",
	"趣味",
	"光熱費",
	"その他",
}

func resultJSON(r ExtractionResult) string {
	payload := map[string]any{
		"date":         r.Date.Value,
		"store":        r.Store.Value,
		"total_amount": r.TotalAmount.Value,
		"category":     r.Category.Value,
		"meta": map[string]any{
			"store_confidence":     r.Store.Confidence,
			"date_confidence":      r.Date.Confidence,
			"amount_confidence":    r.TotalAmount.Confidence,
			"registration_numbers": r.RegistrationNumbers,
		},
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
