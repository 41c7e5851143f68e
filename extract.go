package main

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxRegistrationNumbers = 3
const searchSnippetsPerNumber = 3

// Field-extraction calls from all workers share one bounded pool, larger
// than the worker pool so a single item's fan-out never starves.
var extractSem = make(chan struct{}, 6)

// ExtractReceipt turns normalized image bytes into an ExtractionResult.
// It never fails past its boundary: every external error degrades the
// affected field to absent and is logged at the call site.
func ExtractReceipt(cfg Config, image []byte) ExtractionResult {
	ocrText := RecognizeText(cfg, image)

	registrationNumbers := extractRegistrationNumbers(ocrText)
	searchNotes := buildSearchNotes(cfg, registrationNumbers)
	todayStr := time.Now().Format("2006-01-02")

	// Store, date, and amount are independent; fan out and join before the
	// category call, which depends on two of them.
	var store, date, amount llmField
	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			extractSem <- struct{}{}
			defer func() { <-extractSem }()
			f()
		}()
	}
	run(func() { store = llmExtractStore(cfg, image, ocrText, todayStr, searchNotes) })
	run(func() { date = llmExtractDate(cfg, image, ocrText, todayStr) })
	run(func() { amount = llmExtractTotalAmount(cfg, image, ocrText) })
	wg.Wait()

	normalizedAmount, amountOK := normalizeAmount(amount.value)

	category := llmClassifyCategory(cfg, ocrText, store.value, normalizedAmount)

	result := ExtractionResult{
		Store:               fieldOf(store.value, store.confidence),
		Date:                fieldOf(date.value, date.confidence),
		Category:            fieldOf(category.value, category.confidence),
		RegistrationNumbers: registrationNumbers,
	}
	if amountOK {
		result.TotalAmount = fieldOf(normalizedAmount, amount.confidence)
	}
	return result
}

var amountLeadingNumberRe = regexp.MustCompile(`^-?\d+(\.\d+)?`)

// normalizeAmount strips currency symbols and thousands separators and
// renders the leading numeric token as an integer string, or a trimmed
// decimal string when a fractional part exists. Unparseable input yields
// ok=false.
func normalizeAmount(value string) (string, bool) {
	s := strings.NewReplacer("¥", "", "￥", "", ",", "").Replace(value)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	num := amountLeadingNumberRe.FindString(s)
	if num == "" {
		return "", false
	}
	parsed, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", false
	}
	if strings.Contains(num, ".") {
		// Round to two decimals, then trim trailing zeros: 12.50 -> 12.5
		rounded := float64(int64(parsed*100+sign(parsed)*0.5)) / 100
		return strconv.FormatFloat(rounded, 'f', -1, 64), true
	}
	return strconv.FormatFloat(parsed, 'f', 0, 64), true
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

var (
	registrationLabeledRe = regexp.MustCompile(`(?:登録番号|事業者登録番号|適格請求書|インボイス|登録番)\s*[:：]?\s*([TtＴ]?\d{13})`)
	registrationPlainRe   = regexp.MustCompile(`[TtＴ]?\d{13}`)
	nonDigitRe            = regexp.MustCompile(`\D`)
)

// extractRegistrationNumbers scans OCR text for invoice registration
// numbers (optional T prefix + 13 digits, with or without a label),
// deduplicates by digits, and caps the result. First-seen order is kept,
// labeled matches first.
func extractRegistrationNumbers(text string) []string {
	if text == "" {
		return nil
	}
	flat := strings.NewReplacer(" ", "", "　", "", "\n", "").Replace(text)

	seen := make(map[string]bool)
	var out []string
	add := func(candidate string) {
		digits := nonDigitRe.ReplaceAllString(candidate, "")
		if len(digits) != 13 || seen[digits] {
			return
		}
		seen[digits] = true
		out = append(out, "T"+digits)
	}

	for _, m := range registrationLabeledRe.FindAllStringSubmatch(flat, -1) {
		add(m[1])
	}
	for _, m := range registrationPlainRe.FindAllString(flat, -1) {
		add(m)
	}

	if len(out) > maxRegistrationNumbers {
		out = out[:maxRegistrationNumbers]
	}
	return out
}

// buildSearchNotes enriches detected registration numbers with search
// snippets. Best-effort; the notes feed the store-extraction prompt only.
func buildSearchNotes(cfg Config, registrationNumbers []string) string {
	if len(registrationNumbers) == 0 {
		return ""
	}
	var notes []string
	for _, rid := range registrationNumbers {
		notes = append(notes, rid+": インボイス登録番号検出")
		snippets := searchSnippets(cfg, rid+" 登録番号 事業者", searchSnippetsPerNumber)
		if len(snippets) > 0 {
			notes = append(notes, rid+" 検索結果: "+strings.Join(snippets, " | "))
		}
	}
	return strings.Join(notes, "\n")
}

// runExtraction applies the validation rule: an invalid first pass triggers
// exactly one fresh re-run; a still-invalid second pass is kept with its
// deficiency surfaced to the caller.
func runExtraction(cfg Config, image []byte) (ExtractionResult, []string) {
	result := ExtractReceipt(cfg, image)
	valid, missing := result.Valid()
	if valid {
		return result, nil
	}

	log.Printf("extract invalid first pass missing=%v, retrying", missing)
	second := ExtractReceipt(cfg, image)
	valid2, missing2 := second.Valid()
	if valid2 {
		return second, nil
	}
	// Retry exhausted: keep the first result, surface what the retry still
	// could not fill in. Manual reanalysis remains available.
	return result, missing2
}
