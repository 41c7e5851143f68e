package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// The recognition engine behind the OCR endpoint processes one image at a
// time; concurrent requests corrupt each other's results. Every call must
// hold this lock, which makes OCR the serialization point of the pipeline.
var ocrLock sync.Mutex

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResponse struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines"`
}

// RecognizeText runs the image through the OCR endpoint and returns
// normalized text. Returns "" on any failure; extraction continues on the
// image alone.
func RecognizeText(cfg Config, image []byte) string {
	if cfg.OCRAPIURL == "" {
		return ""
	}

	body, err := json.Marshal(ocrRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		log.Printf("ocr marshal error: %v", err)
		return ""
	}

	ocrLock.Lock()
	resp, err := externalHTTPClient.Post(cfg.OCRAPIURL, "application/json", bytes.NewReader(body))
	ocrLock.Unlock()
	if err != nil {
		log.Printf("ocr request error: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("ocr request failed status=%d", resp.StatusCode)
		return ""
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("ocr response parse error: %v", err)
		return ""
	}

	text := parsed.Text
	if text == "" && len(parsed.Lines) > 0 {
		text = strings.Join(parsed.Lines, "\n")
	}
	if text == "" {
		return ""
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = NormalizeOCRText(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Receipt OCR habitually confuses these glyphs inside amounts and numbers.
var ocrCharMap = map[rune]rune{
	'Z': '2', 'z': '2',
	'Ｏ': '0', 'O': '0', 'o': '0',
	'I': '1', 'l': '1', '|': '1',
	'S': '5', 's': '5',
	'Ｂ': '8', 'B': '8',
	'—': '-', '–': '-', '−': '-', '－': '-', '‐': '-', '‑': '-', '‒': '-',
	'，': ',', '。': '.', '、': ',',
}

var (
	digitGroupSepRe = regexp.MustCompile(`(\d)[ ,](\d)`)
	thousandsDotRe  = regexp.MustCompile(`(\d)\.(\d{3})(\D|$)`)
)

// NormalizeOCRText folds the text to NFKC, fixes common glyph confusions,
// and strips separators inside digit groups so amounts parse cleanly.
func NormalizeOCRText(text string) string {
	if text == "" {
		return text
	}

	s := norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if mapped, ok := ocrCharMap[r]; ok {
			b.WriteRune(mapped)
		} else {
			b.WriteRune(r)
		}
	}
	s = b.String()

	s = replaceUntilStable(s, digitGroupSepRe, "$1$2")
	s = replaceUntilStable(s, thousandsDotRe, "$1$2$3")
	s = strings.ReplaceAll(s, "¥ ", "¥")

	return strings.TrimSpace(s)
}

// Overlapping matches ("1 2 3") need repeated passes; the patterns strictly
// shrink the string, so this terminates.
func replaceUntilStable(s string, re *regexp.Regexp, repl string) string {
	for {
		next := re.ReplaceAllString(s, repl)
		if next == s {
			return next
		}
		s = next
	}
}
