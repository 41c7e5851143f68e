package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchSnippets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		if got := r.URL.Query().Get("q"); got == "" {
			t.Error("expected non-empty query")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"AbstractText": "ラーメン太郎は東京のラーメン店",
			"RelatedTopics": []map[string]any{
				{"Text": "ラーメン太郎 本店"},
				{"Topics": []map[string]any{
					{"Text": "ラーメン太郎 支店"},
					{"Text": "さらに深い結果"},
				}},
			},
		})
	}))
	t.Cleanup(server.Close)

	cfg := Config{SearchEnabled: true, SearchAPIURL: server.URL}
	got := searchSnippets(cfg, "T1234567890123 登録番号", 3)

	if len(got) != 3 {
		t.Fatalf("expected 3 snippets, got %v", got)
	}
	if got[0] != "ラーメン太郎は東京のラーメン店" {
		t.Errorf("abstract should come first, got %v", got)
	}
	if got[2] != "ラーメン太郎 支店" {
		t.Errorf("nested topics should be collected in order, got %v", got)
	}
}

func TestSearchSnippetsDisabledOrFailing(t *testing.T) {
	if got := searchSnippets(Config{SearchEnabled: false, SearchAPIURL: "http://x"}, "q", 3); got != nil {
		t.Fatalf("disabled search should return nil, got %v", got)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	cfg := Config{SearchEnabled: true, SearchAPIURL: server.URL}
	if got := searchSnippets(cfg, "q", 3); got != nil {
		t.Fatalf("failing search should return nil, got %v", got)
	}
}
