package main

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
)

type searchTopic struct {
	Text   string        `json:"Text"`
	Topics []searchTopic `json:"Topics"`
}

type searchResponse struct {
	AbstractText  string        `json:"AbstractText"`
	RelatedTopics []searchTopic `json:"RelatedTopics"`
}

// searchSnippets queries the search endpoint and returns up to max text
// snippets. Best-effort: empty on failure or when search is disabled.
func searchSnippets(cfg Config, query string, max int) []string {
	if !cfg.SearchEnabled || cfg.SearchAPIURL == "" || max < 1 {
		return nil
	}

	endpoint := cfg.SearchAPIURL
	if !strings.Contains(endpoint, "?") {
		endpoint += "?"
	} else {
		endpoint += "&"
	}
	endpoint += "q=" + url.QueryEscape(query) + "&format=json&no_html=1&no_redirect=1"

	resp, err := externalHTTPClient.Get(endpoint)
	if err != nil {
		log.Printf("search request error query=%q: %v", query, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("search request failed query=%q status=%d", query, resp.StatusCode)
		return nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("search response parse error query=%q: %v", query, err)
		return nil
	}

	var snippets []string
	if t := strings.TrimSpace(parsed.AbstractText); t != "" {
		snippets = append(snippets, t)
	}
	snippets = collectTopicTexts(snippets, parsed.RelatedTopics, max)
	if len(snippets) > max {
		snippets = snippets[:max]
	}
	return snippets
}

func collectTopicTexts(acc []string, topics []searchTopic, max int) []string {
	for _, topic := range topics {
		if len(acc) >= max {
			return acc
		}
		if t := strings.TrimSpace(topic.Text); t != "" {
			acc = append(acc, t)
		}
		if len(topic.Topics) > 0 {
			acc = collectTopicTexts(acc, topic.Topics, max)
		}
	}
	return acc
}
