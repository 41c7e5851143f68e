package main

import (
	"net/http"
	"time"
)

const externalHTTPTimeout = 60 * time.Second

// Shared client for OCR, LLM, and search endpoints. A single receipt run can
// hold a connection for a while (vision models are slow), hence the generous
// timeout.
var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}
