package models

import (
	"time"
)

// AccessLogEntry one dispatched request. Append-only.
type AccessLogEntry struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Domain    string    `json:"domain"`
	URL       string    `json:"url"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent"`
	Bot       string    `json:"bot,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	Status    int       `json:"status"`
	Country   string    `json:"country,omitempty"`
}

// IsBot reports whether the request was classified as a crawler
func (e AccessLogEntry) IsBot() bool {
	return e.Bot != ""
}
