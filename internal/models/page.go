package models

import (
	"time"
)

// PageStatus lifecycle status of a synthesized page
type PageStatus string

const (
	PageStatusActive   PageStatus = "ACTIVE"
	PageStatusInactive PageStatus = "INACTIVE"
)

// SynthesizedPage one generated document, keyed by (Domain, Slug)
type SynthesizedPage struct {
	Domain        string     `json:"domain"`
	Slug          string     `json:"slug"`
	Seq           int        `json:"seq"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Keywords      []string   `json:"keywords"`
	Body          string     `json:"-"`
	Theme         string     `json:"theme"`
	Palette       string     `json:"palette"`
	Published     bool       `json:"published"`
	Status        PageStatus `json:"status"`
	Views         int64      `json:"views"`
	CrawlerVisits int64      `json:"crawler_visits"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
	Sources       []string   `json:"sources"`
	Generation    string     `json:"generation"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Servable reports whether the dispatcher may return the page.
func (p *SynthesizedPage) Servable() bool {
	return p.Published && p.Status == PageStatusActive
}

// PageSummary the fields needed by index and sitemap listings
type PageSummary struct {
	Slug        string    `json:"slug"`
	Seq         int       `json:"seq"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// PageStats counters of a single page
type PageStats struct {
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	Views         int64      `json:"views"`
	CrawlerVisits int64      `json:"crawler_visits"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
}
