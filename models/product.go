// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the normalized stock status of a product.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// Price is a currency-qualified, non-negative amount.
type Price struct {
	Amount   decimal.Decimal  `json:"amount"`
	Currency string           `json:"currency"`
	Original *decimal.Decimal `json:"original,omitempty"`
}

// Equal compares amounts numerically, so 12.5 and 12.50 are equal.
func (p Price) Equal(o Price) bool {
	if !p.Amount.Equal(o.Amount) || p.Currency != o.Currency {
		return false
	}
	if p.Original == nil || o.Original == nil {
		return p.Original == nil && o.Original == nil
	}
	return p.Original.Equal(*o.Original)
}

// ProductRecord is one extracted product. The JSON keys are a contract with
// downstream consumers.
type ProductRecord struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Price        Price             `json:"price"`
	Availability Availability      `json:"availability"`
	Description  string            `json:"description"`
	Attributes   map[string]string `json:"attributes"`
	URL          string            `json:"url"`
	Region       string            `json:"region"`
}

// ListingPage is the parsed form of one category page.
type ListingPage struct {
	URL        string
	DetailURLs []string
	NextURL    string
}

// HasNext reports whether the listing links to a further page.
func (l *ListingPage) HasNext() bool {
	return l != nil && l.NextURL != "" && l.NextURL != l.URL
}

// ScrapeResult holds the overall result of a crawl run.
type ScrapeResult struct {
	Records           []*ProductRecord
	Region            string
	StartTime         time.Time
	EndTime           time.Time
	ListingPages      int
	DetailPages       int
	Duplicates        int
	ExtractionIssues  int
	MalformedListings int
	CycleStops        int
	FailedURLs        []string
	ErrorsByType      map[string]int
	RetryCount        int
	Interrupted       bool
}

// SkippedCount is the number of detail pages that produced no record.
func (r *ScrapeResult) SkippedCount() int {
	if r == nil {
		return 0
	}
	return r.Duplicates + r.ExtractionIssues
}
