package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/frontier"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/region"
	"github.com/shopspring/decimal"
)

// Supported catalog layouts.
const (
	LayoutHTML = "html"
	LayoutAPI  = "api"
)

// Layout parses one site's listing and detail documents.
type Layout interface {
	Name() string
	// ParseListing returns the detail URLs and next-page URL of a category
	// page. Every returned URL is absolute and normalized.
	ParseListing(body []byte, pageURL string) (*models.ListingPage, error)
	// Extract builds a record from a detail document, or returns an
	// *ExtractionIssue when a required field is missing or malformed.
	Extract(body []byte, sourceURL string, rc region.Context) (*models.ProductRecord, error)
}

// NewLayout returns the layout registered under name. currency is the ISO code
// used when a page names none.
func NewLayout(name string, sel Selectors, currency string) (Layout, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LayoutHTML:
		return NewHTMLLayout(sel, currency), nil
	case LayoutAPI:
		return NewAPILayout(currency), nil
	default:
		return nil, fmt.Errorf("unsupported layout %q", name)
	}
}

// IdentifierFromURL derives a stable identifier from a canonical URL.
func IdentifierFromURL(rawURL string) string {
	hash, err := frontier.URLHash(rawURL)
	if err != nil {
		return ""
	}
	return hash[:16]
}

// fields is the raw, layout-independent material for one record.
type fields struct {
	ID           string
	Name         string
	PriceText    string
	OriginalText string
	Currency     string
	Availability models.Availability
	Description  string
	Attributes   map[string]string
	URL          string
}

// buildRecord applies the required-field policy shared by all layouts.
func buildRecord(f fields, rc region.Context, defaultCurrency string) (*models.ProductRecord, error) {
	var missing []string
	if strings.TrimSpace(f.ID) == "" {
		missing = append(missing, FieldID)
	}
	name := CollapseSpace(f.Name)
	if name == "" {
		missing = append(missing, FieldName)
	}

	var (
		amount   decimal.Decimal
		currency string
		priceErr error
	)
	if strings.TrimSpace(f.PriceText) == "" {
		missing = append(missing, FieldPrice)
	} else {
		amount, currency, priceErr = ParsePrice(f.PriceText)
	}

	if len(missing) > 0 || priceErr != nil {
		return nil, &ExtractionIssue{URL: f.URL, MissingFields: missing, Err: priceErr}
	}

	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	}
	if currency == "" {
		currency = defaultCurrency
	}

	price := models.Price{Amount: amount, Currency: currency}
	if f.OriginalText != "" {
		if original, _, err := ParsePrice(f.OriginalText); err == nil && original.GreaterThan(amount) {
			price.Original = &original
		}
	}

	availability := f.Availability
	if availability == "" {
		availability = models.AvailabilityUnknown
	}
	attributes := make(map[string]string, len(f.Attributes))
	for k, v := range f.Attributes {
		attributes[k] = v
	}

	return &models.ProductRecord{
		ID:           strings.TrimSpace(f.ID),
		Name:         name,
		Price:        price,
		Availability: availability,
		Description:  CollapseSpace(f.Description),
		Attributes:   attributes,
		URL:          f.URL,
		Region:       rc.ID,
	}, nil
}
