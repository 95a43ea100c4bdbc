// Package parser turns fetched catalog documents into listing pages and
// product records.
package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ValidateRecord ensures a record satisfies the output invariants.
func ValidateRecord(r *models.ProductRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record missing id for %s", r.URL)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record %s missing name", r.ID)
	}
	if r.Price.Amount.IsNegative() {
		return fmt.Errorf("record %s has negative price %s", r.ID, r.Price.Amount)
	}
	return nil
}

var (
	outOfStockPhrases = []string{"out of stock", "outofstock", "sold out", "soldout", "not available", "unavailable", "нет в наличии", "отсутствует"}
	inStockPhrases    = []string{"in stock", "instock", "available", "в наличии"}
)

// NormalizeAvailability maps free-form stock text or schema.org URLs to an
// Availability. Out-of-stock phrases are checked first because several of
// them contain an in-stock phrase.
func NormalizeAvailability(text string) models.Availability {
	text = strings.ToLower(CollapseSpace(text))
	if text == "" {
		return models.AvailabilityUnknown
	}
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(text, phrase) {
			return models.AvailabilityOutOfStock
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(text, phrase) {
			return models.AvailabilityInStock
		}
	}
	return models.AvailabilityUnknown
}

// CollapseSpace trims s and folds internal whitespace runs into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanAttributeName(name string) string {
	name = CollapseSpace(name)
	return strings.TrimSpace(strings.TrimSuffix(name, ":"))
}
