package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	currencyToken = regexp.MustCompile(`(?i)(руб\.?|р\.|₽|rub|usd|us\$|eur|gbp|\$|€|Â?£)`)
	numericPrice  = regexp.MustCompile(`^\d[\d.,]*$`)
)

var currencyCodes = map[string]string{
	"руб": "RUB",
	"р":   "RUB",
	"₽":   "RUB",
	"rub": "RUB",
	"usd": "USD",
	"us$": "USD",
	"$":   "USD",
	"eur": "EUR",
	"€":   "EUR",
	"gbp": "GBP",
	"£":   "GBP",
	"â£":  "GBP",
}

// ParsePrice strips currency symbols and formatting from text and returns
// the amount plus the ISO currency code it found, or "" when the text names
// no currency.
func ParsePrice(text string) (decimal.Decimal, string, error) {
	currency := ""
	if match := currencyToken.FindString(text); match != "" {
		currency = currencyCodes[strings.TrimSuffix(strings.ToLower(match), ".")]
	}

	cleaned := currencyToken.ReplaceAllString(text, "")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimRight(cleaned, ".,")

	if cleaned == "" {
		return decimal.Decimal{}, "", fmt.Errorf("%w: %q has no digits", ErrInvalidPrice, text)
	}
	if strings.HasPrefix(cleaned, "-") {
		return decimal.Decimal{}, "", fmt.Errorf("%w: %q is negative", ErrInvalidPrice, text)
	}
	if strings.HasPrefix(cleaned, ".") || strings.HasPrefix(cleaned, ",") {
		cleaned = "0" + cleaned
	}
	if !numericPrice.MatchString(cleaned) {
		return decimal.Decimal{}, "", fmt.Errorf("%w: %q is not numeric", ErrInvalidPrice, text)
	}

	amount, err := decimal.NewFromString(resolveSeparators(cleaned))
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("%w: %q: %v", ErrInvalidPrice, text, err)
	}
	return amount, currency, nil
}

// resolveSeparators rewrites s so that "." is the only decimal separator.
// The right-most of "." and "," is the decimal point; a lone "," followed by
// exactly three digits is a thousands separator.
func resolveSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
