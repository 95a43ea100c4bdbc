package parser

import (
	"errors"
	"fmt"
	"strings"
)

// Required record fields reported in ExtractionIssue.MissingFields.
const (
	FieldID    = "id"
	FieldName  = "name"
	FieldPrice = "price"
)

// ErrInvalidPrice indicates a price string that is not a non-negative number.
var ErrInvalidPrice = errors.New("invalid price")

// MalformedListingError indicates a document that does not have the expected
// catalog layout at all.
type MalformedListingError struct {
	URL    string
	Reason string
	Err    error
}

func (e *MalformedListingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed listing %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed listing %s: %s", e.URL, e.Reason)
}

func (e *MalformedListingError) Unwrap() error {
	return e.Err
}

// ExtractionIssue reports a detail page that could not produce a record.
type ExtractionIssue struct {
	URL           string
	MissingFields []string
	Err           error
}

func (e *ExtractionIssue) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "extract %s", e.URL)
	if len(e.MissingFields) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.MissingFields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExtractionIssue) Unwrap() error {
	return e.Err
}
