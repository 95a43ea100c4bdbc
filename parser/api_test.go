package parser

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

const apiListingURL = "https://shop.example/web-api/v1/product?page=1&per_page=20&root_category_slug=whisky"

func TestCatalogAPIURL(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{
			input:  "https://shop.example/catalog/whisky",
			want:   apiListingURL,
			wantOK: true,
		},
		{
			input:  "https://shop.example/catalog/whisky/",
			want:   apiListingURL,
			wantOK: true,
		},
		{input: "https://shop.example/product/glenfarclas-12", want: "https://shop.example/product/glenfarclas-12"},
		{input: "https://shop.example/catalog/whisky/single-malt", want: "https://shop.example/catalog/whisky/single-malt"},
		{input: "/catalog/whisky", want: "/catalog/whisky"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := CatalogAPIURL(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("CatalogAPIURL(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAPIParseListing(t *testing.T) {
	layout := NewAPILayout("RUB")
	body := `{
		"results": [
			{"slug": "glenfarclas-12", "product_url": "/product/glenfarclas-12"},
			{"slug": "talisker-10"},
			{"slug": "glenfarclas-12"},
			{"slug": ""}
		],
		"meta": {"has_more_pages": true, "current_page": 1}
	}`

	page, err := layout.ParseListing([]byte(body), apiListingURL)
	if err != nil {
		t.Fatalf("ParseListing() unexpected error: %v", err)
	}
	want := []string{
		"https://shop.example/web-api/v1/product/glenfarclas-12",
		"https://shop.example/web-api/v1/product/talisker-10",
	}
	if !reflect.DeepEqual(page.DetailURLs, want) {
		t.Fatalf("DetailURLs = %v, want %v", page.DetailURLs, want)
	}
	if page.NextURL != "https://shop.example/web-api/v1/product?page=2&per_page=20&root_category_slug=whisky" {
		t.Fatalf("NextURL = %q", page.NextURL)
	}

	last, err := layout.ParseListing([]byte(`{"results": [], "meta": {"has_more_pages": false}}`), apiListingURL)
	if err != nil {
		t.Fatalf("ParseListing() unexpected error: %v", err)
	}
	if last.HasNext() || len(last.DetailURLs) != 0 {
		t.Fatalf("expected empty terminal page, got %+v", last)
	}
}

func TestAPIParseListingMalformed(t *testing.T) {
	layout := NewAPILayout("RUB")
	for name, body := range map[string]string{
		"html error page": `<html><body>502 Bad Gateway</body></html>`,
		"missing results": `{"meta": {"has_more_pages": true}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := layout.ParseListing([]byte(body), apiListingURL)
			var malformed *MalformedListingError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedListingError, got %v", err)
			}
		})
	}
}

const apiProductBody = `{
	"results": {
		"uuid": "7f1c2b9e-0001",
		"name": "Glenfarclas 12",
		"product_url": "https://shop.example/product/glenfarclas-12",
		"new": true,
		"gift_package": true,
		"price": 3490,
		"prev_price": "4100",
		"quantity_total": 7,
		"image_url": "https://cdn.shop.example/gf12.jpg",
		"vendor_code": 10452,
		"filter_labels": [
			{"filter": "obem", "title": "0.7 L"},
			{"filter": "krepost", "title": "43%"}
		],
		"description_blocks": [
			{"code": "strana", "values": [{"name": "Scotland"}]},
			{"code": "brend", "values": [{"name": "Glenfarclas"}]}
		],
		"category": {"name": "Whisky", "parent": {"name": "Spirits"}},
		"text_blocks": [{"content": "<p>Speyside <b>single malt</b>.</p>"}]
	}
}`

func TestAPIExtract(t *testing.T) {
	layout := NewAPILayout("RUB")
	record, err := layout.Extract([]byte(apiProductBody), "https://shop.example/web-api/v1/product/glenfarclas-12", testRegion())
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}

	if record.ID != "7f1c2b9e-0001" {
		t.Errorf("ID = %q", record.ID)
	}
	if record.Name != "Glenfarclas 12, 0.7 L, 43%" {
		t.Errorf("Name = %q", record.Name)
	}
	if !record.Price.Amount.Equal(decimal.NewFromInt(3490)) || record.Price.Currency != "RUB" {
		t.Errorf("Price = %s %s", record.Price.Amount, record.Price.Currency)
	}
	if record.Price.Original == nil || !record.Price.Original.Equal(decimal.NewFromInt(4100)) {
		t.Errorf("Price.Original = %v", record.Price.Original)
	}
	if record.Availability != models.AvailabilityInStock {
		t.Errorf("Availability = %q", record.Availability)
	}
	if record.Description != "Speyside single malt." {
		t.Errorf("Description = %q", record.Description)
	}
	if record.URL != "https://shop.example/product/glenfarclas-12" {
		t.Errorf("URL = %q", record.URL)
	}

	wantAttrs := map[string]string{
		"obem":        "0.7 L",
		"krepost":     "43%",
		"article":     "10452",
		"brand":       "Glenfarclas",
		"section":     "Spirits / Whisky",
		"tags":        "new,gift_package",
		"image":       "https://cdn.shop.example/gf12.jpg",
		"stock_count": "7",
	}
	if !reflect.DeepEqual(record.Attributes, wantAttrs) {
		t.Errorf("Attributes = %v, want %v", record.Attributes, wantAttrs)
	}
}

func TestAPIExtractOutOfStockWithoutUUID(t *testing.T) {
	layout := NewAPILayout("RUB")
	body := `{"results": {"name": "Talisker 10", "price": "2 990", "quantity_total": 0}}`
	sourceURL := "https://shop.example/web-api/v1/product/talisker-10"

	record, err := layout.Extract([]byte(body), sourceURL, testRegion())
	if err != nil {
		t.Fatalf("Extract() unexpected error: %v", err)
	}
	if record.ID != IdentifierFromURL(sourceURL) {
		t.Errorf("ID = %q, want URL-derived identifier", record.ID)
	}
	if record.Availability != models.AvailabilityOutOfStock {
		t.Errorf("Availability = %q", record.Availability)
	}
	if record.Price.Original != nil {
		t.Errorf("Price.Original = %v, want nil", record.Price.Original)
	}
}

func TestAPIExtractIssues(t *testing.T) {
	layout := NewAPILayout("RUB")
	tests := []struct {
		name        string
		body        string
		wantMissing []string
	}{
		{name: "null price", body: `{"results": {"uuid": "a", "name": "Talisker 10", "price": null}}`, wantMissing: []string{FieldPrice}},
		{name: "no results", body: `{"error": "not found"}`},
		{name: "not json", body: `<html></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := layout.Extract([]byte(tt.body), "https://shop.example/web-api/v1/product/x", testRegion())
			var issue *ExtractionIssue
			if !errors.As(err, &issue) {
				t.Fatalf("expected ExtractionIssue, got %v", err)
			}
			if !reflect.DeepEqual(issue.MissingFields, tt.wantMissing) {
				t.Errorf("MissingFields = %v, want %v", issue.MissingFields, tt.wantMissing)
			}
		})
	}
}
