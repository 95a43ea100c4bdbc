package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/frontier"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/region"
)

const (
	apiBasePath = "/web-api/v1/product"
	apiPerPage  = 20
)

// CatalogAPIURL maps a storefront category URL such as
// https://shop.example/catalog/whisky to the first page of its listing API.
// URLs that are not storefront category URLs are returned unchanged with
// ok=false.
func CatalogAPIURL(storefront string) (string, bool) {
	u, err := url.Parse(storefront)
	if err != nil || u.Host == "" {
		return storefront, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 || segments[0] != "catalog" || segments[1] == "" {
		return storefront, false
	}

	api := url.URL{Scheme: u.Scheme, Host: u.Host, Path: apiBasePath}
	q := url.Values{}
	q.Set("page", "1")
	q.Set("per_page", strconv.Itoa(apiPerPage))
	q.Set("root_category_slug", segments[1])
	api.RawQuery = q.Encode()
	return api.String(), true
}

// APILayout parses the catalog JSON API: a paged product list whose items
// carry a slug, and a product card endpoint per slug.
type APILayout struct {
	currency string
}

// NewAPILayout builds a JSON API layout.
func NewAPILayout(currency string) *APILayout {
	return &APILayout{currency: currency}
}

func (l *APILayout) Name() string { return LayoutAPI }

type apiListing struct {
	Results *[]struct {
		Slug       string `json:"slug"`
		ProductURL string `json:"product_url"`
	} `json:"results"`
	Meta struct {
		HasMorePages bool `json:"has_more_pages"`
	} `json:"meta"`
}

func (l *APILayout) ParseListing(body []byte, pageURL string) (*models.ListingPage, error) {
	current, err := frontier.Normalize(pageURL)
	if err != nil {
		return nil, &MalformedListingError{URL: pageURL, Reason: "invalid page url", Err: err}
	}

	var listing apiListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &MalformedListingError{URL: current, Reason: "undecodable json", Err: err}
	}
	if listing.Results == nil {
		return nil, &MalformedListingError{URL: current, Reason: "missing results"}
	}

	u, _ := url.Parse(current)
	page := &models.ListingPage{URL: current}
	seen := make(map[string]struct{})
	for _, item := range *listing.Results {
		slug := strings.Trim(strings.TrimSpace(item.Slug), "/")
		if slug == "" {
			continue
		}
		detail := url.URL{Scheme: u.Scheme, Host: u.Host, Path: strings.TrimRight(u.Path, "/") + "/" + slug}
		abs, err := frontier.Normalize(detail.String())
		if err != nil {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		page.DetailURLs = append(page.DetailURLs, abs)
	}

	if listing.Meta.HasMorePages {
		q := u.Query()
		n, err := strconv.Atoi(q.Get("page"))
		if err != nil || n < 1 {
			n = 1
		}
		q.Set("page", strconv.Itoa(n+1))
		next := *u
		next.RawQuery = q.Encode()
		if abs, err := frontier.Normalize(next.String()); err == nil && abs != current {
			page.NextURL = abs
		}
	}

	return page, nil
}

type apiProduct struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	ProductURL   string `json:"product_url"`
	New          bool   `json:"new"`
	GiftPackage  bool   `json:"gift_package"`
	FilterLabels []struct {
		Filter string `json:"filter"`
		Title  string `json:"title"`
	} `json:"filter_labels"`
	DescriptionBlocks []struct {
		Code   string `json:"code"`
		Values []struct {
			Name string `json:"name"`
		} `json:"values"`
	} `json:"description_blocks"`
	Category *struct {
		Name   string `json:"name"`
		Parent *struct {
			Name string `json:"name"`
		} `json:"parent"`
	} `json:"category"`
	Price         json.RawMessage `json:"price"`
	PrevPrice     json.RawMessage `json:"prev_price"`
	QuantityTotal *float64        `json:"quantity_total"`
	ImageURL      string          `json:"image_url"`
	TextBlocks    []struct {
		Content string `json:"content"`
	} `json:"text_blocks"`
	VendorCode json.RawMessage `json:"vendor_code"`
}

var errNoResults = errors.New("product payload has no results")

func (l *APILayout) Extract(body []byte, sourceURL string, rc region.Context) (*models.ProductRecord, error) {
	var payload struct {
		Results *apiProduct `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ExtractionIssue{URL: sourceURL, Err: err}
	}
	if payload.Results == nil {
		return nil, &ExtractionIssue{URL: sourceURL, Err: errNoResults}
	}
	p := payload.Results

	recordURL := sourceURL
	if p.ProductURL != "" {
		if abs, err := frontier.Resolve(sourceURL, p.ProductURL); err == nil {
			recordURL = abs
		}
	}
	id := strings.TrimSpace(p.UUID)
	if id == "" {
		id = IdentifierFromURL(recordURL)
	}

	name := strings.TrimSpace(p.Name)
	attributes := make(map[string]string)
	for _, label := range p.FilterLabels {
		if label.Title == "" {
			continue
		}
		if name != "" {
			name += ", " + label.Title
		}
		if label.Filter != "" {
			attributes[label.Filter] = label.Title
		}
	}
	if article := rawString(p.VendorCode); article != "" {
		attributes["article"] = article
	}
	for _, block := range p.DescriptionBlocks {
		if block.Code == "brend" && len(block.Values) > 0 && block.Values[0].Name != "" {
			attributes["brand"] = block.Values[0].Name
			break
		}
	}
	if p.Category != nil {
		var section []string
		if p.Category.Parent != nil && p.Category.Parent.Name != "" {
			section = append(section, p.Category.Parent.Name)
		}
		if p.Category.Name != "" {
			section = append(section, p.Category.Name)
		}
		if len(section) > 0 {
			attributes["section"] = strings.Join(section, " / ")
		}
	}
	var tags []string
	if p.New {
		tags = append(tags, "new")
	}
	if p.GiftPackage {
		tags = append(tags, "gift_package")
	}
	if len(tags) > 0 {
		attributes["tags"] = strings.Join(tags, ",")
	}
	if p.ImageURL != "" {
		attributes["image"] = p.ImageURL
	}

	availability := models.AvailabilityUnknown
	if p.QuantityTotal != nil {
		availability = models.AvailabilityOutOfStock
		if *p.QuantityTotal > 0 {
			availability = models.AvailabilityInStock
		}
		attributes["stock_count"] = strconv.FormatFloat(*p.QuantityTotal, 'f', -1, 64)
	}

	description := ""
	if len(p.TextBlocks) > 0 {
		description = htmlText(p.TextBlocks[0].Content)
	}

	return buildRecord(fields{
		ID:           id,
		Name:         name,
		PriceText:    rawString(p.Price),
		OriginalText: rawString(p.PrevPrice),
		Availability: availability,
		Description:  description,
		Attributes:   attributes,
		URL:          recordURL,
	}, rc, l.currency)
}

// rawString renders a JSON string or number as text; null and absent values
// become "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// htmlText strips markup from rich-text API fields.
func htmlText(content string) string {
	if !strings.Contains(content, "<") {
		return CollapseSpace(content)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return CollapseSpace(content)
	}
	return CollapseSpace(doc.Text())
}
