package parser

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/frontier"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/region"
)

// Selectors configures the html layout. Comma-separated alternatives are
// tried left to right for single-valued fields.
type Selectors struct {
	ListingContainer string `yaml:"listing_container"`
	ProductLink      string `yaml:"product_link"`
	NextPage         string `yaml:"next_page"`

	Canonical      string `yaml:"canonical"`
	SKU            string `yaml:"sku"`
	Name           string `yaml:"name"`
	Price          string `yaml:"price"`
	OriginalPrice  string `yaml:"original_price"`
	Currency       string `yaml:"currency"`
	Availability   string `yaml:"availability"`
	Description    string `yaml:"description"`
	Brand          string `yaml:"brand"`
	Breadcrumb     string `yaml:"breadcrumb"`
	Image          string `yaml:"image"`
	AttributeRow   string `yaml:"attribute_row"`
	AttributeName  string `yaml:"attribute_name"`
	AttributeValue string `yaml:"attribute_value"`
}

// DefaultSelectors covers schema.org microdata and common storefront markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ListingContainer: "[data-catalog], .catalog, section.products, ol.row",
		ProductLink:      "[data-product-link], .product-card__link, article.product_pod h3 a",
		NextPage:         `a[rel="next"], li.next a, .pagination__next a`,

		Canonical:      `link[rel="canonical"]`,
		SKU:            `[itemprop="sku"], [data-sku]`,
		Name:           `h1[itemprop="name"], .product__title, h1`,
		Price:          `[itemprop="price"], .product__price, p.price_color`,
		OriginalPrice:  ".product__price--old, .price-old",
		Currency:       `[itemprop="priceCurrency"]`,
		Availability:   `[itemprop="availability"], .product__stock, p.availability`,
		Description:    `[itemprop="description"], .product__description, #product_description ~ p`,
		Brand:          `[itemprop="brand"]`,
		Breadcrumb:     ".breadcrumb li",
		Image:          `[itemprop="image"], .product__image img, #product_gallery img`,
		AttributeRow:   ".product__attributes tr, table.table-striped tr",
		AttributeName:  "th",
		AttributeValue: "td",
	}
}

// Merge returns s with empty fields filled from defaults.
func (s Selectors) Merge(defaults Selectors) Selectors {
	fill := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	fill(&s.ListingContainer, defaults.ListingContainer)
	fill(&s.ProductLink, defaults.ProductLink)
	fill(&s.NextPage, defaults.NextPage)
	fill(&s.Canonical, defaults.Canonical)
	fill(&s.SKU, defaults.SKU)
	fill(&s.Name, defaults.Name)
	fill(&s.Price, defaults.Price)
	fill(&s.OriginalPrice, defaults.OriginalPrice)
	fill(&s.Currency, defaults.Currency)
	fill(&s.Availability, defaults.Availability)
	fill(&s.Description, defaults.Description)
	fill(&s.Brand, defaults.Brand)
	fill(&s.Breadcrumb, defaults.Breadcrumb)
	fill(&s.Image, defaults.Image)
	fill(&s.AttributeRow, defaults.AttributeRow)
	fill(&s.AttributeName, defaults.AttributeName)
	fill(&s.AttributeValue, defaults.AttributeValue)
	return s
}

// HTMLLayout parses server-rendered catalog pages with CSS selectors.
type HTMLLayout struct {
	sel      Selectors
	currency string
}

// NewHTMLLayout builds an html layout; empty selectors take their defaults.
func NewHTMLLayout(sel Selectors, currency string) *HTMLLayout {
	return &HTMLLayout{sel: sel.Merge(DefaultSelectors()), currency: currency}
}

func (l *HTMLLayout) Name() string { return LayoutHTML }

func (l *HTMLLayout) ParseListing(body []byte, pageURL string) (*models.ListingPage, error) {
	current, err := frontier.Normalize(pageURL)
	if err != nil {
		return nil, &MalformedListingError{URL: pageURL, Reason: "invalid page url", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &MalformedListingError{URL: current, Reason: "unparseable html", Err: err}
	}

	container := doc.Find(l.sel.ListingContainer)
	if container.Length() == 0 {
		return nil, &MalformedListingError{URL: current, Reason: "listing container not found"}
	}

	page := &models.ListingPage{URL: current}
	seen := make(map[string]struct{})
	container.Find(l.sel.ProductLink).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		abs, err := frontier.Resolve(current, href)
		if err != nil || abs == current {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		page.DetailURLs = append(page.DetailURLs, abs)
	})

	if href, ok := first(doc.Selection, l.sel.NextPage).Attr("href"); ok {
		next, err := frontier.Resolve(current, href)
		switch {
		case err != nil:
			slog.Debug("ignoring unresolvable next link", slog.String("url", current), slog.String("href", href))
		case next == current:
			slog.Warn("next page link points to itself", slog.String("url", current))
		default:
			page.NextURL = next
		}
	}

	return page, nil
}

func (l *HTMLLayout) Extract(body []byte, sourceURL string, rc region.Context) (*models.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionIssue{URL: sourceURL, Err: err}
	}
	root := doc.Selection

	canonical := sourceURL
	if href := value(root, l.sel.Canonical, "href"); href != "" {
		if abs, err := frontier.Resolve(sourceURL, href); err == nil {
			canonical = abs
		}
	}

	id := value(root, l.sel.SKU, "content", "data-sku")
	if id == "" {
		id = IdentifierFromURL(canonical)
	}

	attributes := make(map[string]string)
	root.Find(l.sel.AttributeRow).Each(func(_ int, row *goquery.Selection) {
		name := cleanAttributeName(row.Find(l.sel.AttributeName).First().Text())
		if name == "" {
			return
		}
		attributes[name] = CollapseSpace(row.Find(l.sel.AttributeValue).First().Text())
	})
	if brand := value(root, l.sel.Brand, "content"); brand != "" {
		attributes["brand"] = brand
	}
	if section := breadcrumbSection(root.Find(l.sel.Breadcrumb)); section != "" {
		attributes["section"] = section
	}
	if src := value(root, l.sel.Image, "src", "content", "href"); src != "" {
		if abs, err := frontier.Resolve(sourceURL, src); err == nil {
			attributes["image"] = abs
		}
	}

	return buildRecord(fields{
		ID:           id,
		Name:         value(root, l.sel.Name, "content"),
		PriceText:    value(root, l.sel.Price, "content"),
		OriginalText: value(root, l.sel.OriginalPrice, "content"),
		Currency:     value(root, l.sel.Currency, "content"),
		Availability: NormalizeAvailability(value(root, l.sel.Availability, "href", "content")),
		Description:  value(root, l.sel.Description, "content"),
		Attributes:   attributes,
		URL:          sourceURL,
	}, rc, l.currency)
}

// first returns the first element matched by the left-most alternative in a
// comma-separated selector list that matches anything.
func first(root *goquery.Selection, selectors string) *goquery.Selection {
	for _, sel := range strings.Split(selectors, ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if found := root.Find(sel); found.Length() > 0 {
			return found.First()
		}
	}
	return root.Slice(0, 0)
}

// value reads the first non-empty attribute from attrs, falling back to the
// element text.
func value(root *goquery.Selection, selectors string, attrs ...string) string {
	s := first(root, selectors)
	if s.Length() == 0 {
		return ""
	}
	for _, attr := range attrs {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return CollapseSpace(s.Text())
}

func breadcrumbSection(crumbs *goquery.Selection) string {
	var parts []string
	crumbs.Each(func(_ int, s *goquery.Selection) {
		if text := CollapseSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	// first crumb is the storefront root, last is the product itself
	if len(parts) <= 2 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], " / ")
}
