package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/region"
	"gopkg.in/yaml.v3"
)

// Site is a YAML profile describing one catalog site.
type Site struct {
	Layout        string                `yaml:"layout"`
	BaseURL       string                `yaml:"base_url"`
	Seeds         []string              `yaml:"seeds"`
	Currency      string                `yaml:"currency"`
	DefaultRegion string                `yaml:"default_region"`
	Selectors     parser.Selectors      `yaml:"selectors"`
	Regions       map[string]SiteRegion `yaml:"regions"`
}

// SiteRegion is the request decoration for one region of a site.
type SiteRegion struct {
	Name   string `yaml:"name"`
	Header struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
	} `yaml:"header"`
	Cookie struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
	} `yaml:"cookie"`
	Query struct {
		Param string `yaml:"param"`
		Value string `yaml:"value"`
	} `yaml:"query"`
}

func (r SiteRegion) context() region.Context {
	return region.Context{
		Name:        r.Name,
		HeaderName:  r.Header.Name,
		HeaderValue: r.Header.Value,
		CookieName:  r.Cookie.Name,
		CookieValue: r.Cookie.Value,
		QueryParam:  r.Query.Param,
		QueryValue:  r.Query.Value,
	}
}

// LoadSite reads a site profile from path.
func LoadSite(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site profile: %w", err)
	}
	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("decode site profile %s: %w", path, err)
	}
	return &site, nil
}

// ApplySite copies the non-empty profile values onto c.
func (c *Config) ApplySite(site *Site) {
	if site == nil {
		return
	}
	if site.Layout != "" {
		c.Layout = strings.ToLower(site.Layout)
	}
	if site.BaseURL != "" {
		c.BaseURL = site.BaseURL
	}
	if len(site.Seeds) > 0 {
		c.SeedURLs = append([]string(nil), site.Seeds...)
	}
	if site.Currency != "" {
		c.Currency = strings.ToUpper(site.Currency)
	}
	if site.DefaultRegion != "" {
		c.DefaultRegion = site.DefaultRegion
	}
	c.Selectors = site.Selectors
	if len(site.Regions) > 0 {
		c.Regions = make(map[string]region.Context, len(site.Regions))
		for name, r := range site.Regions {
			c.Regions[name] = r.context()
		}
	}
}
