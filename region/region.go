// Package region maps human-readable region names to the request decoration
// that scopes catalog responses (prices, stock) to that region.
package region

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// DefaultID is used when no region is supplied.
const DefaultID = "krasnodar"

// UnknownRegionError reports a region name with no known decoration.
type UnknownRegionError struct {
	Region string
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("unknown region %q", e.Region)
}

// Context is a resolved region plus the request decoration that must accompany
// every fetch. Values are immutable once returned by Resolve.
type Context struct {
	ID          string
	Name        string
	HeaderName  string
	HeaderValue string
	CookieName  string
	CookieValue string
	QueryParam  string
	QueryValue  string
}

// Decorate adds the region header and cookie to hdr.
func (c Context) Decorate(hdr http.Header) {
	if hdr == nil {
		return
	}
	if c.HeaderName != "" {
		hdr.Set(c.HeaderName, c.HeaderValue)
	}
	if c.CookieName != "" {
		cookie := (&http.Cookie{Name: c.CookieName, Value: c.CookieValue}).String()
		if existing := hdr.Get("Cookie"); existing != "" {
			cookie = existing + "; " + cookie
		}
		hdr.Set("Cookie", cookie)
	}
}

// Apply returns a copy of u with the region query parameter set.
func (c Context) Apply(u *url.URL) *url.URL {
	out := *u
	if c.QueryParam == "" {
		return &out
	}
	q := out.Query()
	q.Set(c.QueryParam, c.QueryValue)
	out.RawQuery = q.Encode()
	return &out
}

func (c Context) valid() bool {
	return c.HeaderName != "" || c.CookieName != "" || c.QueryParam != ""
}

const krasnodarCity = "4a70f9e0-46ae-11e7-83ff-00155d026416"

var builtin = map[string]Context{
	DefaultID: {
		ID:          DefaultID,
		Name:        "Krasnodar",
		CookieName:  "city_uuid",
		CookieValue: krasnodarCity,
		QueryParam:  "city_uuid",
		QueryValue:  krasnodarCity,
	},
}

// Selector resolves region names against a fixed table.
type Selector struct {
	defaultID string
	regions   map[string]Context
}

// NewSelector merges extra regions over the built-in table. An empty defaultID
// falls back to DefaultID.
func NewSelector(defaultID string, extra map[string]Context) *Selector {
	regions := make(map[string]Context, len(builtin)+len(extra))
	for id, rc := range builtin {
		regions[id] = rc
	}
	for name, rc := range extra {
		id := normalizeName(name)
		if id == "" {
			continue
		}
		rc.ID = id
		if rc.Name == "" {
			rc.Name = name
		}
		regions[id] = rc
	}

	defaultID = normalizeName(defaultID)
	if defaultID == "" {
		defaultID = DefaultID
	}
	return &Selector{defaultID: defaultID, regions: regions}
}

// Resolve maps name to its Context. An empty name selects the default region.
func (s *Selector) Resolve(name string) (Context, error) {
	id := normalizeName(name)
	if id == "" {
		id = s.defaultID
	}
	rc, ok := s.regions[id]
	if !ok || !rc.valid() {
		if name == "" {
			name = id
		}
		return Context{}, &UnknownRegionError{Region: name}
	}
	return rc, nil
}

// Known lists the resolvable region IDs in sorted order.
func (s *Selector) Known() []string {
	ids := make([]string, 0, len(s.regions))
	for id, rc := range s.regions {
		if rc.valid() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
