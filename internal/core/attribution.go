package core

import (
	"regexp"
	"strings"
)

// Attributor maps payment descriptions to content slugs for one site.
//
// A description attributes to a slug when the site identifier (dots matched
// literally) is followed by "/" and a slug of [a-z0-9-]+. The first match wins.
// Matching is a heuristic over free-text memos; no URL parsing is attempted.
type Attributor struct {
	site    string
	pattern *regexp.Regexp
}

// NewAttributor compiles the slug pattern for site.
func NewAttributor(site string) *Attributor {
	return &Attributor{
		site:    site,
		pattern: regexp.MustCompile(regexp.QuoteMeta(site) + `/([a-z0-9-]+)`),
	}
}

// Site returns the configured site identifier.
func (a *Attributor) Site() string {
	return a.site
}

// Slug returns the content slug of a description. ok is false for an empty
// description, a bare site identifier, or a description naming another site.
func (a *Attributor) Slug(description string) (slug string, ok bool) {
	if description == "" {
		return "", false
	}
	m := a.pattern.FindStringSubmatch(description)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Bucket returns the slug of a description, or GeneralBucket when there is none.
func (a *Attributor) Bucket(description string) string {
	if slug, ok := a.Slug(description); ok {
		return slug
	}
	return GeneralBucket
}

// IsV4V reports whether a description mentions the site anywhere. This is a
// plain substring test and is looser than slug matching.
func (a *Attributor) IsV4V(description string) bool {
	return a.site != "" && strings.Contains(description, a.site)
}

// Filter keeps transactions whose description mentions the site.
func (a *Attributor) Filter(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if a.IsV4V(tx.Description) {
			out = append(out, tx)
		}
	}
	return out
}

// AttributeSlug is a convenience wrapper around Attributor.Slug.
func AttributeSlug(description, site string) (string, bool) {
	return NewAttributor(site).Slug(description)
}

// FilterV4VPayments is a convenience wrapper around Attributor.Filter.
func FilterV4VPayments(txs []Transaction, site string) []Transaction {
	return NewAttributor(site).Filter(txs)
}
