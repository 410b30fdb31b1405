// Package titles maps content slugs to human-readable titles using the site's feed.
package titles

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"v4v/internal/cache"
	"v4v/internal/core"
	"v4v/internal/log"
)

// Source reads titles from an RSS or Atom feed, backed by a TTL cache.
type Source struct {
	feedURL string
	parser  *gofeed.Parser
	cache   *cache.TitleCache
	logger  *log.Logger
}

// NewSource creates a title source. An empty feedURL derives
// https://<site>/feed.xml at fetch time. titleCache may be nil.
func NewSource(feedURL string, titleCache *cache.TitleCache, logger *log.Logger) *Source {
	if logger == nil {
		logger = log.Discard()
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 10 * time.Second}
	return &Source{
		feedURL: feedURL,
		parser:  parser,
		cache:   titleCache,
		logger:  logger.WithComponent(log.ComponentTitles),
	}
}

// FetchTitles returns slug to title mappings for site. Fresh cached titles
// are served without a request; on feed failure stale cached titles (or an
// empty map) are returned.
func (s *Source) FetchTitles(ctx context.Context, site string) map[string]string {
	var cached map[string]string
	if s.cache != nil {
		var fresh bool
		cached, fresh = s.cache.Load()
		if fresh && len(cached) > 0 {
			return cached
		}
	}
	if cached == nil {
		cached = map[string]string{}
	}

	titles, err := s.fetch(ctx, site)
	if err != nil {
		s.logger.Warn("Feed unavailable, using cached titles",
			log.FieldSite, site,
			log.FieldCachedCount, len(cached),
			log.FieldError, err)
		return cached
	}

	if s.cache != nil {
		s.cache.Save(titles)
	}
	s.logger.Debug("Titles refreshed", log.FieldSite, site, log.FieldTotalCount, len(titles))
	return titles
}

func (s *Source) fetch(ctx context.Context, site string) (map[string]string, error) {
	url := s.feedURL
	if url == "" {
		url = "https://" + site + "/feed.xml"
	}

	feed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	attr := core.NewAttributor(site)
	titles := make(map[string]string, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		slug, ok := attr.Slug(item.Link)
		if !ok {
			continue
		}
		if _, seen := titles[slug]; !seen {
			titles[slug] = title
		}
	}
	return titles, nil
}

// Lookup returns the title for slug, falling back to the slug itself.
func Lookup(titles map[string]string, slug string) string {
	if t, ok := titles[slug]; ok && t != "" {
		return t
	}
	return slug
}
