package cache

import (
	"encoding/json"
	"os"
	"time"

	"v4v/internal/log"
)

const DefaultTitlesTTL = 24 * time.Hour

// TitleSnapshot is the on-disk shape of the title cache.
type TitleSnapshot struct {
	Fetched time.Time         `json:"fetched"`
	Titles  map[string]string `json:"titles"`
}

// TitleStats describes the title cache file.
type TitleStats struct {
	Path      string
	SizeBytes int64
	Fetched   time.Time
	Count     int
	Fresh     bool
}

// TitleCache stores slug to title mappings with a freshness window. Expired
// entries are still returned so the caller can fall back to them when the
// feed is unreachable.
type TitleCache struct {
	path   string
	ttl    time.Duration
	logger *log.Logger
	now    Clock
}

func NewTitleCache(path string, ttl time.Duration, logger *log.Logger) *TitleCache {
	if ttl <= 0 {
		ttl = DefaultTitlesTTL
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &TitleCache{
		path:   path,
		ttl:    ttl,
		logger: logger.WithComponent(log.ComponentCache),
		now:    time.Now,
	}
}

// WithClock overrides the clock used for freshness checks.
func (c *TitleCache) WithClock(now Clock) *TitleCache {
	c.now = now
	return c
}

// Load returns the cached titles and whether they are within the TTL.
// A missing or malformed file yields an empty map.
func (c *TitleCache) Load() (map[string]string, bool) {
	snap, err := c.read()
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Ignoring unreadable title cache", log.FieldFile, c.path, log.FieldError, err)
		}
		return map[string]string{}, false
	}
	if snap.Titles == nil {
		snap.Titles = map[string]string{}
	}
	return snap.Titles, c.fresh(snap.Fetched)
}

// Save replaces the cached titles and stamps them with the current time.
func (c *TitleCache) Save(titles map[string]string) {
	if titles == nil {
		titles = map[string]string{}
	}
	snap := TitleSnapshot{Fetched: c.now().UTC(), Titles: titles}
	if err := writeJSONAtomic(c.path, snap); err != nil {
		c.logger.Error("Failed to save title cache",
			log.FieldOperation, log.OpSave,
			log.FieldFile, c.path,
			log.FieldError, err)
	}
}

func (c *TitleCache) Clear() bool {
	return removeFile(c.path, c.logger)
}

// Stats returns information about the title cache, or nil when none exists.
func (c *TitleCache) Stats() *TitleStats {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil
	}
	stats := &TitleStats{Path: c.path, SizeBytes: info.Size()}
	if snap, err := c.read(); err == nil {
		stats.Fetched = snap.Fetched
		stats.Count = len(snap.Titles)
		stats.Fresh = c.fresh(snap.Fetched)
	}
	return stats
}

func (c *TitleCache) fresh(fetched time.Time) bool {
	return !fetched.IsZero() && c.now().Sub(fetched) < c.ttl
}

func (c *TitleCache) read() (*TitleSnapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var snap TitleSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
