package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"v4v/internal/core"
	"v4v/internal/log"
)

// Clock returns the current time. Tests replace it to control timestamps.
type Clock func() time.Time

// Snapshot is the on-disk shape of the transaction cache.
type Snapshot struct {
	Updated      time.Time          `json:"updated"`
	Transactions []core.Transaction `json:"transactions"`
}

// SnapshotStats describes the cache file for `cache stats`.
type SnapshotStats struct {
	Path      string
	SizeBytes int64
	Updated   time.Time
	Count     int
	Oldest    *int64
	Newest    *int64
}

// TransactionCache persists the merged transaction list as a single JSON file.
// Read failures degrade to an empty list and write failures are logged, so a
// broken cache never stops a fetch.
type TransactionCache struct {
	path   string
	logger *log.Logger
	now    Clock
}

// NewTransactionCache creates a cache backed by the file at path.
func NewTransactionCache(path string, logger *log.Logger) *TransactionCache {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionCache{
		path:   path,
		logger: logger.WithComponent(log.ComponentCache),
		now:    time.Now,
	}
}

// WithClock overrides the clock used for the `updated` field.
func (c *TransactionCache) WithClock(now Clock) *TransactionCache {
	c.now = now
	return c
}

// Path returns the snapshot file location.
func (c *TransactionCache) Path() string {
	return c.path
}

// Load returns the cached transactions, or an empty slice when the file is
// missing, unreadable or malformed.
func (c *TransactionCache) Load() []core.Transaction {
	snap, err := c.read()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Ignoring unreadable snapshot",
				log.FieldOperation, log.OpLoad,
				log.FieldFile, c.path,
				log.FieldError, err)
		}
		return []core.Transaction{}
	}
	if snap.Transactions == nil {
		return []core.Transaction{}
	}
	c.logger.Debug("Snapshot loaded", log.FieldFile, c.path, log.FieldCachedCount, len(snap.Transactions))
	return snap.Transactions
}

// Save overwrites the snapshot with txs. The file is written to a temporary
// sibling and renamed into place, so readers see either the old or the new
// snapshot.
func (c *TransactionCache) Save(txs []core.Transaction) {
	if txs == nil {
		txs = []core.Transaction{}
	}
	snap := Snapshot{Updated: c.now().UTC(), Transactions: txs}
	if err := writeJSONAtomic(c.path, snap); err != nil {
		c.logger.Error("Failed to save snapshot",
			log.FieldOperation, log.OpSave,
			log.FieldFile, c.path,
			log.FieldError, err)
		return
	}
	c.logger.Debug("Snapshot saved", log.FieldFile, c.path, log.FieldTotalCount, len(txs))
}

// Clear removes the snapshot and reports whether one existed.
func (c *TransactionCache) Clear() bool {
	return removeFile(c.path, c.logger)
}

// Stats returns information about the snapshot, or nil when none exists.
func (c *TransactionCache) Stats() *SnapshotStats {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil
	}
	stats := &SnapshotStats{Path: c.path, SizeBytes: info.Size()}

	snap, err := c.read()
	if err != nil {
		return stats
	}
	stats.Updated = snap.Updated
	stats.Count = len(snap.Transactions)
	for _, tx := range snap.Transactions {
		ts, ok := tx.Timestamp()
		if !ok {
			continue
		}
		if stats.Oldest == nil || ts < *stats.Oldest {
			stats.Oldest = core.Int64(ts)
		}
		if stats.Newest == nil || ts > *stats.Newest {
			stats.Newest = core.Int64(ts)
		}
	}
	return stats
}

func (c *TransactionCache) read() (*Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// writeJSONAtomic encodes v and replaces path with it through a rename.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func removeFile(path string, logger *log.Logger) bool {
	err := os.Remove(path)
	if err == nil {
		logger.Info("Cache file removed", log.FieldOperation, log.OpClear, log.FieldFile, path)
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove cache file",
			log.FieldOperation, log.OpClear,
			log.FieldFile, path,
			log.FieldError, err)
	}
	return false
}
