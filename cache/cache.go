// Package cache keeps results of successful pipeline invocations in memory
// and, optionally, in sqlite database between runs.
package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"cssc/misc"
	"cssc/transform"
)

// Mode distinguishes pipelines sharing the same cache.
type Mode string

const (
	ModeTransform Mode = "transform"
	ModeMinify    Mode = "minify"
)

const schema = `CREATE TABLE IF NOT EXISTS results (
	key     TEXT PRIMARY KEY,
	output  BLOB NOT NULL,
	created INTEGER NOT NULL
)`

// Key returns cache key for src processed in mode with opts. Options are
// serialized as JSON, field order is fixed by their struct definition.
func Key(mode Mode, src []byte, opts any) (string, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("unable to serialize options for cache key: %w", err)
	}
	h := xxhash.New()
	// results produced by different builds are not shared
	_, _ = h.WriteString(misc.GetVersion())
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(string(mode))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(src)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Cache is safe for concurrent use. Zero layers make it a no-op.
type Cache struct {
	log *zap.Logger
	mem *lru.Cache[string, []byte]

	disk bool
	mu   sync.Mutex
	conn *sqlite.Conn

	hits, misses atomic.Int64
}

// Open creates cache keeping up to entries results in memory (0 disables
// memory layer) and backed by sqlite database at path (empty disables disk
// layer).
func Open(entries int, path string, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{log: log.Named("cache")}

	if entries > 0 {
		mem, err := lru.New[string, []byte](entries)
		if err != nil {
			return nil, fmt.Errorf("unable to create memory cache: %w", err)
		}
		c.mem = mem
	}

	if len(path) > 0 {
		conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
		if err != nil {
			return nil, fmt.Errorf("unable to open cache database %q: %w", path, err)
		}
		if err := sqlitex.Execute(conn, schema, nil); err != nil {
			return nil, multierr.Append(fmt.Errorf("unable to prepare cache database %q: %w", path, err), conn.Close())
		}
		c.conn, c.disk = conn, true
	}

	c.log.Debug("Cache opened", zap.Int("memory", entries), zap.String("path", path))
	return c, nil
}

// Get returns cached output for key. Every call returns separate copy.
func (c *Cache) Get(key string) (*transform.Output, bool) {
	if c == nil {
		return nil, false
	}

	data, ok := c.lookup(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	out := &transform.Output{}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Warn("Dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return out, true
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	if c.mem != nil {
		if data, ok := c.mem.Get(key); ok {
			return data, true
		}
	}
	data, err := c.load(key)
	if err != nil {
		c.log.Warn("Unable to read cache database", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	if c.mem != nil {
		c.mem.Add(key, data)
	}
	return data, true
}

func (c *Cache) load(key string) (data []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, nil
	}
	err = sqlitex.Execute(c.conn, `SELECT output FROM results WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				data, err = io.ReadAll(stmt.ColumnReader(0))
				return err
			}})
	return data, err
}

// Put stores output under key. Failures to persist are logged and otherwise
// ignored.
func (c *Cache) Put(key string, out *transform.Output) {
	if c == nil || out == nil || (c.mem == nil && !c.disk) {
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		c.log.Warn("Unable to serialize output for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if c.mem != nil {
		c.mem.Add(key, data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	err = sqlitex.Execute(c.conn, `INSERT OR REPLACE INTO results (key, output, created) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{key, data, time.Now().Unix()}})
	if err != nil {
		c.log.Warn("Unable to write cache database", zap.String("key", key), zap.Error(err))
	}
}

// Len returns number of results kept in memory.
func (c *Cache) Len() int {
	if c == nil || c.mem == nil {
		return 0
	}
	return c.mem.Len()
}

// Purge removes entries created before given time from the database and
// clears memory layer. It returns number of removed database rows.
func (c *Cache) Purge(before time.Time) (int, error) {
	if c == nil {
		return 0, nil
	}
	if c.mem != nil {
		c.mem.Purge()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, nil
	}
	if err := sqlitex.Execute(c.conn, `DELETE FROM results WHERE created < ?`,
		&sqlitex.ExecOptions{Args: []any{before.Unix()}}); err != nil {
		return 0, fmt.Errorf("unable to purge cache database: %w", err)
	}
	return c.conn.Changes(), nil
}

// Close releases database connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.log.Debug("Cache closed",
		zap.Int64("hits", c.hits.Load()), zap.Int64("misses", c.misses.Load()), zap.String("ratio", c.ratio()))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("unable to close cache database: %w", err)
	}
	return nil
}

func (c *Cache) ratio() string {
	hits, total := c.hits.Load(), c.hits.Load()+c.misses.Load()
	if total == 0 {
		return "n/a"
	}
	return strconv.FormatFloat(float64(hits)*100/float64(total), 'f', 1, 64) + "%"
}
