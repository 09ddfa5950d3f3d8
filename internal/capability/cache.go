// Package capability discovers and memoizes per-driver metadata the first
// time a connection configuration is used.
//
// Records are keyed by a digest of the configuration string, which may carry
// credentials; the string itself is never stored or logged.
//
// Usage:
//
//	cache, err := capability.New(capability.DefaultConfig(),
//	    capability.WithLogger(log),
//	    capability.WithRegisterer(prometheus.DefaultRegisterer),
//	)
//	if err != nil { ... }
//
//	rec := cache.Get(ctx, dsn, pgsql.New(conn))
//	if rec.SupportsDescribeParam() { ... }
package capability

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/koustreak/capcache/internal/logger"
	"github.com/koustreak/capcache/internal/native"
)

// Config controls the capability cache.
type Config struct {
	// HashAlgorithm is sha1 (default), sha256 or none. none disables caching.
	HashAlgorithm string `yaml:"hash_algorithm"`

	// MaxEntries bounds the cache with LRU eviction. Zero keeps every
	// record for the life of the process.
	MaxEntries int `yaml:"max_entries"`
}

// DefaultConfig returns the process defaults: SHA-1 keys, never evicted.
func DefaultConfig() *Config {
	return &Config{
		HashAlgorithm: "sha1",
		MaxEntries:    0,
	}
}

// Option customises a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithRegisterer registers the cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) { c.reg = reg }
}

// WithExecLock supplies the host execution lock. Callers of Get hold it;
// the cache releases it around native calls.
func WithExecLock(l sync.Locker) Option {
	return func(c *Cache) { c.lock = l }
}

// WithHasher overrides the configured hash algorithm. A nil Hasher
// disables caching.
func WithHasher(h Hasher) Option {
	return func(c *Cache) {
		c.hasher = h
		c.hasherSet = true
	}
}

// Cache maps configuration keys to capability records. It is safe for
// concurrent use; records are inserted fully built and never mutated.
type Cache struct {
	hasher    Hasher
	hasherSet bool
	store     store
	group     singleflight.Group
	lock      sync.Locker
	log       *logger.Logger
	reg       prometheus.Registerer
	metrics   *metrics
	warnOnce  sync.Once
}

// New builds a Cache from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := &Cache{}
	for _, opt := range opts {
		opt(c)
	}

	if !c.hasherSet {
		h, err := HasherFor(cfg.HashAlgorithm)
		if err != nil {
			return nil, err
		}
		c.hasher = h
	}

	if cfg.MaxEntries > 0 {
		s, err := newLRUStore(cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		c.store = s
	} else {
		c.store = newMapStore()
	}

	if c.log == nil {
		c.log = logger.L()
	}
	c.log = c.log.Component("capability")
	c.metrics = newMetrics(c.reg, func() float64 { return float64(c.store.len()) })

	return c, nil
}

// Get returns the shared record for configString, probing conn on a miss.
// It never fails: a connection that cannot answer yields defaults.
func (c *Cache) Get(ctx context.Context, configString string, conn native.Conn) *Record {
	key, ok := hashWith(c.hasher, []byte(configString))
	if !ok {
		c.warnOnce.Do(func() {
			c.log.Warn("no hashing facility configured; connection capabilities will not be cached")
		})
		c.metrics.uncached.Inc()

		res := c.probeUnlocked(ctx, conn)
		c.observe("", res, false)
		return res.record
	}

	if rec, found := c.store.get(key); found {
		c.metrics.hits.Inc()
		c.log.With().Str("key", key.Short()).Logger().Debug("capabilities cache hit")
		return rec
	}
	c.metrics.misses.Inc()

	return c.probeAndStore(ctx, key, conn)
}

type outcome struct {
	res    probeResult
	stored bool
}

// probeAndStore collapses concurrent misses for key into one probe. When
// the flight's leader was canceled its result is not stored, and a caller
// whose own ctx is still live probes its own conn instead of taking those
// defaults.
func (c *Cache) probeAndStore(ctx context.Context, key Key, conn native.Conn) *Record {
	out := c.sharedProbe(ctx, key, conn)
	if !out.stored && ctx.Err() == nil {
		out = c.ownProbe(ctx, key, conn)
	}
	c.observe(key, out.res, out.stored)
	return out.res.record
}

// sharedProbe joins or leads the flight for key. The host lock is released
// for the whole wait, so a goroutine blocked behind another goroutine's
// probe never holds it.
func (c *Cache) sharedProbe(ctx context.Context, key Key, conn native.Conn) outcome {
	exit := enterBlocking(c.lock)
	defer exit()

	v, _, _ := c.group.Do(string(key), func() (any, error) {
		if rec, ok := c.store.get(key); ok {
			return outcome{res: probeResult{record: rec}, stored: true}, nil
		}
		return c.probeAndAdd(ctx, key, conn), nil
	})
	return v.(outcome)
}

// ownProbe probes conn outside the flight group.
func (c *Cache) ownProbe(ctx context.Context, key Key, conn native.Conn) outcome {
	exit := enterBlocking(c.lock)
	defer exit()

	return c.probeAndAdd(ctx, key, conn)
}

// probeAndAdd stores the probe result unless ctx was canceled, in which
// case the result is returned but not pinned.
func (c *Cache) probeAndAdd(ctx context.Context, key Key, conn native.Conn) outcome {
	res := c.probe(ctx, conn)
	if ctx.Err() != nil {
		return outcome{res: res}
	}
	res.record = c.store.add(key, res.record)
	return outcome{res: res, stored: true}
}

// probeUnlocked probes conn with the host lock released.
func (c *Cache) probeUnlocked(ctx context.Context, conn native.Conn) probeResult {
	exit := enterBlocking(c.lock)
	defer exit()

	return c.probe(ctx, conn)
}

// probe runs and counts one probe. Metrics are atomic and safe to touch
// while the host lock is released.
func (c *Cache) probe(ctx context.Context, conn native.Conn) probeResult {
	res := probe(ctx, conn)
	c.metrics.probes.Inc()
	for _, f := range res.failures {
		c.metrics.probeFailures.WithLabelValues(f.query).Inc()
	}
	return res
}

func (c *Cache) observe(key Key, res probeResult, stored bool) {
	log := c.log.With().
		Str("key", key.Short()).
		Bool("stored", stored).
		Int("failures", len(res.failures)).
		Logger()
	for _, f := range res.failures {
		log.With().Str("query", f.query).Err(f.err).Logger().Debug("capability query fell back to default")
	}
	log.Debugf("capabilities probed: %s", res.record)
}

// Lookup returns the record stored under key without probing.
func (c *Cache) Lookup(key Key) (*Record, bool) {
	return c.store.get(key)
}

// Len reports how many records are stored.
func (c *Cache) Len() int {
	return c.store.len()
}

// Snapshot returns the stored records, keyed by digest.
func (c *Cache) Snapshot() map[Key]*Record {
	out := make(map[Key]*Record, c.store.len())
	c.store.each(func(k Key, r *Record) {
		out[k] = r
	})
	return out
}

// --- process-wide cache ---

var defaultCache atomic.Pointer[Cache]

func init() {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	defaultCache.Store(c)
}

// Default returns the process-wide cache.
func Default() *Cache {
	return defaultCache.Load()
}

// SetDefault replaces the process-wide cache.
func SetDefault(c *Cache) {
	if c != nil {
		defaultCache.Store(c)
	}
}

// GetConnectionCapabilities looks configString up in the process-wide cache,
// probing conn on a miss. It never fails.
func GetConnectionCapabilities(ctx context.Context, configString string, conn native.Conn) *Record {
	return Default().Get(ctx, configString, conn)
}
