// Package resultcache memoizes extraction results keyed by platform and
// normalized profile URL, with confidence-dependent TTLs and in-flight
// deduplication so the same profile is never extracted twice concurrently.
package resultcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"net/url"
	"time"

	"socialkpi-backend/lib/kpi"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var ErrMiss = errors.New("resultcache: miss")

type Config struct {
	// Dir is the badger directory. Empty means fully in-memory,
	// results then live only as long as the process.
	Dir string `json:"dir"`

	// TTLs by result confidence. API results are trusted longer;
	// simulated results are cheap to distrust but costly to refresh.
	HighTTL   time.Duration `json:"high_ttl"`
	MediumTTL time.Duration `json:"medium_ttl"`
	LowTTL    time.Duration `json:"low_ttl"`
}

func (c *Config) defaults() {
	if c.HighTTL <= 0 {
		c.HighTTL = time.Hour
	}
	if c.MediumTTL <= 0 {
		c.MediumTTL = 30 * time.Minute
	}
	if c.LowTTL <= 0 {
		c.LowTTL = 15 * time.Minute
	}
}

type Cache struct {
	db     *badger.DB
	cfg    Config
	now    func() time.Time
	flight singleflight.Group
}

func Open(cfg Config) (*Cache, error) {
	cfg.defaults()

	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, cfg: cfg, now: time.Now}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// SetClock overrides the time source. Tests use this to cross TTL
// boundaries without sleeping.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// TTLFor returns the configured TTL for a result's confidence label.
func (c *Cache) TTLFor(conf kpi.Confidence) time.Duration {
	switch conf {
	case kpi.ConfidenceHigh:
		return c.cfg.HighTTL
	case kpi.ConfidenceMedium:
		return c.cfg.MediumTTL
	default:
		return c.cfg.LowTTL
	}
}

// Key builds the cache key from the platform and the normalized profile
// URL, so trivially different spellings of the same profile collide.
func Key(platform kpi.Platform, profileURL string) (string, error) {
	u, err := url.Parse(profileURL)
	if err != nil {
		return "", err
	}
	normalized := purell.NormalizeURL(
		u,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
	return string(platform) + ":" + normalized, nil
}

// entry is the stored form of a cached result. ExpiresAt is in unix
// nanoseconds so the TTL boundary is exact even for writes at
// fractional instants.
type entry struct {
	Result    kpi.ExtractionResult
	ExpiresAt int64
}

// Get returns the unexpired cached result for (platform, profileURL) or
// ErrMiss. Expired entries are deleted on access.
func (c *Cache) Get(ctx context.Context, platform kpi.Platform, profileURL string) (*kpi.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "resultcache.Get")
	defer span.End()

	key, err := Key(platform, profileURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build cache key")
		return nil, err
	}
	span.SetAttributes(attribute.String("cache_key", key))

	tx := c.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cache item")
		return nil, err
	}
	serialized, err := item.ValueCopy(nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy cache item")
		return nil, err
	}

	var cached entry
	if err := gob.NewDecoder(bytes.NewReader(serialized)).Decode(&cached); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode cache item")
		return nil, err
	}

	if c.now().UnixNano() >= cached.ExpiresAt {
		span.AddEvent("evicting expired entry")
		wtx := c.db.NewTransaction(true)
		defer wtx.Commit()
		if err := wtx.Delete([]byte(key)); err != nil {
			span.RecordError(err)
		}
		return nil, ErrMiss
	}

	return &cached.Result, nil
}

// Put stores a result under its confidence-dependent TTL. Last write wins.
func (c *Cache) Put(ctx context.Context, result kpi.ExtractionResult, profileURL string) error {
	ctx, span := tracer.Start(ctx, "resultcache.Put")
	defer span.End()

	key, err := Key(result.Platform, profileURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build cache key")
		return err
	}
	span.SetAttributes(attribute.String("cache_key", key))

	buf := bytes.NewBuffer(nil)
	err = gob.NewEncoder(buf).Encode(entry{
		Result:    result,
		ExpiresAt: c.now().Add(c.TTLFor(result.Confidence)).UnixNano(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode cache entry")
		return err
	}

	tx := c.db.NewTransaction(true)
	defer tx.Commit()
	if err := tx.Set([]byte(key), buf.Bytes()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write cache entry")
		return err
	}
	return nil
}

// Do runs fn at most once per in-flight key across the whole process.
// Concurrent callers for the same (platform, profileURL) share the single
// invocation's result instead of triggering duplicate extraction work.
func (c *Cache) Do(platform kpi.Platform, profileURL string, fn func() (*kpi.ExtractionResult, error)) (*kpi.ExtractionResult, error) {
	key, err := Key(platform, profileURL)
	if err != nil {
		return nil, err
	}
	v, err, _ := c.flight.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*kpi.ExtractionResult), nil
}
