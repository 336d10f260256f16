// Package cache keeps denormalized read views per organization. Each
// (resource, organization) pair has a version counter; an entry is served
// only while the generation stored in it equals the counter.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erazemk/stockledger/internal/apperr"
)

// Resource names a cached read view.
type Resource string

// Cached resources.
const (
	ProductList   Resource = "product-list"
	ProductDetail Resource = "product-detail"
	WarehouseList Resource = "warehouse-list"
	OrderList     Resource = "order-list"
)

// Resources lists every cached resource.
var Resources = []Resource{ProductList, ProductDetail, WarehouseList, OrderList}

// Options configure a Layer.
type Options struct {
	// Version prefixes every key. Changing it drops the whole cache.
	Version string
	// TTL per resource. Resources without an entry use DefaultTTL.
	TTL map[Resource]time.Duration
	// Retries of a counter bump before giving up.
	CounterRetries uint
}

// DefaultTTL is the entry lifetime of resources without a configured TTL.
const DefaultTTL = 5 * time.Minute

// Layer is the cache layer used by the engine. All backend failures are
// logged as CacheUnavailable and never returned.
type Layer struct {
	backend Backend
	opts    Options
	log     *zap.Logger
	group   singleflight.Group
}

// New creates a Layer over backend.
func New(backend Backend, opts Options, log *zap.Logger) *Layer {
	if opts.Version == "" {
		opts.Version = "v1"
	}
	if opts.CounterRetries == 0 {
		opts.CounterRetries = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Layer{backend: backend, opts: opts, log: log}
}

// EntryKey returns the key of a cached view: version:resource:org[:sub].
func (l *Layer) EntryKey(res Resource, orgID, sub string) string {
	key := l.opts.Version + ":" + string(res) + ":" + orgID
	if sub != "" {
		key += ":" + sub
	}
	return key
}

// CounterKey returns the key of the version counter of (res, orgID).
func (l *Layer) CounterKey(res Resource, orgID string) string {
	return l.opts.Version + ":last-modified:" + string(res) + ":" + orgID
}

func (l *Layer) ttl(res Resource) time.Duration {
	if d, ok := l.opts.TTL[res]; ok && d > 0 {
		return d
	}
	return DefaultTTL
}

// envelope is the stored form of an entry.
type envelope struct {
	Generation int64           `json:"generation"`
	CachedAt   time.Time       `json:"cached_at"`
	Payload    json.RawMessage `json:"payload"`
}

func (l *Layer) unavailable(op, key string, err error) {
	l.log.Warn("cache unavailable",
		zap.String("kind", apperr.CacheUnavailable.String()),
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

// ReadThrough returns the cached view of (res, orgID, sub) or loads it.
// The counter is read before load runs, so a write committed while loading
// leaves the stored entry stale on arrival. Concurrent misses for the same
// key and generation share one load.
func ReadThrough[T any](ctx context.Context, l *Layer, res Resource, orgID, sub string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	key := l.EntryKey(res, orgID, sub)

	gen, err := l.backend.Counter(ctx, l.CounterKey(res, orgID))
	if err != nil {
		l.unavailable("counter", key, err)
		return load(ctx)
	}

	raw, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		l.unavailable("get", key, err)
	} else if ok {
		var env envelope
		if err := json.Unmarshal(raw, &env); err == nil && env.Generation == gen {
			var v T
			if err := json.Unmarshal(env.Payload, &v); err == nil {
				return v, nil
			}
		}
	}

	// The shared load runs detached from the caller that started it; each
	// caller stops waiting when its own ctx ends.
	leader := false
	ch := l.group.DoChan(key+"#"+strconv.FormatInt(gen, 10), func() (any, error) {
		leader = true
		loadCtx := context.WithoutCancel(ctx)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		return shared{value: v, payload: l.store(loadCtx, res, key, gen, v)}, nil
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if r.Err != nil {
		return zero, r.Err
	}

	out := r.Val.(shared)
	if leader || out.payload == nil {
		return out.value.(T), nil
	}
	// Waiters get their own copy of the view.
	var v T
	if err := json.Unmarshal(out.payload, &v); err != nil {
		return out.value.(T), nil
	}
	return v, nil
}

// shared is the result of a load handed to every waiter.
type shared struct {
	value   any
	payload []byte
}

// store writes v under key and returns its encoded payload, or nil when it
// could not be encoded.
func (l *Layer) store(ctx context.Context, res Resource, key string, gen int64, v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		l.log.Error("encoding cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	raw, err := json.Marshal(envelope{Generation: gen, CachedAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		l.log.Error("encoding cache envelope", zap.String("key", key), zap.Error(err))
		return payload
	}
	if err := l.backend.Set(ctx, key, raw, l.ttl(res)); err != nil {
		l.unavailable("set", key, err)
	}
	return payload
}

// Target is one view affected by a write. Sub is empty for list views.
type Target struct {
	Resource Resource
	Sub      string
}

func (t Target) String() string {
	if t.Sub == "" {
		return string(t.Resource)
	}
	return fmt.Sprintf("%s/%s", t.Resource, t.Sub)
}

// Invalidate runs after a committed write to orgID. It deletes the affected
// entries and bumps the counter of every affected resource once, however
// many targets name it. It reports the resources whose counter advanced.
func (l *Layer) Invalidate(ctx context.Context, orgID string, targets ...Target) []Resource {
	keys := make([]string, 0, len(targets))
	var resources []Resource
	seen := make(map[Resource]bool, len(targets))
	for _, t := range targets {
		keys = append(keys, l.EntryKey(t.Resource, orgID, t.Sub))
		if !seen[t.Resource] {
			seen[t.Resource] = true
			resources = append(resources, t.Resource)
		}
	}

	if err := l.backend.Del(ctx, keys...); err != nil {
		l.unavailable("del", fmt.Sprint(keys), err)
	}

	bumped := make([]Resource, 0, len(resources))
	for _, res := range resources {
		key := l.CounterKey(res, orgID)
		_, err := backoff.Retry(ctx, func() (int64, error) {
			return l.backend.Incr(ctx, key)
		},
			backoff.WithBackOff(newBackOff()),
			backoff.WithMaxTries(l.opts.CounterRetries),
		)
		if err != nil {
			l.unavailable("incr", key, err)
			continue
		}
		bumped = append(bumped, res)
	}
	return bumped
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return b
}
