// Package cache keeps rendered list views in Redis and broadcasts
// invalidation signals when the data behind them changes.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/imaginify/internal/metrics"
)

const (
	// InvalidationChannel carries the path whose views went stale.
	InvalidationChannel = "views:invalidate"
	// GalleryPath prefixes every cached page of the public image gallery.
	GalleryPath = "/api/images"
	viewPrefix          = "view:"
	scanBatch           = 100
)

// Invalidator signals that views rooted at a path are stale. Delivery is
// best effort; failures are logged and never reach the caller.
type Invalidator interface {
	Invalidate(ctx context.Context, path string)
}

// Views is a Redis backed view cache keyed by request path.
type Views struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewViews(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Views {
	if logger == nil {
		logger = slog.Default()
	}
	return &Views{client: client, ttl: ttl, logger: logger}
}

func (v *Views) key(path string) string {
	return viewPrefix + path
}

// Get returns the cached body for path, or (nil, false) on a miss.
func (v *Views) Get(ctx context.Context, path string) ([]byte, bool) {
	data, err := v.client.Get(ctx, v.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		v.logger.Warn("View cache read failed", "path", path, "error", err)
		return nil, false
	}
	return data, true
}

func (v *Views) Set(ctx context.Context, path string, body []byte) {
	if err := v.client.Set(ctx, v.key(path), body, v.ttl).Err(); err != nil {
		v.logger.Warn("View cache write failed", "path", path, "error", err)
	}
}

// Invalidate drops every cached view whose path starts with path and
// publishes path on InvalidationChannel.
func (v *Views) Invalidate(ctx context.Context, path string) {
	if path == "" {
		path = "/"
	}
	metrics.ViewInvalidations.Inc()

	var removed int
	iter := v.client.Scan(ctx, 0, v.key(path)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if err := v.client.Del(ctx, iter.Val()).Err(); err != nil {
			v.logger.Warn("View cache delete failed", "key", iter.Val(), "error", err)
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		v.logger.Warn("View cache scan failed", "path", path, "error", err)
	}

	if err := v.client.Publish(ctx, InvalidationChannel, path).Err(); err != nil {
		v.logger.Warn("Invalidation publish failed", "path", path, "error", err)
		return
	}
	v.logger.Info("🧹 Views invalidated", "path", path, "removed", removed)
}

// Nop discards invalidation signals.
type Nop struct{}

func (Nop) Invalidate(context.Context, string) {}
