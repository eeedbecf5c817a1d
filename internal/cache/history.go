// Package cache keeps recent room history in Redis in front of the event log
// (cache-aside on reads, invalidate on append).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"draw-new/internal/store"
	"draw-new/pkg/metrics"
)

// EventLog is the durable log the cache sits in front of.
type EventLog interface {
	Append(ctx context.Context, ev store.Event) (store.Event, error)
	ListByRoom(ctx context.Context, roomID string, limit int) ([]store.Event, error)
}

// History is an EventLog whose ListByRoom is served from Redis when possible.
// Redis failures never fail a call; they fall through to the log.
type History struct {
	rdb    *redis.Client
	next   EventLog
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewHistory wraps next with a Redis cache of per-room history pages.
func NewHistory(rdb *redis.Client, next EventLog, ttl time.Duration, log *slog.Logger) *History {
	return &History{rdb: rdb, next: next, ttl: ttl, prefix: "draw:history:", log: log}
}

// Append writes through to the log, then drops the room's cached pages.
func (h *History) Append(ctx context.Context, ev store.Event) (store.Event, error) {
	saved, err := h.next.Append(ctx, ev)
	if err != nil {
		return store.Event{}, err
	}
	if err := h.rdb.Del(ctx, h.key(ev.RoomID)).Err(); err != nil {
		h.log.Warn("history.invalidate", "room", ev.RoomID, "err", err)
	}
	return saved, nil
}

// ListByRoom returns cached history for (roomID, limit) or loads and caches it.
func (h *History) ListByRoom(ctx context.Context, roomID string, limit int) ([]store.Event, error) {
	key, field := h.key(roomID), fmt.Sprint(limit)

	raw, err := h.rdb.HGet(ctx, key, field).Bytes()
	switch {
	case err == nil:
		var evs []store.Event
		if jerr := json.Unmarshal(raw, &evs); jerr == nil {
			metrics.HistoryCache.WithLabelValues("hit").Inc()
			return evs, nil
		}
		metrics.HistoryCache.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.HistoryCache.WithLabelValues("miss").Inc()
	default:
		metrics.HistoryCache.WithLabelValues("error").Inc()
		h.log.Warn("history.cache.get", "room", roomID, "err", err)
	}

	evs, err := h.next.ListByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(evs); jerr == nil {
		pipe := h.rdb.TxPipeline()
		pipe.HSet(ctx, key, field, b)
		pipe.Expire(ctx, key, h.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			h.log.Warn("history.cache.set", "room", roomID, "err", err)
		}
	}
	return evs, nil
}

// one hash per room, one field per page size, so a single DEL invalidates all
func (h *History) key(roomID string) string { return h.prefix + roomID }
