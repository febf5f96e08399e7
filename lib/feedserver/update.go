package feedserver

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/pgray/feedserver/lib/diff"
	"github.com/pgray/feedserver/lib/models"
	"github.com/pgray/feedserver/lib/store"
)

// updateFeed persists the result of a successful fetch: the feed record, its
// slot in the global schedule, and every parsed item. A successful fetch
// also resets the failure backoff.
func (s *Server) updateFeed(ctx context.Context, id string, feed *models.Feed, items []models.Item) {
	now := time.Now().UnixMilli()
	if feed.Expires == 0 {
		feed.Expires = now + time.Hour.Milliseconds()
	}
	if floor := now + minExpiry.Milliseconds(); feed.Expires < floor {
		feed.Expires = floor
	}

	raw, err := json.Marshal(feed)
	if err != nil {
		s.log.Sugar().Errorw("Failed to encode feed record", "feed_id", id, "err", err)
		return
	}
	if _, err := s.store.GetSet(ctx, store.FeedKey(id), string(raw)); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Sugar().Errorw("Failed to persist feed record", "feed_id", id, "err", err)
		return
	}

	err = s.store.Batch(ctx, func(b store.Batch) {
		b.ZAdd(store.ScheduleKey, float64(feed.Expires), id)
		b.Set(store.FeedDelayKey(id), "0")
	})
	if err != nil {
		s.log.Sugar().Errorw("Failed to reschedule feed", "feed_id", id, "err", err)
	}

	s.log.Sugar().Infow("Feed updated",
		"feed_id", id, "title", feed.Channel.Title(), "items", len(items),
		"next_fetch", time.UnixMilli(feed.Expires).UTC())

	for _, item := range items {
		s.updateItem(ctx, id, item)
	}
}

// delayFeed applies exponential backoff after a failed fetch: double the
// previous delay when one is on record, else the base delay. The new delay
// and the rescheduled slot are written as one atomic unit.
func (s *Server) delayFeed(ctx context.Context, id, url string) {
	// A feed that has never fetched successfully has no record yet; the
	// scheduler recovers the URL from the record, so seed a minimal one.
	// SetNX never clobbers a record written by a successful fetch.
	if raw, err := json.Marshal(&models.Feed{URL: url}); err == nil {
		if _, err := s.store.SetNX(ctx, store.FeedKey(id), string(raw)); err != nil {
			s.log.Sugar().Errorw("Failed to seed feed record", "feed_id", id, "err", err)
		}
	}

	delay := baseBackoff
	if raw, err := s.store.Get(ctx, store.FeedDelayKey(id)); err == nil {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			delay = 2 * time.Duration(ms) * time.Millisecond
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Sugar().Errorw("Failed to read backoff delay", "feed_id", id, "err", err)
	}

	next := time.Now().Add(delay)
	err := s.store.Batch(ctx, func(b store.Batch) {
		b.Set(store.FeedDelayKey(id), strconv.FormatInt(delay.Milliseconds(), 10))
		b.ZAdd(store.ScheduleKey, float64(next.UnixMilli()), id)
	})
	if err != nil {
		s.log.Sugar().Errorw("Failed to persist backoff", "feed_id", id, "err", err)
		return
	}

	s.log.Sugar().Infow("Feed delayed", "feed_id", id, "delay", delay, "next_fetch", next.UTC())
}

// updateItem upserts one parsed item: records the feed's membership in the
// item's feed set, replaces the stored record, and on creation or change
// refreshes the item's position in the feed's date ordering and notifies
// the listener.
func (s *Server) updateItem(ctx context.Context, feedID string, item models.Item) {
	guid := item.GUID()
	if guid == "" {
		s.log.Sugar().Warnw("Item has no derivable identity, skipping", "feed_id", feedID, "title", item.Title())
		return
	}

	if err := s.store.SAdd(ctx, store.ItemFeedsKey(guid), feedID); err != nil {
		s.log.Sugar().Errorw("Failed to record item membership", "guid", guid, "err", err)
		return
	}

	raw, err := json.Marshal(item)
	if err != nil {
		s.log.Sugar().Errorw("Failed to encode item", "guid", guid, "err", err)
		return
	}

	score := float64(item.Date())
	if score == 0 {
		score = float64(time.Now().UnixMilli())
	}

	old, err := s.store.GetSet(ctx, store.ItemKey(guid), string(raw))
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := s.store.ZAdd(ctx, store.FeedItemsKey(feedID), score, store.ItemKey(guid)); err != nil {
			s.log.Sugar().Errorw("Failed to order item", "guid", guid, "err", err)
		}
		s.log.Sugar().Infow("New item", "guid", guid, "title", item.Title())
		s.notify(ctx, item, true, nil)

	case err != nil:
		s.log.Sugar().Errorw("Failed to persist item", "guid", guid, "err", err)

	default:
		changes, changed := compareRecords(old, string(raw))
		if !changed {
			return
		}
		if err := s.store.ZAdd(ctx, store.FeedItemsKey(feedID), score, store.ItemKey(guid)); err != nil {
			s.log.Sugar().Errorw("Failed to order item", "guid", guid, "err", err)
		}
		s.log.Sugar().Infow("Updated item", "guid", guid, "title", item.Title(), "changes", len(changes))
		s.notify(ctx, item, false, changes)
	}
}

// compareRecords diffs two stored JSON records. Decoding both sides gives
// the diff engine identically-shaped values.
func compareRecords(oldRaw, newRaw string) (diff.Delta, bool) {
	var oldRec, newRec map[string]any
	if err := json.Unmarshal([]byte(oldRaw), &oldRec); err != nil {
		// Unreadable previous record: treat as changed with nothing finer
		// to report.
		return nil, true
	}
	if err := json.Unmarshal([]byte(newRaw), &newRec); err != nil {
		return nil, true
	}

	res := diff.Compare(oldRec, newRec)
	return res.Fields, res.Changed
}
