// Package feedserver orchestrates feed polling: it owns the persistent
// schedule, drives fetch timing with retry backoff, upserts parsed items,
// and notifies the registered listener of new or changed items.
package feedserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pgray/feedserver/config"
	"github.com/pgray/feedserver/lib/diff"
	"github.com/pgray/feedserver/lib/models"
	"github.com/pgray/feedserver/lib/rss"
	"github.com/pgray/feedserver/lib/store"
)

const (
	// minExpiry floors how soon a successful fetch may be rescheduled.
	minExpiry = 5 * time.Minute

	// baseBackoff is the first retry delay after a failed fetch; consecutive
	// failures double it.
	baseBackoff = 5 * time.Minute
)

// ItemListener receives every item creation or update. feedIDs holds all
// feeds currently containing the item, resolved at notification time.
// changes is nil for new items and describes the differing fields otherwise.
type ItemListener func(item models.Item, feedIDs []string, isNew bool, changes diff.Delta)

// Server is the polling orchestrator. Multiple independent servers can be
// constructed; all shared state lives in the injected store.
type Server struct {
	log        *zap.Logger
	store      store.Store
	fetcher    *rss.Fetcher
	instanceID string

	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	stopped  bool
	inflight map[string]bool
	onItem   ItemListener
}

func NewServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, st store.Store, fetcher *rss.Fetcher) *Server {
	s := &Server{
		log:        log,
		store:      st,
		fetcher:    fetcher,
		instanceID: uuid.NewString(),
		interval:   cfg.RefreshInterval(),
		inflight:   make(map[string]bool),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			for _, url := range cfg.FeedURLs {
				go func(url string) {
					if _, err := s.Register(context.Background(), url); err != nil {
						log.Sugar().Errorw("Failed to register seed feed", "url", url, "err", err)
					}
				}(url)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Infof("Stopping feed server %s", s.instanceID)
			s.Stop()
			return nil
		},
	})

	return s
}

// Register idempotently maps a URL to a feed id, allocating a new sequential
// id only for unseen URLs, then triggers a conditional refresh check in the
// background.
func (s *Server) Register(ctx context.Context, url string) (string, error) {
	key := store.FeedURLKey(url)

	id, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		n, err := s.store.Incr(ctx, store.NextFeedIDKey)
		if err != nil {
			return "", fmt.Errorf("register %s: %w", url, err)
		}
		id = strconv.FormatInt(n, 10)

		// SetNX keeps registration idempotent when two callers race on the
		// same unseen URL: only one id wins, the other allocation is unused.
		won, err := s.store.SetNX(ctx, key, id)
		if err != nil {
			return "", fmt.Errorf("register %s: %w", url, err)
		}
		if !won {
			if id, err = s.store.Get(ctx, key); err != nil {
				return "", fmt.Errorf("register %s: %w", url, err)
			}
		} else {
			s.log.Sugar().Infow("Registered feed", "url", url, "feed_id", id)
		}

	case err != nil:
		return "", fmt.Errorf("register %s: %w", url, err)
	}

	go s.maybeUpdateFeed(context.Background(), id, url)
	return id, nil
}

// maybeUpdateFeed fetches the feed when it has never been read or its
// expiry has elapsed.
func (s *Server) maybeUpdateFeed(ctx context.Context, id, url string) {
	var etag string

	raw, err := s.store.Get(ctx, store.FeedKey(id))
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Never fetched.
	case err != nil:
		s.log.Sugar().Errorw("Failed to read feed record", "feed_id", id, "err", err)
		return
	default:
		var feed models.Feed
		if err := json.Unmarshal([]byte(raw), &feed); err != nil {
			s.log.Sugar().Errorw("Corrupt feed record", "feed_id", id, "err", err)
			return
		}
		if feed.Expires > 0 && feed.Expires > time.Now().UnixMilli() {
			return
		}
		etag = feed.ETag
	}

	s.readFeed(ctx, id, url, etag)
}

// readFeed performs one fetch attempt for a feed. Overlapping attempts for
// the same feed id are collapsed: the second caller returns immediately.
func (s *Server) readFeed(ctx context.Context, id, url, etag string) {
	s.mu.Lock()
	if s.inflight[id] {
		s.mu.Unlock()
		s.log.Sugar().Debugw("Fetch already in flight, skipping", "feed_id", id)
		return
	}
	s.inflight[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	res, err := s.fetcher.Fetch(ctx, url, etag)
	if err != nil {
		s.log.Sugar().Infow("Feed fetch failed", "feed_id", id, "url", url, "err", err)
		s.delayFeed(ctx, id, url)
		return
	}
	if !res.OK() {
		s.delayFeed(ctx, id, url)
		return
	}

	s.updateFeed(ctx, id, res.Feed, res.Items)
}

// FeedInfo returns the stored metadata for a feed id.
func (s *Server) FeedInfo(ctx context.Context, id string) (*models.Feed, error) {
	raw, err := s.store.Get(ctx, store.FeedKey(id))
	if err != nil {
		return nil, err
	}
	var feed models.Feed
	if err := json.Unmarshal([]byte(raw), &feed); err != nil {
		return nil, fmt.Errorf("feed %s: %w", id, err)
	}
	return &feed, nil
}

// Items returns a feed's items ordered by date.
func (s *Server) Items(ctx context.Context, id string) ([]models.Item, error) {
	keys, err := s.store.ZRangeByScore(ctx, store.FeedItemsKey(id), negInf, posInf)
	if err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}

		var item models.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			s.log.Sugar().Warnf("Corrupt item record at %s: %v", key, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// OnItem registers the single global listener invoked on every item
// creation or update. A later call replaces the previous listener.
func (s *Server) OnItem(fn ItemListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onItem = fn
}

func (s *Server) notify(ctx context.Context, item models.Item, isNew bool, changes diff.Delta) {
	s.mu.Lock()
	fn := s.onItem
	s.mu.Unlock()
	if fn == nil {
		return
	}

	feedIDs, err := s.store.SMembers(ctx, store.ItemFeedsKey(item.GUID()))
	if err != nil {
		s.log.Sugar().Errorw("Failed to resolve item feed set", "guid", item.GUID(), "err", err)
	}
	fn(item, feedIDs, isNew, changes)
}
