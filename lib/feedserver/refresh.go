package feedserver

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/pgray/feedserver/lib/models"
	"github.com/pgray/feedserver/lib/store"
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// storeTimeout bounds schedule queries, never the fetches they trigger.
const storeTimeout = 20 * time.Second

// Start begins the refresh cycle. The first pass runs immediately; each pass
// re-arms the timer before doing any work, so the loop is self-sustaining
// regardless of fetch outcomes.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.stopped = false
	s.armLocked(0)
}

// Stop cancels the pending refresh timer. In-flight fetches are not
// interrupted. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// RefreshInterval returns the current polling cadence.
func (s *Server) RefreshInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetRefreshInterval changes the polling cadence. Shrinking the interval
// restarts the cycle immediately; growing it takes effect on the next
// natural tick.
func (s *Server) SetRefreshInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shrink := d < s.interval
	s.interval = d
	if shrink && !s.stopped && s.timer != nil {
		s.timer.Stop()
		s.armLocked(0)
	}
}

// armLocked requires s.mu held.
func (s *Server) armLocked(d time.Duration) {
	s.timer = time.AfterFunc(d, s.tick)
}

func (s *Server) tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.armLocked(s.interval)
	s.mu.Unlock()

	s.pollDueFeeds()
}

// pollDueFeeds queries the schedule for every feed whose slot has elapsed
// and triggers a fetch for each. Fetches run concurrently and complete
// independently; nothing here blocks the next tick.
func (s *Server) pollDueFeeds() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	now := time.Now().UnixMilli()
	ids, err := s.store.ZRangeByScore(ctx, store.ScheduleKey, negInf, float64(now))
	if err != nil {
		s.log.Sugar().Errorw("Failed to query schedule", "err", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	s.log.Sugar().Infow("Refreshing due feeds", "count", len(ids), "instance", s.instanceID)

	for _, id := range ids {
		raw, err := s.store.Get(ctx, store.FeedKey(id))
		if err != nil {
			s.log.Sugar().Errorw("Scheduled feed has no record", "feed_id", id, "err", err)
			continue
		}

		var feed models.Feed
		if err := json.Unmarshal([]byte(raw), &feed); err != nil {
			s.log.Sugar().Errorw("Corrupt feed record", "feed_id", id, "err", err)
			continue
		}

		go s.readFeed(context.Background(), id, feed.URL, feed.ETag)
	}
}
