package store

/*
  The feed server keeps the following schema:

  * feeds               - ordered set of feed ids, scored by next expiry
  * feeds:next_id       - feed id allocator
  * feed:url:<url>      - unique id of the feed at that URL
  * feed:<id>           - JSON feed record
  * feed:<id>:items     - ordered set of item keys, scored by item date
  * feed:<id>:delay     - current failure backoff, in milliseconds
  * item:<guid>         - JSON item record
  * item:<guid>:feeds   - set of all feed ids containing this item
*/

const (
	// ScheduleKey is the global schedule of feeds ordered by next expiry.
	ScheduleKey = "feeds"

	// NextFeedIDKey is the counter that allocates feed ids.
	NextFeedIDKey = "feeds:next_id"
)

func FeedURLKey(url string) string  { return "feed:url:" + url }
func FeedKey(id string) string      { return "feed:" + id }
func FeedItemsKey(id string) string { return "feed:" + id + ":items" }
func FeedDelayKey(id string) string { return "feed:" + id + ":delay" }

func ItemKey(guid string) string      { return "item:" + guid }
func ItemFeedsKey(guid string) string { return "item:" + guid + ":feeds" }
