package models

// KindItem tags records produced from <item> elements so the channel
// handler can tell them apart from plain named children.
const KindItem = "item"

// Item is one entry of a feed's channel: a flat record keyed by child
// element name. Values are text content or an attribute mapping; every child
// element is captured verbatim. Items round-trip through JSON for storage,
// so numeric fields are float64.
type Item map[string]any

// GUID returns the item's identity key: the explicit guid when present,
// populated from link or enclosure URL at parse time otherwise. Empty means
// no identity could be derived and the item must not be stored.
func (it Item) GUID() string { return it.text("guid") }

func (it Item) Title() string       { return it.text("title") }
func (it Item) Description() string { return it.text("description") }
func (it Item) Link() string        { return it.text("link") }

// Date returns the item's publication time in unix milliseconds, derived
// from pubDate at parse time. Zero when the item carried no parseable date.
func (it Item) Date() int64 {
	if ms, ok := it["date"].(float64); ok {
		return int64(ms)
	}
	return 0
}

// EnclosureURL returns the url attribute of the item's enclosure, if any.
func (it Item) EnclosureURL() string {
	switch attrs := it["enclosure"].(type) {
	case map[string]string:
		return attrs["url"]
	case map[string]any:
		if s, ok := attrs["url"].(string); ok {
			return s
		}
	}
	return ""
}

func (it Item) text(key string) string {
	if s, ok := it[key].(string); ok {
		return s
	}
	return ""
}
