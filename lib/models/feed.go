package models

import "strconv"

// Feed is the persisted record for one polled source. Timestamps are unix
// milliseconds to keep them usable as sorted-set scores.
type Feed struct {
	URL      string  `json:"url"`
	Version  string  `json:"version,omitempty"`
	Channel  Channel `json:"channel,omitempty"`
	ETag     string  `json:"etag,omitempty"`
	Expires  int64   `json:"expires,omitempty"`
	LastRead int64   `json:"lastRead,omitempty"`
}

// Channel holds the channel-level elements of a parsed feed, keyed by element
// name. Values are either text content or an attribute mapping, captured
// verbatim from the document.
type Channel map[string]any

func (ch Channel) Title() string       { return ch.text("title") }
func (ch Channel) Description() string { return ch.text("description") }
func (ch Channel) Link() string        { return ch.text("link") }

// TTLMinutes returns the channel's declared ttl hint, if it carries one that
// parses as a whole number of minutes.
func (ch Channel) TTLMinutes() (int, bool) {
	s := ch.text("ttl")
	if s == "" {
		return 0, false
	}
	mins, err := strconv.Atoi(s)
	if err != nil || mins <= 0 {
		return 0, false
	}
	return mins, true
}

// Items returns the channel's items in document order.
func (ch Channel) Items() []Item {
	switch v := ch["items"].(type) {
	case []Item:
		return v
	}
	return nil
}

// WithoutItems returns a copy of the channel suitable for persisting on the
// feed record, with the item list stripped out.
func (ch Channel) WithoutItems() Channel {
	out := make(Channel, len(ch))
	for k, v := range ch {
		if k == "items" {
			continue
		}
		out[k] = v
	}
	return out
}

func (ch Channel) text(key string) string {
	if s, ok := ch[key].(string); ok {
		return s
	}
	return ""
}
