// Package rss turns raw RSS 2.0/0.9x documents into structured feed records
// and fetches them over HTTP with conditional-GET semantics.
package rss

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Songmu/go-httpdate"
	"go.uber.org/zap"

	"github.com/pgray/feedserver/lib/models"
)

// Document is the result of parsing one feed: the rss version attribute and
// the channel record, whose "items" key holds the item list in document
// order.
type Document struct {
	Version string         `json:"version,omitempty"`
	Channel models.Channel `json:"channel"`
}

func (d *Document) Items() []models.Item {
	if d.Channel == nil {
		return nil
	}
	return d.Channel.Items()
}

// Parser converts an XML byte stream into a Document. Element handlers are
// dispatched through registries resolved once at construction; a pre hook
// runs when an element opens, a post hook may replace the element's frame
// with a transformed record when it closes.
type Parser struct {
	log  *zap.Logger
	pre  map[string]preHook
	post map[string]postHook
}

type preHook func(st *parseState, f *frame)
type postHook func(st *parseState, f *frame) any

func NewParser(log *zap.Logger) *Parser {
	return &Parser{
		log: log,
		pre: map[string]preHook{
			"rss": preRSS,
		},
		post: map[string]postHook{
			"item":    processItem,
			"channel": processChannel,
			"rss":     processRSS,
		},
	}
}

// frame is one in-progress element. Its xmlns mapping is either shared with
// the parent by reference (ownsNS false, no local declarations) or a fresh
// clone owned by this frame (ownsNS true, local xmlns: attributes present).
type frame struct {
	name    string
	attrs   map[string]string
	xmlns   map[string]string
	ownsNS  bool
	content []any // string, *frame, or a record produced by a post hook
}

type parseState struct {
	log      *zap.Logger
	doc      *Document
	current  *frame
	stack    []*frame
	lastText bool
}

// Parse reads a full document. Only structurally invalid XML fails; missing
// optional fields never do.
func (p *Parser) Parse(data []byte) (*Document, error) {
	st := &parseState{
		log:     p.log,
		current: &frame{xmlns: map[string]string{}},
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("rss: parse: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			st.start(t, p.pre)
		case xml.EndElement:
			st.end(p.post)
		case xml.CharData:
			st.text(string(t))
		}
	}

	if st.doc == nil {
		return nil, errors.New("rss: document has no rss root element")
	}
	return st.doc, nil
}

func (st *parseState) start(el xml.StartElement, pre map[string]preHook) {
	f := &frame{}

	// Namespace declarations first, so attribute and element names can be
	// qualified against the complete mapping.
	for _, attr := range el.Attr {
		if attr.Name.Space == "xmlns" {
			if !f.ownsNS {
				f.xmlns = cloneNS(st.current.xmlns)
				f.ownsNS = true
			}
			f.xmlns[attr.Name.Local] = attr.Value
		}
	}
	if !f.ownsNS {
		f.xmlns = st.current.xmlns
	}

	for _, attr := range el.Attr {
		if attr.Name.Space == "xmlns" {
			continue
		}
		if f.attrs == nil {
			f.attrs = map[string]string{}
		}
		f.attrs[qualifiedName(attr.Name, f.xmlns)] = attr.Value
	}

	f.name = qualifiedName(el.Name, f.xmlns)
	st.stack = append(st.stack, st.current)
	st.current = f
	st.lastText = false

	if hook := pre[f.name]; hook != nil {
		hook(st, f)
	}
}

func (st *parseState) end(post map[string]postHook) {
	f := st.current
	var closed any = f
	if hook := post[f.name]; hook != nil {
		closed = hook(st, f)
	}

	last := len(st.stack) - 1
	st.current = st.stack[last]
	st.stack = st.stack[:last]
	st.current.content = append(st.current.content, closed)
	st.lastText = false
}

func (st *parseState) text(s string) {
	if st.lastText {
		last := len(st.current.content) - 1
		st.current.content[last] = st.current.content[last].(string) + s
		return
	}
	if strings.TrimSpace(s) == "" {
		return
	}
	st.current.content = append(st.current.content, s)
	st.lastText = true
}

// preRSS seeds the result before any of the root's children are visited.
func preRSS(st *parseState, f *frame) {
	st.doc = &Document{Version: f.attrs["version"]}
}

// processRSS attaches the completed channel under the root record.
func processRSS(st *parseState, f *frame) any {
	if len(f.content) > 0 {
		if ch, ok := f.content[0].(models.Channel); ok {
			st.doc.Channel = ch
		}
	}
	return st.doc
}

// processItem collapses an <item> into a flat record keyed by child element
// name, normalizes its pubDate, and derives its guid.
func processItem(st *parseState, f *frame) any {
	item := models.Item{"kind": models.KindItem}
	for _, entry := range f.content {
		child, ok := entry.(*frame)
		if !ok {
			continue
		}
		item[child.name] = singleValue(child)
	}

	if raw, ok := item["pubDate"].(string); ok {
		if t, err := parsePubDate(raw); err != nil {
			st.log.Sugar().Warnf("item: cannot parse date %q: %v", raw, err)
		} else {
			item["pubDate"] = t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
			item["date"] = float64(t.UnixMilli())
		}
	}

	if item.GUID() == "" {
		switch {
		case item.Link() != "":
			item["guid"] = item.Link()
		case item.EnclosureURL() != "":
			item["guid"] = item.EnclosureURL()
		default:
			st.log.Sugar().Warnf("item %q has no derivable guid", item.Title())
		}
	}
	return item
}

// processChannel collapses a <channel> into a flat record, collecting item
// records into "items". The channel's own link becomes the base URL for
// resolving item links; because the parse is a single linear pass, only
// items appearing after the <link> element can be resolved against it.
func processChannel(st *parseState, f *frame) any {
	ch := models.Channel{}
	items := []models.Item{}
	var base *url.URL

	for _, entry := range f.content {
		switch e := entry.(type) {
		case models.Item:
			if base != nil && e.Link() != "" {
				if ref, err := url.Parse(e.Link()); err == nil {
					e["link"] = base.ResolveReference(ref).String()
				}
			}
			items = append(items, e)

		case *frame:
			ch[e.name] = singleValue(e)
			if e.name == "link" {
				if u, err := url.Parse(ch.Link()); err == nil {
					base = u
				}
			}
		}
	}

	ch["items"] = items
	return ch
}

// singleValue reduces a closed frame to its text content when it has any,
// else its attribute mapping. Nested element children (such as the <url>
// inside <image>) are not descended into.
func singleValue(f *frame) any {
	if len(f.content) > 0 {
		if s, ok := f.content[0].(string); ok {
			return s
		}
	}
	return f.attrs
}

// Some feeds emit dates with a malformed "GMT+00:00" suffix; strip the
// offset so the timestamp parses.
var malformedGMT = regexp.MustCompile(`GMT[+-]00:00`)
var zeroOffset = regexp.MustCompile(`[+-]00:00`)

func parsePubDate(s string) (time.Time, error) {
	if malformedGMT.MatchString(s) {
		s = zeroOffset.ReplaceAllString(s, "")
	}
	return httpdate.Str2Time(s, time.UTC)
}

func qualifiedName(n xml.Name, xmlns map[string]string) string {
	if n.Space == "" {
		return n.Local
	}
	for prefix, uri := range xmlns {
		if uri == n.Space {
			return prefix + ":" + n.Local
		}
	}
	return n.Local
}

func cloneNS(src map[string]string) map[string]string {
	out := make(map[string]string, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
