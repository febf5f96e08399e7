package rss

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Songmu/go-httpdate"
	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"

	"github.com/pgray/feedserver/lib/models"
)

const userAgent = "feedserver/1.0"

// defaultTTL is the re-fetch interval assumed when the response carries no
// Expires header and the channel declares no ttl.
const defaultTTL = time.Hour

// FetchResult is the outcome of one fetch attempt. Feed and Items are set
// only for 2xx responses.
type FetchResult struct {
	Status int
	Feed   *models.Feed
	Items  []models.Item
}

func (r *FetchResult) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Fetcher performs conditional GETs for feed URLs and normalizes the
// response into a feed record. It performs no persistence.
type Fetcher struct {
	log       *zap.Logger
	transport http.RoundTripper
	parser    *Parser
}

func NewFetcher(log *zap.Logger, transport http.RoundTripper) *Fetcher {
	return &Fetcher{log, transport, NewParser(log)}
}

// Fetch issues a GET for the feed URL, conditional on etag when one is
// known. Transport errors and unparseable bodies return an error; HTTP-level
// failure is reported through FetchResult.Status, with the backoff decision
// left to the caller.
func (f *Fetcher) Fetch(ctx context.Context, feedURL, etag string) (*FetchResult, error) {
	var (
		raw    string
		status int
		header http.Header
	)

	req := requests.URL(feedURL).
		Transport(f.transport).
		Header("User-Agent", userAgent).
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			header = res.Header.Clone()
			return nil
		}).
		ToString(&raw)
	if etag != "" {
		req = req.Header("If-None-Match", etag)
	}

	if err := req.Fetch(ctx); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}

	result := &FetchResult{Status: status}
	if !result.OK() {
		f.log.Sugar().Infow("Feed fetch returned non-2xx", "url", feedURL, "status", status)
		return result, nil
	}

	doc, err := f.parser.Parse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}

	now := time.Now()
	feed := &models.Feed{
		URL:      feedURL,
		Version:  doc.Version,
		Channel:  doc.Channel.WithoutItems(),
		LastRead: now.UnixMilli(),
	}

	if exp := header.Get("Expires"); exp != "" {
		if t, err := httpdate.Str2Time(exp, time.UTC); err != nil {
			f.log.Sugar().Warnf("Feed %s: unparseable Expires header %q", feedURL, exp)
		} else {
			feed.Expires = t.UnixMilli()
		}
	}
	if et := header.Get("ETag"); et != "" {
		feed.ETag = et
	}
	if feed.Expires == 0 {
		ttl := defaultTTL
		if mins, ok := doc.Channel.TTLMinutes(); ok {
			ttl = time.Duration(mins) * time.Minute
		}
		feed.Expires = now.Add(ttl).UnixMilli()
		f.log.Sugar().Debugw("Feed TTL applied", "url", feedURL, "ttl", ttl)
	}

	result.Feed = feed
	result.Items = doc.Items()
	return result, nil
}
