package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const feedBody = `<rss version="2.0">
  <channel>
    <title>Example</title>
    <link>http://x/</link>
    <item><title>T</title><link>http://x/a</link></item>
  </channel>
</rss>`

const feedBodyWithTTL = `<rss version="2.0">
  <channel>
    <title>Example</title>
    <ttl>2</ttl>
  </channel>
</rss>`

func newFetcher() *Fetcher {
	return NewFetcher(zap.NewNop(), http.DefaultTransport)
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	before := time.Now().UnixMilli()
	res, err := newFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, http.StatusOK, res.Status)
	require.NotNil(t, res.Feed)
	assert.Equal(t, srv.URL, res.Feed.URL)
	assert.Equal(t, `"abc123"`, res.Feed.ETag)
	assert.Equal(t, "Example", res.Feed.Channel.Title())
	assert.GreaterOrEqual(t, res.Feed.LastRead, before)
	require.Len(t, res.Items, 1)

	// Items never live on the persisted channel record.
	_, hasItems := res.Feed.Channel["items"]
	assert.False(t, hasItems)
}

func TestFetch_SendsETagConditionally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"known"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	res, err := newFetcher().Fetch(context.Background(), srv.URL, `"known"`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res.Status)
	assert.False(t, res.OK())
	assert.Nil(t, res.Feed)
}

func TestFetch_ExpiresHeaderWins(t *testing.T) {
	expires := time.Now().Add(45 * time.Minute).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Expires", expires.Format(http.TimeFormat))
		w.Write([]byte(feedBodyWithTTL))
	}))
	defer srv.Close()

	res, err := newFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	require.NotNil(t, res.Feed)
	assert.Equal(t, expires.UnixMilli(), res.Feed.Expires)
}

func TestFetch_ChannelTTLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBodyWithTTL))
	}))
	defer srv.Close()

	before := time.Now()
	res, err := newFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	require.NotNil(t, res.Feed)

	want := before.Add(2 * time.Minute).UnixMilli()
	assert.InDelta(t, want, res.Feed.Expires, float64(5*time.Second.Milliseconds()))
}

func TestFetch_DefaultTTLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	before := time.Now()
	res, err := newFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	require.NotNil(t, res.Feed)

	want := before.Add(time.Hour).UnixMilli()
	assert.InDelta(t, want, res.Feed.Expires, float64(5*time.Second.Milliseconds()))
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := newFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.Nil(t, res.Feed)
	assert.Nil(t, res.Items)
}

func TestFetch_TransportFailure(t *testing.T) {
	_, err := newFetcher().Fetch(context.Background(), "http://127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestFetch_UnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer srv.Close()

	_, err := newFetcher().Fetch(context.Background(), srv.URL, "")
	assert.Error(t, err)
}
