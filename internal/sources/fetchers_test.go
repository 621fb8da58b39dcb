package sources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>"Miza" - Google News</title>
  <item>
    <title>Miza mở rộng nhà máy - VnExpress</title>
    <link>https://news.example.com/a</link>
    <pubDate>Tue, 14 Oct 2025 08:30:00 GMT</pubDate>
  </item>
  <item>
    <title>MZG báo lãi quý III</title>
    <link>https://news.example.com/b</link>
  </item>
</channel>
</rss>`

func TestGoogleNews_URL(t *testing.T) {
	g := NewGoogleNews("Miza Nghi Sơn")
	assert.Equal(t, "https://news.google.com/rss/search?ceid=VN%3Avi&gl=VN&hl=vi&q=Miza+Nghi+S%C6%A1n", g.URL())
}

func TestGoogleNews_Fetch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, sampleRSS)
	}))
	defer srv.Close()

	g := NewGoogleNews("MZG")
	g.BaseURL = srv.URL

	items, err := g.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MZG", query)
	require.Len(t, items, 2)

	assert.Equal(t, "https://news.example.com/a", items[0].Link)
	require.NotNil(t, items[0].Published)
	assert.True(t, time.Date(2025, 10, 14, 8, 30, 0, 0, time.UTC).Equal(*items[0].Published))

	assert.Nil(t, items[1].Published)
	assert.Empty(t, items[1].PublishedText)
}

func TestRSSFeed_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&RSSFeed{URL: srv.URL}).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
}

func TestYouTubeSearch_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/", r.URL.Path)
		assert.Equal(t, "MIZACORP", r.URL.Query().Get("q"))
		assert.Equal(t, YouTubeHost, r.Header.Get("x-rapidapi-host"))
		assert.Equal(t, "secret", r.Header.Get("x-rapidapi-key"))
		_, _ = io.WriteString(w, `{"contents":[
			{"type":"video","video":{"videoId":"abc123","title":"MIZACORP giới thiệu","publishedTimeText":"2 hours ago"}},
			{"type":"channel","channel":{"title":"ignored"}},
			{"type":"video","video":{"title":"missing id"}}
		]}`)
	}))
	defer srv.Close()

	client := NewRapidClient("secret").WithBaseURL(YouTubeHost, srv.URL)
	items, err := (&YouTubeSearch{Client: client, Query: "MIZACORP"}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", items[0].Link)
	assert.Equal(t, "MIZACORP giới thiệu", items[0].Title)
	assert.Equal(t, "2 hours ago", items[0].PublishedText)
}

func TestTikTokPosts_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user/posts", r.URL.Path)
		assert.Equal(t, "SEC", r.URL.Query().Get("secUid"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		_, _ = io.WriteString(w, `{"data":[
			{"id":"7001","desc":"Miza tuyển dụng","createTime":1760400000,"author":{"uniqueId":"_mizagroup"}},
			{"id":"7002","desc":"no author"}
		]}`)
	}))
	defer srv.Close()

	client := NewRapidClient("k").WithBaseURL(TikTokHost, srv.URL)
	items, err := (&TikTokPosts{Client: client, SecUID: "SEC"}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.tiktok.com/@_mizagroup/video/7001", items[0].Link)
	require.NotNil(t, items[0].Published)
	assert.Equal(t, int64(1760400000), items[0].Published.Unix())
}

func TestInstagramPosts_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "mizagroupvn", payload["username"])

		_, _ = io.WriteString(w, `{"data":[{"caption":"Miza tại triển lãm","link":"https://instagram.com/p/xyz"}]}`)
	}))
	defer srv.Close()

	client := NewRapidClient("k").WithBaseURL(InstagramHost, srv.URL)
	items, err := (&InstagramPosts{Client: client, Username: "mizagroupvn"}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://instagram.com/p/xyz", items[0].Link)
	assert.Nil(t, items[0].Published)
}

func TestRapidClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>rate limited</html>")
	}))
	defer srv.Close()

	client := NewRapidClient("k").WithBaseURL(FacebookHost, srv.URL)
	_, err := (&FacebookPage{Client: client, PageID: "1"}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTMLPage_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body>
			<article>
				<h3><a href="/tin/miza-1.html">Miza  khánh thành
					dây chuyền mới</a></h3>
				<span class="date">14/10/2025 08:30</span>
			</article>
			<article>
				<h3><a href="https://other.example.com/b">MZG tăng trần</a></h3>
				<time datetime="2025-10-13T09:00:00+07:00">Hôm qua</time>
			</article>
			<article><h3>No link here</h3></article>
		</body></html>`)
	}))
	defer srv.Close()

	page := &HTMLPage{
		URL:           srv.URL + "/kinh-doanh/",
		ItemSelector:  "article",
		TitleSelector: "h3",
		LinkSelector:  "a",
		DateSelector:  "time, .date",
	}

	items, err := page.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, srv.URL+"/tin/miza-1.html", items[0].Link)
	assert.Equal(t, "Miza khánh thành dây chuyền mới", items[0].Title)
	assert.Equal(t, "14/10/2025 08:30", items[0].PublishedText)
	assert.Nil(t, items[0].Published)

	assert.Equal(t, "https://other.example.com/b", items[1].Link)
	require.NotNil(t, items[1].Published)
	assert.Equal(t, 2025, items[1].Published.Year())
}
