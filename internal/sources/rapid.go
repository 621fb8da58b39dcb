package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// RapidAPI hosts used by the video sources.
const (
	YouTubeHost   = "youtube138.p.rapidapi.com"
	TikTokHost    = "tiktok-api23.p.rapidapi.com"
	InstagramHost = "instagram120.p.rapidapi.com"
	FacebookHost  = "facebook-scraper3.p.rapidapi.com"
)

// RapidClient calls RapidAPI endpoints with the account key, spacing
// requests so a poll does not exhaust the plan's quota.
type RapidClient struct {
	key     string
	client  *http.Client
	limiter *rate.Limiter
	// baseURLs maps a RapidAPI host to the URL actually dialled.
	baseURLs map[string]string
}

// NewRapidClient creates a client limited to one request per second with a
// burst of two.
func NewRapidClient(key string) *RapidClient {
	return &RapidClient{
		key:      key,
		client:   defaultHTTPClient(),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		baseURLs: map[string]string{},
	}
}

// WithBaseURL routes requests for host to baseURL.
func (c *RapidClient) WithBaseURL(host, baseURL string) *RapidClient {
	c.baseURLs[host] = strings.TrimRight(baseURL, "/")
	return c
}

// Get calls path on host and returns the parsed JSON body.
func (c *RapidClient) Get(ctx context.Context, host, path string, params url.Values) (gjson.Result, error) {
	return c.call(ctx, http.MethodGet, host, path, params, nil)
}

// Post sends payload as JSON to path on host.
func (c *RapidClient) Post(ctx context.Context, host, path string, payload any) (gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.call(ctx, http.MethodPost, host, path, nil, body)
}

func (c *RapidClient) call(ctx context.Context, method, host, path string, params url.Values, payload []byte) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	base, ok := c.baseURLs[host]
	if !ok {
		base = "https://" + host
	}
	u := base + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	header := http.Header{}
	header.Set("x-rapidapi-host", host)
	header.Set("x-rapidapi-key", c.key)
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}

	body, err := send(ctx, c.client, method, u, payload, header)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid json from %s", host)
	}
	return gjson.ParseBytes(body), nil
}

// YouTubeSearch lists videos matching Query.
type YouTubeSearch struct {
	Client *RapidClient
	Query  string
}

func (y *YouTubeSearch) Fetch(ctx context.Context) ([]NativeItem, error) {
	params := url.Values{}
	params.Set("q", y.Query)
	params.Set("hl", "en")
	params.Set("gl", "VN")

	res, err := y.Client.Get(ctx, YouTubeHost, "search/", params)
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	var items []NativeItem
	res.Get("contents.#.video").ForEach(func(_, video gjson.Result) bool {
		id := video.Get("videoId").String()
		if id == "" {
			return true
		}
		items = append(items, NativeItem{
			Title:         video.Get("title").String(),
			Link:          "https://www.youtube.com/watch?v=" + id,
			PublishedText: video.Get("publishedTimeText").String(),
		})
		return true
	})
	return items, nil
}

// TikTokPosts lists the posts of one account.
type TikTokPosts struct {
	Client *RapidClient
	SecUID string
	Count  int
}

func (t *TikTokPosts) Fetch(ctx context.Context) ([]NativeItem, error) {
	count := t.Count
	if count <= 0 {
		count = 20
	}
	params := url.Values{}
	params.Set("secUid", t.SecUID)
	params.Set("count", fmt.Sprint(count))
	params.Set("cursor", "0")

	res, err := t.Client.Get(ctx, TikTokHost, "api/user/posts", params)
	if err != nil {
		return nil, fmt.Errorf("tiktok posts: %w", err)
	}

	list := res.Get("data.itemList")
	if !list.Exists() {
		list = res.Get("data")
	}

	var items []NativeItem
	list.ForEach(func(_, post gjson.Result) bool {
		id := post.Get("id").String()
		user := post.Get("author.uniqueId").String()
		if id == "" || user == "" {
			return true
		}
		n := NativeItem{
			Title: post.Get("desc").String(),
			Link:  fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", user, id),
		}
		if ts := post.Get("createTime").Int(); ts > 0 {
			published := time.Unix(ts, 0)
			n.Published = &published
		}
		items = append(items, n)
		return true
	})
	return items, nil
}

// InstagramPosts lists the recent posts of an Instagram account. The API
// reports no usable timestamp, so the source is normally declared with
// FallbackNow.
type InstagramPosts struct {
	Client   *RapidClient
	Username string
}

func (i *InstagramPosts) Fetch(ctx context.Context) ([]NativeItem, error) {
	res, err := i.Client.Post(ctx, InstagramHost, "api/instagram/posts", map[string]string{
		"username": i.Username,
		"maxId":    "",
	})
	if err != nil {
		return nil, fmt.Errorf("instagram posts: %w", err)
	}

	var items []NativeItem
	res.Get("data").ForEach(func(_, post gjson.Result) bool {
		n := NativeItem{
			Title: post.Get("caption").String(),
			Link:  post.Get("link").String(),
		}
		if ts := post.Get("taken_at").Int(); ts > 0 {
			published := time.Unix(ts, 0)
			n.Published = &published
		}
		items = append(items, n)
		return true
	})
	return items, nil
}

// FacebookPage lists the posts of a Facebook page.
type FacebookPage struct {
	Client *RapidClient
	PageID string
}

func (f *FacebookPage) Fetch(ctx context.Context) ([]NativeItem, error) {
	params := url.Values{}
	params.Set("page_id", f.PageID)

	res, err := f.Client.Get(ctx, FacebookHost, "page/posts", params)
	if err != nil {
		return nil, fmt.Errorf("facebook page: %w", err)
	}

	var items []NativeItem
	res.Get("data").ForEach(func(_, post gjson.Result) bool {
		n := NativeItem{
			Title: post.Get("text").String(),
			Link:  post.Get("post_url").String(),
		}
		if ts := post.Get("timestamp").Int(); ts > 0 {
			published := time.Unix(ts, 0)
			n.Published = &published
		}
		items = append(items, n)
		return true
	})
	return items, nil
}
