// Package xapi fetches recent posts from the X API v2 recent-search
// endpoint and parses them into ticks.
package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evford/tickerwatch/internal/limiter"
	"github.com/evford/tickerwatch/internal/model"
)

const defaultBaseURL = "https://api.x.com/2"

// freshnessBuffer is how far in the past a search window must end. The
// upstream rejects end_time values closer to now than its own (smaller)
// buffer; 15s keeps a margin over the documented 10s.
const freshnessBuffer = 15 * time.Second

// Category is the rate-limit category charged by every search call.
const Category = "x_search"

const (
	minResults = 10
	maxResults = 100
)

// RateLimitStatus is the upstream's own rate-limit view, taken from the
// response headers of the most recent call.
type RateLimitStatus struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Updated   time.Time
}

// Client talks to the X API v2. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *limiter.Limiter

	// Overridable in tests.
	now func() time.Time

	mu     sync.Mutex
	status RateLimitStatus
}

// NewClient creates a Client charging rl's Category before every upstream
// call. An empty token is allowed; Search then fails with an AuthError.
func NewClient(bearerToken string, rl *limiter.Limiter) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   bearerToken,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rl,
		now:     time.Now,
	}
}

// SetBaseURL points the client at a different API root. Used in tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// Configured reports whether a bearer token is present.
func (c *Client) Configured() bool { return c.token != "" }

// RateLimitStatus returns the headroom last reported by the upstream.
func (c *Client) RateLimitStatus() RateLimitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Wire shapes for the recent-search response.
type searchResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
}

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	AuthorID      string `json:"author_id"`
	PublicMetrics struct {
		LikeCount       int `json:"like_count"`
		RetweetCount    int `json:"retweet_count"`
		ReplyCount      int `json:"reply_count"`
		QuoteCount      int `json:"quote_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Search fetches posts matching query created in [start, end) and returns
// them as ticks labelled with topicLabel. If end falls inside the upstream
// freshness dead-band the call returns empty without contacting upstream.
// " -is:retweet" is appended to the query when absent.
func (c *Client) Search(ctx context.Context, query, topicLabel string, start, end time.Time, max int) ([]model.Tick, error) {
	if !c.Configured() {
		return nil, &AuthError{Msg: "search client not configured, set SEARCH_BEARER_TOKEN"}
	}

	if max < minResults {
		max = minResults
	}
	if max > maxResults {
		max = maxResults
	}

	safeEnd := c.now().Add(-freshnessBuffer)
	if end.After(safeEnd) {
		slog.Debug("search window too fresh, skipping upstream call",
			"topic", topicLabel, "end", end, "safe_end", safeEnd)
		return nil, nil
	}

	if err := c.limiter.Acquire(ctx, Category); err != nil {
		return nil, &TransportError{Op: "rate limit wait", Err: err}
	}

	q := appendRetweetFilter(query)
	params := url.Values{
		"query":        {q},
		"start_time":   {start.UTC().Format("2006-01-02T15:04:05Z")},
		"end_time":     {end.UTC().Format("2006-01-02T15:04:05Z")},
		"max_results":  {strconv.Itoa(max)},
		"tweet.fields": {"id,text,created_at,author_id,public_metrics,lang"},
		"expansions":   {"author_id"},
		"user.fields":  {"username,name,verified"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	// Headers carry rate-limit state even on errors.
	c.updateRateLimitStatus(resp.Header)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Msg: "invalid or expired bearer token"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.rateLimitError(resp.Header)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	users := make(map[string]string, len(sr.Includes.Users))
	for _, u := range sr.Includes.Users {
		users[u.ID] = u.Username
	}

	ticks := make([]model.Tick, 0, len(sr.Data))
	for _, tw := range sr.Data {
		ticks = append(ticks, parseTick(tw, users, topicLabel))
	}
	slog.Debug("search complete", "topic", topicLabel, "ticks", len(ticks))
	return ticks, nil
}

func parseTick(tw tweet, users map[string]string, topic string) model.Tick {
	author := users[tw.AuthorID]
	if author == "" {
		author = "unknown"
	}
	ts, err := time.Parse(time.RFC3339, tw.CreatedAt)
	if err != nil {
		ts = time.Now().UTC()
	}
	return model.Tick{
		ID:        tw.ID,
		Author:    author,
		Text:      tw.Text,
		Timestamp: ts.UTC(),
		Metrics: map[string]int{
			model.MetricLikes:       tw.PublicMetrics.LikeCount,
			model.MetricRetweets:    tw.PublicMetrics.RetweetCount,
			model.MetricReplies:     tw.PublicMetrics.ReplyCount,
			model.MetricQuotes:      tw.PublicMetrics.QuoteCount,
			model.MetricImpressions: tw.PublicMetrics.ImpressionCount,
		},
		Topic: topic,
	}
}

func appendRetweetFilter(query string) string {
	if strings.Contains(strings.ToLower(query), "-is:retweet") {
		return query
	}
	return query + " -is:retweet"
}

func classifyTransport(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TransportError{Op: "search request timed out", Err: err}
	}
	return &TransportError{Op: "search request failed", Err: err}
}

func (c *Client) rateLimitError(h http.Header) *RateLimitError {
	e := &RateLimitError{}
	if v, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64); err == nil {
		e.Reset = time.Unix(v, 0).UTC()
	}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-remaining")); err == nil {
		e.Remaining = v
	}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-limit")); err == nil {
		e.Limit = v
	}
	return e
}

func (c *Client) updateRateLimitStatus(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, err := strconv.Atoi(h.Get("x-rate-limit-limit")); err == nil {
		c.status.Limit = v
	}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-remaining")); err == nil {
		c.status.Remaining = v
		if v <= 5 {
			slog.Warn("search API rate limit nearly exhausted", "remaining", v)
		}
	}
	if v, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64); err == nil {
		c.status.Reset = time.Unix(v, 0).UTC()
	}
	c.status.Updated = c.now()
}
