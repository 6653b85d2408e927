// Package grok produces typed bar summaries and topic digests by calling
// Grok through its OpenAI-compatible chat completions API.
package grok

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/evford/tickerwatch/internal/limiter"
	"github.com/evford/tickerwatch/internal/model"
)

const defaultBaseURL = "https://api.x.ai/v1"

const (
	defaultFastModel      = "grok-4-1-fast"
	defaultReasoningModel = "grok-4-1-fast-reasoning"
)

// Rate-limit categories. Bar summaries ride the fast model's budget, digests
// the slower reasoning budget.
const (
	CategoryFast      = "grok_fast"
	CategoryReasoning = "grok_reasoning"
)

// promptPostLimit caps how many posts are quoted in a summary prompt.
const promptPostLimit = 10

// ResponseError means the model answered but the payload was not well-typed
// for the target schema. Never retried with fallback data.
type ResponseError struct {
	Model  string
	Detail string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Model, e.Detail)
}

// NotConfiguredError means no API key is present.
type NotConfiguredError struct{}

func (e *NotConfiguredError) Error() string {
	return "summary client not configured, set MODEL_API_KEY"
}

// Options configures optional Client knobs.
type Options struct {
	BaseURL        string
	FastModel      string
	ReasoningModel string
}

// Client issues structured Grok calls. Safe for concurrent use.
type Client struct {
	api        openai.Client
	limiter    *limiter.Limiter
	configured bool
	fast       string
	reasoning  string
}

// NewClient creates a Client. An empty apiKey is allowed; every call then
// fails with NotConfiguredError so bars degrade to metrics-only.
func NewClient(apiKey string, rl *limiter.Limiter, opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	fast := opts.FastModel
	if fast == "" {
		fast = defaultFastModel
	}
	reasoning := opts.ReasoningModel
	if reasoning == "" {
		reasoning = defaultReasoningModel
	}
	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(base),
			option.WithRequestTimeout(15*time.Second),
		),
		limiter:    rl,
		configured: apiKey != "",
		fast:       fast,
		reasoning:  reasoning,
	}
}

// Live reports whether the client has credentials.
func (c *Client) Live() bool { return c.configured }

// structured performs one chat completion in JSON mode and decodes the
// content into out.
func (c *Client) structured(ctx context.Context, mdl, category, systemPrompt, userPrompt string, out any) error {
	if !c.configured {
		return &NotConfiguredError{}
	}
	if err := c.limiter.Acquire(ctx, category); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(mdl),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return fmt.Errorf("model call (%s): %w", mdl, err)
	}
	if len(completion.Choices) == 0 {
		return &ResponseError{Model: mdl, Detail: "no choices in response"}
	}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), out); err != nil {
		return &ResponseError{Model: mdl, Detail: err.Error()}
	}
	return nil
}

const barSummarySystemPrompt = `You are a critical analyst summarizing social media posts for a professional trading/monitoring dashboard. Respond with a single JSON object with keys: summary (string), key_themes (array of strings), sentiment (number), post_count (integer), engagement_level ("low"|"medium"|"high"), highlight_posts (array of post ID strings).

SPAM FILTERING (CRITICAL - apply first):
Identify and EXCLUDE these from your summary:
- Giveaway scams ("Send X get Y back", "Free BTC/ETH")
- Trading signal promotions ("Join my group", "100x gains")
- Bot-like repetitive content
- Wallet address begging
- Obvious pump-and-dump shills
- "DM me" or follow-bait posts

Your summary should focus ONLY on legitimate content. If there are no legitimate posts, say nothing and return an empty summary. Do not mention spam at all.

SENTIMENT SCORING (based on NON-SPAM content only):
- 0.0-0.2: Very negative (panic, crashes, scams exposed, major bad news)
- 0.2-0.4: Negative (concerns, doubt, bearish sentiment, criticism)
- 0.4-0.6: Neutral (mixed signals, factual updates, no clear direction)
- 0.6-0.8: Positive (optimism, good news, bullish but measured)
- 0.8-1.0: Very positive (euphoria, major wins, breakthrough news)

ANALYSIS RULES:
1. Base sentiment ONLY on legitimate posts, not spam
2. "Moon" talk without substance = skeptical (0.5-0.6 max)
3. Distinguish genuine news from hype
4. If >50% spam, add "High spam ratio" to key_themes
5. Default to neutral (0.5) when content is mostly noise`

// SummarizeBar asks the fast model for a typed summary of the ticks in
// [start, end). The response is schema-checked; a malformed payload
// surfaces as ResponseError.
func (c *Client) SummarizeBar(ctx context.Context, topic string, ticks []model.Tick, start, end time.Time) (*model.BarSummary, error) {
	if len(ticks) == 0 {
		return &model.BarSummary{
			Summary:         "No posts in this time window",
			KeyThemes:       []string{},
			Sentiment:       0.5,
			PostCount:       0,
			EngagementLevel: model.EngagementLow,
			HighlightPosts:  []string{},
		}, nil
	}

	var posts strings.Builder
	for i, tick := range ticks {
		if i >= promptPostLimit {
			fmt.Fprintf(&posts, "... and %d more posts\n", len(ticks)-promptPostLimit)
			break
		}
		text := tick.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(&posts, "@%s: %s\n", tick.Author, text)
	}

	userPrompt := fmt.Sprintf("Topic: %s\nTime Window: %s-%s\nPosts (%d total):\n\n%s",
		topic,
		start.UTC().Format("15:04"), end.UTC().Format("15:04"),
		len(ticks), posts.String(),
	)

	var summary model.BarSummary
	if err := c.structured(ctx, c.fast, CategoryFast, barSummarySystemPrompt, userPrompt, &summary); err != nil {
		return nil, err
	}
	if err := summary.Validate(); err != nil {
		return nil, &ResponseError{Model: c.fast, Detail: err.Error()}
	}
	slog.Debug("bar summary generated", "topic", topic, "posts", len(ticks), "sentiment", summary.Sentiment)
	return &summary, nil
}

const digestSystemPrompt = `You are creating an executive digest for a topic's recent activity across multiple time windows. Provide contextual analysis of trends, developments, and recommendations for monitoring. Respond with a single JSON object with keys: topic (string), time_range (string), overall_summary (string), key_developments (array of strings), trending_elements (array of strings), sentiment_trend (string), recommendations (array of strings).`

// SynthesizeDigest asks the reasoning model for a narrative over recent
// bars, most recent first.
func (c *Client) SynthesizeDigest(ctx context.Context, topic string, bars []model.Bar, lookbackHours int) (*model.TopicDigest, error) {
	var lines strings.Builder
	for i, bar := range bars {
		if i >= 12 {
			break
		}
		text := "No summary"
		if bar.Summary != nil {
			text = bar.Summary.Summary
		}
		fmt.Fprintf(&lines, "Bar %d (%s): %s (%d posts)\n",
			i+1, bar.Start.UTC().Format(time.RFC3339), text, bar.PostCount)
	}

	userPrompt := fmt.Sprintf("Topic: %s\nTime Period: Last %d hour(s)\nBar Summaries (%d total bars):\n\n%s",
		topic, lookbackHours, len(bars), lines.String())

	var digest model.TopicDigest
	if err := c.structured(ctx, c.reasoning, CategoryReasoning, digestSystemPrompt, userPrompt, &digest); err != nil {
		return nil, err
	}
	digest.Topic = topic
	digest.GeneratedAt = time.Now().UTC()
	if digest.TimeRange == "" {
		digest.TimeRange = fmt.Sprintf("Last %d hour(s)", lookbackHours)
	}
	slog.Debug("digest generated", "topic", topic, "bars", len(bars))
	return &digest, nil
}
