package monitor

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/evford/tickerwatch/internal/limiter"
	"github.com/evford/tickerwatch/internal/model"
)

// Duration wraps time.Duration for TOML string parsing ("15s", "1m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	return nil
}

type Config struct {
	Storage StorageConfig          `toml:"storage"`
	Poll    PollConfig             `toml:"poll"`
	Bars    BarsConfig             `toml:"bars"`
	Search  SearchConfig           `toml:"search"`
	Model   ModelConfig            `toml:"model"`
	Limits  map[string]LimitConfig `toml:"limits"`
}

type StorageConfig struct {
	Path             string `toml:"path"`
	MaxTicksPerTopic int    `toml:"max_ticks_per_topic"`
}

type PollConfig struct {
	Interval   Duration `toml:"interval"`
	AutoStart  bool     `toml:"auto_start"`
	MaxResults int      `toml:"max_results"`
}

type BarsConfig struct {
	MaxPerResolution int `toml:"max_per_resolution"`
	BackfillCount    int `toml:"backfill_count"`

	Weights WeightsConfig `toml:"weights"`
}

// WeightsConfig is the linear combination used for highlight selection.
type WeightsConfig struct {
	Like    int `toml:"like"`
	Retweet int `toml:"retweet"`
	Reply   int `toml:"reply"`
	Quote   int `toml:"quote"`
}

type SearchConfig struct {
	BearerToken string `toml:"bearer_token"`
}

type ModelConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	FastModel      string `toml:"fast_model"`
	ReasoningModel string `toml:"reasoning_model"`
}

type LimitConfig struct {
	RequestsPerWindow int      `toml:"requests_per_window"`
	Window            Duration `toml:"window"`
	Strategy          string   `toml:"strategy"`
}

// LoadConfig reads the TOML file at path, fills defaults, applies environment
// overrides, and validates. An empty path yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	setDefaults(cfg)

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "/var/lib/tickerwatch/ticks.db"
	}
	if cfg.Storage.MaxTicksPerTopic == 0 {
		cfg.Storage.MaxTicksPerTopic = 10000
	}
	if cfg.Poll.Interval.Duration == 0 {
		cfg.Poll.Interval.Duration = time.Duration(model.MinResolutionSeconds) * time.Second
	}
	if cfg.Poll.MaxResults == 0 {
		cfg.Poll.MaxResults = 100
	}
	if cfg.Bars.MaxPerResolution == 0 {
		cfg.Bars.MaxPerResolution = 500
	}
	if cfg.Bars.BackfillCount == 0 {
		cfg.Bars.BackfillCount = 50
	}
	if cfg.Bars.Weights == (WeightsConfig{}) {
		cfg.Bars.Weights = WeightsConfig{Like: 2, Retweet: 3, Reply: 4, Quote: 2}
	}
	if cfg.Limits == nil {
		cfg.Limits = make(map[string]LimitConfig)
	}
	defaults := map[string]LimitConfig{
		"x_search":       {RequestsPerWindow: 300, Window: Duration{15 * time.Minute}, Strategy: string(limiter.SlidingWindow)},
		"grok_fast":      {RequestsPerWindow: 60, Window: Duration{time.Minute}, Strategy: string(limiter.SlidingWindow)},
		"grok_reasoning": {RequestsPerWindow: 30, Window: Duration{time.Minute}, Strategy: string(limiter.SlidingWindow)},
	}
	for cat, lc := range defaults {
		if _, ok := cfg.Limits[cat]; !ok {
			cfg.Limits[cat] = lc
		}
	}
}

// applyEnv overlays the environment variables the service documents. Set
// variables always win over the file.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("SEARCH_BEARER_TOKEN"); v != "" {
		cfg.Search.BearerToken = v
	}
	if v := os.Getenv("MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL_SECONDS: %w", err)
		}
		cfg.Poll.Interval.Duration = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("AUTO_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_START: %w", err)
		}
		cfg.Poll.AutoStart = b
	}
	if v := os.Getenv("MAX_TICKS_PER_TOPIC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_TICKS_PER_TOPIC: %w", err)
		}
		cfg.Storage.MaxTicksPerTopic = n
	}
	if v := os.Getenv("MAX_BARS_PER_RESOLUTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_BARS_PER_RESOLUTION: %w", err)
		}
		cfg.Bars.MaxPerResolution = n
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Poll.Interval.Duration < time.Second {
		return fmt.Errorf("poll interval must be >= 1s, got %s", cfg.Poll.Interval.Duration)
	}
	if cfg.Poll.MaxResults < 10 || cfg.Poll.MaxResults > 100 {
		return fmt.Errorf("max_results must be in [10, 100], got %d", cfg.Poll.MaxResults)
	}
	if cfg.Storage.MaxTicksPerTopic < 1 {
		return fmt.Errorf("max_ticks_per_topic must be >= 1, got %d", cfg.Storage.MaxTicksPerTopic)
	}
	if cfg.Bars.MaxPerResolution < 1 {
		return fmt.Errorf("max_bars_per_resolution must be >= 1, got %d", cfg.Bars.MaxPerResolution)
	}
	if cfg.Bars.BackfillCount < 0 {
		return fmt.Errorf("backfill_count must be >= 0, got %d", cfg.Bars.BackfillCount)
	}
	for cat, lc := range cfg.Limits {
		if lc.RequestsPerWindow < 1 {
			return fmt.Errorf("limits.%s: requests_per_window must be >= 1, got %d", cat, lc.RequestsPerWindow)
		}
		if lc.Window.Duration < time.Second {
			return fmt.Errorf("limits.%s: window must be >= 1s, got %s", cat, lc.Window.Duration)
		}
		switch limiter.Strategy(lc.Strategy) {
		case limiter.SlidingWindow, limiter.FixedWindow, limiter.TokenBucket:
		default:
			return fmt.Errorf("limits.%s: unknown strategy %q", cat, lc.Strategy)
		}
	}
	return nil
}

// ConfigureLimiter installs every configured category on rl.
func (cfg *Config) ConfigureLimiter(rl *limiter.Limiter) {
	for cat, lc := range cfg.Limits {
		rl.Configure(cat, limiter.Config{
			RequestsPerWindow: lc.RequestsPerWindow,
			Window:            lc.Window.Duration,
			Strategy:          limiter.Strategy(lc.Strategy),
		})
	}
}
