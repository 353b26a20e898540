package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Site     SiteConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

type SiteConfig struct {
	ListingURL string
	OutputRoot string
	Denylist   []string
}

type ScraperConfig struct {
	RetryBudget     int
	MaxReruns       int
	MaxScrollCycles int
	PauseJitter     time.Duration
	HTTPTimeout     time.Duration
	UserAgent       string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type StatusConfig struct {
	Addr string
}

func (c StatusConfig) Enabled() bool { return c.Addr != "" }

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Site: SiteConfig{
			ListingURL: getEnvOrDefault("EVER_LISTING_URL", "https://ever.ph/collections"),
			OutputRoot: getEnvOrDefault("EVER_OUTPUT_ROOT", "csv"),
			Denylist:   getStringSliceOrDefault("EVER_DENYLIST", []string{"covid", "evp19"}),
		},
		Scraper: ScraperConfig{
			RetryBudget:     getIntOrDefault("SCRAPER_RETRY_BUDGET", 5),
			MaxReruns:       getIntOrDefault("SCRAPER_MAX_RERUNS", 0),
			MaxScrollCycles: getIntOrDefault("SCRAPER_MAX_SCROLL_CYCLES", 500),
			PauseJitter:     getDurationOrDefault("SCRAPER_PAUSE_JITTER", 0),
			HTTPTimeout:     getDurationOrDefault("SCRAPER_HTTP_TIMEOUT", 30*time.Second),
			UserAgent:       getEnvOrDefault("SCRAPER_USER_AGENT", defaultUserAgent),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Manila"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-PH"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			MaxConns: int32(getIntOrDefault("DATABASE_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:ever_scraper"),
		},
		Status: StatusConfig{
			Addr: getEnvOrDefault("STATUS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.ListingURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("EVER_LISTING_URL must be an absolute URL, got %q", c.Site.ListingURL)
	}

	if strings.TrimSpace(c.Site.OutputRoot) == "" {
		return fmt.Errorf("EVER_OUTPUT_ROOT must not be empty")
	}

	if c.Scraper.RetryBudget < 0 {
		return fmt.Errorf("SCRAPER_RETRY_BUDGET cannot be negative")
	}

	if c.Scraper.MaxReruns < 0 {
		return fmt.Errorf("SCRAPER_MAX_RERUNS cannot be negative")
	}

	if c.Scraper.MaxScrollCycles < 1 {
		return fmt.Errorf("SCRAPER_MAX_SCROLL_CYCLES must be at least 1")
	}

	if c.Scraper.PauseJitter < 0 {
		return fmt.Errorf("SCRAPER_PAUSE_JITTER cannot be negative")
	}

	if c.Browser.ViewportWidth < 1 || c.Browser.ViewportHeight < 1 {
		return fmt.Errorf("BROWSER_VIEWPORT_WIDTH and BROWSER_VIEWPORT_HEIGHT must be positive")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
