package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Proxy    ProxyConfig
	Places   PlacesConfig
	Database DatabaseConfig
	Redis    RedisConfig
	SelfTest SelfTestConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	MinDelay          time.Duration
	MaxDelay          time.Duration
	RequestTimeout    time.Duration
	MaxRetries        int
	MaxContactPages   int
	SyntheticContacts bool
	UserAgents        []string
}

type BrowserConfig struct {
	Headless       bool
	NavTimeout     time.Duration
	SelectorWait   time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type ProxyConfig struct {
	StaticList      []string
	APIEndpoint     string
	APIKey          string
	RefreshInterval time.Duration
	BlockThreshold  int
	HealthBatchSize int
	HealthTargetURL string
	HealthTimeout   time.Duration
	SelectionPolicy string // round_robin | health_weighted
}

type PlacesConfig struct {
	APIKey     string
	BaseURL    string
	DailyLimit int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SelfTestConfig struct {
	Interval    time.Duration
	RetryOnFail bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			MinDelay:          getDurationOrDefault("SCRAPER_MIN_DELAY", 2*time.Second),
			MaxDelay:          getDurationOrDefault("SCRAPER_MAX_DELAY", 8*time.Second),
			RequestTimeout:    getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 20*time.Second),
			MaxRetries:        getIntOrDefault("SCRAPER_MAX_RETRIES", 2),
			MaxContactPages:   getIntOrDefault("SCRAPER_MAX_CONTACT_PAGES", 3),
			SyntheticContacts: getBoolOrDefault("SCRAPER_SYNTHETIC_CONTACTS", false),
			UserAgents:        getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			NavTimeout:     getDurationOrDefault("BROWSER_NAV_TIMEOUT", 30*time.Second),
			SelectorWait:   getDurationOrDefault("BROWSER_SELECTOR_WAIT", 10*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Proxy: ProxyConfig{
			StaticList:      getStringSliceOrDefault("PROXY_STATIC_LIST", []string{}),
			APIEndpoint:     getEnvOrDefault("PROXY_API_ENDPOINT", ""),
			APIKey:          getEnvOrDefault("PROXY_API_KEY", ""),
			RefreshInterval: getDurationOrDefault("PROXY_REFRESH_INTERVAL", 30*time.Minute),
			BlockThreshold:  getIntOrDefault("PROXY_BLOCK_THRESHOLD", 3),
			HealthBatchSize: getIntOrDefault("PROXY_HEALTH_BATCH_SIZE", 10),
			HealthTargetURL: getEnvOrDefault("PROXY_HEALTH_TARGET", "https://httpbin.org/ip"),
			HealthTimeout:   getDurationOrDefault("PROXY_HEALTH_TIMEOUT", 10*time.Second),
			SelectionPolicy: getEnvOrDefault("PROXY_SELECTION_POLICY", "round_robin"),
		},
		Places: PlacesConfig{
			APIKey:     getEnvOrDefault("PLACES_API_KEY", ""),
			BaseURL:    getEnvOrDefault("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place"),
			DailyLimit: getIntOrDefault("PLACES_DAILY_LIMIT", 1000),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "leadharvester"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		SelfTest: SelfTestConfig{
			Interval:    getDurationOrDefault("SELFTEST_INTERVAL", 6*time.Hour),
			RetryOnFail: getBoolOrDefault("SELFTEST_RETRY_ON_FAIL", true),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MinDelay > c.Scraper.MaxDelay {
		return fmt.Errorf("SCRAPER_MIN_DELAY cannot be greater than SCRAPER_MAX_DELAY")
	}
	if c.Proxy.BlockThreshold < 1 {
		return fmt.Errorf("PROXY_BLOCK_THRESHOLD must be at least 1")
	}
	if c.Proxy.HealthBatchSize < 1 {
		return fmt.Errorf("PROXY_HEALTH_BATCH_SIZE must be at least 1")
	}
	if p := c.Proxy.SelectionPolicy; p != "round_robin" && p != "health_weighted" {
		return fmt.Errorf("PROXY_SELECTION_POLICY must be round_robin or health_weighted, got %q", p)
	}
	if c.Places.DailyLimit < 1 {
		return fmt.Errorf("PLACES_DAILY_LIMIT must be at least 1")
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
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	}
}
