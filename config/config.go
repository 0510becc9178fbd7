package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Browser   BrowserConfig
	Batch     BatchConfig
	Geocoding GeocodingConfig
	Telegram  TelegramConfig
	Paths     PathsConfig
	Server    ServerConfig
	Log       LogConfig
}

// BrowserConfig controls the headless browser used to render listing pages.
type BrowserConfig struct {
	Headless bool `env:"BROWSER_HEADLESS" envDefault:"true"`

	UserAgent string `env:"BROWSER_USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	Locale    string `env:"BROWSER_LOCALE" envDefault:"sv-SE"`
	Timezone  string `env:"BROWSER_TIMEZONE" envDefault:"Europe/Stockholm"`

	// Maximum time for one page to load and render
	PageTimeout time.Duration `env:"BROWSER_PAGE_TIMEOUT" envDefault:"60s"`

	// Pause after the body is ready so client-side map requests are issued
	SettleDelay time.Duration `env:"BROWSER_SETTLE_DELAY" envDefault:"5s"`

	// How long a headed browser waits for a bot challenge to be cleared
	ChallengeWait time.Duration `env:"BROWSER_CHALLENGE_WAIT" envDefault:"30s"`
}

type BatchConfig struct {
	// Number of input rows per output group
	GroupSize int `env:"BATCH_GROUP_SIZE" envDefault:"10"`

	// Minimum time between two page fetches
	FetchInterval time.Duration `env:"BATCH_FETCH_INTERVAL" envDefault:"3s"`

	// Maximum number of retries for a failed store write
	MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

	// Delay between store retries
	RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"2s"`
}

type GeocodingConfig struct {
	Enabled   bool          `env:"GEOCODING_ENABLED" envDefault:"false"`
	BaseURL   string        `env:"GEOCODING_BASE_URL" envDefault:"https://nominatim.openstreetmap.org"`
	CacheDir  string        `env:"GEOCODING_CACHE_DIR" envDefault:"data/cache/geocode"`
	Interval  time.Duration `env:"GEOCODING_INTERVAL" envDefault:"1s"`
	UserAgent string        `env:"GEOCODING_USER_AGENT" envDefault:"MalmoHomes Collector/1.0"`
}

type TelegramConfig struct {
	Enabled  bool   `env:"TELEGRAM_ENABLED" envDefault:"false"`
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`
	APIURL   string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
}

type PathsConfig struct {
	OutputDir string `env:"OUTPUT_DIR" envDefault:"data/processed/batches"`

	// Defaults to <OutputDir>/progress_cache.json when empty
	ProgressCache string `env:"PROGRESS_CACHE"`

	// Defaults to <OutputDir>/properties.db when empty
	Database string `env:"DATABASE_PATH"`
}

// ServerConfig controls the read-only API.
type ServerConfig struct {
	Addr           string   `env:"SERVER_ADDR" envDefault:":5250"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
