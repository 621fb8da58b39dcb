// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. It is built once at startup and
// passed to every component; nothing else reads the environment.
type Config struct {
	DataDir   string // Base directory for the ledger, database and spool (always absolute)
	LogLevel  string
	LogPretty bool
	LogFile   string
	Port      int
	HTTP      bool
	Timezone  string
	Location  *time.Location

	Telegram TelegramConfig
	Sources  SourcesConfig
	Quote    QuoteConfig
	Schedule ScheduleConfig
	Backup   BackupConfig

	DBDriver      string
	ShutdownGrace time.Duration
}

// TelegramConfig holds the notifier channel settings.
type TelegramConfig struct {
	Token   string
	ChatIDs []string
	APIURL  string
}

// SourcesConfig describes what to monitor and how to filter it.
type SourcesConfig struct {
	Entity        string
	NewsQueries   []string
	Keywords      []string
	ExcludeTerms  []string
	RapidAPIKey   string
	YouTubeQuery  string
	TikTokSecUIDs []string // entries are "secUid" or "handle=secUid"
	Instagram     []string
	FacebookPages []string
	FeedURLs      []string
	PageURLs      []string
	PageSelectors PageSelectors
}

// PageSelectors are the goquery selectors used for scraped listing pages.
type PageSelectors struct {
	Item  string
	Title string
	Link  string
	Date  string
}

// QuoteConfig lists the quote providers in priority order. A provider is
// enabled only when its URL is set.
type QuoteConfig struct {
	Symbol string

	HTMLURL            string
	HTMLValueSelector  string
	HTMLChangeSelector string
	HTMLTimeSelector   string

	PatternURL    string
	PatternValue  string
	PatternChange string
	PatternTime   string

	APIURL        string
	APIValuePath  string
	APIChangePath string
	APITimePath   string
}

// ScheduleConfig holds the job cadence and filter windows.
type ScheduleConfig struct {
	SummaryAt      string
	RealtimeEvery  time.Duration
	QuoteAt        []string
	SummaryCutoff  time.Duration
	RealtimeCutoff time.Duration
	AlertDelay     time.Duration
	YearFilter     bool
	SectionLimit   int
	SectionPause   time.Duration
	MaintenanceAt  string
	Tick           time.Duration
}

// BackupConfig configures the optional ledger backup to S3-compatible storage.
type BackupConfig struct {
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	At        string
	Retention int // days; zero keeps every backup
}

// Enabled reports whether a backup bucket is configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// LedgerPath is the append-only seen-item log.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "sent_links.txt")
}

// DatabasePath is the SQLite file holding deliveries and quote history.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "newsbell.db")
}

// SpoolPath is where pending alert timers are written at shutdown.
func (c *Config) SpoolPath() string {
	return filepath.Join(c.DataDir, "pending_alerts.msgpack")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("NEWSBELL_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		LogFile:   getEnv("LOG_FILE", ""),
		Port:      getEnvAsInt("HTTP_PORT", 8011),
		HTTP:      getEnvAsBool("HTTP_ENABLED", true),
		Timezone:  getEnv("TIMEZONE", "Asia/Ho_Chi_Minh"),
		Telegram: TelegramConfig{
			Token:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatIDs: getEnvAsList("TELEGRAM_CHAT_IDS", nil),
			APIURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		},
		Sources: SourcesConfig{
			Entity:        getEnv("ENTITY_NAME", "Miza"),
			NewsQueries:   getEnvAsList("NEWS_QUERIES", []string{"Miza", "MZG", "Miza Nghi Sơn"}),
			Keywords:      getEnvAsList("KEYWORDS", []string{"Miza", "MZG"}),
			ExcludeTerms:  getEnvAsList("EXCLUDE_TERMS", []string{"lyrics", "karaoke", "official mv", "music video", "remix"}),
			RapidAPIKey:   getEnv("RAPID_API_KEY", ""),
			YouTubeQuery:  getEnv("YOUTUBE_QUERY", "MIZACORP"),
			TikTokSecUIDs: getEnvAsList("TIKTOK_SEC_UIDS", nil),
			Instagram:     getEnvAsList("INSTAGRAM_USERS", nil),
			FacebookPages: getEnvAsList("FACEBOOK_PAGE_IDS", nil),
			FeedURLs:      getEnvAsList("FEED_URLS", nil),
			PageURLs:      getEnvAsList("NEWS_PAGE_URLS", nil),
			PageSelectors: PageSelectors{
				Item:  getEnv("NEWS_PAGE_ITEM_SELECTOR", "article"),
				Title: getEnv("NEWS_PAGE_TITLE_SELECTOR", "h2, h3"),
				Link:  getEnv("NEWS_PAGE_LINK_SELECTOR", "a"),
				Date:  getEnv("NEWS_PAGE_DATE_SELECTOR", "time, .date, .time"),
			},
		},
		Quote: QuoteConfig{
			Symbol:             getEnv("QUOTE_SYMBOL", "MZG"),
			HTMLURL:            getEnv("QUOTE_HTML_URL", ""),
			HTMLValueSelector:  getEnv("QUOTE_HTML_VALUE_SELECTOR", ".price"),
			HTMLChangeSelector: getEnv("QUOTE_HTML_CHANGE_SELECTOR", ".change-percent"),
			HTMLTimeSelector:   getEnv("QUOTE_HTML_TIME_SELECTOR", ".update-time"),
			PatternURL:         getEnv("QUOTE_PATTERN_URL", ""),
			PatternValue:       getEnv("QUOTE_PATTERN_VALUE", `(?i)giá\s*(?:hiện\s*tại)?\s*[:=]?\s*([0-9][0-9.,]*)`),
			PatternChange:      getEnv("QUOTE_PATTERN_CHANGE", `\(([+-]?[0-9.,]+\s*%)\)`),
			PatternTime:        getEnv("QUOTE_PATTERN_TIME", ""),
			APIURL:             getEnv("QUOTE_API_URL", ""),
			APIValuePath:       getEnv("QUOTE_API_VALUE_PATH", "data.0.close"),
			APIChangePath:      getEnv("QUOTE_API_CHANGE_PATH", "data.0.pctChange"),
			APITimePath:        getEnv("QUOTE_API_TIME_PATH", "data.0.date"),
		},
		Schedule: ScheduleConfig{
			SummaryAt:      getEnv("SUMMARY_AT", "09:00"),
			RealtimeEvery:  getEnvAsDuration("REALTIME_EVERY", 20*time.Minute),
			QuoteAt:        getEnvAsList("QUOTE_AT", []string{"09:15", "11:30", "14:45"}),
			SummaryCutoff:  getEnvAsDuration("SUMMARY_CUTOFF", 20*24*time.Hour),
			RealtimeCutoff: getEnvAsDuration("REALTIME_CUTOFF", 48*time.Hour),
			AlertDelay:     getEnvAsDuration("ALERT_DELAY", 10*time.Minute),
			YearFilter:     getEnvAsBool("YEAR_FILTER", true),
			SectionLimit:   getEnvAsInt("SECTION_LIMIT", 10),
			SectionPause:   getEnvAsDuration("SECTION_PAUSE", 2*time.Second),
			MaintenanceAt:  getEnv("MAINTENANCE_AT", "04:00"),
			Tick:           getEnvAsDuration("SCHEDULER_TICK", time.Minute),
		},
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
			AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
			Region:    getEnv("BACKUP_REGION", "auto"),
			At:        getEnv("BACKUP_AT", "03:00"),
			Retention: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		ShutdownGrace: getEnvAsDuration("SHUTDOWN_GRACE", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration and resolves the time zone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	switch c.DBDriver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or sqlite3)", c.DBDriver)
	}

	clocks := append([]string{c.Schedule.SummaryAt, c.Schedule.MaintenanceAt}, c.Schedule.QuoteAt...)
	if c.Backup.Enabled() {
		clocks = append(clocks, c.Backup.At)
	}
	for _, hhmm := range clocks {
		if _, _, err := ParseClock(hhmm); err != nil {
			return err
		}
	}

	durations := map[string]time.Duration{
		"REALTIME_EVERY":  c.Schedule.RealtimeEvery,
		"SUMMARY_CUTOFF":  c.Schedule.SummaryCutoff,
		"REALTIME_CUTOFF": c.Schedule.RealtimeCutoff,
		"SCHEDULER_TICK":  c.Schedule.Tick,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Backup.Retention < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative, got %d", c.Backup.Retention)
	}
	if c.Schedule.AlertDelay < 0 {
		return fmt.Errorf("ALERT_DELAY must not be negative, got %s", c.Schedule.AlertDelay)
	}

	return nil
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(hhmm string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM): %w", hhmm, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
