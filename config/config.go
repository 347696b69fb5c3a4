package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// BonusTier grants BonusPoints on every check-in once the streak reaches MinStreak days.
type BonusTier struct {
	MinStreak   int `json:"MinStreak"`
	BonusPoints int `json:"BonusPoints"`
}

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Registrations accepted per client IP per day, 0 disables the cap
	RegisterMaxPerIPPerDay int
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Check-in reward policy
	CheckInBasePoints int
	CheckInTiers      []BonusTier
	CheckInTimezone   string
	// Telegram bot
	TelegramBotToken      string
	TelegramWebhookURL    string
	TelegramWebhookSecret string
	TelegramWebAppURL     string
	// Redis for caching
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	StatsCacheTTL time.Duration
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Admins
	AdminTelegramIDs []int64
	AdminAPIKeyHash  string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration from environment variables. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides (.env included)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Override replaces the cached configuration. Defaults are applied to zero fields.
func Override(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

// Location resolves CheckInTimezone, falling back to UTC for unknown zone names.
func (c AppConfig) Location() *time.Location {
	if c.CheckInTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.CheckInTimezone)
	if err != nil {
		log.Printf("unknown check-in timezone %q, using UTC: %v", c.CheckInTimezone, err)
		return time.UTC
	}
	return loc
}

// IsAdminTelegramID reports whether the telegram id is listed in AdminTelegramIDs.
func (c AppConfig) IsAdminTelegramID(id int64) bool {
	for _, v := range c.AdminTelegramIDs {
		if v == id {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}
	applyRaw(raw, out)
	return nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case json.Number:
			i, _ := t.Int64()
			return int(i)
		}
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getStringSlice(m map[string]any, key string) []string {
	if v, ok := m[key]; ok {
		if arr, ok := v.([]any); ok {
			res := make([]string, 0, len(arr))
			for _, it := range arr {
				if s, ok := it.(string); ok {
					res = append(res, s)
				}
			}
			return res
		}
	}
	return nil
}

func getInt64Slice(m map[string]any, key string) []int64 {
	if v, ok := m[key]; ok {
		if arr, ok := v.([]any); ok {
			res := make([]int64, 0, len(arr))
			for _, it := range arr {
				if f, ok := it.(float64); ok {
					res = append(res, int64(f))
				}
			}
			return res
		}
	}
	return nil
}

// applyRaw maps the grouped JSON sections onto out.
func applyRaw(raw map[string]any, out *AppConfig) {
	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		out.RegisterMaxPerIPPerDay = getInt(app, "RegisterMaxPerIPPerDay")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.SQLitePath = getString(dbs, "SQLitePath")
	}

	if ck, ok := raw["checkin"].(map[string]any); ok {
		if v := getInt(ck, "BasePoints"); v != 0 {
			out.CheckInBasePoints = v
		}
		if v := getString(ck, "Timezone"); v != "" {
			out.CheckInTimezone = v
		}
		if arr, ok := ck["Tiers"].([]any); ok {
			tiers := make([]BonusTier, 0, len(arr))
			for _, it := range arr {
				if m, ok := it.(map[string]any); ok {
					tiers = append(tiers, BonusTier{MinStreak: getInt(m, "MinStreak"), BonusPoints: getInt(m, "BonusPoints")})
				}
			}
			out.CheckInTiers = tiers
		}
	}

	if tg, ok := raw["telegram"].(map[string]any); ok {
		out.TelegramBotToken = getString(tg, "BotToken")
		out.TelegramWebhookURL = getString(tg, "WebhookURL")
		out.TelegramWebhookSecret = getString(tg, "WebhookSecret")
		out.TelegramWebAppURL = getString(tg, "WebAppURL")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
		if v := getInt(rds, "StatsCacheTTLSec"); v != 0 {
			out.StatsCacheTTL = time.Duration(v) * time.Second
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}

	if adm, ok := raw["admin"].(map[string]any); ok {
		if list := getInt64Slice(adm, "TelegramIDs"); len(list) > 0 {
			out.AdminTelegramIDs = list
		}
		out.AdminAPIKeyHash = getString(adm, "APIKeyHash")
	}
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 100
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "empire"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/empire.db"
	}
	if c.CheckInBasePoints == 0 {
		c.CheckInBasePoints = 5
	}
	if c.CheckInTiers == nil {
		c.CheckInTiers = []BonusTier{{MinStreak: 7, BonusPoints: 5}, {MinStreak: 3, BonusPoints: 2}}
	}
	if c.CheckInTimezone == "" {
		c.CheckInTimezone = "UTC"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.StatsCacheTTL == 0 {
		c.StatsCacheTTL = 10 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("REGISTER_MAX_PER_IP_PER_DAY", ""); v != "" {
		c.RegisterMaxPerIPPerDay = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("SQLITE_PATH", ""); v != "" {
		c.SQLitePath = v
	}
	if v := getEnv("CHECKIN_BASE_POINTS", ""); v != "" {
		c.CheckInBasePoints = mustParseInt(v)
	}
	if v := getEnv("CHECKIN_TIMEZONE", ""); v != "" {
		c.CheckInTimezone = v
	}
	if v := getEnv("TELEGRAM_BOT_TOKEN", ""); v != "" {
		c.TelegramBotToken = v
	}
	if v := getEnv("TELEGRAM_WEBHOOK_URL", ""); v != "" {
		c.TelegramWebhookURL = v
	}
	if v := getEnv("TELEGRAM_WEBHOOK_SECRET", ""); v != "" {
		c.TelegramWebhookSecret = v
	}
	if v := getEnv("TELEGRAM_WEBAPP_URL", ""); v != "" {
		c.TelegramWebAppURL = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("ADMIN_TELEGRAM_IDS", ""); v != "" {
		ids := []int64{}
		for _, s := range splitAndTrim(v) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				log.Fatalf("invalid ADMIN_TELEGRAM_IDS entry %s: %v", s, err)
			}
			ids = append(ids, id)
		}
		c.AdminTelegramIDs = ids
	}
	if v := getEnv("ADMIN_API_KEY_HASH", ""); v != "" {
		c.AdminAPIKeyHash = v
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
