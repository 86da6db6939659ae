package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DatabaseDriver string `json:"database_driver"` // sqlite | postgres
	DatabasePath   string `json:"database_path"`
	DatabaseDSN    string `json:"database_dsn"`
	APIPort        string `json:"api_port"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	DataDir        string `json:"data_dir"`
	JWTSecret      string `json:"jwt_secret"`
	CORSOrigins    string `json:"cors_origins"`

	TwilioAccountSID    string  `json:"twilio_account_sid"`
	TwilioAuthToken     string  `json:"twilio_auth_token"`
	TwilioAPIBaseURL    string  `json:"twilio_api_base_url"`
	TwilioLookupBaseURL string  `json:"twilio_lookup_base_url"`
	TwilioRateLimit     float64 `json:"twilio_rate_limit"` // requests per second
	TwilioTimeout       int     `json:"twilio_timeout"`    // seconds
	ValidateSignatures  bool    `json:"validate_signatures"`
	VoiceResponse       string  `json:"voice_response"`

	// DeployBaseURL is the public URL the provider reaches us on.
	DeployBaseURL string `json:"deploy_base_url"`
	TimeZone      string `json:"time_zone"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	Workers        int    `json:"workers"`
	PollInterval   int    `json:"poll_interval"`   // seconds
	RedactionDelay int    `json:"redaction_delay"` // minutes
	StatusSyncCron string `json:"status_sync_cron"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	SMTPFrom     string `json:"smtp_from"`
}

// Default configuration values
const (
	DefaultDatabaseDriver      = "sqlite"
	DefaultDatabasePath        = "data/clientcomm.db"
	DefaultAPIPort             = "8080"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultDataDir             = "data"
	DefaultJWTSecret           = "clientcomm-default-secret-change-in-production"
	DefaultCORSOrigins         = "*"
	DefaultTwilioAPIBaseURL    = "https://api.twilio.com"
	DefaultTwilioLookupBaseURL = "https://lookups.twilio.com"
	DefaultTwilioRateLimit     = 10
	DefaultTwilioTimeout       = 15
	DefaultVoiceResponse       = "Thank you for calling. This number only accepts text messages. Please send a text to reach your case manager."
	DefaultDeployBaseURL       = "http://localhost:8080"
	DefaultTimeZone            = "America/Denver"
	DefaultWorkers             = 4
	DefaultPollInterval        = 5
	DefaultRedactionDelay      = 7 * 24 * 60
	DefaultStatusSyncCron      = "*/15 * * * *"
	DefaultSMTPPort            = 587
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		DatabaseDriver:      DefaultDatabaseDriver,
		DatabasePath:        DefaultDatabasePath,
		APIPort:             DefaultAPIPort,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
		DataDir:             DefaultDataDir,
		JWTSecret:           DefaultJWTSecret,
		CORSOrigins:         DefaultCORSOrigins,
		TwilioAPIBaseURL:    DefaultTwilioAPIBaseURL,
		TwilioLookupBaseURL: DefaultTwilioLookupBaseURL,
		TwilioRateLimit:     DefaultTwilioRateLimit,
		TwilioTimeout:       DefaultTwilioTimeout,
		ValidateSignatures:  true,
		VoiceResponse:       DefaultVoiceResponse,
		DeployBaseURL:       DefaultDeployBaseURL,
		TimeZone:            DefaultTimeZone,
		Workers:             DefaultWorkers,
		PollInterval:        DefaultPollInterval,
		RedactionDelay:      DefaultRedactionDelay,
		StatusSyncCron:      DefaultStatusSyncCron,
		SMTPPort:            DefaultSMTPPort,
	}

	// Config file is optional
	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}

	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return json.Unmarshal(data, c)
	}

	return nil
}

// loadFromEnv loads configuration from CLIENTCOMM_* environment variables
func (c *Config) loadFromEnv() {
	setString(&c.DatabaseDriver, "CLIENTCOMM_DATABASE_DRIVER")
	setString(&c.DatabasePath, "CLIENTCOMM_DATABASE_PATH")
	setString(&c.DatabaseDSN, "CLIENTCOMM_DATABASE_DSN")
	setString(&c.APIPort, "CLIENTCOMM_API_PORT")
	setString(&c.LogLevel, "CLIENTCOMM_LOG_LEVEL")
	setString(&c.LogFormat, "CLIENTCOMM_LOG_FORMAT")
	setString(&c.DataDir, "CLIENTCOMM_DATA_DIR")
	setString(&c.JWTSecret, "CLIENTCOMM_JWT_SECRET")
	setString(&c.CORSOrigins, "CLIENTCOMM_CORS_ORIGINS")

	setString(&c.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setString(&c.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.TwilioAPIBaseURL, "CLIENTCOMM_TWILIO_API_BASE_URL")
	setString(&c.TwilioLookupBaseURL, "CLIENTCOMM_TWILIO_LOOKUP_BASE_URL")
	if val := os.Getenv("CLIENTCOMM_TWILIO_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.TwilioRateLimit = f
		}
	}
	setInt(&c.TwilioTimeout, "CLIENTCOMM_TWILIO_TIMEOUT")
	if val := os.Getenv("CLIENTCOMM_VALIDATE_SIGNATURES"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.ValidateSignatures = b
		}
	}
	setString(&c.VoiceResponse, "CLIENTCOMM_VOICE_RESPONSE")

	setString(&c.DeployBaseURL, "DEPLOY_BASE_URL")
	setString(&c.TimeZone, "TIME_ZONE")

	setString(&c.RedisAddr, "CLIENTCOMM_REDIS_ADDR")
	setString(&c.RedisPassword, "CLIENTCOMM_REDIS_PASSWORD")
	setInt(&c.RedisDB, "CLIENTCOMM_REDIS_DB")

	setInt(&c.Workers, "CLIENTCOMM_WORKERS")
	setInt(&c.PollInterval, "CLIENTCOMM_POLL_INTERVAL")
	setInt(&c.RedactionDelay, "CLIENTCOMM_REDACTION_DELAY")
	setString(&c.StatusSyncCron, "CLIENTCOMM_STATUS_SYNC_CRON")

	setString(&c.SMTPHost, "CLIENTCOMM_SMTP_HOST")
	setInt(&c.SMTPPort, "CLIENTCOMM_SMTP_PORT")
	setString(&c.SMTPUsername, "CLIENTCOMM_SMTP_USERNAME")
	setString(&c.SMTPPassword, "CLIENTCOMM_SMTP_PASSWORD")
	setString(&c.SMTPFrom, "CLIENTCOMM_SMTP_FROM")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

// Location returns the organization's time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StatusCallbackURL is the URL the provider posts delivery status updates to
func (c *Config) StatusCallbackURL() string {
	return strings.TrimRight(c.DeployBaseURL, "/") + "/incoming/sms/status"
}

// WebhookURL returns the absolute URL for a webhook path, as the provider signs it
func (c *Config) WebhookURL(path string) string {
	return strings.TrimRight(c.DeployBaseURL, "/") + path
}

// GetMediaDir returns the directory inbound attachments are stored under
func (c *Config) GetMediaDir() string {
	return filepath.Join(c.DataDir, "media")
}

// GetRedactionDelay returns how long a sent message body lives at the provider
func (c *Config) GetRedactionDelay() time.Duration {
	return time.Duration(c.RedactionDelay) * time.Minute
}

// GetPollInterval returns the job dispatcher poll interval
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval * time.Second
	}
	return time.Duration(c.PollInterval) * time.Second
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
