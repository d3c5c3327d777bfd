package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	HealthAddr string
	Debug      bool

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	GmailUserEmail    string

	OpenAIAPIKey string
	OpenAIModel  string

	DatabaseURL string
	SQLitePath  string
	GoalsFile   string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	NotifyWhatsAppTo     string

	CheckSchedule string
	PollSchedule  string
	LocalTimezone *time.Location
}

// Load reads configuration values and prepares defaults where applicable.
// A .env file in the working directory is honoured but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timezoneName := getenvDefault("TIMEZONE", "America/New_York")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		return nil, fmt.Errorf("config: invalid TIMEZONE %q: %w", timezoneName, err)
	}

	return &Config{
		HealthAddr: getenvDefault("HEALTH_ADDR", "localhost:3001"),
		Debug:      ParseBoolEnv("DEBUG", false),

		GmailClientID:     os.Getenv("GMAIL_CLIENT_ID"),
		GmailClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
		GmailRedirectURI:  getenvDefault("GMAIL_REDIRECT_URI", "http://localhost:3000/oauth2callback"),
		GmailRefreshToken: os.Getenv("GMAIL_REFRESH_TOKEN"),
		GmailUserEmail:    os.Getenv("GMAIL_USER_EMAIL"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenvDefault("SQLITE_PATH", "impact.db"),
		GoalsFile:   os.Getenv("GOALS_FILE"),

		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		NotifyWhatsAppTo:     os.Getenv("NOTIFY_WHATSAPP_TO"),

		CheckSchedule: getenvDefault("CHECK_SCHEDULE", "* * * * *"),
		PollSchedule:  firstNonEmpty(os.Getenv("POLL_SCHEDULE"), os.Getenv("POLL_INTERVAL"), "*/5 * * * *"),
		LocalTimezone: location,
	}, nil
}

// Validate reports every missing credential the daemon cannot run without.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"GMAIL_CLIENT_ID", c.GmailClientID},
		{"GMAIL_CLIENT_SECRET", c.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", c.GmailRefreshToken},
		{"GMAIL_USER_EMAIL", c.GmailUserEmail},
		{"OPENAI_API_KEY", c.OpenAIAPIKey},
	}

	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("missing required environment variable: %s", r.key))
		}
	}
	return errors.Join(errs...)
}

// WhatsAppEnabled reports whether reminder nudges should go out over Twilio.
func (c *Config) WhatsAppEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" &&
		c.TwilioWhatsAppNumber != "" && c.NotifyWhatsAppTo != ""
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ParseBoolEnv returns the boolean value for an environment variable or the provided default.
func ParseBoolEnv(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as bool: %v", key, value, err)
		return def
	}
	return parsed
}
