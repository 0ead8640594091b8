package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/uma-arai/barber-booking/internal/common/database"
)

// StoreBackend は予約ストアの実装種別です
type StoreBackend string

const (
	StoreBackendFile     StoreBackend = "file"
	StoreBackendPostgres StoreBackend = "postgres"
)

type Config struct {
	Store struct {
		Backend StoreBackend
		Path    string
	}
	DB     database.Config
	Sheets struct {
		CredentialsPath string
		SpreadsheetID   string
		Worksheet       string
		Timeout         time.Duration
	}
	Booking struct {
		Location           *time.Location
		SlotMinutes        int
		MaxPerCustomerDay  int
		AdvanceBookingDays int
		RetentionDays      int
		BusinessConfigPath string
	}
	Reminder struct {
		Enabled bool
		Advance time.Duration
	}
	Twilio struct {
		AccountSID     string
		AuthToken      string
		PhoneNumber    string
		WhatsAppNumber string
	}
	Redis struct {
		URL        string
		SessionTTL time.Duration
	}
	Gemini struct {
		APIKey string
		Model  string
	}
	Schedule struct {
		Cleanup string
		Resync  string
	}
	Port string
	SFN  struct {
		TaskToken string
	}
	EnableTracing bool
}

// LoadConfig は環境変数から設定を読み込みます
func LoadConfig(taskToken string) (*Config, error) {
	cfg := &Config{
		DB: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvAsIntOrDefault("DB_PORT", 5432),
			UserName: getEnvOrDefault("DB_USERNAME", "barber"),
			Password: getEnvOrDefault("DB_PASSWORD", "password"),
			DBName:   getEnvOrDefault("DB_NAME", "barber"),
		},
		Port: getEnvOrDefault("PORT", "8080"),
	}

	cfg.Store.Backend = StoreBackend(strings.ToLower(getEnvOrDefault("STORE_BACKEND", string(StoreBackendFile))))
	cfg.Store.Path = getEnvOrDefault("BOOKING_DB_PATH", "bookings.json")

	cfg.Sheets.CredentialsPath = getEnvOrDefault("GOOGLE_SHEETS_CREDENTIALS", "credentials.json")
	cfg.Sheets.SpreadsheetID = os.Getenv("SPREADSHEET_ID")
	cfg.Sheets.Worksheet = getEnvOrDefault("SHEETS_WORKSHEET", "Bookings")
	cfg.Sheets.Timeout = getEnvAsDurationOrDefault("MIRROR_TIMEOUT", 10*time.Second)

	loc, err := time.LoadLocation(getEnvOrDefault("TIMEZONE", "Local"))
	if err != nil {
		log.Printf("Invalid TIMEZONE, falling back to local time: %v", err)
		loc = time.Local
	}
	cfg.Booking.Location = loc
	cfg.Booking.SlotMinutes = getEnvAsIntOrDefault("SLOT_MINUTES", 30)
	cfg.Booking.MaxPerCustomerDay = getEnvAsIntOrDefault("MAX_BOOKINGS_PER_USER_PER_DAY", 3)
	cfg.Booking.AdvanceBookingDays = getEnvAsIntOrDefault("ADVANCE_BOOKING_DAYS", 30)
	cfg.Booking.RetentionDays = getEnvAsIntOrDefault("RETENTION_DAYS", 30)
	cfg.Booking.BusinessConfigPath = os.Getenv("BUSINESS_CONFIG_PATH")

	cfg.Reminder.Enabled = getEnvAsBoolOrDefault("REMINDER_ENABLED", true)
	cfg.Reminder.Advance = time.Duration(getEnvAsIntOrDefault("REMINDER_ADVANCE_HOURS", 1)) * time.Hour

	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.PhoneNumber = os.Getenv("TWILIO_PHONE_NUMBER")
	cfg.Twilio.WhatsAppNumber = os.Getenv("TWILIO_WHATSAPP_NUMBER")

	cfg.Redis.URL = os.Getenv("REDIS_HOST")
	cfg.Redis.SessionTTL = getEnvAsDurationOrDefault("SESSION_TTL", 30*time.Minute)

	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Gemini.Model = getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash")

	cfg.Schedule.Cleanup = getEnvOrDefault("CLEANUP_SCHEDULE", "0 3 * * *")
	cfg.Schedule.Resync = getEnvOrDefault("RESYNC_SCHEDULE", "*/30 * * * *")

	cfg.SFN.TaskToken = taskToken

	// 環境変数[BOOKING_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("BOOKING_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

// MirrorEnabled はスプレッドシート同期に必要な設定が揃っているかを返します
func (c *Config) MirrorEnabled() bool {
	if c.Sheets.SpreadsheetID == "" {
		return false
	}
	_, err := os.Stat(c.Sheets.CredentialsPath)
	return err == nil
}

// TwilioEnabled はTwilioでの配信が可能かを返します
func (c *Config) TwilioEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Printf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
