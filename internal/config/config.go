package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (inbound event dedup + rate limiting)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Task queue (durable delayed execution)
	TasksRegion      string
	TasksQueueURL    string
	TasksCallbackURL string // URL the queue invokes for delivery callbacks
	TasksSecret      string // shared secret expected on callback requests

	// Lifecycle event fan-out
	EventsTopicARN string
	EventsRegion   string

	// Escalation email
	AWSRegion      string
	AlertFromEmail string
	AlertToEmail   string

	// Delivery channel (chat webhook)
	ChatWebhookURL     string
	ChatWebhookTimeout int // seconds

	// Scheduling
	Timezone         string // IANA name, never a fixed offset
	NotificationHour int    // local wall-clock hour for business-day follow-ups
	MaxAttempts      int    // delivery retry ceiling

	// Identity tables, injected rather than hard-coded.
	InternalMembers []string // sender ids eligible to trigger follow-ups
	BroadcastUsers  []string // ops sub-team broadcast allow-list
	DocDomains      []string // document-hosting domains recognized by the classifier
	BotAccountID    string   // the bot's own account on the chat platform
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "salesflow",
		DBPassword: "",
		DBName:     "salesflow",
		DBSSLMode:  "disable",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion:      "ap-northeast-1",
		AlertFromEmail: "alerts@salesflow.local",

		Timezone:         "Asia/Tokyo",
		NotificationHour: 15,
		MaxAttempts:      5,

		DocDomains: []string{"docs.google.com", "drive.google.com"},
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	// Task queue config
	if region := os.Getenv("TASKS_REGION"); region != "" {
		cfg.TasksRegion = region
	} else {
		cfg.TasksRegion = cfg.AWSRegion
	}

	if url := os.Getenv("TASKS_QUEUE_URL"); url != "" {
		cfg.TasksQueueURL = url
	}

	if url := os.Getenv("TASKS_CALLBACK_URL"); url != "" {
		cfg.TasksCallbackURL = url
	}

	if secret := os.Getenv("TASKS_SECRET"); secret != "" {
		cfg.TasksSecret = secret
	}

	// Lifecycle events
	if arn := os.Getenv("EVENTS_TOPIC_ARN"); arn != "" {
		cfg.EventsTopicARN = arn
	}

	if region := os.Getenv("EVENTS_REGION"); region != "" {
		cfg.EventsRegion = region
	} else {
		cfg.EventsRegion = cfg.AWSRegion
	}

	// Escalation email
	if from := os.Getenv("ALERT_FROM_EMAIL"); from != "" {
		cfg.AlertFromEmail = from
	}

	if to := os.Getenv("ALERT_TO_EMAIL"); to != "" {
		cfg.AlertToEmail = to
	}

	// Delivery channel
	if url := os.Getenv("CHAT_WEBHOOK_URL"); url != "" {
		cfg.ChatWebhookURL = url
	}

	if timeout := os.Getenv("CHAT_WEBHOOK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.ChatWebhookTimeout = t
	} else {
		cfg.ChatWebhookTimeout = 30
	}

	// Scheduling
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	if hour := os.Getenv("NOTIFICATION_HOUR"); hour != "" {
		h, err := strconv.Atoi(hour)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid NOTIFICATION_HOUR: %q", hour)
		}
		cfg.NotificationHour = h
	}

	if max := os.Getenv("MAX_ATTEMPTS"); max != "" {
		m, err := strconv.Atoi(max)
		if err != nil || m < 1 {
			return nil, fmt.Errorf("invalid MAX_ATTEMPTS: %q", max)
		}
		cfg.MaxAttempts = m
	}

	// Identity tables
	if members := os.Getenv("INTERNAL_MEMBERS"); members != "" {
		cfg.InternalMembers = splitList(members)
	}

	if users := os.Getenv("BROADCAST_USERS"); users != "" {
		cfg.BroadcastUsers = splitList(users)
	}

	if domains := os.Getenv("DOC_DOMAINS"); domains != "" {
		cfg.DocDomains = splitList(domains)
	}

	if bot := os.Getenv("BOT_ACCOUNT_ID"); bot != "" {
		cfg.BotAccountID = bot
	}

	return cfg, nil
}

// splitList parses a comma-separated env value, trimming whitespace and
// dropping empty entries.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
