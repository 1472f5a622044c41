package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed explicitly to every component.
type Config struct {
	Environment string
	Port        string

	// Inventory selection: only containers carrying LabelKey=LabelValue
	// are managed.
	LabelKey   string
	LabelValue string

	MonitoringInterval time.Duration
	MaxRestartAttempts int
	RestartTimeout     time.Duration
	HealCooldown       time.Duration
	CriticalServices   []string

	DiagnosisTimeout time.Duration
	LLMProvider      string
	LLMModel         string
	OpenAIAPIKey     string
	ClaudeAPIKey     string
	OllamaHost       string

	EmailFrom        string
	EmailAppPassword string
	EmailTo          string
	SMTPServer       string
	SMTPPort         string

	AlertLogPath string

	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
}

func Load() (*Config, error) {
	// Best effort, matching the usual local-dev setup. Env wins over .env.
	_ = godotenv.Load()

	cfg := &Config{
		Environment:        getEnv("GO_ENV", "development"),
		Port:               getEnv("PORT", "5115"),
		MonitoringInterval: getEnvSeconds("MONITORING_INTERVAL_SECONDS", 30),
		MaxRestartAttempts: getEnvInt("MAX_RESTART_ATTEMPTS", 3),
		RestartTimeout:     getEnvSeconds("RESTART_TIMEOUT_SECONDS", 10),
		HealCooldown:       getEnvSeconds("HEAL_COOLDOWN_SECONDS", 0),
		CriticalServices:   splitList(getEnv("CRITICAL_SERVICES", "prod-web-01,prod-db-01")),
		DiagnosisTimeout:   getEnvSeconds("DIAGNOSIS_TIMEOUT_SECONDS", 60),
		LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
		LLMModel:           getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		ClaudeAPIKey:       getEnv("CLAUDE_API_KEY", ""),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		EmailFrom:          getEnv("EMAIL_FROM", ""),
		EmailAppPassword:   getEnv("EMAIL_APP_PASSWORD", ""),
		EmailTo:            getEnv("EMAIL_TO", ""),
		SMTPServer:         getEnv("SMTP_SERVER", "smtp.gmail.com"),
		SMTPPort:           getEnv("SMTP_PORT", "587"),
		AlertLogPath:       getEnv("ALERT_LOG_PATH", "alerts.log"),
		PostgresHost:       getEnv("POSTGRESQL_HOST", ""),
		PostgresPort:       getEnv("POSTGRESQL_PORT", "5432"),
		PostgresDatabase:   getEnv("POSTGRESQL_DATABASE", "incidents"),
		PostgresUser:       getEnv("POSTGRESQL_USER", ""),
		PostgresPassword:   getEnv("POSTGRESQL_PASSWORD", ""),
	}

	key, value, err := parseSelector(getEnv("LABEL_SELECTOR", "environment=production"))
	if err != nil {
		return nil, err
	}
	cfg.LabelKey = key
	cfg.LabelValue = value

	// Cool-down defaults to one monitoring interval.
	if cfg.HealCooldown <= 0 {
		cfg.HealCooldown = cfg.MonitoringInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MonitoringInterval <= 0 {
		return fmt.Errorf("MONITORING_INTERVAL_SECONDS must be positive")
	}
	if c.MaxRestartAttempts < 1 {
		return fmt.Errorf("MAX_RESTART_ATTEMPTS must be at least 1")
	}
	if c.RestartTimeout <= 0 {
		return fmt.Errorf("RESTART_TIMEOUT_SECONDS must be positive")
	}

	// Email is optional: without it alerts go to the audit log only.
	// But a partial email config is a misconfiguration worth failing on.
	set := 0
	for _, v := range []string{c.EmailFrom, c.EmailAppPassword, c.EmailTo} {
		if v != "" {
			set++
		}
	}
	if set > 0 && set < 3 {
		var missing []string
		if c.EmailFrom == "" {
			missing = append(missing, "EMAIL_FROM")
		}
		if c.EmailAppPassword == "" {
			missing = append(missing, "EMAIL_APP_PASSWORD")
		}
		if c.EmailTo == "" {
			missing = append(missing, "EMAIL_TO")
		}
		return fmt.Errorf("incomplete email configuration, missing: %v", missing)
	}

	return nil
}

// EmailConfigured reports whether the SMTP dispatcher can be used.
func (c *Config) EmailConfigured() bool {
	return c.EmailFrom != "" && c.EmailAppPassword != "" && c.EmailTo != ""
}

// PostgresConfigured reports whether the optional history sink is enabled.
func (c *Config) PostgresConfigured() bool {
	return c.PostgresHost != ""
}

// IsCriticalService reports whether the named container is in the configured
// critical-services set.
func (c *Config) IsCriticalService(name string) bool {
	for _, s := range c.CriticalServices {
		if s == name {
			return true
		}
	}
	return false
}

func (c *Config) GetPostgresConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDatabase,
	)
}

func parseSelector(selector string) (string, string, error) {
	key, value, ok := strings.Cut(selector, "=")
	if !ok || key == "" || value == "" {
		return "", "", fmt.Errorf("invalid LABEL_SELECTOR %q, expected key=value", selector)
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
