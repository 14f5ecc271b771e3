package config

import (
	"errors"
	"log"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	HTTPAddr   string `env:"HTTP_ADDR" envDefault:":3001"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`
	DBPath     string `env:"DB_PATH" envDefault:"data/support.db"`

	// REST API keys; the API is open when both are empty
	APIKeys     []string `env:"API_KEYS" envSeparator:","`
	APIKeysFile string   `env:"API_KEYS_FILE"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`
	LLMMaxRetries    int         `env:"LLM_MAX_RETRIES" envDefault:"2"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Letta archival memory
	LettaBaseURL string `env:"LETTA_BASE_URL" envDefault:"https://api.letta.com"`
	LettaAPIKey  string `env:"LETTA_API_KEY"`
	LettaAgentID string `env:"LETTA_AGENT_ID"`

	SummarizeInsights bool `env:"SUMMARIZE_INSIGHTS" envDefault:"false"`

	// Outbound ticket events
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTicketsTopic string   `env:"KAFKA_TICKETS_TOPIC" envDefault:"support-tickets"`

	TelegramBotToken         string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramEscalationChatID int64  `env:"TELEGRAM_ESCALATION_CHAT_ID"`

	// Gmail intake
	GmailClientID     string `env:"GMAIL_CLIENT_ID"`
	GmailClientSecret string `env:"GMAIL_CLIENT_SECRET"`
	GmailRefreshToken string `env:"GMAIL_REFRESH_TOKEN"`
	GmailQuery        string `env:"GMAIL_QUERY" envDefault:"is:unread label:support"`
	GmailPollSchedule string `env:"GMAIL_POLL_SCHEDULE" envDefault:"@every 2m"`

	AuditLogPath   string `env:"AUDIT_LOG_PATH"`
	ReportSchedule string `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`
}

// Parse reads the configuration from the environment and validates
// provider credentials.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderYandex:
		if c.YandexOAuthToken == "" || c.YandexFolderID == "" {
			return errors.New("YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID are required for the yandex provider")
		}
	default:
		return errors.New("unknown LLM_PROVIDER: " + string(c.LLMProvider))
	}
	if c.LLMMaxRetries < 0 {
		return errors.New("LLM_MAX_RETRIES must not be negative")
	}
	return nil
}

// GmailEnabled reports whether all Gmail intake credentials are present.
func (c *Config) GmailEnabled() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" && c.GmailRefreshToken != ""
}
