package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "QAHELPER_CONFIG"
	databaseDSNEnv     = "QAHELPER_DATABASE_DSN"
	storageDriverEnv   = "QAHELPER_STORAGE_DRIVER"
	logLevelEnv        = "QAHELPER_LOG_LEVEL"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	zhipuAPIKeyEnv     = "ZHIPU_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	googleProjectEnv   = "GOOGLE_CLOUD_PROJECT"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Storage       StorageConfig      `yaml:"storage"`
	Cache         CacheConfig        `yaml:"cache"`
	Extractor     ExtractorConfig    `yaml:"extractor"`
	Segment       SegmentConfig      `yaml:"segment"`
	Synthesis     SynthesisConfig    `yaml:"synthesis"`
	Providers     ProvidersConfig    `yaml:"providers"`
	Notifications NotificationConfig `yaml:"notifications"`
	Worker        WorkerConfig       `yaml:"worker"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig picks the task/QA store. ProjectID is used by firestore only.
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	ProjectID string `yaml:"projectId"`
}

// CacheConfig picks the summary cache: memory, sql or none.
type CacheConfig struct {
	Driver     string `yaml:"driver"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return seconds(c.TTLSeconds)
}

type ExtractorConfig struct {
	TimeoutSeconds   int      `yaml:"timeoutSeconds"`
	MaxRedirects     int      `yaml:"maxRedirects"`
	UserAgents       []string `yaml:"userAgents"`
	MaxContentLength int      `yaml:"maxContentLength"`
	KeywordCount     int      `yaml:"keywordCount"`
}

func (c ExtractorConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

type SegmentConfig struct {
	Threshold int `yaml:"threshold"`
	ChunkSize int `yaml:"chunkSize"`
	Overlap   int `yaml:"overlap"`
}

type SynthesisConfig struct {
	ItemsPerChunk    string  `yaml:"itemsPerChunk"`
	MaxItemsPerChunk int     `yaml:"maxItemsPerChunk"`
	MaxTokens        int     `yaml:"maxTokens"`
	Temperature      float64 `yaml:"temperature"`
	TimeoutSeconds   int     `yaml:"timeoutSeconds"`
	Classify         bool    `yaml:"classify"`
}

func (c SynthesisConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// ProvidersConfig lists AI backends; Order decides selection priority.
type ProvidersConfig struct {
	Order     []string        `yaml:"order"`
	OpenAI    ChatConfig      `yaml:"openai"`
	Zhipu     ChatConfig      `yaml:"zhipu"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
}

// ChatConfig describes an OpenAI-compatible chat completions backend.
type ChatConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

type AnthropicConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"apiKey"`
}

type GeminiConfig struct {
	ProjectID string `yaml:"projectId"`
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// WorkerConfig drives the stale-task reclaimer.
type WorkerConfig struct {
	IntervalSeconds   int    `yaml:"intervalSeconds"`
	StaleAfterSeconds int    `yaml:"staleAfterSeconds"`
	LockPath          string `yaml:"lockPath"`
}

func (c WorkerConfig) Interval() time.Duration {
	return seconds(c.IntervalSeconds)
}

func (c WorkerConfig) StaleAfter() time.Duration {
	return seconds(c.StaleAfterSeconds)
}

// Load reads YAML configuration (if present) and applies environment
// overrides. An explicit path wins over QAHELPER_CONFIG. A file that cannot
// be read or parsed is reported and defaults are kept.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			slog.Warn("config: cannot read file, falling back to defaults", "path", path, "error", err)
		} else {
			fileCfg := Default()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				slog.Warn("config: cannot parse file, falling back to defaults", "path", path, "error", err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.Providers.OpenAI.Model = v
	}
	if v := os.Getenv(zhipuAPIKeyEnv); v != "" {
		c.Providers.Zhipu.APIKey = v
	}
	if v := os.Getenv(anthropicAPIKeyEnv); v != "" {
		c.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv(googleProjectEnv); v != "" {
		c.Providers.Gemini.ProjectID = v
		if c.Storage.ProjectID == "" {
			c.Storage.ProjectID = v
		}
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

// normalize lowercases enumerated fields and restores defaults for values a
// file zeroed out.
func (c *Config) normalize() {
	def := Default()

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.DSN == "" && c.Storage.Driver == def.Storage.Driver {
		c.Storage.DSN = def.Storage.DSN
	}
	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	if c.Cache.Driver == "" {
		c.Cache.Driver = def.Cache.Driver
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = def.Cache.TTLSeconds
	}

	order := make([]string, 0, len(c.Providers.Order))
	for _, name := range c.Providers.Order {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			order = append(order, name)
		}
	}
	if len(order) == 0 {
		order = def.Providers.Order
	}
	c.Providers.Order = order

	if c.Worker.LockPath == "" {
		c.Worker.LockPath = def.Worker.LockPath
	}
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "data/qahelper.db"},
		Cache:   CacheConfig{Driver: "sql", TTLSeconds: 3600},
		Extractor: ExtractorConfig{
			TimeoutSeconds:   30,
			MaxRedirects:     5,
			MaxContentLength: 50000,
			KeywordCount:     10,
		},
		Segment: SegmentConfig{Threshold: 4000, ChunkSize: 2000, Overlap: 200},
		Synthesis: SynthesisConfig{
			ItemsPerChunk:    "3-5",
			MaxItemsPerChunk: 8,
			MaxTokens:        4000,
			Temperature:      0.3,
			TimeoutSeconds:   60,
			Classify:         true,
		},
		Providers: ProvidersConfig{
			Order: []string{"zhipu", "openai", "anthropic", "gemini"},
			OpenAI: ChatConfig{
				Endpoint: "https://api.openai.com/v1/chat/completions",
				Model:    "gpt-4o-mini",
			},
			Zhipu: ChatConfig{
				Endpoint: "https://open.bigmodel.cn/api/paas/v4/chat/completions",
				Model:    "glm-4",
			},
			Anthropic: AnthropicConfig{Model: "claude-3-5-haiku-latest"},
			Gemini:    GeminiConfig{Region: "us-central1", Model: "gemini-1.5-flash"},
		},
		Worker: WorkerConfig{
			IntervalSeconds:   60,
			StaleAfterSeconds: 600,
			LockPath:          "data/qahelper-worker.lock",
		},
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
