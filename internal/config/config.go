package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "SPRITEFORGE_CONFIG"
	logLevelEnv       = "SPRITEFORGE_LOG_LEVEL"
	generationURLEnv  = "SPRITEFORGE_GENERATION_URL"
	validationURLEnv  = "SPRITEFORGE_VALIDATION_URL"
	chromePathEnv     = "SPRITEFORGE_CHROME_PATH"
	userDataDirEnv    = "SPRITEFORGE_USER_DATA_DIR"
	headlessEnv       = "SPRITEFORGE_HEADLESS"
	outputDirEnv      = "SPRITEFORGE_OUTPUT_DIR"
	maxAttemptsEnv    = "SPRITEFORGE_MAX_ATTEMPTS"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds every setting the runner needs; it is passed explicitly, never read globally.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Browser       BrowserConfig      `yaml:"browser"`
	Endpoints     EndpointConfig     `yaml:"endpoints"`
	Selectors     SelectorConfig     `yaml:"selectors"`
	Polling       PollingConfig      `yaml:"polling"`
	Retry         RetryConfig        `yaml:"retry"`
	Jitter        JitterConfig       `yaml:"jitter"`
	Prompts       PromptConfig       `yaml:"prompts"`
	Output        OutputConfig       `yaml:"output"`
	Database      DatabaseConfig     `yaml:"database"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// BrowserConfig describes how Chrome is launched.
type BrowserConfig struct {
	ExecPath          string        `yaml:"execPath"`
	UserDataDir       string        `yaml:"userDataDir"`
	Headless          bool          `yaml:"headless"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
}

// EndpointConfig holds the two chat workflows.
type EndpointConfig struct {
	Generation string `yaml:"generation"`
	Validation string `yaml:"validation"`
}

// SelectorConfig addresses the controls owned by the external UI.
type SelectorConfig struct {
	PromptInput   string `yaml:"promptInput"`
	FileInput     string `yaml:"fileInput"`
	ResultImages  string `yaml:"resultImages"`
	ResponseBlock string `yaml:"responseBlock"`
}

// PollingConfig controls poll cadence and deadlines.
type PollingConfig struct {
	GenerationInterval time.Duration `yaml:"generationInterval"`
	ValidationInterval time.Duration `yaml:"validationInterval"`
	Timeout            time.Duration `yaml:"timeout"`
	SettleDelay        time.Duration `yaml:"settleDelay"`
}

// RetryConfig bounds the two independent retry counters.
type RetryConfig struct {
	MaxAttempts   int `yaml:"maxAttempts"`
	LocalAttempts int `yaml:"localAttempts"`
}

// JitterConfig drives the randomized pauses enabled by -debug.
type JitterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Min     time.Duration `yaml:"min"`
	Max     time.Duration `yaml:"max"`
}

// PromptConfig carries the fixed instructions and verdict markers.
type PromptConfig struct {
	Generation string `yaml:"generation"`
	Corrective string `yaml:"corrective"`
	Validation string `yaml:"validation"`
	PassMarker string `yaml:"passMarker"`
	FailMarker string `yaml:"failMarker"`
}

// OutputConfig points at the working output directory.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// DatabaseConfig enables the attempt ledger when DSN is set.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires the bot used for run reports.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads .env and the YAML file (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(generationURLEnv); v != "" {
		c.Endpoints.Generation = v
	}
	if v := os.Getenv(validationURLEnv); v != "" {
		c.Endpoints.Validation = v
	}
	if v := os.Getenv(chromePathEnv); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv(userDataDirEnv); v != "" {
		c.Browser.UserDataDir = v
	}
	if v := os.Getenv(headlessEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv(maxAttemptsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Browser.ExecPath != "" {
		base.Browser.ExecPath = override.Browser.ExecPath
	}
	if override.Browser.UserDataDir != "" {
		base.Browser.UserDataDir = override.Browser.UserDataDir
	}
	if override.Browser.Headless {
		base.Browser.Headless = true
	}
	if override.Browser.NavigationTimeout > 0 {
		base.Browser.NavigationTimeout = override.Browser.NavigationTimeout
	}

	if override.Endpoints.Generation != "" {
		base.Endpoints.Generation = override.Endpoints.Generation
	}
	if override.Endpoints.Validation != "" {
		base.Endpoints.Validation = override.Endpoints.Validation
	}

	if override.Selectors.PromptInput != "" {
		base.Selectors.PromptInput = override.Selectors.PromptInput
	}
	if override.Selectors.FileInput != "" {
		base.Selectors.FileInput = override.Selectors.FileInput
	}
	if override.Selectors.ResultImages != "" {
		base.Selectors.ResultImages = override.Selectors.ResultImages
	}
	if override.Selectors.ResponseBlock != "" {
		base.Selectors.ResponseBlock = override.Selectors.ResponseBlock
	}

	if override.Polling.GenerationInterval > 0 {
		base.Polling.GenerationInterval = override.Polling.GenerationInterval
	}
	if override.Polling.ValidationInterval > 0 {
		base.Polling.ValidationInterval = override.Polling.ValidationInterval
	}
	if override.Polling.Timeout > 0 {
		base.Polling.Timeout = override.Polling.Timeout
	}
	if override.Polling.SettleDelay > 0 {
		base.Polling.SettleDelay = override.Polling.SettleDelay
	}

	if override.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.LocalAttempts > 0 {
		base.Retry.LocalAttempts = override.Retry.LocalAttempts
	}

	if override.Jitter.Enabled {
		base.Jitter.Enabled = true
	}
	if override.Jitter.Min > 0 {
		base.Jitter.Min = override.Jitter.Min
	}
	if override.Jitter.Max > 0 {
		base.Jitter.Max = override.Jitter.Max
	}

	if override.Prompts.Generation != "" {
		base.Prompts.Generation = override.Prompts.Generation
	}
	if override.Prompts.Corrective != "" {
		base.Prompts.Corrective = override.Prompts.Corrective
	}
	if override.Prompts.Validation != "" {
		base.Prompts.Validation = override.Prompts.Validation
	}
	if override.Prompts.PassMarker != "" {
		base.Prompts.PassMarker = override.Prompts.PassMarker
	}
	if override.Prompts.FailMarker != "" {
		base.Prompts.FailMarker = override.Prompts.FailMarker
	}

	if override.Output.Dir != "" {
		base.Output.Dir = override.Output.Dir
	}

	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

// Default returns settings tuned for the hosted chat workflows.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Browser: BrowserConfig{
			UserDataDir:       "./chrome-profile",
			NavigationTimeout: 60 * time.Second,
		},
		Endpoints: EndpointConfig{
			Generation: "https://chat.openai.com/g/g-6844c510f02c819189891d4df738e89d-char-move-ai",
			Validation: "https://chat.openai.com/g/g-684f7cae88508191bc5114ae239b033b-qa-move-char",
		},
		Selectors: SelectorConfig{
			PromptInput:   ".ProseMirror",
			FileInput:     `input[type="file"]`,
			ResultImages:  `img[alt="Image générée"]`,
			ResponseBlock: "div.markdown.prose",
		},
		Polling: PollingConfig{
			GenerationInterval: 10 * time.Second,
			ValidationInterval: 5 * time.Second,
			Timeout:            180 * time.Second,
			SettleDelay:        5 * time.Second,
		},
		Retry: RetryConfig{MaxAttempts: 10, LocalAttempts: 2},
		Jitter: JitterConfig{
			Min: 2 * time.Second,
			Max: 15 * time.Second,
		},
		Prompts: PromptConfig{
			Generation: "Generate a movesheet of this character based on this reference.",
			Corrective: "Generate the exact same image again, but ensure the background is fully transparent using true alpha channel.",
			Validation: "Please validate this movesheet.",
			PassMarker: "RESULT: PASS",
			FailMarker: "RESULT: FAIL",
		},
		Output: OutputConfig{Dir: "spriteforge-output"},
	}
}
