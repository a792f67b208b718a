package cfg

import (
	"cmp"
	"fmt"
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/app.db" description:"Path to the SQLite database file"`

	// HTTP server configuration
	Port          string `long:"port" env:"PORT" default:"8080" description:"HTTP server port (serve mode)"`
	SessionSecret string `long:"session-secret" env:"SESSION_SECRET" description:"Secret used to sign session cookies (serve mode)"`

	// Mail relay configuration
	SMTPHost     string `long:"smtp-host" env:"SMTP_HOST" description:"Mail relay host"`
	SMTPPort     int    `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"Mail relay port"`
	SMTPUser     string `long:"smtp-user" env:"SMTP_USER" description:"Mail relay username (also used as the From address)"`
	SMTPPassword string `long:"smtp-password" env:"SMTP_PASSWORD" description:"Mail relay password"`
	SMTPUseTLS   string `long:"smtp-use-tls" env:"SMTP_USE_TLS" default:"true" description:"Use STARTTLS when talking to the mail relay"`

	// Summarizer configuration
	OpenAIAPIKey string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"LLM API key for CLI mode"`
	OpenAIModel  string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"LLM model name for CLI mode"`

	// Delivery configuration
	RecipientEmail string `long:"recipient-email" env:"RECIPIENT_EMAIL" description:"Fallback recipient address for channels without one"`

	// At-rest encryption
	EncryptKey string `long:"encrypt-key" env:"ENCRYPT_KEY" description:"Base64 key (32 bytes) for encrypting stored LLM credentials"`

	// Application metadata
	UserAgent  string `long:"user-agent" env:"USER_AGENT" default:"tubedigest/1.0" description:"User agent string for outbound HTTP requests"`
	Debug      bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	ConfigFile string `long:"config" env:"CONFIG_PATH" description:"Optional YAML file providing values not set via flags or environment"`

	AddChannel AddChannelOpts `command:"add-channel" description:"Register or update a channel for the CLI delivery loop"`
	RunOnce    struct{}       `command:"run-once" description:"Process all registered channels once and send summaries"`
	Run        RunOpts        `command:"run" description:"Process channels repeatedly on a fixed interval"`
	Serve      struct{}       `command:"serve" description:"Start the web dashboard"`
}

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:         raw.DBPath,
		Port:           raw.Port,
		SessionSecret:  raw.SessionSecret,
		SMTPHost:       raw.SMTPHost,
		SMTPPort:       raw.SMTPPort,
		SMTPUser:       raw.SMTPUser,
		SMTPPassword:   raw.SMTPPassword,
		SMTPUseTLS:     parseBool(raw.SMTPUseTLS, true),
		OpenAIAPIKey:   raw.OpenAIAPIKey,
		OpenAIModel:    raw.OpenAIModel,
		RecipientEmail: raw.RecipientEmail,
		EncryptKey:     raw.EncryptKey,
		UserAgent:      raw.UserAgent,
		Debug:          raw.Debug,
		Version:        GetVersion(),
		AddChannel:     raw.AddChannel,
		Run:            raw.Run,
	}

	if parser.Active != nil {
		cfg.Command = parser.Active.Name
	}

	if raw.ConfigFile != "" {
		if err := applyConfigFile(cfg, raw.ConfigFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

type fileCfg struct {
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		UseTLS   *bool  `yaml:"useTls"`
	} `yaml:"smtp"`
	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	RecipientEmail string `yaml:"recipientEmail"`
	EncryptKey     string `yaml:"encryptKey"`
	SessionSecret  string `yaml:"sessionSecret"`
}

// applyConfigFile fills values the flags and environment left blank.
// Flags and environment always win over the file.
func applyConfigFile(cfg *Cfg, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file fileCfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.SMTPHost == "" {
		cfg.SMTPHost = file.SMTP.Host
	}
	if file.SMTP.Port != 0 && os.Getenv("SMTP_PORT") == "" {
		cfg.SMTPPort = file.SMTP.Port
	}
	if cfg.SMTPUser == "" {
		cfg.SMTPUser = file.SMTP.User
	}
	if cfg.SMTPPassword == "" {
		cfg.SMTPPassword = file.SMTP.Password
	}
	if file.SMTP.UseTLS != nil && os.Getenv("SMTP_USE_TLS") == "" {
		cfg.SMTPUseTLS = *file.SMTP.UseTLS
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = file.OpenAI.APIKey
	}
	if file.OpenAI.Model != "" && os.Getenv("OPENAI_MODEL") == "" {
		cfg.OpenAIModel = file.OpenAI.Model
	}
	if cfg.RecipientEmail == "" {
		cfg.RecipientEmail = file.RecipientEmail
	}
	if cfg.EncryptKey == "" {
		cfg.EncryptKey = file.EncryptKey
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = file.SessionSecret
	}

	return nil
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
