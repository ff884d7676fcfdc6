package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Store         Store         `yaml:"store"`
	Digest        Digest        `yaml:"digest"`
	Summarization Summarization `yaml:"summarization"`
	Mail          Mail          `yaml:"mail"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

// Store points at the shared spreadsheet holding user rows and operator settings.
type Store struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	UsersTable    string `yaml:"users_table"`
	SettingsTable string `yaml:"settings_table"`
	CredsEnv      string `yaml:"creds_env"`
}

type Digest struct {
	MaxArticles  int    `yaml:"max_articles"`
	LegacyLedger string `yaml:"legacy_ledger"`
}

type Summarization struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	OllamaURL    string `yaml:"ollama_url"`
	OpenAIModel  string `yaml:"openai_model"`
	APIKeyEnv    string `yaml:"api_key_env"`
	MaxTokens    int    `yaml:"max_tokens"`
	FetchContent bool   `yaml:"fetch_content"`
}

type Mail struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	AddressEnv  string `yaml:"address_env"`
	PasswordEnv string `yaml:"password_env"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for pressbrief.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "pressbrief")
}

// DataDir returns the XDG data directory for pressbrief.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "pressbrief")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/pressbrief/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'pressbrief init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{
			UsersTable:    "Users",
			SettingsTable: "Settings",
			CredsEnv:      "GOOGLE_CREDS_JSON",
		},
		Digest: Digest{
			MaxArticles: 10,
		},
		Summarization: Summarization{
			Provider:    "openai",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   512,
		},
		Mail: Mail{
			Host:        "smtp.gmail.com",
			Port:        587,
			AddressEnv:  "MAIL_ADDRESS",
			PasswordEnv: "MAIL_PASSWORD",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
