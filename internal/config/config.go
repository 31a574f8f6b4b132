package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration. Placement and coordinate numbering
// are deployment-level choices: they are resolved here once, not per patch.
type Config struct {
	General struct {
		// Placement is "position" or "lines".
		Placement string `koanf:"placement"`
		// Coordinates is "document" or "file" and controls how positions
		// count across a multi-file diff.
		Coordinates string `koanf:"coordinates"`
	} `koanf:"general"`

	Review struct {
		EnableRetrieval  bool   `koanf:"enable_retrieval"`
		EnableSecretScan bool   `koanf:"enable_secret_scan"`
		TimeoutSeconds   int    `koanf:"timeout_seconds"`
		LogDir           string `koanf:"log_dir"`
	} `koanf:"review"`

	AI struct {
		Provider    string  `koanf:"provider"`
		APIKey      string  `koanf:"api_key"`
		Model       string  `koanf:"model"`
		BaseURL     string  `koanf:"base_url"`
		Temperature float64 `koanf:"temperature"`
		MaxTokens   int     `koanf:"max_tokens"`
	} `koanf:"ai"`

	Retry struct {
		MaxRetries       int `koanf:"max_retries"`
		BaseDelaySeconds int `koanf:"base_delay_seconds"`
		MaxDelaySeconds  int `koanf:"max_delay_seconds"`
	} `koanf:"retry"`

	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Publish struct {
		GitLab struct {
			URL   string `koanf:"url"`
			Token string `koanf:"token"`
		} `koanf:"gitlab"`
	} `koanf:"publish"`
}

// ReviewTimeout returns the per-run timeout.
func (c *Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Review.TimeoutSeconds) * time.Second
}

// LoadConfig loads configuration from defaults, then an optional TOML file,
// then SECUREVIEW_ environment variables.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"general.placement":         "position",
		"general.coordinates":       "document",
		"review.enable_retrieval":   false,
		"review.enable_secret_scan": true,
		"review.timeout_seconds":    600,
		"review.log_dir":            "review_logs",
		"ai.provider":               "gemini",
		"ai.model":                  "gemini-2.5-flash",
		"ai.temperature":            0.2,
		"retry.max_retries":         2,
		"retry.base_delay_seconds":  2,
		"retry.max_delay_seconds":   60,
		"server.port":               8844,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./secureview.toml", "$HOME/.secureview.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// SECUREVIEW_AI__API_KEY -> ai.api_key; double underscore separates
	// levels so multi-word keys survive.
	k.Load(env.Provider("SECUREVIEW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SECUREVIEW_")), "__", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# secureview configuration

[general]
# "position" anchors patches by diff position, "lines" by start/end line pair.
placement = "position"
# "document" counts positions across the whole diff, "file" restarts per file.
coordinates = "document"

[review]
enable_retrieval = false
enable_secret_scan = true
timeout_seconds = 600

[ai]
provider = "gemini"
api_key = "your-api-key"
model = "gemini-2.5-flash"
temperature = 0.2

[publish.gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate checks the configuration for required and coherent values.
func Validate(config *Config) error {
	switch config.General.Placement {
	case "position", "lines":
	default:
		return fmt.Errorf("general.placement must be \"position\" or \"lines\", got %q", config.General.Placement)
	}

	switch config.General.Coordinates {
	case "document", "file":
	default:
		return fmt.Errorf("general.coordinates must be \"document\" or \"file\", got %q", config.General.Coordinates)
	}

	if config.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if config.AI.Provider != "ollama" && config.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required for provider %s", config.AI.Provider)
	}

	return nil
}
