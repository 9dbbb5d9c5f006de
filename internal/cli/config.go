package cli

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the CLI runtime configuration, sourced from the environment.
type Config struct {
	BaseURL         string
	Platform        string
	Providers       []string
	CredentialsFile string
	StorePassphrase string

	OAuthTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// LoadConfig reads configuration from the environment, applying defaults for
// everything but the provider base URL.
func LoadConfig() Config {
	cfg := Config{
		BaseURL:         os.Getenv("AUTHCTL_BASE_URL"),
		Platform:        getEnvOrDefault("AUTHCTL_PLATFORM", "cli"),
		CredentialsFile: getEnvOrDefault("AUTHCTL_CREDENTIALS_FILE", defaultCredentialsFile()),
		StorePassphrase: os.Getenv("AUTHCTL_STORE_PASSPHRASE"),
		OAuthTimeout:    2 * time.Minute,
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if providers := os.Getenv("AUTHCTL_PROVIDERS"); providers != "" {
		for _, p := range strings.Split(providers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Providers = append(cfg.Providers, p)
			}
		}
	}
	return cfg
}

func defaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.enc"
	}
	return filepath.Join(home, ".config", "authctl", "credentials.enc")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
