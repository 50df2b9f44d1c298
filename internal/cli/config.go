package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration
type Config struct {
	DefaultProfile string                   `yaml:"default_profile"`
	Profiles       map[string]ProfileConfig `yaml:"profiles"`
}

// ProfileConfig represents one server the CLI can talk to
type ProfileConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tracklight", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{
				DefaultProfile: "default",
				Profiles:       make(map[string]ProfileConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetProfile resolves the connection settings for a profile.
// Priority: command flags > environment variables > config file.
func GetProfile(profileName, baseURLFlag, usernameFlag, passwordFlag string) (*ProfileConfig, error) {
	envBaseURL := os.Getenv("TRACKLIGHT_BASE_URL")
	envUsername := os.Getenv("TRACKLIGHT_USERNAME")
	envPassword := os.Getenv("TRACKLIGHT_PASSWORD")

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if profileName == "" {
		profileName = cfg.DefaultProfile
	}

	profile := cfg.Profiles[profileName]

	if envBaseURL != "" {
		profile.BaseURL = envBaseURL
	}
	if envUsername != "" {
		profile.Username = envUsername
	}
	if envPassword != "" {
		profile.Password = envPassword
	}
	if baseURLFlag != "" {
		profile.BaseURL = baseURLFlag
	}
	if usernameFlag != "" {
		profile.Username = usernameFlag
	}
	if passwordFlag != "" {
		profile.Password = passwordFlag
	}

	if profile.BaseURL == "" || profile.Username == "" || profile.Password == "" {
		return nil, fmt.Errorf("base_url, username, and password must be configured for profile '%s'", profileName)
	}

	return &profile, nil
}

// InitConfig creates a default config file
func InitConfig() error {
	cfg := &Config{
		DefaultProfile: "default",
		Profiles: map[string]ProfileConfig{
			"default": {
				BaseURL:  "http://localhost:8080",
				Username: "admin",
				Password: "admin",
			},
		},
	}

	return SaveConfig(cfg)
}
