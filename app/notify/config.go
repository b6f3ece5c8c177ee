package notify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelConfig is one delivery target for upload notifications. The URL
// is a shoutrrr URL, e.g. "gotify://gotify.example.com/AToken" or
// "generic+https://hooks.example.com/webhook".
type ChannelConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Config struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// LoadConfig reads the notification channel list from a YAML file. A
// missing file is not an error; it just means notifications are disabled.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notification config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse notification config: %w", err)
	}

	for i, channel := range config.Channels {
		if channel.URL == "" {
			return nil, fmt.Errorf("notification channel %d (%q) has no url", i, channel.Name)
		}
	}

	return &config, nil
}
