package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel     string `yaml:"log-level" env-default:"info"`
	ServerURL    string `yaml:"server-url" env-default:"ws://localhost:8080/ws"`
	APIBaseURL   string `yaml:"api-base-url" env-default:"http://localhost:8080"`
	RefreshToken string `yaml:"refresh-token" env-default:""`
	GuestIDFile  string `yaml:"guest-id-file" env-default:".tictactoe-guest-id"`
	PlayerName   string `yaml:"player-name" env-default:"Guest"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}
