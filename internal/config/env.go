package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// Environment variables overriding the [icinga] credentials
const (
	EnvAPIURL      = "ICINGA_API_URL"
	EnvAPIUser     = "ICINGA_API_USER"
	EnvAPIPassword = "ICINGA_API_PASSWORD"
)

// LoadDotEnv loads variables from a .env file in the working directory.
// A missing file is not an error; existing variables are not overwritten.
func LoadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIURL); v != "" {
		cfg.Icinga.APIURL = v
	}
	if v := getenv(EnvAPIUser); v != "" {
		cfg.Icinga.APIUser = v
	}
	if v := getenv(EnvAPIPassword); v != "" {
		cfg.Icinga.APIPassword = v
	}
}
