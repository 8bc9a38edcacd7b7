package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Load fills cfg from the environment using caarlos0/env tags:
//
//	type Config struct {
//	    AccessTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped so binaries run the same with or without a .env file.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}
