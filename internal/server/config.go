package server

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment at startup.
type Config struct {
	Addr        string `env:"LUMINA_ADDR" envDefault:":8080"`
	DataDir     string `env:"LUMINA_DATA_DIR" envDefault:"data"`
	DBPath      string `env:"LUMINA_DB_PATH" envDefault:"data/lumina.db"`
	TokenTTL    int    `env:"LUMINA_TOKEN_TTL_HOURS" envDefault:"24"`
	MinPassword int    `env:"LUMINA_MIN_PASSWORD" envDefault:"6"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
