package config

import (
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type LogLevel string

func (l LogLevel) ToSlog() slog.Level {
	var sl slog.Level
	sl.UnmarshalText([]byte(l))
	return sl
}

// API holds the solving service credentials. It is embedded in Config and also
// read on its own by the solving client when no explicit values are given.
type API struct {
	Key string `env:"API_KEY"`
	URL string `env:"API_URL"`
}

type Config struct {
	API

	APIPollInterval     time.Duration `env:"API_POLL_INTERVAL" env-default:"200ms"`
	APIPollTimeout      time.Duration `env:"API_POLL_TIMEOUT" env-default:"60s"`
	MaxRounds           int           `env:"MAX_ROUNDS" env-default:"10"`
	SolveTimeout        time.Duration `env:"SOLVE_TIMEOUT" env-default:"3m"`
	OpensearchAddresses []string      `env:"OPENSEARCH_ADDRESSES"`
	OpensearchUsername  string        `env:"OPENSEARCH_USERNAME"`
	OpensearchPassword  string        `env:"OPENSEARCH_PASSWORD"`
	PostgresURL         string        `env:"POSTGRES_URL"`
	PollInterval        time.Duration `env:"POLL_INTERVAL" env-default:"6s"`
	Workers             int           `env:"WORKERS" env-default:"2"`
	Proxies             []string      `env:"PROXIES"`
	ProxyPW             string        `env:"PROXY_PASSWORD"`
	ProxyUser           string        `env:"PROXY_USERNAME"`
	SeedURLs            []string      `env:"SEED_URLS"`
	Headless            bool          `env:"HEADLESS" env-default:"true"`
	PlaywrightDriverDir string        `env:"PLAYWRIGHT_DRIVER_DIR"`
	LogLevel            LogLevel      `env:"LOG_LEVEL"`
	LogFile             string        `env:"LOG_FILE"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	cleanenv.ReadConfig(".env", &cfg)
	err := cleanenv.ReadEnv(&cfg)
	return cfg, err
}

// ResolveAPI returns the credentials to use for the solving service.
// Explicit values win, the environment is only consulted for empty ones.
func ResolveAPI(key, url string) (API, error) {
	var env API
	if err := cleanenv.ReadEnv(&env); err != nil {
		return API{}, err
	}
	if key != "" {
		env.Key = key
	}
	if url != "" {
		env.URL = url
	}
	return env, nil
}
