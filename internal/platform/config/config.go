package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"go-simpler.org/env"
)

const (
	QueueModeRedis  = "redis"
	QueueModeMemory = "memory"
)

const (
	defaultResultsURLTemplate = "https://resultados.tse.jus.br/oficial/ele2022/545/dados-simplificados/{unit}/{unit}-c0001-e000545-r.json"
	defaultCatalogURL         = "https://www.oobj.com.br/bc/article/quais-os-c%C3%B3digos-de-cada-uf-no-brasil-465.html"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	MetricsPort string `env:"METRICS_PORT" default:"9090"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	QueueMode   string `env:"QUEUE_MODE" default:"redis"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	PollInterval time.Duration `env:"POLL_INTERVAL" default:"5m"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" default:"10s"`

	ResultsURLTemplate string `env:"RESULTS_URL_TEMPLATE"`
	CatalogURL         string `env:"CATALOG_URL"`
	ElectionFile       string `env:"ELECTION_FILE"`

	PredictionsLimit int     `env:"PREDICTIONS_LIMIT" default:"36"`
	APIRateLimit     float64 `env:"API_RATE_LIMIT" default:"10"`
	APIRateBurst     int     `env:"API_RATE_BURST" default:"20"`

	// Tracked candidates come from the election file; the 2022 runoff pair is
	// the default.
	Candidates []domain.TrackedCandidate
}

// Election is the optional TOML election file. Empty fields keep the values
// already loaded from the environment.
type Election struct {
	Name               string                    `toml:"name"`
	ResultsURLTemplate string                    `toml:"results_url_template"`
	CatalogURL         string                    `toml:"catalog_url"`
	Candidates         []domain.TrackedCandidate `toml:"candidates"`
}

func DefaultCandidates() []domain.TrackedCandidate {
	return []domain.TrackedCandidate{
		{Key: "lula", Name: "Lula"},
		{Key: "bolsonaro", Name: "Jair Bolsonaro"},
	}
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.ResultsURLTemplate == "" {
		cfg.ResultsURLTemplate = defaultResultsURLTemplate
	}
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = defaultCatalogURL
	}
	cfg.Candidates = DefaultCandidates()

	if cfg.ElectionFile != "" {
		election, err := LoadElection(cfg.ElectionFile)
		if err != nil {
			return nil, err
		}
		cfg.applyElection(election)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadElection reads an election TOML file.
func LoadElection(path string) (*Election, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read election file: %w", err)
	}

	var election Election
	if err := toml.Unmarshal(raw, &election); err != nil {
		return nil, fmt.Errorf("failed to parse election file %s: %w", path, err)
	}
	return &election, nil
}

func (c *Config) applyElection(e *Election) {
	if e.ResultsURLTemplate != "" {
		c.ResultsURLTemplate = e.ResultsURLTemplate
	}
	if e.CatalogURL != "" {
		c.CatalogURL = e.CatalogURL
	}
	if len(e.Candidates) > 0 {
		c.Candidates = e.Candidates
	}
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	switch cfg.QueueMode {
	case QueueModeRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when QUEUE_MODE is redis")
		}
	case QueueModeMemory:
	default:
		return fmt.Errorf("QUEUE_MODE must be %q or %q, got %q", QueueModeRedis, QueueModeMemory, cfg.QueueMode)
	}

	if cfg.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if cfg.PredictionsLimit < 1 {
		return errors.New("PREDICTIONS_LIMIT must be at least 1")
	}

	if !strings.Contains(cfg.ResultsURLTemplate, "{unit}") {
		return errors.New("RESULTS_URL_TEMPLATE must contain a {unit} placeholder")
	}
	if _, err := url.Parse(strings.ReplaceAll(cfg.ResultsURLTemplate, "{unit}", "sp")); err != nil {
		return fmt.Errorf("RESULTS_URL_TEMPLATE is not a valid URL: %w", err)
	}
	if _, err := url.Parse(cfg.CatalogURL); err != nil {
		return fmt.Errorf("CATALOG_URL is not a valid URL: %w", err)
	}

	if len(cfg.Candidates) != 2 {
		return fmt.Errorf("exactly two tracked candidates are required, got %d", len(cfg.Candidates))
	}
	for _, c := range cfg.Candidates {
		if c.Key == "" || c.Name == "" {
			return errors.New("tracked candidates need both key and name")
		}
	}

	return nil
}
