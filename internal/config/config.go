package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thywilljoshua/catalogdeck/internal/imagegen"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingGoogleKey  = errors.New("config: GOOGLE_API_KEY (or GEMINI_API_KEY) is not set")
	ErrEmptyProviderList = errors.New("config: images.providers is empty")
)

// Config is the catalogdeck configuration file.
type Config struct {
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	OutDir   string        `yaml:"out_dir"`
	Search   SearchConfig  `yaml:"search"`
	Images   ImagesConfig  `yaml:"images"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

type SearchConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Depth      string `yaml:"depth"`
	MaxResults int    `yaml:"max_results"`
	Timeout    string `yaml:"timeout"`
}

type ImagesConfig struct {
	Disabled    bool                      `yaml:"disabled"`
	Width       int                       `yaml:"width"`
	Height      int                       `yaml:"height"`
	Concurrency int                       `yaml:"concurrency"`
	Providers   []imagegen.ProviderConfig `yaml:"providers"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Secrets are read from the environment only, never from the config file.
type Secrets struct {
	GoogleAPIKey string
	TavilyAPIKey string
}

func Default() Config {
	return Config{
		Model:    "gemini-2.5-flash",
		Language: "English",
		OutDir:   ".",
		Search: SearchConfig{
			Endpoint:   "https://api.tavily.com/search",
			Depth:      "advanced",
			MaxResults: 4,
			Timeout:    "30s",
		},
		Images: ImagesConfig{
			Width:       1024,
			Height:      768,
			Concurrency: 1,
			Providers:   imagegen.DefaultProviders(),
		},
	}
}

// Load reads a YAML config on top of Default and validates it. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal %q: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces structural correctness before anything is built.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Model) == "" {
		return errors.New("config: model is empty")
	}
	if cfg.Search.MaxResults < 0 {
		return errors.New("config: search.max_results is negative")
	}
	if cfg.Search.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Search.Timeout); err != nil {
			return fmt.Errorf("config: invalid search.timeout: %w", err)
		}
	}
	if cfg.Images.Width < 0 || cfg.Images.Height < 0 {
		return errors.New("config: images width/height must not be negative")
	}
	if cfg.Images.Concurrency < 0 {
		return errors.New("config: images.concurrency is negative")
	}
	if cfg.Images.Disabled {
		return nil
	}
	if len(cfg.Images.Providers) == 0 {
		return ErrEmptyProviderList
	}
	seen := make(map[string]struct{}, len(cfg.Images.Providers))
	for _, p := range cfg.Images.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config: images.providers: %w", err)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("config: duplicate image provider %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// SearchTimeout returns the parsed search timeout, defaulting to 30s.
func (c Config) SearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func SecretsFromEnv(getenv func(string) string) Secrets {
	s := Secrets{
		GoogleAPIKey: strings.TrimSpace(getenv("GOOGLE_API_KEY")),
		TavilyAPIKey: strings.TrimSpace(getenv("TAVILY_API_KEY")),
	}
	if s.GoogleAPIKey == "" {
		s.GoogleAPIKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	}
	return s
}

func (s Secrets) RequireGoogle() error {
	if s.GoogleAPIKey == "" {
		return ErrMissingGoogleKey
	}
	return nil
}
