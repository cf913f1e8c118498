package imagegen

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

// Provider kinds understood by BuildProviders.
const (
	KindHTTP         = "http"
	KindPollinations = "pollinations"
	KindHuggingFace  = "huggingface"
	KindGemini       = "gemini"
)

const (
	pollinationsEndpoint = "https://image.pollinations.ai/prompt/{{pathescape .Prompt}}?width={{.Width}}&height={{.Height}}&seed={{.Seed}}&nologo=true{{if .Model}}&model={{queryescape .Model}}{{end}}"
	huggingFaceEndpoint  = "https://api-inference.huggingface.co/models/{{.Model}}"
	huggingFaceBody      = `{"inputs": {{json .Prompt}}, "parameters": {"width": {{.Width}}, "height": {{.Height}}, "seed": {{.Seed}}}}`
	huggingFaceModel     = "stabilityai/stable-diffusion-xl-base-1.0"
)

// ProviderConfig is one entry of the ordered provider list in the config
// file. Durations are Go duration strings.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Kind            string        `yaml:"kind"`
	Method          string        `yaml:"method,omitempty"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
	Body            string        `yaml:"body,omitempty"`
	Model           string        `yaml:"model,omitempty"`
	AuthEnv         string        `yaml:"auth_env,omitempty"`
	AuthHeader      string        `yaml:"auth_header,omitempty"`
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	MaxPromptLength int           `yaml:"max_prompt_length,omitempty"`
	Timeout         string        `yaml:"timeout,omitempty"`
	Backoff         BackoffConfig `yaml:"backoff,omitempty"`
}

type BackoffConfig struct {
	RateLimitBase  string `yaml:"rate_limit_base,omitempty"`
	RateLimitMax   string `yaml:"rate_limit_max,omitempty"`
	LoadingDefault string `yaml:"loading_default,omitempty"`
	LoadingMax     string `yaml:"loading_max,omitempty"`
	ErrorDelay     string `yaml:"error_delay,omitempty"`
}

// Validate checks the structural parts of a provider entry that do not
// depend on the environment.
func (c ProviderConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("provider name is empty")
	}
	switch c.Kind {
	case KindHTTP:
		if strings.TrimSpace(c.Endpoint) == "" {
			return fmt.Errorf("provider %q: kind http requires an endpoint", c.Name)
		}
	case KindPollinations, KindHuggingFace, KindGemini:
	default:
		return fmt.Errorf("provider %q: unknown kind %q", c.Name, c.Kind)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("provider %q: negative max_attempts", c.Name)
	}
	if c.MaxPromptLength < 0 {
		return fmt.Errorf("provider %q: negative max_prompt_length", c.Name)
	}
	if _, err := c.policy(); err != nil {
		return fmt.Errorf("provider %q: %w", c.Name, err)
	}
	return nil
}

func (c ProviderConfig) policy() (Policy, error) {
	p := Policy{MaxAttempts: c.MaxAttempts, MaxPromptLength: c.MaxPromptLength}
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", c.Timeout, &p.Timeout},
		{"backoff.rate_limit_base", c.Backoff.RateLimitBase, &p.Backoff.RateLimitBase},
		{"backoff.rate_limit_max", c.Backoff.RateLimitMax, &p.Backoff.RateLimitMax},
		{"backoff.loading_default", c.Backoff.LoadingDefault, &p.Backoff.LoadingDefault},
		{"backoff.loading_max", c.Backoff.LoadingMax, &p.Backoff.LoadingMax},
		{"backoff.error_delay", c.Backoff.ErrorDelay, &p.Backoff.ErrorDelay},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return p.withDefaults(), nil
}

// BuildDeps carries the shared clients providers are built with.
type BuildDeps struct {
	Getenv     func(string) string
	HTTPClient *http.Client
	GenAI      *genai.Client
	Logger     *slog.Logger
}

// BuildProviders turns config entries into providers, preserving order.
// Entries whose credentials are missing from the environment are skipped
// with a warning; an empty result is ErrNoProviders.
func BuildProviders(cfgs []ProviderConfig, deps BuildDeps) ([]Provider, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	getenv := deps.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	var out []Provider
	for _, c := range cfgs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("imagegen: %w", err)
		}
		policy, _ := c.policy()

		var token string
		if c.AuthEnv != "" {
			token = strings.TrimSpace(getenv(c.AuthEnv))
			if token == "" {
				logger.Warn("skipping image provider without credentials", "provider", c.Name, "env", c.AuthEnv)
				continue
			}
		}

		switch c.Kind {
		case KindGemini:
			if deps.GenAI == nil {
				logger.Warn("skipping gemini image provider without client", "provider", c.Name)
				continue
			}
			p, err := NewGeminiProvider(c.Name, deps.GenAI, c.Model, policy)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			hc := httpConfig(c)
			hc.Token = token
			hc.Client = deps.HTTPClient
			hc.Policy = policy
			p, err := NewHTTPProvider(hc)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoProviders
	}
	return out, nil
}

// httpConfig applies the kind's preset, letting explicit fields win.
func httpConfig(c ProviderConfig) HTTPConfig {
	hc := HTTPConfig{
		Name:       c.Name,
		Method:     c.Method,
		Endpoint:   c.Endpoint,
		Body:       c.Body,
		Model:      c.Model,
		AuthHeader: c.AuthHeader,
	}
	switch c.Kind {
	case KindPollinations:
		if hc.Endpoint == "" {
			hc.Endpoint = pollinationsEndpoint
		}
		if hc.Method == "" {
			hc.Method = http.MethodGet
		}
	case KindHuggingFace:
		if hc.Endpoint == "" {
			hc.Endpoint = huggingFaceEndpoint
		}
		if hc.Body == "" {
			hc.Body = huggingFaceBody
		}
		if hc.Method == "" {
			hc.Method = http.MethodPost
		}
		if hc.Model == "" {
			hc.Model = huggingFaceModel
		}
	}
	return hc
}

// DefaultProviders is the fallback chain used when no config file is given:
// the keyless Pollinations endpoint first, then Hugging Face inference.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "pollinations", Kind: KindPollinations, MaxAttempts: 3, MaxPromptLength: 400, Timeout: "60s"},
		{Name: "huggingface", Kind: KindHuggingFace, AuthEnv: "HF_TOKEN", MaxAttempts: 3, MaxPromptLength: 500, Timeout: "90s"},
	}
}
