package imagegen

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestBuildProvidersKeepsOrderAndSkipsMissingCredentials(t *testing.T) {
	cfgs := []ProviderConfig{
		{Name: "hf", Kind: KindHuggingFace, AuthEnv: "HF_TOKEN"},
		{Name: "pollinations", Kind: KindPollinations},
		{Name: "custom", Kind: KindHTTP, Endpoint: "https://img.example.com/{{pathescape .Prompt}}", AuthEnv: "CUSTOM_KEY", AuthHeader: "X-Api-Key"},
	}

	providers, err := BuildProviders(cfgs, BuildDeps{Getenv: envOf(map[string]string{"CUSTOM_KEY": "k"})})
	require.NoError(t, err)

	var names []string
	for _, p := range providers {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"pollinations", "custom"}, names)

	custom := providers[1].(*HTTPProvider)
	assert.Equal(t, "X-Api-Key", custom.authHeader)
	assert.Equal(t, "k", custom.token)
}

func TestBuildProvidersAllSkipped(t *testing.T) {
	_, err := BuildProviders([]ProviderConfig{{Name: "hf", Kind: KindHuggingFace, AuthEnv: "HF_TOKEN"}}, BuildDeps{})
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = BuildProviders([]ProviderConfig{{Name: "g", Kind: KindGemini}}, BuildDeps{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestBuildProvidersAppliesPolicy(t *testing.T) {
	cfgs := []ProviderConfig{{
		Name:        "pollinations",
		Kind:        KindPollinations,
		MaxAttempts: 5,
		Timeout:     "15s",
		Backoff:     BackoffConfig{RateLimitBase: "1s", RateLimitMax: "4s"},
	}}
	providers, err := BuildProviders(cfgs, BuildDeps{})
	require.NoError(t, err)

	pol := providers[0].Policy()
	assert.Equal(t, 5, pol.MaxAttempts)
	assert.Equal(t, DefaultMaxPromptLength, pol.MaxPromptLength)
	assert.Equal(t, 15*time.Second, pol.Timeout)
	assert.Equal(t, time.Second, pol.Backoff.RateLimitBase)
	assert.Equal(t, 4*time.Second, pol.Backoff.RateLimitMax)
	assert.Equal(t, DefaultErrorDelay, pol.Backoff.ErrorDelay)
}

func TestProviderConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProviderConfig
		ok   bool
	}{
		{"preset", ProviderConfig{Name: "p", Kind: KindPollinations}, true},
		{"missing name", ProviderConfig{Kind: KindPollinations}, false},
		{"unknown kind", ProviderConfig{Name: "p", Kind: "ftp"}, false},
		{"http without endpoint", ProviderConfig{Name: "p", Kind: KindHTTP}, false},
		{"bad timeout", ProviderConfig{Name: "p", Kind: KindPollinations, Timeout: "soon"}, false},
		{"bad backoff", ProviderConfig{Name: "p", Kind: KindPollinations, Backoff: BackoffConfig{ErrorDelay: "2 seconds"}}, false},
		{"negative attempts", ProviderConfig{Name: "p", Kind: KindPollinations, MaxAttempts: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDefaultProvidersAreValid(t *testing.T) {
	for _, c := range DefaultProviders() {
		assert.NoError(t, c.Validate(), c.Name)
	}
}

func TestClassifyGenAI(t *testing.T) {
	tests := []struct {
		err  error
		want Reason
	}{
		{genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, RateLimited},
		{fmt.Errorf("wrapped: %w", genai.APIError{Code: 503, Message: "Model is loading"}), ProviderLoading},
		{genai.APIError{Code: 504, Status: "DEADLINE_EXCEEDED"}, Timeout},
		{genai.APIError{Code: 400, Message: "prompt blocked"}, ProviderError},
		{errors.New("dial tcp: refused"), ProviderError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyGenAI(tt.err).Reason, tt.err.Error())
	}
}

func TestAspectFor(t *testing.T) {
	assert.Equal(t, "4:3", aspectFor(1024, 768, "1:1"))
	assert.Equal(t, "16:9", aspectFor(1920, 1080, "1:1"))
	assert.Equal(t, "1:1", aspectFor(512, 512, "4:3"))
	assert.Equal(t, "4:3", aspectFor(0, 0, "4:3"))
}
