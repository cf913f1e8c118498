package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const maxImageBytes = 32 << 20

// HTTPProvider calls a generator described declaratively: an endpoint URL
// template and, for POST providers, a JSON body template. Both templates
// see the Attempt fields plus Model.
type HTTPProvider struct {
	name       string
	method     string
	endpoint   *template.Template
	body       *template.Template
	model      string
	authHeader string
	token      string
	client     *http.Client
	policy     Policy
}

// HTTPConfig holds the resolved settings for an HTTPProvider.
type HTTPConfig struct {
	Name       string
	Method     string
	Endpoint   string
	Body       string
	Model      string
	AuthHeader string
	Token      string
	Client     *http.Client
	Policy     Policy
}

var templateFuncs = template.FuncMap{
	"pathescape":  url.PathEscape,
	"queryescape": url.QueryEscape,
	"json":        jsonString,
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("imagegen: provider name is required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("imagegen: provider %q: endpoint is required", cfg.Name)
	}
	endpoint, err := template.New(cfg.Name + "-endpoint").Funcs(templateFuncs).Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("imagegen: provider %q: parse endpoint: %w", cfg.Name, err)
	}
	p := &HTTPProvider{
		name:       cfg.Name,
		method:     strings.ToUpper(strings.TrimSpace(cfg.Method)),
		endpoint:   endpoint,
		model:      cfg.Model,
		authHeader: cfg.AuthHeader,
		token:      cfg.Token,
		client:     cfg.Client,
		policy:     cfg.Policy.withDefaults(),
	}
	if p.method == "" {
		p.method = http.MethodGet
	}
	if p.method != http.MethodGet && p.method != http.MethodPost {
		return nil, fmt.Errorf("imagegen: provider %q: unsupported method %q", cfg.Name, cfg.Method)
	}
	if strings.TrimSpace(cfg.Body) != "" {
		p.body, err = template.New(cfg.Name + "-body").Funcs(templateFuncs).Parse(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("imagegen: provider %q: parse body: %w", cfg.Name, err)
		}
	}
	if p.authHeader == "" && p.token != "" {
		p.authHeader = "Authorization"
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	return p, nil
}

func (p *HTTPProvider) Name() string   { return p.name }
func (p *HTTPProvider) Policy() Policy { return p.policy }

type templateData struct {
	Prompt string
	Width  int
	Height int
	Seed   int64
	Model  string
}

func (p *HTTPProvider) Generate(ctx context.Context, at Attempt) (*Image, error) {
	data := templateData{Prompt: at.Prompt, Width: at.Width, Height: at.Height, Seed: at.Seed, Model: p.model}

	var u strings.Builder
	if err := p.endpoint.Execute(&u, data); err != nil {
		return nil, fmt.Errorf("render endpoint: %w", err)
	}
	var body io.Reader
	if p.body != nil {
		var b bytes.Buffer
		if err := p.body.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}
		body = &b
	}

	req, err := http.NewRequestWithContext(ctx, p.method, strings.TrimSpace(u.String()), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		if strings.EqualFold(p.authHeader, "Authorization") {
			req.Header.Set(p.authHeader, "Bearer "+p.token)
		} else {
			req.Header.Set(p.authHeader, p.token)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, classify(fmt.Errorf("read response: %w", err))
	}
	return classifyResponse(resp, payload)
}

// loadingBody is the JSON shape inference endpoints return while a cold
// model is being loaded.
type loadingBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func classifyResponse(resp *http.Response, payload []byte) (*Image, error) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" && len(payload) > 0 {
		ct = http.DetectContentType(payload)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &AttemptError{
			Reason:     RateLimited,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode == http.StatusOK && IsImageContentType(ct) && len(payload) > 0 {
		return &Image{Data: payload, ContentType: ct}, nil
	}
	if wait, ok := loadingSignal(payload); ok {
		return nil, &AttemptError{Reason: ProviderLoading, Status: resp.StatusCode, RetryAfter: wait}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, &AttemptError{
			Reason: InvalidContent,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("content type %q is not an image", ct),
		}
	}
	return nil, &AttemptError{
		Reason: ProviderError,
		Status: resp.StatusCode,
		Err:    errors.New(snippet(payload)),
	}
}

// loadingSignal reports whether a JSON body says the model is still
// loading, together with its suggested wait (zero when not given).
func loadingSignal(payload []byte) (time.Duration, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return 0, false
	}
	var lb loadingBody
	if err := json.Unmarshal(trimmed, &lb); err != nil {
		return 0, false
	}
	if lb.EstimatedTime <= 0 && !strings.Contains(strings.ToLower(lb.Error), "loading") {
		return 0, false
	}
	return time.Duration(lb.EstimatedTime * float64(time.Second)), true
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response body"
	}
	return s
}
