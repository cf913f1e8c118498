package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiProvider generates images with an Imagen model through the Gemini
// API. The Developer API ignores seeds, so Attempt.Seed is only recorded.
type GeminiProvider struct {
	name   string
	client *genai.Client
	model  string
	aspect string
	policy Policy
}

func NewGeminiProvider(name string, client *genai.Client, model string, policy Policy) (*GeminiProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("imagegen: provider %q: gemini client is nil", name)
	}
	if model == "" {
		model = "imagen-4.0-generate-001"
	}
	if name == "" {
		name = "gemini"
	}
	return &GeminiProvider{name: name, client: client, model: model, aspect: "4:3", policy: policy.withDefaults()}, nil
}

func (g *GeminiProvider) Name() string   { return g.name }
func (g *GeminiProvider) Policy() Policy { return g.policy }

func (g *GeminiProvider) Generate(ctx context.Context, at Attempt) (*Image, error) {
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectFor(at.Width, at.Height, g.aspect),
		OutputMIMEType: "image/png",
	}
	res, err := g.client.Models.GenerateImages(ctx, g.model, at.Prompt, cfg)
	if err != nil {
		return nil, classifyGenAI(err)
	}
	if res == nil || len(res.GeneratedImages) == 0 || res.GeneratedImages[0].Image == nil {
		return nil, &AttemptError{Reason: InvalidContent, Err: errors.New("no image in response")}
	}
	img := res.GeneratedImages[0].Image
	ct := img.MIMEType
	if ct == "" {
		ct = http.DetectContentType(img.ImageBytes)
	}
	return &Image{Data: img.ImageBytes, ContentType: ct}, nil
}

func classifyGenAI(err error) *AttemptError {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return classify(err)
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		return &AttemptError{Reason: RateLimited, Status: apiErr.Code, Err: err}
	case apiErr.Code == http.StatusServiceUnavailable && strings.Contains(strings.ToLower(apiErr.Message), "loading"):
		return &AttemptError{Reason: ProviderLoading, Status: apiErr.Code, Err: err}
	case apiErr.Code == http.StatusGatewayTimeout || apiErr.Status == "DEADLINE_EXCEEDED":
		return &AttemptError{Reason: Timeout, Status: apiErr.Code, Err: err}
	default:
		return &AttemptError{Reason: ProviderError, Status: apiErr.Code, Err: err}
	}
}

// aspectFor picks the closest aspect ratio Imagen accepts.
func aspectFor(w, h int, fallback string) string {
	if w <= 0 || h <= 0 {
		return fallback
	}
	ratios := []struct {
		name string
		v    float64
	}{
		{"1:1", 1}, {"3:4", 0.75}, {"4:3", 4.0 / 3}, {"9:16", 9.0 / 16}, {"16:9", 16.0 / 9},
	}
	want := float64(w) / float64(h)
	best, diff := fallback, -1.0
	for _, r := range ratios {
		d := want - r.v
		if d < 0 {
			d = -d
		}
		if diff < 0 || d < diff {
			best, diff = r.name, d
		}
	}
	return best
}
