package imagegen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderGETSuccess(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{
		Name:     "pollinations",
		Endpoint: srv.URL + "/prompt/{{pathescape .Prompt}}?width={{.Width}}&height={{.Height}}&seed={{.Seed}}",
	})
	require.NoError(t, err)

	img, err := p.Generate(context.Background(), Attempt{Prompt: "Red pen on desk", Width: 1024, Height: 768, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, []byte("jpeg-bytes"), img.Data)
	assert.Equal(t, "/prompt/Red%20pen%20on%20desk", gotPath)
	assert.Equal(t, "width=1024&height=768&seed=42", gotQuery)
}

func TestHTTPProviderPOSTBodyAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/models/sdxl", r.URL.Path)

		var body struct {
			Inputs     string `json:"inputs"`
			Parameters struct {
				Width  int   `json:"width"`
				Height int   `json:"height"`
				Seed   int64 `json:"seed"`
			} `json:"parameters"`
		}
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, `Watch "Aurora" on velvet`, body.Inputs)
		assert.Equal(t, 640, body.Parameters.Width)
		assert.Equal(t, int64(7), body.Parameters.Seed)

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	hc := httpConfig(ProviderConfig{Name: "hf", Kind: KindHuggingFace, Endpoint: srv.URL + "/models/{{.Model}}", Model: "sdxl"})
	hc.Token = "hf-secret"
	p, err := NewHTTPProvider(hc)
	require.NoError(t, err)

	img, err := p.Generate(context.Background(), Attempt{Prompt: `Watch "Aurora" on velvet`, Width: 640, Height: 480, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     http.Header
		body       string
		wantReason Reason
		wantWait   time.Duration
	}{
		{"rate limited", 429, nil, "slow down", RateLimited, 0},
		{"rate limited with retry-after", 429, http.Header{"Retry-After": {"4"}}, "", RateLimited, 4 * time.Second},
		{"model loading", 503, http.Header{"Content-Type": {"application/json"}}, `{"error":"Model x is currently loading","estimated_time":5.0}`, ProviderLoading, 5 * time.Second},
		{"loading without estimate", 503, nil, `{"error":"model is loading"}`, ProviderLoading, 0},
		{"200 html", 200, http.Header{"Content-Type": {"text/html; charset=utf-8"}}, "<html>", InvalidContent, 0},
		{"server error", 500, nil, "boom", ProviderError, 0},
		{"not found json", 404, nil, `{"error":"not found"}`, ProviderError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			if resp.Header == nil {
				resp.Header = http.Header{}
			}
			img, err := classifyResponse(resp, []byte(tt.body))
			assert.Nil(t, img)
			var aerr *AttemptError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.wantReason, aerr.Reason)
			assert.Equal(t, tt.status, aerr.Status)
			assert.Equal(t, tt.wantWait, aerr.RetryAfter)
		})
	}
}

func TestClassifyResponseSniffsMissingContentType(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	img, err := classifyResponse(resp, pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
}

func TestAcquireOverHTTPRateLimitThenSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{Name: "primary", Endpoint: srv.URL + "/{{pathescape .Prompt}}"})
	require.NoError(t, err)
	rec := &sleepRecorder{}
	a, err := New([]Provider{p}, WithSleep(rec.Sleep))
	require.NoError(t, err)

	res := a.Acquire(context.Background(), Request{Description: "Espresso machine"})

	require.True(t, res.OK())
	waits := rec.Waits()
	require.Len(t, waits, 2)
	assert.GreaterOrEqual(t, waits[1], waits[0])
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestAcquireOverHTTPLoadingThenSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":5}`))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{Name: "hf", Method: http.MethodPost, Endpoint: srv.URL, Body: `{"inputs": {{json .Prompt}}}`})
	require.NoError(t, err)
	rec := &sleepRecorder{}
	a, err := New([]Provider{p}, WithSleep(rec.Sleep))
	require.NoError(t, err)

	res := a.Acquire(context.Background(), Request{Description: "Wooden chess set"})

	require.True(t, res.OK())
	require.Len(t, rec.Waits(), 1)
	assert.GreaterOrEqual(t, rec.Waits()[0], 5*time.Second)
}

func TestAcquireOverHTTPNetworkErrorFallsBack(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("RIFF....WEBP"))
	}))
	defer alive.Close()

	primary, err := NewHTTPProvider(HTTPConfig{Name: "primary", Endpoint: deadURL + "/x", Policy: Policy{MaxAttempts: 2}})
	require.NoError(t, err)
	secondary, err := NewHTTPProvider(HTTPConfig{Name: "secondary", Endpoint: alive.URL + "/x"})
	require.NoError(t, err)
	rec := &sleepRecorder{}
	a, err := New([]Provider{primary, secondary}, WithSleep(rec.Sleep))
	require.NoError(t, err)

	res := a.Acquire(context.Background(), Request{Description: "Luxury watch"})

	require.True(t, res.OK())
	assert.Equal(t, "secondary", res.Provider)
	assert.Equal(t, []time.Duration{DefaultErrorDelay}, rec.Waits())
}

func TestNewHTTPProviderValidation(t *testing.T) {
	_, err := NewHTTPProvider(HTTPConfig{Endpoint: "http://x"})
	assert.Error(t, err)

	_, err = NewHTTPProvider(HTTPConfig{Name: "x"})
	assert.Error(t, err)

	_, err = NewHTTPProvider(HTTPConfig{Name: "x", Endpoint: "http://x/{{.Prompt"})
	assert.Error(t, err)

	_, err = NewHTTPProvider(HTTPConfig{Name: "x", Endpoint: "http://x", Method: "DELETE"})
	assert.Error(t, err)
}

func TestPollinationsPresetEscapesPrompt(t *testing.T) {
	hc := httpConfig(ProviderConfig{Name: "pollinations", Kind: KindPollinations, Model: "flux"})
	p, err := NewHTTPProvider(hc)
	require.NoError(t, err)

	var u strings.Builder
	require.NoError(t, p.endpoint.Execute(&u, templateData{Prompt: "Café & croissant?", Width: 10, Height: 20, Seed: 3, Model: "flux"}))
	assert.Equal(t,
		"https://image.pollinations.ai/prompt/Caf%C3%A9%20&%20croissant%3F?width=10&height=20&seed=3&nologo=true&model=flux",
		u.String())
}
