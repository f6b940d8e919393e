package embedding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"horse.fit/storyline/internal/config"
	"horse.fit/storyline/internal/similarity"
)

func unitVector() []float64 {
	v := make([]float64, similarity.Dimensions)
	v[0] = 1
	return v
}

func TestHTTPProviderTextsShape(t *testing.T) {
	t.Parallel()

	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{unitVector()}})
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, "", time.Second)
	vector, err := provider.Embed(t.Context(), "  Storm closes roads  ")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != similarity.Dimensions || vector[0] != 1 {
		t.Fatalf("unexpected vector head %v", vector[:2])
	}
	if len(got.Texts) != 1 || got.Texts[0] != "Storm closes roads" || len(got.Input) != 0 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPProviderOpenAIShape(t *testing.T) {
	t.Parallel()

	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": unitVector()}},
		})
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL+"/v1/embeddings", "bge-m3", time.Second)
	if _, err := provider.Embed(t.Context(), "Storm closes roads"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got.Input) != 1 || got.Model != "bge-m3" || len(got.Texts) != 0 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPProviderErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			want: "status 503",
		},
		{
			name: "width",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1, 0, 0}}})
			},
			want: "expected 1536 dimensions",
		},
		{
			name: "empty",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			want: "missing vectors",
		},
	}
	for _, tc := range cases {
		server := httptest.NewServer(tc.handler)
		_, err := NewHTTPProvider(server.URL, "", time.Second).Embed(t.Context(), "text")
		server.Close()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error = %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                 "http://127.0.0.1:8844/embed",
		"127.0.0.1:9000":                   "http://127.0.0.1:9000/embed",
		"http://embed.local/":              "http://embed.local/embed",
		"http://embed.local/v1/embeddings": "http://embed.local/v1/embeddings",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{EmbeddingProvider: "none"}
	if p, err := NewFromConfig(cfg); err != nil || p != nil {
		t.Fatalf("none provider = %v, %v", p, err)
	}

	cfg = &config.Config{EmbeddingProvider: "HTTP", EmbeddingEndpoint: "http://embed.local", EmbeddingTimeout: time.Second}
	p, err := NewFromConfig(cfg)
	if err != nil || p.Name() != "http" {
		t.Fatalf("http provider = %v, %v", p, err)
	}

	cfg = &config.Config{EmbeddingProvider: "openai", OpenAIAPIKey: "sk-test"}
	if p, err := NewFromConfig(cfg); err != nil || p.Name() != "openai" {
		t.Fatalf("openai provider = %v, %v", p, err)
	}

	if _, err := NewFromConfig(&config.Config{EmbeddingProvider: "bogus"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestInput(t *testing.T) {
	t.Parallel()

	if got := Input(" Title ", "", " Body "); got != "Title\n\nBody" {
		t.Fatalf("Input() = %q", got)
	}
}
