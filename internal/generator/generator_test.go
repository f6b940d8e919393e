package generator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"horse.fit/storyline/internal/config"
)

func chatServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChatGeneratorStructuredResponse(t *testing.T) {
	t.Parallel()

	var req map[string]any
	server := chatServer(t, `{"headline":"Storm closes coastal roads"}`, &req)
	gen := NewChatGenerator("local", "test", server.URL+"/v1", "test-model")

	got, err := gen.Generate(t.Context(), "Headline: Storm shuts roads")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Storm closes coastal roads" {
		t.Fatalf("Generate() = %q", got)
	}
	if req["model"] != "test-model" {
		t.Fatalf("unexpected model %v", req["model"])
	}
	format, _ := req["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", req["response_format"])
	}
	schemaFormat, _ := format["json_schema"].(map[string]any)
	if schemaFormat["strict"] != true {
		t.Fatalf("expected strict schema, got %v", schemaFormat)
	}
}

func TestChatGeneratorAcceptsBareText(t *testing.T) {
	t.Parallel()

	server := chatServer(t, "  Storm closes coastal roads \n", nil)
	got, err := NewChatGenerator("local", "test", server.URL+"/v1", "").Generate(t.Context(), "prompt")
	if err != nil || got != "Storm closes coastal roads" {
		t.Fatalf("Generate() = %q, %v", got, err)
	}
}

func TestParseHeadlineErrors(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"", "   ", `{"headline":""}`, `{"headline":`} {
		if _, err := parseHeadline(content); err == nil {
			t.Fatalf("parseHeadline(%q) expected error", content)
		}
	}
}

func TestHeadlineSchema(t *testing.T) {
	t.Parallel()

	schema, err := headlineSchema()
	if err != nil {
		t.Fatalf("headlineSchema() error = %v", err)
	}
	doc, ok := schema.(map[string]any)
	if !ok {
		t.Fatalf("unexpected schema type %T", schema)
	}
	if doc["type"] != "object" || doc["additionalProperties"] != false {
		t.Fatalf("unexpected schema %v", doc)
	}
	props, _ := doc["properties"].(map[string]any)
	if _, ok := props["headline"]; !ok {
		t.Fatalf("schema missing headline property: %v", doc)
	}
}

func TestRegistryFromConfig(t *testing.T) {
	t.Parallel()

	registry := NewRegistryFromConfig(&config.Config{GeneratorProvider: "", GeneratorModel: "m"})
	if gen, err := registry.Generator(""); err != nil || gen.Name() != ProviderLocal {
		t.Fatalf("Generator(\"\") = %v, %v", gen, err)
	}
	if names := registry.Names(); len(names) != 1 || names[0] != ProviderLocal {
		t.Fatalf("expected only local without an api key, got %v", names)
	}
	if _, err := registry.Generator("openai"); err == nil {
		t.Fatalf("expected openai to be missing")
	}

	registry = NewRegistryFromConfig(&config.Config{GeneratorProvider: "OpenAI", OpenAIAPIKey: "sk-test", GeneratorModel: "m"})
	gen, err := registry.Generator("")
	if err != nil || gen.Name() != ProviderOpenAI {
		t.Fatalf("Generator(\"\") = %v, %v", gen, err)
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil generator error")
	}
	if err := registry.Register(NewChatGenerator("  ", "k", "", "")); err == nil {
		t.Fatalf("expected empty name error")
	}
	if _, err := registry.Generator(""); err == nil {
		t.Fatalf("expected empty registry error")
	}
}
