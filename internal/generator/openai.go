// Package generator produces candidate headlines through OpenAI-compatible
// chat completion endpoints.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultLocalEndpoint = "http://127.0.0.1:8845/v1"
	DefaultModel         = "gpt-4o-mini"

	systemPrompt = "You are a copy editor for a news desk. Answer with the rewritten headline only, in the requested JSON shape."
)

// Generator produces one candidate headline for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type headlineResponse struct {
	Headline string `json:"headline" jsonschema:"description=The rewritten headline as plain text"`
}

var (
	schemaOnce sync.Once
	schemaDoc  any
	schemaErr  error
)

// headlineSchema reflects headlineResponse once into the map form the SDK
// expects for a strict json_schema response format.
func headlineSchema() (any, error) {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schemaObj := reflector.Reflect(&headlineResponse{})
		if schemaObj.Type == "" {
			schemaObj.Type = "object"
		}
		raw, err := json.Marshal(schemaObj)
		if err != nil {
			schemaErr = fmt.Errorf("marshal headline schema: %w", err)
			return
		}
		if err := json.Unmarshal(raw, &schemaDoc); err != nil {
			schemaErr = fmt.Errorf("unmarshal headline schema: %w", err)
		}
	})
	return schemaDoc, schemaErr
}

// ChatGenerator calls chat completions with a strict JSON schema response.
type ChatGenerator struct {
	name   string
	model  string
	client openai.Client
}

// NewChatGenerator builds a named generator. An empty baseURL uses the SDK
// default (api.openai.com).
func NewChatGenerator(name, apiKey, baseURL, model string) *ChatGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	return &ChatGenerator{
		name:   normalizeName(name),
		model:  model,
		client: openai.NewClient(opts...),
	}
}

func (g *ChatGenerator) Name() string {
	return g.name
}


func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil {
		return "", fmt.Errorf("generator is nil")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	schema, err := headlineSchema()
	if err != nil {
		return "", err
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(g.model),
		MaxTokens:   openai.Int(120),
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "headline_rewrite",
					Description: openai.String("A single rewritten news headline"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", g.name, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%s response missing choices", g.name)
	}
	return parseHeadline(completion.Choices[0].Message.Content)
}

// parseHeadline reads the structured reply. Some local servers ignore the
// response format, so bare text is accepted as the headline.
func parseHeadline(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("generator response was empty")
	}
	if strings.HasPrefix(content, "{") {
		var parsed headlineResponse
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			return "", fmt.Errorf("decode headline response: %w", err)
		}
		if strings.TrimSpace(parsed.Headline) == "" {
			return "", fmt.Errorf("generator response missing headline")
		}
		return parsed.Headline, nil
	}
	return content, nil
}
