// Package payloadschema validates and canonicalizes ingest payloads against
// the embedded article schema.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/storyline/internal/textnorm"
)

const schemaResource = "article.schema.json"

//go:embed article.schema.json
var articleSchemaJSON string

type SourcePayload struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug,omitempty"`
	Homepage *string  `json:"homepage,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
}

type ArticlePayload struct {
	PayloadVersion string         `json:"payload_version"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	PublishedAt    *string        `json:"published_at,omitempty"`
	FetchedAt      *string        `json:"fetched_at,omitempty"`
	Dek            *string        `json:"dek,omitempty"`
	Author         *string        `json:"author,omitempty"`
	BodyText       *string        `json:"body_text,omitempty"`
	Language       *string        `json:"language,omitempty"`
	Source         *SourcePayload `json:"source,omitempty"`
}

// Article is a validated payload in canonical form.
type Article struct {
	Title        string
	CanonicalURL string
	Host         string
	PublishedAt  *time.Time
	FetchedAt    *time.Time
	Dek          *string
	Author       *string
	BodyText     *string
	Language     *string

	SourceName     string
	SourceSlug     string
	SourceHomepage *string
	SourceWeight   *float64
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateArticlePayload decodes one payload strictly, checks it against the
// schema and returns it canonicalized.
func ValidateArticlePayload(payload json.RawMessage) (*Article, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	return validateValue(value)
}

// ValidateArticleBatch accepts either one payload object or an array of them.
// Each element is validated independently; errs[i] is nil for valid items.
func ValidateArticleBatch(raw []byte) ([]*Article, []error, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	items, isArray := value.([]any)
	if !isArray {
		items = []any{value}
	}
	articles := make([]*Article, len(items))
	errs := make([]error, len(items))
	for i, item := range items {
		articles[i], errs[i] = validateValue(item)
	}
	return articles, errs, nil
}

func validateValue(value any) (*Article, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}
	var payload ArticlePayload
	if err := json.Unmarshal(normalized, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return canonicalize(&payload)
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource(schemaResource, strings.NewReader(articleSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile(schemaResource)
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func canonicalize(p *ArticlePayload) (*Article, error) {
	title := strings.Join(strings.Fields(p.Title), " ")
	if title == "" {
		return nil, fmt.Errorf("title must not be empty")
	}
	canonicalURL, _ := textnorm.CanonicalURL(p.URL)
	if !strings.HasPrefix(canonicalURL, "http://") && !strings.HasPrefix(canonicalURL, "https://") {
		return nil, fmt.Errorf("url must be an absolute http(s) URL")
	}
	host := textnorm.HostOf(canonicalURL)

	article := &Article{
		Title:        title,
		CanonicalURL: canonicalURL,
		Host:         host,
		Dek:          trimmedOrNil(p.Dek),
		Author:       trimmedOrNil(p.Author),
		BodyText:     trimmedOrNil(p.BodyText),
		Language:     lowerOrNil(p.Language),
	}

	var err error
	if article.PublishedAt, err = parseTimestamp("published_at", p.PublishedAt); err != nil {
		return nil, err
	}
	if article.FetchedAt, err = parseTimestamp("fetched_at", p.FetchedAt); err != nil {
		return nil, err
	}

	if p.Source != nil {
		article.SourceName = strings.TrimSpace(p.Source.Name)
		article.SourceSlug = strings.TrimSpace(p.Source.Slug)
		article.SourceHomepage = trimmedOrNil(p.Source.Homepage)
		article.SourceWeight = p.Source.Weight
	}
	if article.SourceName == "" {
		article.SourceName = host
	}
	if article.SourceSlug == "" {
		article.SourceSlug = textnorm.Slug(host)
	}
	return article, nil
}

func parseTimestamp(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339: %w", field, err)
	}
	utc := parsed.UTC()
	return &utc, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func lowerOrNil(s *string) *string {
	trimmed := trimmedOrNil(s)
	if trimmed == nil {
		return nil
	}
	lowered := strings.ToLower(*trimmed)
	return &lowered
}
