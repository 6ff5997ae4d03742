package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/api/option"
)

// Gemini is an Oracle backed by the Google Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend. Close releases the underlying connection.
func NewGemini(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Gemini, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) model(req Request) *genai.GenerativeModel {
	m := g.client.GenerativeModel(req.Model)
	if req.System != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = toGenaiSchema(req.Schema)
	if req.Deterministic {
		m.SetTemperature(0)
		m.SetCandidateCount(1)
	}
	return m
}

// Complete sends the prompt and optional image and returns the concatenated reply text.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Image != nil {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: req.Image.Data})
	}

	resp, err := g.model(req).GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no content")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// Ping fetches the model description to check the key and model name.
func (g *Gemini) Ping(ctx context.Context, modelName string) error {
	if _, err := g.client.GenerativeModel(modelName).Info(ctx); err != nil {
		return fmt.Errorf("gemini model info: %w", err)
	}
	return nil
}

// Close closes the client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// toGenaiSchema converts a JSON schema definition to the Gemini schema dialect.
func toGenaiSchema(d jsonschema.Definition) *genai.Schema {
	s := &genai.Schema{
		Description: d.Description,
		Enum:        d.Enum,
		Required:    d.Required,
	}
	switch d.Type {
	case jsonschema.Object:
		s.Type = genai.TypeObject
	case jsonschema.Array:
		s.Type = genai.TypeArray
	case jsonschema.Number:
		s.Type = genai.TypeNumber
	case jsonschema.Integer:
		s.Type = genai.TypeInteger
	case jsonschema.Boolean:
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	if d.Items != nil {
		s.Items = toGenaiSchema(*d.Items)
	}
	if len(d.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(d.Properties))
		for name, p := range d.Properties {
			s.Properties[name] = toGenaiSchema(p)
		}
	}
	if len(s.Enum) > 0 {
		s.Format = "enum"
	}
	return s
}
