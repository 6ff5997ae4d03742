package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is an Oracle backed by an OpenAI-compatible chat completions API.
type OpenAI struct {
	api *openai.Client
}

// NewOpenAI creates an OpenAI-compatible backend. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAI(baseURL, apiKey string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{api: openai.NewClientWithConfig(config)}
}

// Complete sends one system and one user message and returns the reply text.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	}
	if req.Image != nil {
		user.Content = ""
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI(req.Image),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	}

	schema := req.Schema
	ccr := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			user,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Op,
				Schema: &schema,
			},
		},
	}
	if req.Deterministic {
		// A zero temperature is dropped by omitempty.
		ccr.Temperature = math.SmallestNonzeroFloat32
	}

	resp, err := o.api.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (o *OpenAI) Ping(ctx context.Context) error {
	if _, err := o.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func dataURI(img *Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
