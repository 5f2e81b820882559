// Package llm generates answers through an OpenAI-compatible chat
// completion endpoint such as Ollama's /v1.
package llm

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pdfrag/internal/adapter/backend"
	"pdfrag/internal/domain"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAILLM sends each prompt as a single user message.
type OpenAILLM struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAILLM(cfg Config) (*OpenAILLM, error) {
	if cfg.Model == "" {
		return nil, domain.Errorf(domain.KindConfig, "llm model is required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "ollama"
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAILLM{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate returns the first choice's content as produced by the model.
func (l *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: l.temperature,
	})
	if err != nil {
		return "", backend.Wrap(domain.KindGeneration, "chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.Errorf(domain.KindGeneration, "no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) ModelName() string {
	return l.model
}
