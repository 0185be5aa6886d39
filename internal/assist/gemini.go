package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

var ErrNoAPIKey = errors.New("assist: gemini api key is not configured")

// Generator produces text for a prompt.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type GeminiClient struct {
	genaiClient *genai.Client
	model       *genai.GenerativeModel
}

var _ Generator = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(2048)
	return &GeminiClient{genaiClient: client, model: model}, nil
}

func (c *GeminiClient) Close() error {
	return c.genaiClient.Close()
}

func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}
