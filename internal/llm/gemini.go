package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	apperrors "quantb/internal/errors"
)

const geminiProvider = "gemini"

// GeminiClient implements Completer using the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClient creates a Gemini client for the public Gemini API.
func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float64) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, apperrors.Wrap(apperrors.ErrNotConfigured, "gemini api key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: float32(temperature),
	}, nil
}

// Name returns the provider name.
func (g *GeminiClient) Name() string {
	return geminiProvider
}

// GenerateCompletion generates content for a single prompt. FormatJSON
// asks the model for an application/json response.
func (g *GeminiClient) GenerateCompletion(ctx context.Context, prompt string, format Format) (string, error) {
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if format == FormatJSON {
		cfg.ResponseMIMEType = "application/json"
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := res.Text()
	if text == "" {
		return "", apperrors.NewProviderError(geminiProvider, "generate", 0, fmt.Errorf("gemini returned empty text"))
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewProviderError(geminiProvider, "generate", apiErr.Code, errors.New(apiErr.Message))
	}
	return apperrors.NewProviderError(geminiProvider, "generate", 0, err)
}
