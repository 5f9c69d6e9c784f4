// Package generation wraps the text generation provider behind a small
// Complete interface. The engine treats the provider as a black box; all
// budget enforcement lives in the quota guard, which callers must consult
// before invoking Complete.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"google.golang.org/api/option"
)

// Message is one turn of prior conversation passed as grounding history.
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// Client produces a text completion from a prompt and optional history.
type Client interface {
	Complete(ctx context.Context, prompt string, history []Message) (string, error)
}

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// GeminiClient implements Client on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiClient creates a Gemini-backed Client.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(config.Model)
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(config.MaxTokens)
	}
	model.SetTemperature(config.Temperature)

	return &GeminiClient{client: client, model: model}, nil
}

// Complete sends the prompt with the given history and returns the
// generated text. Empty or unparseable content maps to
// ErrMalformedResponse; provider quota errors map to ErrQuotaExceeded.
func (g *GeminiClient) Complete(ctx context.Context, prompt string, history []Message) (string, error) {
	chat := g.model.StartChat()
	for _, msg := range history {
		role := msg.Role
		if role != "model" {
			role = "user"
		}
		chat.History = append(chat.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "quota") {
			return "", fmt.Errorf("%w: %v", apperrors.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("%w: %v", apperrors.ErrGenerationFailed, err)
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty candidate (raw: %.80s)", apperrors.ErrMalformedResponse, fmt.Sprintf("%+v", resp))
	}

	return text, nil
}

// Close releases the underlying client connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

var _ Client = (*GeminiClient)(nil)
