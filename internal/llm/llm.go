package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Client is the minimal completion surface the battle agents need.
type Client interface {
	// Complete sends one prompt under a system instruction and returns
	// the model's text. Implementations honor ctx cancellation.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Gemini calls the Gemini API through the official genai SDK.
type Gemini struct {
	APIKey      string
	Model       string
	Temperature float64
}

func NewGemini(apiKey, model string, temperature float64) *Gemini {
	return &Gemini{APIKey: apiKey, Model: model, Temperature: temperature}
}

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: g.APIKey})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.Temperature)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := client.Models.GenerateContent(ctx, g.Model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model %s returned empty response", g.Model)
	}
	return text, nil
}
