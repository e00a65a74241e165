// Package chat answers wellness questions with a Gemini model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// maxHistory bounds how many prior turns are sent upstream.
const maxHistory = 20

var (
	ErrNotConfigured = errors.New("chat assistant not configured")
	ErrEmptyMessage  = errors.New("message must not be empty")
)

const systemPrompt = `You are a supportive mental wellness companion. Listen with empathy, ` +
	`offer practical coping ideas, and keep answers short. You are not a therapist: ` +
	`when someone mentions self-harm or a crisis, encourage them to contact local ` +
	`emergency services or a crisis hotline right away.`

// Message is one prior turn of a conversation.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// Assistant replies to a user message given the conversation so far.
type Assistant interface {
	Reply(ctx context.Context, message string, history []Message) (string, error)
}

type generateFunc func(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)

// Gemini is an Assistant backed by the Gemini API.
type Gemini struct {
	generate generateFunc
}

// NewGemini creates a Gemini assistant. It returns ErrNotConfigured when
// apiKey is empty.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{
		generate: func(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
	}, nil
}

// Reply sends the history and message and returns the model's answer.
func (g *Gemini) Reply(ctx context.Context, message string, history []Message) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	text, err := g.generate(ctx, buildContents(history, message), cfg)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("generate reply: empty response")
	}
	return text, nil
}

func buildContents(history []Message, message string) []*genai.Content {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model", "bot":
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}
