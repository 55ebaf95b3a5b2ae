// Package openai implements the text service on any OpenAI-compatible chat
// completion endpoint. Gemini exposes one, which is the default target.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-1.5-flash"

// NoTextResponse is returned by Generate when the service answered with no text
const NoTextResponse = "No response text found."

const planPrompt = `Convert this idea into a 3-step actionable workflow plan.
Idea: %s
Respond ONLY with a JSON array of objects with "title" and "content" fields.`

// jsonArray finds the outermost bracketed span, across newlines
var jsonArray = regexp.MustCompile(`(?s)\[.*\]`)

// Config configures the client
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements ports.TextGenerator
type Client struct {
	client *goopenai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a client for cfg
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	logger.Info("Initializing AI client", zap.String("model", model))
	return &Client{client: goopenai.NewClientWithConfig(oc), model: model, logger: logger}
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Error("AI API call failed", zap.Error(err))
		return "", fmt.Errorf("AI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	c.logger.Debug("Received response from AI",
		zap.String("finishReason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}

// Generate implements ports.TextGenerator
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return NoTextResponse, nil
	}
	return text, nil
}

type rawStep struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// PlanSteps implements ports.TextGenerator. An answer without a JSON array
// of steps yields ports.ErrUnparseablePlan.
func (c *Client) PlanSteps(ctx context.Context, idea string) ([]ports.Step, error) {
	text, err := c.complete(ctx, fmt.Sprintf(planPrompt, idea))
	if err != nil {
		return nil, err
	}
	return ParseSteps(text)
}

// ParseSteps extracts the step list from a model answer
func ParseSteps(text string) ([]ports.Step, error) {
	match := jsonArray.FindString(text)
	if match == "" {
		return nil, ports.ErrUnparseablePlan
	}
	var raw []rawStep
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrUnparseablePlan, err)
	}
	steps := make([]ports.Step, 0, len(raw))
	for _, r := range raw {
		desc := r.Content
		if desc == "" {
			desc = r.Description
		}
		steps = append(steps, ports.Step{Title: r.Title, Description: desc})
	}
	return steps, nil
}

var _ ports.TextGenerator = (*Client)(nil)
