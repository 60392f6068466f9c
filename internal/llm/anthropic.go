package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

// anthropicMaxTokens bounds reply length; a story passage plus the
// suggestion list fits comfortably.
const anthropicMaxTokens = 1024

// AnthropicClient is the Anthropic alternate backend. The API has no
// native schema mode, so the JSON reply contract rides in the system
// prompt and replies go through the tolerant decoder like everyone
// else's.
type AnthropicClient struct {
	apiKey string
	model  string
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client for the given model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		apiKey: apiKey,
		model:  model,
	}
}

// ProviderName returns the provider name for this client.
func (c *AnthropicClient) ProviderName() string {
	return "anthropic"
}

// IsConfigured returns true if the client has an API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded creates the Anthropic client on first use.
func (c *AnthropicClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("anthropic API key not configured")
	}

	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))
	c.client = &client

	logger.Debug("anthropic client initialized", "model", c.model)
	return nil
}

// Continue sends the full history and asks for the next passage in the
// structured reply shape.
func (c *AnthropicClient) Continue(ctx context.Context, req ContinueRequest) (*storytypes.StoryReply, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  convertTurnsToAnthropic(req.Turns),
	}

	system := replyContract
	if req.SystemInstruction != "" {
		system = req.SystemInstruction + "\n\n" + replyContract
	}
	params.System = []anthropic.TextBlockParam{{Text: system}}

	logger.Debug("sending anthropic request", "model", c.model, "messages", len(params.Messages))
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	text := collectAnthropicText(message)
	if text == "" {
		return nil, fmt.Errorf("empty response content")
	}

	return DecodeReply(text)
}

// SuggestTitle asks for a short story title.
func (c *AnthropicClient) SuggestTitle(ctx context.Context, openingPrompt, genre string) (string, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(titlePrompt(openingPrompt, genre))),
		},
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic title request failed: %w", err)
	}

	title := cleanTitle(collectAnthropicText(message))
	if title == "" {
		return "", fmt.Errorf("empty title suggestion")
	}
	return title, nil
}

// convertTurnsToAnthropic converts story turns to message params; the
// model role maps to assistant.
func convertTurnsToAnthropic(turns []storytypes.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))

	for _, turn := range turns {
		switch turn.Role {
		case storytypes.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		case storytypes.RoleModel:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
		default:
			continue
		}
	}

	return messages
}

// collectAnthropicText concatenates the text of all content blocks.
func collectAnthropicText(message *anthropic.Message) string {
	var text strings.Builder
	for _, block := range message.Content {
		text.WriteString(block.Text)
	}
	return text.String()
}
