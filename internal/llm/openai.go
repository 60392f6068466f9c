package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

// OpenAIClient is the OpenAI alternate backend. The structured reply
// contract is enforced through a strict json_schema response format.
type OpenAIClient struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey: apiKey,
		model:  model,
	}
}

// ProviderName returns the provider name for this client.
func (c *OpenAIClient) ProviderName() string {
	return "openai"
}

// IsConfigured returns true if the client has an API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded creates the OpenAI client on first use.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("openai API key not configured")
	}

	client := openai.NewClient(option.WithAPIKey(c.apiKey))
	c.client = &client

	logger.Debug("openai client initialized", "model", c.model)
	return nil
}

// Continue sends the full history and asks for the next passage in the
// structured reply shape.
func (c *OpenAIClient) Continue(ctx context.Context, req ContinueRequest) (*storytypes.StoryReply, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, convertTurnsToOpenAI(req.Turns)...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "story_reply",
					Description: openai.String("The next story passage with three continuation suggestions."),
					Schema:      storyReplyJSONSchema(),
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	logger.Debug("sending openai request", "model", c.model, "messages", len(messages))
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	return DecodeReply(content)
}

// SuggestTitle asks for a short story title without a response format.
func (c *OpenAIClient) SuggestTitle(ctx context.Context, openingPrompt, genre string) (string, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(titlePrompt(openingPrompt, genre)),
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai title request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	title := cleanTitle(completion.Choices[0].Message.Content)
	if title == "" {
		return "", fmt.Errorf("empty title suggestion")
	}
	return title, nil
}

// storyReplyJSONSchema is the strict-mode JSON schema equivalent of the
// Gemini response schema. Strict mode forbids array length keywords, so
// the three-suggestion count is carried in the descriptions and enforced
// by the decoder.
func storyReplyJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"story_part": map[string]any{
				"type":        "string",
				"description": "The next passage of the story.",
			},
			"suggestions": map[string]any{
				"type":        "array",
				"description": "Exactly three short ideas for what could happen next.",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required":             []string{"story_part", "suggestions"},
		"additionalProperties": false,
	}
}

// convertTurnsToOpenAI converts story turns to chat messages; the model
// role maps to assistant.
func convertTurnsToOpenAI(turns []storytypes.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))

	for _, turn := range turns {
		switch turn.Role {
		case storytypes.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Text))
		case storytypes.RoleModel:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			continue
		}
	}

	return messages
}
