package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

// GeminiClient is the primary backend. The underlying genai client is
// created lazily on the first request.
type GeminiClient struct {
	apiKey string
	model  string
	client *genai.Client
}

// NewGeminiClient creates a Gemini client for the given model.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

// ProviderName returns the provider name for this client.
func (c *GeminiClient) ProviderName() string {
	return "gemini"
}

// IsConfigured returns true if the client has an API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded creates the genai client on first use.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: c.apiKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}

	c.client = client
	logger.Debug("gemini client initialized", "model", c.model)
	return nil
}

// Continue sends the full history and asks for the next passage in the
// structured reply shape.
func (c *GeminiClient) Continue(ctx context.Context, req ContinueRequest) (*storytypes.StoryReply, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, err
	}

	contents := convertTurnsToGemini(req.Turns)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   storyReplySchema(),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	logger.Debug("sending gemini request", "model", c.model, "turns", len(contents))
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := collectGeminiText(result)
	if text == "" {
		return nil, fmt.Errorf("empty response content")
	}

	return DecodeReply(text)
}

// SuggestTitle asks for a short story title in plain text mode.
func (c *GeminiClient) SuggestTitle(ctx context.Context, openingPrompt, genre string) (string, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return "", err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: titlePrompt(openingPrompt, genre)}},
		Role:  genai.RoleUser,
	}}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini title request failed: %w", err)
	}

	title := cleanTitle(collectGeminiText(result))
	if title == "" {
		return "", fmt.Errorf("empty title suggestion")
	}
	return title, nil
}

// storyReplySchema is the structured-output contract: the next passage
// plus exactly three continuation suggestions.
func storyReplySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"story_part": {
				Type:        genai.TypeString,
				Description: "The next passage of the story.",
			},
			"suggestions": {
				Type:        genai.TypeArray,
				Description: "Three short ideas for what could happen next.",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    genai.Ptr(int64(maxSuggestions)),
				MaxItems:    genai.Ptr(int64(maxSuggestions)),
			},
		},
		Required: []string{"story_part", "suggestions"},
	}
}

// convertTurnsToGemini converts story turns to Gemini contents. The turn
// roles already use the Gemini vocabulary, so this is a reshape, not a
// role translation.
func convertTurnsToGemini(turns []storytypes.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))

	for _, turn := range turns {
		if turn.Role != storytypes.RoleUser && turn.Role != storytypes.RoleModel {
			continue
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: turn.Text}},
			Role:  turn.Role,
		})
	}

	// The API rejects an empty contents list.
	if len(contents) == 0 {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: ""}},
			Role:  genai.RoleUser,
		})
	}

	return contents
}

// collectGeminiText concatenates the text parts of all candidates,
// skipping thought parts.
func collectGeminiText(result *genai.GenerateContentResponse) string {
	var text strings.Builder

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}

	return text.String()
}
