// Package llm contains the backend clients that co-author stories: Gemini
// as the primary provider, OpenAI and Anthropic as alternates behind the
// same interface, plus a scripted mock for tests and offline runs. History
// is replayed in full on every request; no provider-side session state is
// kept.
package llm

import (
	"context"
	"fmt"
	"strings"

	"storyloom/pkg/storytypes"
)

// ContinueRequest carries everything a backend needs to extend a story:
// the ordered turn history and the governing system instruction.
type ContinueRequest struct {
	Turns             []storytypes.Turn
	SystemInstruction string
}

// Client is the provider-neutral backend surface.
type Client interface {
	// ProviderName identifies the backend ("gemini", "openai", ...).
	ProviderName() string
	// IsConfigured reports whether the client has the credentials it
	// needs to make requests.
	IsConfigured() bool
	// Continue asks for the next story passage under the structured
	// reply contract. Replies that ignore the contract degrade inside
	// the client (see DecodeReply); an error means the turn failed.
	Continue(ctx context.Context, req ContinueRequest) (*storytypes.StoryReply, error)
	// SuggestTitle asks for a short name for a story that opens with
	// openingPrompt. The result is trimmed of surrounding quotes.
	SuggestTitle(ctx context.Context, openingPrompt, genre string) (string, error)
}

// titlePrompt is the request sent for title suggestions, shared by all
// providers.
func titlePrompt(openingPrompt, genre string) string {
	return fmt.Sprintf(
		"Suggest a short title (five words at most) for an interactive %s story that begins like this: %q. Reply with the title only, no quotes or punctuation around it.",
		strings.TrimSpace(genreOrStory(genre)), openingPrompt)
}

func genreOrStory(genre string) string {
	if genre == "" || strings.EqualFold(genre, "Default") {
		return "fiction"
	}
	return genre
}

// cleanTitle strips whitespace and the quote characters models like to
// wrap titles in.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`")
	// Some models still answer with a full sentence; keep the first line.
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	return title
}
