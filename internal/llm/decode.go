package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

// maxSuggestions is the number of continuation ideas offered per reply.
const maxSuggestions = 3

// ErrNoStoryPart means the backend produced a parsable reply that carried
// no story text. The turn is treated as failed rather than accepted empty.
var ErrNoStoryPart = errors.New("model reply carried no story text")

// replyContract is appended to the system instruction for providers
// without native schema enforcement, and mirrored by the schema the
// others are given.
const replyContract = `Respond with a single JSON object of the form ` +
	`{"story_part": "<the next story passage>", "suggestions": ["<short continuation idea>", "<short continuation idea>", "<short continuation idea>"]}. ` +
	`Provide exactly three suggestions. Do not wrap the JSON in a code fence.`

// DecodeReply turns raw model output into a StoryReply. Models do not
// always honor the schema, so decoding is deliberately tolerant:
//   - a surrounding markdown code fence is stripped before parsing;
//   - output that is not the expected JSON object becomes the story text
//     verbatim, with no suggestions and no error;
//   - parsable output whose story text is empty fails with ErrNoStoryPart;
//   - surplus suggestions are truncated to three.
func DecodeReply(raw string) (*storytypes.StoryReply, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrNoStoryPart
	}

	candidate := stripFence(text)

	var reply storytypes.StoryReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		logger.Debug("reply is not structured, using raw text", "bytes", len(text))
		return &storytypes.StoryReply{Part: text}, nil
	}

	if strings.TrimSpace(reply.Part) == "" {
		return nil, ErrNoStoryPart
	}
	if len(reply.Suggestions) > maxSuggestions {
		reply.Suggestions = reply.Suggestions[:maxSuggestions]
	}
	return &reply, nil
}

// stripFence removes a single surrounding markdown code fence, with or
// without an info string, returning the input unchanged when no complete
// fence is present.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	body := s[len("```"):]
	newline := strings.IndexByte(body, '\n')
	if newline < 0 {
		return s
	}
	// The first line is the info string ("json"), if any.
	body = body[newline+1:]

	body = strings.TrimSpace(body)
	if !strings.HasSuffix(body, "```") {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}
