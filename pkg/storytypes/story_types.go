// Package storytypes defines the shared data structures for storyloom:
// conversation turns, persisted conversations, backend replies, and the
// save-state signal surfaced while transcripts are written out.
package storytypes

// Turn roles follow the Gemini vocabulary: the human author is "user",
// the generative co-author is "model".
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn represents a single message in a story conversation. Ordering is
// significant; a turn is immutable once appended except via explicit
// rollback during regeneration.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Conversation is a titled, persisted story: its governing system
// instruction plus the ordered turns exchanged so far. The title is the
// primary key in the store and in the catalog.
type Conversation struct {
	Title             string `json:"title"`
	SystemInstruction string `json:"systemInstruction"`
	Turns             []Turn `json:"turns"`
}

// TurnCount returns the number of turns exchanged so far.
func (c *Conversation) TurnCount() int {
	return len(c.Turns)
}

// LastPairComplete reports whether the conversation ends with a complete
// (user, model) exchange, the precondition for regenerating the last turn.
func (c *Conversation) LastPairComplete() bool {
	n := len(c.Turns)
	if n < 2 {
		return false
	}
	return c.Turns[n-2].Role == RoleUser && c.Turns[n-1].Role == RoleModel
}

// StoryReply is the structured payload requested from the backend: the next
// story passage plus exactly three short continuation suggestions. Decoding
// is tolerant; Suggestions may be empty when the backend ignored the schema.
type StoryReply struct {
	Part        string   `json:"story_part"`
	Suggestions []string `json:"suggestions"`
}

// SaveState describes where a debounced persistence write currently stands.
type SaveState int

const (
	// SaveIdle means no write is pending or running.
	SaveIdle SaveState = iota
	// SaveSaving means a debounced write has started.
	SaveSaving
	// SaveSaved means the write finished; the state clears back to idle
	// after a short display interval.
	SaveSaved
)

// String returns the badge text for the save state.
func (s SaveState) String() string {
	switch s {
	case SaveSaving:
		return "saving"
	case SaveSaved:
		return "saved"
	default:
		return "idle"
	}
}
