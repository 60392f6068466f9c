package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/llm"
	"storyloom/internal/logger"
	"storyloom/internal/store"
	"storyloom/pkg/storytypes"
)

var (
	// ErrBusy rejects a submission while a reply for the same story is
	// still pending.
	ErrBusy = errors.New("a reply is still pending for this story")

	// ErrNoActiveStory rejects operations that need an active story.
	ErrNoActiveStory = errors.New("no story is active")

	// ErrEmptyInput rejects blank text where content is required.
	ErrEmptyInput = errors.New("text is empty")

	// ErrEmptyInstruction rejects a blank persona.
	ErrEmptyInstruction = errors.New("persona text is empty")

	// ErrStaleResponse marks a reply that arrived after its story was
	// switched away from. The reply is discarded, not rendered.
	ErrStaleResponse = errors.New("reply discarded, story is no longer active")
)

// timestampTitleFormat names stories when no title can be suggested.
const timestampTitleFormat = "2006-01-02 15:04:05"

// TurnController drives the conversation state machine. Every mutation
// of the active story runs through it: starting, loading, submitting
// turns, regeneration, and persona changes. It owns the ConversationState
// and the SaveScheduler and reports display events through a RenderSink.
//
// Methods are safe for concurrent use. The backend call in SubmitTurn
// runs outside the lock, so the state stays reachable while a reply is
// pending; a per-title in-flight marker rejects concurrent submissions
// for the same story, and replies landing after a story switch are
// discarded by comparing the captured title against the active one.
type TurnController struct {
	mu      sync.Mutex
	state   *ConversationState
	pending map[string]string // title -> in-flight request id

	chats     *store.ChatStore
	backend   llm.Client
	scheduler *SaveScheduler
	sink      RenderSink

	now func() time.Time
}

// NewTurnController wires a controller to its store, backend, and sink.
// A nil sink discards display events. The intervals configure the save
// scheduler; non-positive values fall back to the defaults.
func NewTurnController(chats *store.ChatStore, backend llm.Client, sink RenderSink, quiet, badgeClear time.Duration) *TurnController {
	if sink == nil {
		sink = NopSink{}
	}
	c := &TurnController{
		state:   NewConversationState(),
		pending: make(map[string]string),
		chats:   chats,
		backend: backend,
		sink:    sink,
		now:     time.Now,
	}
	c.scheduler = NewSaveScheduler(quiet, badgeClear, c.snapshotIfActive, c.writeSnapshot, sink.SaveStateChanged)
	return c
}

// ActiveTitle returns the active story's title, or "" when none is
// active.
func (c *TurnController) ActiveTitle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ActiveTitle()
}

// Instruction returns the active story's persona.
func (c *TurnController) Instruction() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Instruction()
}

// Turns returns a copy of the active story's turns.
func (c *TurnController) Turns() []storytypes.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Turns()
}

// Awaiting reports whether a reply is pending for the active story.
func (c *TurnController) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, inFlight := c.pending[c.state.ActiveTitle()]
	return inFlight
}

// Flush runs any pending debounced save immediately. Called on exit.
func (c *TurnController) Flush() {
	c.scheduler.Flush()
}

// StartNewStory creates a story from an opening prompt: it derives the
// persona from genre, asks the backend for a title (falling back to a
// timestamp), makes the title unique within the catalog, persists the
// empty story, activates it, and submits the opening prompt as the
// first turn.
//
// The created title is returned even when the first turn fails; the
// story exists and the prompt stays in its history for regeneration.
func (c *TurnController) StartNewStory(ctx context.Context, openingPrompt, genre string) (string, error) {
	openingPrompt = strings.TrimSpace(openingPrompt)
	if openingPrompt == "" {
		return "", ErrEmptyInput
	}

	instruction := PersonaForGenre(genre)

	title, err := c.backend.SuggestTitle(ctx, openingPrompt, genre)
	title = strings.TrimSpace(title)
	if err != nil || title == "" {
		if err != nil {
			logger.Warn("title suggestion failed, using timestamp", "error", err)
		}
		title = "Story " + c.now().Format(timestampTitleFormat)
	}
	title = uniqueTitle(title, c.chats.Titles())

	if err := c.chats.RegisterTitle(title); err != nil {
		logger.Warn("failed to catalog new story", "title", title, "error", err)
	}
	if err := c.chats.Save(title, nil, instruction); err != nil {
		logger.Warn("failed to persist new story", "title", title, "error", err)
	}
	logger.Debug("story created", "title", title, "genre", genre)

	if err := c.LoadStory(title); err != nil {
		return "", err
	}
	if _, err := c.SubmitTurn(ctx, openingPrompt); err != nil {
		return title, err
	}
	return title, nil
}

// LoadStory activates the stored story under title, records it as last
// active, and replays its transcript through the sink. A story with no
// turns gets the welcome turn, rendered only. Any pending debounced
// save for the previous story is dropped.
func (c *TurnController) LoadStory(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyInput
	}

	c.scheduler.Cancel()

	c.mu.Lock()
	conv := c.chats.Load(title)
	c.state.Activate(conv)
	c.mu.Unlock()

	if err := c.chats.SetLastActive(title); err != nil {
		logger.Warn("failed to record last-active story", "title", title, "error", err)
	}
	logger.Debug("story loaded", "title", title, "turns", len(conv.Turns))

	c.replayTranscript(true)
	return nil
}

// SubmitTurn appends text as a user turn, calls the backend with the
// full history and persona, and appends the reply as a model turn. Both
// appends schedule a debounced save.
//
// A second submission while a reply for the same story is pending
// returns ErrBusy. On backend failure the user turn stays in history
// and the classified message is rendered through the sink; the raw
// error is returned for the caller. A reply that lands after the active
// story changed is discarded and ErrStaleResponse returned.
func (c *TurnController) SubmitTurn(ctx context.Context, text string) (*storytypes.StoryReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if !c.state.HasActive() {
		c.mu.Unlock()
		return nil, ErrNoActiveStory
	}
	title := c.state.ActiveTitle()
	if _, inFlight := c.pending[title]; inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	requestID := uuid.New().String()
	c.pending[title] = requestID

	c.state.AppendUserTurn(text)
	turns := c.state.Turns()
	instruction := c.state.Instruction()
	c.mu.Unlock()

	c.sink.TurnRendered(storytypes.Turn{Role: storytypes.RoleUser, Text: text}, nil)
	c.scheduler.RequestSave()
	c.sink.PendingShown()
	logger.Debug("turn submitted", "title", title, "request", requestID, "turns", len(turns))

	reply, err := c.backend.Continue(ctx, llm.ContinueRequest{
		Turns:             turns,
		SystemInstruction: instruction,
	})

	c.mu.Lock()
	if c.pending[title] == requestID {
		delete(c.pending, title)
	}
	if !c.state.HasActive() || c.state.ActiveTitle() != title {
		c.mu.Unlock()
		logger.Debug("discarding stale reply", "title", title, "request", requestID)
		return nil, ErrStaleResponse
	}
	if err != nil {
		c.mu.Unlock()
		c.sink.PendingCleared()
		c.sink.ErrorShown(UserMessage(err))
		logger.Warn("turn failed", "title", title, "request", requestID,
			"kind", Classify(err).String(), "error", err)
		return nil, err
	}
	c.state.AppendModelTurn(reply.Part)
	c.mu.Unlock()

	c.sink.PendingCleared()
	c.sink.TurnRendered(storytypes.Turn{Role: storytypes.RoleModel, Text: reply.Part}, reply.Suggestions)
	c.scheduler.RequestSave()
	logger.Debug("turn completed", "title", title, "request", requestID,
		"suggestions", len(reply.Suggestions))
	return reply, nil
}

// RegenerateLastTurn rolls back the trailing user and model pair,
// replays the shortened transcript, and resubmits the user text for a
// fresh reply. When the story does not end with a complete pair it
// returns (nil, nil) without touching anything.
func (c *TurnController) RegenerateLastTurn(ctx context.Context) (*storytypes.StoryReply, error) {
	c.mu.Lock()
	if !c.state.HasActive() {
		c.mu.Unlock()
		return nil, ErrNoActiveStory
	}
	title := c.state.ActiveTitle()
	if _, inFlight := c.pending[title]; inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	userText, ok := c.state.RollbackLastPair()
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}

	logger.Debug("regenerating last turn", "title", title)
	c.replayTranscript(false)
	return c.SubmitTurn(ctx, userText)
}

// UpdateInstruction replaces the active story's persona. The change is
// persisted immediately rather than debounced, and the story is
// reloaded so the transcript reflects the stored state.
func (c *TurnController) UpdateInstruction(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInstruction
	}

	c.mu.Lock()
	if !c.state.HasActive() {
		c.mu.Unlock()
		return ErrNoActiveStory
	}
	title := c.state.ActiveTitle()
	c.state.SetInstruction(text)
	turns := c.state.Turns()
	c.mu.Unlock()

	if err := c.chats.Save(title, turns, text); err != nil {
		return fmt.Errorf("failed to persist persona: %w", err)
	}
	logger.Debug("persona updated", "title", title)
	return c.LoadStory(title)
}

// replayTranscript clears the display and re-renders the active story
// in order. With welcome set, an empty story shows the welcome turn
// instead; it lives in the display only, never in state or the store.
// Regeneration replays without it, since its transcript is only empty
// for the moment before the resubmission renders.
func (c *TurnController) replayTranscript(welcome bool) {
	c.mu.Lock()
	title := c.state.ActiveTitle()
	turns := c.state.Turns()
	c.mu.Unlock()

	c.sink.TranscriptCleared(title)
	for _, turn := range turns {
		c.sink.TurnRendered(turn, nil)
	}
	if welcome && len(turns) == 0 {
		c.sink.TurnRendered(storytypes.Turn{Role: storytypes.RoleModel, Text: WelcomeText}, nil)
	}
}

func (c *TurnController) snapshotIfActive() (*storytypes.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.HasActive() {
		return nil, false
	}
	return c.state.Snapshot(), true
}

func (c *TurnController) writeSnapshot(conv *storytypes.Conversation) error {
	return c.chats.Save(conv.Title, conv.Turns, conv.SystemInstruction)
}

// uniqueTitle returns candidate, or the first "candidate N" (N from 2
// up) not yet in existing. At most len(existing)+1 probes are needed.
func uniqueTitle(candidate string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, title := range existing {
		taken[title] = true
	}
	if !taken[candidate] {
		return candidate
	}
	for n := 2; ; n++ {
		next := fmt.Sprintf("%s %d", candidate, n)
		if !taken[next] {
			return next
		}
	}
}
