package story

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/internal/llm"
	"storyloom/internal/store"
	"storyloom/pkg/storytypes"
)

// sinkEvent is one recorded RenderSink call.
type sinkEvent struct {
	kind        string
	title       string
	turn        storytypes.Turn
	suggestions []string
	message     string
	save        storytypes.SaveState
}

// recordingSink captures every display event for inspection.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (r *recordingSink) TranscriptCleared(title string) {
	r.record(sinkEvent{kind: "clear", title: title})
}

func (r *recordingSink) TurnRendered(turn storytypes.Turn, suggestions []string) {
	r.record(sinkEvent{kind: "turn", turn: turn, suggestions: suggestions})
}

func (r *recordingSink) PendingShown() {
	r.record(sinkEvent{kind: "pending"})
}

func (r *recordingSink) PendingCleared() {
	r.record(sinkEvent{kind: "pending-cleared"})
}

func (r *recordingSink) ErrorShown(message string) {
	r.record(sinkEvent{kind: "error", message: message})
}

func (r *recordingSink) SaveStateChanged(state storytypes.SaveState) {
	r.record(sinkEvent{kind: "save", save: state})
}

func (r *recordingSink) record(event sinkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// kinds returns the event kinds in order, save-badge events excluded
// since those arrive from a timer goroutine.
func (r *recordingSink) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, event := range r.events {
		if event.kind == "save" {
			continue
		}
		out = append(out, event.kind)
	}
	return out
}

func (r *recordingSink) renderedTurns() []sinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sinkEvent
	for _, event := range r.events {
		if event.kind == "turn" {
			out = append(out, event)
		}
	}
	return out
}

func (r *recordingSink) errorMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, event := range r.events {
		if event.kind == "error" {
			out = append(out, event.message)
		}
	}
	return out
}

func (r *recordingSink) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestController(t *testing.T) (*TurnController, *store.ChatStore, *llm.MockClient, *recordingSink) {
	t.Helper()
	kv := store.NewMemoryKV()
	chats := store.NewChatStore(kv, DefaultPersona())
	backend := llm.NewMockClient()
	sink := &recordingSink{}
	controller := NewTurnController(chats, backend, sink, 15*time.Millisecond, 15*time.Millisecond)
	return controller, chats, backend, sink
}

// seedStory registers and persists an empty story without activating it.
func seedStory(t *testing.T, chats *store.ChatStore, title, instruction string) {
	t.Helper()
	require.NoError(t, chats.RegisterTitle(title))
	require.NoError(t, chats.Save(title, nil, instruction))
}

func TestStartNewStoryEndToEnd(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	backend.SetTitle("The Dragon's Library")
	backend.QueueReply("A dragon coiled around the stacks, one eye open.",
		"Approach the dragon", "Search the shelves", "Call out a greeting")

	title, err := controller.StartNewStory(context.Background(), "A dragon guards a library", "Fantasy")
	require.NoError(t, err)
	assert.Equal(t, "The Dragon's Library", title)

	// Cataloged and recorded as last active.
	assert.Equal(t, []string{"The Dragon's Library"}, chats.Titles())
	assert.Equal(t, title, chats.LastActive())

	// The genre flowed into the persona and the title request.
	assert.Equal(t, PersonaForGenre("Fantasy"), controller.Instruction())
	titleAsks := backend.TitleRequests()
	require.Len(t, titleAsks, 1)
	assert.Equal(t, "A dragon guards a library", titleAsks[0].OpeningPrompt)
	assert.Equal(t, "Fantasy", titleAsks[0].Genre)

	// The backend saw the persona and the single user turn.
	requests := backend.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, PersonaForGenre("Fantasy"), requests[0].SystemInstruction)
	require.Len(t, requests[0].Turns, 1)
	assert.Equal(t, storytypes.RoleUser, requests[0].Turns[0].Role)

	// One full exchange in state.
	turns := controller.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "A dragon guards a library", turns[0].Text)
	assert.Equal(t, storytypes.RoleModel, turns[1].Role)
	assert.Equal(t, "A dragon coiled around the stacks, one eye open.", turns[1].Text)

	// Welcome first, then the exchange; suggestions ride the model turn.
	rendered := sink.renderedTurns()
	require.Len(t, rendered, 3)
	assert.Equal(t, WelcomeText, rendered[0].turn.Text)
	assert.Equal(t, storytypes.RoleUser, rendered[1].turn.Role)
	assert.Equal(t, []string{"Approach the dragon", "Search the shelves", "Call out a greeting"}, rendered[2].suggestions)

	// Flush lands both turns and the persona in the store.
	controller.Flush()
	stored := chats.Load(title)
	require.Len(t, stored.Turns, 2)
	assert.Equal(t, PersonaForGenre("Fantasy"), stored.SystemInstruction)
}

func TestStartNewStoryTitleFallsBackToTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		setup func(backend *llm.MockClient)
	}{
		{"suggestion fails", func(backend *llm.MockClient) {
			backend.SetTitleError(errors.New("Error: [503 Service Unavailable]"))
		}},
		{"suggestion empty", func(backend *llm.MockClient) {
			backend.SetTitle("   ")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller, _, backend, _ := newTestController(t)
			tt.setup(backend)
			controller.now = func() time.Time {
				return time.Date(2025, 3, 9, 14, 30, 5, 0, time.UTC)
			}

			title, err := controller.StartNewStory(context.Background(), "Begin.", "")
			require.NoError(t, err)
			assert.Equal(t, "Story 2025-03-09 14:30:05", title)
		})
	}
}

func TestStartNewStoryDedupesTitles(t *testing.T) {
	controller, chats, backend, _ := newTestController(t)
	backend.SetTitle("Adventure")

	var titles []string
	for i := 0; i < 3; i++ {
		title, err := controller.StartNewStory(context.Background(), "Once more.", "")
		require.NoError(t, err)
		titles = append(titles, title)
	}

	assert.Equal(t, []string{"Adventure", "Adventure 2", "Adventure 3"}, titles)
	assert.Equal(t, []string{"Adventure", "Adventure 2", "Adventure 3"}, chats.Titles())

	// Each story kept its own transcript.
	controller.Flush()
	for _, title := range titles {
		stored := chats.Load(title)
		if title == "Adventure 3" {
			require.Len(t, stored.Turns, 2)
		}
		assert.Equal(t, DefaultPersona(), stored.SystemInstruction)
	}
}

func TestStartNewStoryRejectsEmptyPrompt(t *testing.T) {
	controller, _, _, _ := newTestController(t)
	_, err := controller.StartNewStory(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSubmitTurnAppendsAndPersists(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	seedStory(t, chats, "Night Train", DefaultPersona())
	require.NoError(t, controller.LoadStory("Night Train"))
	sink.reset()

	backend.QueueReply("The train lurched into the dark.", "Check the window", "Find the conductor", "Stay seated")
	reply, err := controller.SubmitTurn(context.Background(), "The lights went out.")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "The train lurched into the dark.", reply.Part)

	assert.Equal(t, []string{"turn", "pending", "pending-cleared", "turn"}, sink.kinds())
	rendered := sink.renderedTurns()
	assert.Nil(t, rendered[0].suggestions)
	assert.Len(t, rendered[1].suggestions, 3)

	controller.Flush()
	stored := chats.Load("Night Train")
	require.Len(t, stored.Turns, 2)
	assert.Equal(t, "The lights went out.", stored.Turns[0].Text)
	assert.Equal(t, "The train lurched into the dark.", stored.Turns[1].Text)
}

func TestSubmitTurnValidation(t *testing.T) {
	controller, chats, _, _ := newTestController(t)

	_, err := controller.SubmitTurn(context.Background(), "Hello?")
	assert.ErrorIs(t, err, ErrNoActiveStory)

	seedStory(t, chats, "Blank", DefaultPersona())
	require.NoError(t, controller.LoadStory("Blank"))
	_, err = controller.SubmitTurn(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, controller.Turns())
}

func TestSubmitTurnRejectsWhileAwaiting(t *testing.T) {
	kv := store.NewMemoryKV()
	chats := store.NewChatStore(kv, DefaultPersona())
	backend := llm.NewMockClient()
	sink := &recordingSink{}
	// A long quiet interval keeps the scheduler out of this test.
	controller := NewTurnController(chats, backend, sink, time.Minute, time.Minute)

	seedStory(t, chats, "Held", DefaultPersona())
	require.NoError(t, controller.LoadStory("Held"))

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.SetContinueHook(func(llm.ContinueRequest) {
		close(entered)
		<-release
	})

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = controller.SubmitTurn(context.Background(), "Open the hatch.")
	}()
	<-entered

	assert.True(t, controller.Awaiting())
	_, err := controller.SubmitTurn(context.Background(), "And also this.")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = controller.RegenerateLastTurn(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-done
	require.NoError(t, firstErr)
	assert.False(t, controller.Awaiting())

	// Only the first submission made it into the history.
	turns := controller.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "Open the hatch.", turns[0].Text)
}

func TestSubmitTurnFailureKeepsUserTurn(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	seedStory(t, chats, "Doomed", DefaultPersona())
	require.NoError(t, controller.LoadStory("Doomed"))
	sink.reset()

	backend.QueueError(errors.New("Error: [500 Internal Server Error] something broke"))
	reply, err := controller.SubmitTurn(context.Background(), "Keep this line.")
	require.Error(t, err)
	assert.Nil(t, reply)

	// The user turn stays; regeneration can retry it later.
	turns := controller.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "Keep this line.", turns[0].Text)

	// The failure was classified and rendered once.
	messages := sink.errorMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "The model service is having trouble right now. Try again in a moment.", messages[0])
	assert.Equal(t, []string{"turn", "pending", "pending-cleared", "error"}, sink.kinds())
}

func TestSubmitTurnPlainTextReply(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	seedStory(t, chats, "Loose", DefaultPersona())
	require.NoError(t, controller.LoadStory("Loose"))
	sink.reset()

	backend.QueueRawText("Once upon a time, the parser gave up and the tale went on regardless.")
	reply, err := controller.SubmitTurn(context.Background(), "Tell it anyway.")
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time, the parser gave up and the tale went on regardless.", reply.Part)
	assert.Empty(t, reply.Suggestions)

	rendered := sink.renderedTurns()
	require.Len(t, rendered, 2)
	assert.Empty(t, rendered[1].suggestions)
	assert.Empty(t, sink.errorMessages())
}

func TestSubmitTurnEmptyStructuredReply(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	seedStory(t, chats, "Hollow", DefaultPersona())
	require.NoError(t, controller.LoadStory("Hollow"))
	sink.reset()

	backend.QueueRawText(`{"story_part": "", "suggestions": []}`)
	_, err := controller.SubmitTurn(context.Background(), "Say something.")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrNoStoryPart)

	require.Len(t, controller.Turns(), 1)
	assert.Len(t, sink.errorMessages(), 1)
}

func TestRegenerateLastTurn(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	seedStory(t, chats, "Retold", DefaultPersona())
	require.NoError(t, controller.LoadStory("Retold"))

	backend.QueueReply("The first version of the night.")
	_, err := controller.SubmitTurn(context.Background(), "The clock struck one.")
	require.NoError(t, err)
	sink.reset()

	backend.QueueReply("The second version of the night.", "Go on", "Go back", "Wait")
	reply, err := controller.RegenerateLastTurn(context.Background())
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "The second version of the night.", reply.Part)

	turns := controller.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "The clock struck one.", turns[0].Text)
	assert.Equal(t, "The second version of the night.", turns[1].Text)

	// The resubmitted request carried the same history as the original.
	requests := backend.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, requests[0].Turns, requests[1].Turns)

	// The rollback replayed an empty transcript, then the new exchange.
	assert.Equal(t, []string{"clear", "turn", "pending", "pending-cleared", "turn"}, sink.kinds())

	controller.Flush()
	stored := chats.Load("Retold")
	require.Len(t, stored.Turns, 2)
	assert.Equal(t, "The second version of the night.", stored.Turns[1].Text)
}

func TestRegenerateWithoutCompletePairIsNoOp(t *testing.T) {
	controller, chats, backend, _ := newTestController(t)
	seedStory(t, chats, "Stub", DefaultPersona())
	require.NoError(t, controller.LoadStory("Stub"))

	// Empty story: nothing to roll back.
	reply, err := controller.RegenerateLastTurn(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, backend.Requests())

	// A failed submission leaves a trailing user turn, still no pair.
	backend.QueueError(errors.New("network error"))
	_, err = controller.SubmitTurn(context.Background(), "Alone out here.")
	require.Error(t, err)

	reply, err = controller.RegenerateLastTurn(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reply)
	require.Len(t, controller.Turns(), 1)
	assert.Len(t, backend.Requests(), 1)
}

func TestRegenerateRequiresActiveStory(t *testing.T) {
	controller, _, _, _ := newTestController(t)
	_, err := controller.RegenerateLastTurn(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveStory)
}

func TestStaleReplyDiscardedAfterSwitch(t *testing.T) {
	kv := store.NewMemoryKV()
	chats := store.NewChatStore(kv, DefaultPersona())
	backend := llm.NewMockClient()
	sink := &recordingSink{}
	// A long quiet interval so no debounced write fires mid-test.
	controller := NewTurnController(chats, backend, sink, time.Minute, time.Minute)

	seedStory(t, chats, "A", DefaultPersona())
	seedStory(t, chats, "B", DefaultPersona())
	require.NoError(t, controller.LoadStory("A"))

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.SetContinueHook(func(llm.ContinueRequest) {
		close(entered)
		<-release
	})

	var reply *storytypes.StoryReply
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		reply, err = controller.SubmitTurn(context.Background(), "Into the tunnel.")
	}()
	<-entered

	require.NoError(t, controller.LoadStory("B"))
	sink.reset()

	close(release)
	<-done

	assert.Nil(t, reply)
	assert.ErrorIs(t, err, ErrStaleResponse)

	// Nothing about the late reply reached the display or either story.
	assert.Zero(t, sink.eventCount())
	assert.Equal(t, "B", controller.ActiveTitle())
	assert.Empty(t, controller.Turns())
	controller.Flush()
	assert.Empty(t, chats.Load("A").Turns)
	assert.Empty(t, chats.Load("B").Turns)

	// The story is submittable again after the discard.
	backend.SetContinueHook(nil)
	require.NoError(t, controller.LoadStory("A"))
	_, err = controller.SubmitTurn(context.Background(), "Back on track.")
	require.NoError(t, err)
}

func TestLoadStoryReplaysWelcomeDeterministically(t *testing.T) {
	controller, chats, _, sink := newTestController(t)
	seedStory(t, chats, "Quiet", DefaultPersona())

	require.NoError(t, controller.LoadStory("Quiet"))
	require.NoError(t, controller.LoadStory("Quiet"))
	sink.reset()
	require.NoError(t, controller.LoadStory("Quiet"))

	// Exactly one welcome turn per replay, no accumulation.
	rendered := sink.renderedTurns()
	require.Len(t, rendered, 1)
	assert.Equal(t, storytypes.RoleModel, rendered[0].turn.Role)
	assert.Equal(t, WelcomeText, rendered[0].turn.Text)

	// The welcome never lands in state or the store.
	assert.Empty(t, controller.Turns())
	controller.Flush()
	assert.Empty(t, chats.Load("Quiet").Turns)
}

func TestLoadStoryRecordsLastActive(t *testing.T) {
	controller, chats, _, _ := newTestController(t)
	seedStory(t, chats, "First", DefaultPersona())
	seedStory(t, chats, "Second", DefaultPersona())

	require.NoError(t, controller.LoadStory("First"))
	assert.Equal(t, "First", chats.LastActive())
	require.NoError(t, controller.LoadStory("Second"))
	assert.Equal(t, "Second", chats.LastActive())

	err := controller.LoadStory("  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestUpdateInstruction(t *testing.T) {
	controller, chats, backend, sink := newTestController(t)
	seedStory(t, chats, "Voice", DefaultPersona())
	require.NoError(t, controller.LoadStory("Voice"))

	backend.QueueReply("So it went.")
	_, err := controller.SubmitTurn(context.Background(), "It began simply.")
	require.NoError(t, err)
	sink.reset()

	err = controller.UpdateInstruction("You narrate in second person, present tense.")
	require.NoError(t, err)
	assert.Equal(t, "You narrate in second person, present tense.", controller.Instruction())

	// Persisted immediately, without waiting for the debounce.
	stored := chats.Load("Voice")
	assert.Equal(t, "You narrate in second person, present tense.", stored.SystemInstruction)
	require.Len(t, stored.Turns, 2)

	// The reload replayed the transcript.
	assert.Equal(t, "clear", sink.kinds()[0])
	assert.Len(t, sink.renderedTurns(), 2)

	// The next request carries the new persona.
	backend.QueueReply("You walk on.")
	_, err = controller.SubmitTurn(context.Background(), "Walking on.")
	require.NoError(t, err)
	requests := backend.Requests()
	assert.Equal(t, "You narrate in second person, present tense.", requests[len(requests)-1].SystemInstruction)
}

func TestUpdateInstructionValidation(t *testing.T) {
	controller, chats, _, _ := newTestController(t)

	err := controller.UpdateInstruction("Narrate boldly.")
	assert.ErrorIs(t, err, ErrNoActiveStory)

	seedStory(t, chats, "Strict", DefaultPersona())
	require.NoError(t, controller.LoadStory("Strict"))
	err = controller.UpdateInstruction("   ")
	assert.ErrorIs(t, err, ErrEmptyInstruction)
	assert.Equal(t, DefaultPersona(), controller.Instruction())
}

func TestUniqueTitle(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  []string
		want      string
	}{
		{"no collision", "A", nil, "A"},
		{"first collision", "A", []string{"A"}, "A 2"},
		{"second collision", "A", []string{"A", "A 2"}, "A 3"},
		{"gap reused", "A", []string{"A", "A 3"}, "A 2"},
		{"unrelated titles", "A", []string{"B", "C"}, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uniqueTitle(tt.candidate, tt.existing))
		})
	}
}
