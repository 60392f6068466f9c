// Package story implements the conversation core: the in-memory state of
// the active story, the controller that mutates it, the debounced save
// scheduler, and session restore. The rendering layer subscribes through
// RenderSink; the backend is reached through the llm.Client interface.
package story

import "storyloom/pkg/storytypes"

// RenderSink receives display events from the controller and scheduler.
// The shell installs a terminal sink; tests install a recording one.
// Save-state changes arrive from a timer goroutine, so implementations
// must tolerate concurrent calls.
type RenderSink interface {
	// TranscriptCleared wipes the display before a story is replayed.
	TranscriptCleared(title string)
	// TurnRendered displays one turn in order. Suggestions accompany
	// model turns and are nil otherwise.
	TurnRendered(turn storytypes.Turn, suggestions []string)
	// PendingShown marks a backend call in flight.
	PendingShown()
	// PendingCleared removes the pending marker.
	PendingCleared()
	// ErrorShown replaces the pending marker with a failure message.
	ErrorShown(message string)
	// SaveStateChanged reports debounced-save progress.
	SaveStateChanged(state storytypes.SaveState)
}

// NopSink discards every event. It stands in when no renderer is
// attached.
type NopSink struct{}

// TranscriptCleared implements RenderSink.
func (NopSink) TranscriptCleared(string) {}

// TurnRendered implements RenderSink.
func (NopSink) TurnRendered(storytypes.Turn, []string) {}

// PendingShown implements RenderSink.
func (NopSink) PendingShown() {}

// PendingCleared implements RenderSink.
func (NopSink) PendingCleared() {}

// ErrorShown implements RenderSink.
func (NopSink) ErrorShown(string) {}

// SaveStateChanged implements RenderSink.
func (NopSink) SaveStateChanged(storytypes.SaveState) {}
