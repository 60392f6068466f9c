package story

import "storyloom/pkg/storytypes"

// ConversationState is the in-memory authoritative copy of the active
// story: its title, system instruction, and ordered turns. The store is
// only read on activation; afterwards every mutation happens here first
// and is written back by the scheduler.
//
// The type is not safe for concurrent use. A TurnController owns one
// instance and serializes access through its own lock.
type ConversationState struct {
	title       string
	instruction string
	turns       []storytypes.Turn
}

// NewConversationState returns an empty state with no active story.
func NewConversationState() *ConversationState {
	return &ConversationState{}
}

// HasActive reports whether a story is active.
func (s *ConversationState) HasActive() bool {
	return s.title != ""
}

// ActiveTitle returns the active story's title, or "" when none is
// active.
func (s *ConversationState) ActiveTitle() string {
	return s.title
}

// Instruction returns the active system instruction.
func (s *ConversationState) Instruction() string {
	return s.instruction
}

// SetInstruction replaces the active system instruction.
func (s *ConversationState) SetInstruction(instruction string) {
	s.instruction = instruction
}

// TurnCount returns the number of turns in the active story.
func (s *ConversationState) TurnCount() int {
	return len(s.turns)
}

// Turns returns a copy of the active turns in order.
func (s *ConversationState) Turns() []storytypes.Turn {
	turns := make([]storytypes.Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// Activate replaces the state with conv's title, instruction, and turns.
func (s *ConversationState) Activate(conv *storytypes.Conversation) {
	s.title = conv.Title
	s.instruction = conv.SystemInstruction
	s.turns = make([]storytypes.Turn, len(conv.Turns))
	copy(s.turns, conv.Turns)
}

// Clear drops the active story, returning the state to empty.
func (s *ConversationState) Clear() {
	s.title = ""
	s.instruction = ""
	s.turns = nil
}

// AppendUserTurn appends a user turn.
func (s *ConversationState) AppendUserTurn(text string) {
	s.turns = append(s.turns, storytypes.Turn{Role: storytypes.RoleUser, Text: text})
}

// AppendModelTurn appends a model turn.
func (s *ConversationState) AppendModelTurn(text string) {
	s.turns = append(s.turns, storytypes.Turn{Role: storytypes.RoleModel, Text: text})
}

// LastPairComplete reports whether the story ends with a user turn
// followed by a model turn, the only shape regeneration can roll back.
func (s *ConversationState) LastPairComplete() bool {
	n := len(s.turns)
	return n >= 2 &&
		s.turns[n-2].Role == storytypes.RoleUser &&
		s.turns[n-1].Role == storytypes.RoleModel
}

// RollbackLastPair removes the trailing user and model turns and returns
// the user text for resubmission. It reports false, removing nothing,
// when the story does not end with a complete pair.
func (s *ConversationState) RollbackLastPair() (string, bool) {
	if !s.LastPairComplete() {
		return "", false
	}
	n := len(s.turns)
	userText := s.turns[n-2].Text
	s.turns = s.turns[:n-2]
	return userText, true
}

// Snapshot returns a deep copy of the active conversation for writing.
func (s *ConversationState) Snapshot() *storytypes.Conversation {
	return &storytypes.Conversation{
		Title:             s.title,
		SystemInstruction: s.instruction,
		Turns:             s.Turns(),
	}
}
