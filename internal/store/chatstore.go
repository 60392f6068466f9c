package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

// Key namespace. Every value is JSON except the last-active pointer, which
// holds the raw title bytes.
const (
	chatKeyPrefix = "story:chat:"
	indexKey      = "story:index"
	lastActiveKey = "story:last-active"
)

// partRecord and turnRecord mirror the stored history shape:
// {"role": R, "parts": [{"text": T}]}.
type partRecord struct {
	Text string `json:"text"`
}

type turnRecord struct {
	Role  string       `json:"role"`
	Parts []partRecord `json:"parts"`
}

// chatRecord is the on-disk shape of one story. Records written before the
// instruction was persisted are a bare JSON array equal to History alone;
// Load still accepts that shape.
type chatRecord struct {
	History           []turnRecord `json:"history"`
	SystemInstruction string       `json:"systemInstruction"`
}

// ChatStore reads and writes conversations, the title catalog, and the
// last-active pointer. Load never fails: absent, legacy, and unreadable
// records all degrade to a usable conversation so a corrupt store cannot
// take the session down.
type ChatStore struct {
	kv                 KV
	defaultInstruction string
}

// NewChatStore wraps kv. defaultInstruction fills in for records that
// carry no instruction of their own.
func NewChatStore(kv KV, defaultInstruction string) *ChatStore {
	return &ChatStore{kv: kv, defaultInstruction: defaultInstruction}
}

// Load returns the conversation stored under title.
func (s *ChatStore) Load(title string) *storytypes.Conversation {
	conv := &storytypes.Conversation{
		Title:             title,
		SystemInstruction: s.defaultInstruction,
	}

	data, found, err := s.kv.Get(chatKey(title))
	if err != nil {
		logger.Warn("story record unreadable", "title", title, "error", err)
		return conv
	}
	if !found {
		return conv
	}

	var rec chatRecord
	if err := json.Unmarshal(data, &rec); err == nil {
		conv.Turns = recordedTurns(rec.History)
		if rec.SystemInstruction != "" {
			conv.SystemInstruction = rec.SystemInstruction
		}
		return conv
	}

	// Legacy shape: the history array stored bare.
	var legacy []turnRecord
	if err := json.Unmarshal(data, &legacy); err == nil {
		logger.Debug("loaded legacy story record", "title", title, "turns", len(legacy))
		conv.Turns = recordedTurns(legacy)
		return conv
	}

	logger.Warn("discarding unparsable story record", "title", title, "bytes", len(data))
	return conv
}

// Save overwrites the record for title unconditionally; the last writer
// wins.
func (s *ChatStore) Save(title string, turns []storytypes.Turn, systemInstruction string) error {
	rec := chatRecord{
		History:           recordableTurns(turns),
		SystemInstruction: systemInstruction,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode story %q: %w", title, err)
	}
	if err := s.kv.Set(chatKey(title), data); err != nil {
		return fmt.Errorf("failed to write story %q: %w", title, err)
	}

	logger.Debug("story saved", "title", title, "turns", len(turns))
	return nil
}

// Titles returns the catalog in insertion order, empty if none exists.
func (s *ChatStore) Titles() []string {
	data, found, err := s.kv.Get(indexKey)
	if err != nil {
		logger.Warn("story catalog unreadable", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var titles []string
	if err := json.Unmarshal(data, &titles); err != nil {
		logger.Warn("discarding unparsable story catalog", "bytes", len(data))
		return nil
	}
	return titles
}

// HasTitle reports whether title is registered in the catalog.
func (s *ChatStore) HasTitle(title string) bool {
	for _, t := range s.Titles() {
		if t == title {
			return true
		}
	}
	return false
}

// RegisterTitle appends title to the catalog if it is not already present.
func (s *ChatStore) RegisterTitle(title string) error {
	titles := s.Titles()
	for _, t := range titles {
		if t == title {
			return nil
		}
	}

	data, err := json.Marshal(append(titles, title))
	if err != nil {
		return fmt.Errorf("failed to encode story catalog: %w", err)
	}
	if err := s.kv.Set(indexKey, data); err != nil {
		return fmt.Errorf("failed to write story catalog: %w", err)
	}
	return nil
}

// LastActive returns the title recorded as most recently open, or "" when
// none is recorded.
func (s *ChatStore) LastActive() string {
	data, found, err := s.kv.Get(lastActiveKey)
	if err != nil || !found {
		return ""
	}
	return string(data)
}

// SetLastActive records title as the story to resume on the next run.
func (s *ChatStore) SetLastActive(title string) error {
	if err := s.kv.Set(lastActiveKey, []byte(title)); err != nil {
		return fmt.Errorf("failed to record last-active story: %w", err)
	}
	return nil
}

func chatKey(title string) string {
	return chatKeyPrefix + title
}

// recordedTurns flattens stored turns into the in-memory shape. Multi-part
// turns collapse into one text.
func recordedTurns(recs []turnRecord) []storytypes.Turn {
	if len(recs) == 0 {
		return nil
	}
	turns := make([]storytypes.Turn, 0, len(recs))
	for _, rec := range recs {
		var text strings.Builder
		for _, part := range rec.Parts {
			text.WriteString(part.Text)
		}
		turns = append(turns, storytypes.Turn{Role: rec.Role, Text: text.String()})
	}
	return turns
}

// recordableTurns converts in-memory turns to the stored single-part shape.
func recordableTurns(turns []storytypes.Turn) []turnRecord {
	recs := make([]turnRecord, 0, len(turns))
	for _, turn := range turns {
		recs = append(recs, turnRecord{
			Role:  turn.Role,
			Parts: []partRecord{{Text: turn.Text}},
		})
	}
	return recs
}
