package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloom/pkg/storytypes"
)

const testInstruction = "You are a collaborative storyteller."

func newTestStore() (*ChatStore, *MemoryKV) {
	kv := NewMemoryKV()
	return NewChatStore(kv, testInstruction), kv
}

func TestChatStore_RoundTrip(t *testing.T) {
	chats, _ := newTestStore()

	turns := []storytypes.Turn{
		{Role: storytypes.RoleUser, Text: "A dragon guards a library"},
		{Role: storytypes.RoleModel, Text: "Its scales shimmer between the stacks."},
		{Role: storytypes.RoleUser, Text: "I approach quietly"},
		{Role: storytypes.RoleModel, Text: "The dragon opens one golden eye."},
	}

	err := chats.Save("The Library Dragon", turns, "You narrate a fantasy tale.")
	require.NoError(t, err)

	loaded := chats.Load("The Library Dragon")
	assert.Equal(t, "The Library Dragon", loaded.Title)
	assert.Equal(t, "You narrate a fantasy tale.", loaded.SystemInstruction)
	assert.Equal(t, turns, loaded.Turns)
}

func TestChatStore_LoadAbsentReturnsDefault(t *testing.T) {
	chats, _ := newTestStore()

	conv := chats.Load("Never Saved")
	assert.Equal(t, "Never Saved", conv.Title)
	assert.Equal(t, testInstruction, conv.SystemInstruction)
	assert.Empty(t, conv.Turns)
}

func TestChatStore_LoadLegacyBareArray(t *testing.T) {
	chats, kv := newTestStore()

	legacy := `[{"role":"user","parts":[{"text":"go left"}]},{"role":"model","parts":[{"text":"you fall"}]}]`
	require.NoError(t, kv.Set("story:chat:Old Tale", []byte(legacy)))

	conv := chats.Load("Old Tale")
	assert.Equal(t, []storytypes.Turn{
		{Role: storytypes.RoleUser, Text: "go left"},
		{Role: storytypes.RoleModel, Text: "you fall"},
	}, conv.Turns)
	assert.Equal(t, testInstruction, conv.SystemInstruction,
		"legacy records carry no instruction and fall back to the default")
}

func TestChatStore_LoadCorruptRecord(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"truncated object", `{"history":[{"role":"user"`},
		{"plain text", `not json at all`},
		{"wrong type", `42`},
		{"quoted string", `"just a string"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chats, kv := newTestStore()
			require.NoError(t, kv.Set("story:chat:Broken", []byte(tt.payload)))

			conv := chats.Load("Broken")
			assert.Empty(t, conv.Turns)
			assert.Equal(t, testInstruction, conv.SystemInstruction)
		})
	}
}

func TestChatStore_LoadRecordWithoutInstruction(t *testing.T) {
	chats, kv := newTestStore()

	require.NoError(t, kv.Set("story:chat:Bare", []byte(`{"history":[]}`)))

	conv := chats.Load("Bare")
	assert.Equal(t, testInstruction, conv.SystemInstruction)
}

func TestChatStore_LoadFlattensMultiPartTurns(t *testing.T) {
	chats, kv := newTestStore()

	record := `{"history":[{"role":"model","parts":[{"text":"The door "},{"text":"creaks open."}]}],"systemInstruction":"p"}`
	require.NoError(t, kv.Set("story:chat:Split", []byte(record)))

	conv := chats.Load("Split")
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "The door creaks open.", conv.Turns[0].Text)
}

func TestChatStore_SaveWireLayout(t *testing.T) {
	chats, kv := newTestStore()

	err := chats.Save("Wire", []storytypes.Turn{
		{Role: storytypes.RoleUser, Text: "hello"},
		{Role: storytypes.RoleModel, Text: "well met"},
	}, "persona text")
	require.NoError(t, err)

	data, found, err := kv.Get("story:chat:Wire")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t,
		`{"history":[{"role":"user","parts":[{"text":"hello"}]},{"role":"model","parts":[{"text":"well met"}]}],"systemInstruction":"persona text"}`,
		string(data))
}

func TestChatStore_SaveEmptyConversation(t *testing.T) {
	chats, kv := newTestStore()

	require.NoError(t, chats.Save("Fresh", nil, "persona"))

	data, found, err := kv.Get("story:chat:Fresh")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"history":[],"systemInstruction":"persona"}`, string(data))
}

func TestChatStore_Catalog(t *testing.T) {
	chats, _ := newTestStore()

	assert.Empty(t, chats.Titles())

	require.NoError(t, chats.RegisterTitle("First"))
	require.NoError(t, chats.RegisterTitle("Second"))
	require.NoError(t, chats.RegisterTitle("First")) // idempotent
	require.NoError(t, chats.RegisterTitle("Third"))

	assert.Equal(t, []string{"First", "Second", "Third"}, chats.Titles())
	assert.True(t, chats.HasTitle("Second"))
	assert.False(t, chats.HasTitle("Fourth"))
}

func TestChatStore_CatalogWireLayout(t *testing.T) {
	chats, kv := newTestStore()

	require.NoError(t, chats.RegisterTitle("A"))
	require.NoError(t, chats.RegisterTitle("B"))

	data, found, err := kv.Get("story:index")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `["A","B"]`, string(data))
}

func TestChatStore_CorruptCatalogDegradesToEmpty(t *testing.T) {
	chats, kv := newTestStore()

	require.NoError(t, kv.Set("story:index", []byte(`{"oops":`)))

	assert.Empty(t, chats.Titles())
	// Registration starts a fresh catalog rather than failing.
	require.NoError(t, chats.RegisterTitle("Recovered"))
	assert.Equal(t, []string{"Recovered"}, chats.Titles())
}

func TestChatStore_LastActive(t *testing.T) {
	chats, kv := newTestStore()

	assert.Equal(t, "", chats.LastActive())

	require.NoError(t, chats.SetLastActive("The Library Dragon"))
	assert.Equal(t, "The Library Dragon", chats.LastActive())

	// The pointer is the raw title bytes, not JSON.
	data, found, err := kv.Get("story:last-active")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "The Library Dragon", string(data))
}
