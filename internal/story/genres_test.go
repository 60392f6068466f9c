package story

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenresCatalog(t *testing.T) {
	presets := Genres()
	require.NotEmpty(t, presets)

	var names []string
	for _, preset := range presets {
		names = append(names, preset.Name)
		assert.NotEmpty(t, preset.Persona, "persona for %s", preset.Name)
	}
	assert.Equal(t, []string{"Default", "Fantasy", "Sci-Fi", "Mystery", "Horror", "Fairy Tale"}, names)
}

func TestDefaultPersona(t *testing.T) {
	persona := DefaultPersona()
	assert.Contains(t, strings.ToLower(persona), "storyteller")
	assert.Equal(t, persona, PersonaForGenre(""))
	assert.Equal(t, persona, PersonaForGenre("Default"))
	assert.Equal(t, persona, PersonaForGenre("default"))
}

func TestPersonaForGenre(t *testing.T) {
	fantasy := PersonaForGenre("Fantasy")
	assert.Contains(t, strings.ToLower(fantasy), "fantasy")
	assert.NotEqual(t, DefaultPersona(), fantasy)

	// Lookup is case-insensitive.
	assert.Equal(t, fantasy, PersonaForGenre("fantasy"))

	// An unrecognized genre degrades to a generic persona naming it.
	western := PersonaForGenre("Western")
	assert.Contains(t, western, "Western")
	assert.NotEqual(t, DefaultPersona(), western)
}
