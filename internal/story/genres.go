package story

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"storyloom/internal/logger"
)

//go:embed genres.yaml
var genresYAML []byte

// GenrePreset pairs a genre name with the storyteller persona used as
// the system instruction for stories started in that genre.
type GenrePreset struct {
	Name    string `yaml:"name"`
	Persona string `yaml:"persona"`
}

type genreCatalog struct {
	Genres []GenrePreset `yaml:"genres"`
}

var (
	genreOnce    sync.Once
	genrePresets []GenrePreset
)

func loadGenrePresets() []GenrePreset {
	genreOnce.Do(func() {
		var catalog genreCatalog
		if err := yaml.Unmarshal(genresYAML, &catalog); err != nil {
			logger.Error("failed to parse embedded genre catalog", "error", err)
			return
		}
		for _, preset := range catalog.Genres {
			preset.Persona = strings.TrimSpace(preset.Persona)
			if preset.Name == "" || preset.Persona == "" {
				continue
			}
			genrePresets = append(genrePresets, preset)
		}
	})
	return genrePresets
}

// Genres returns the embedded presets in catalog order.
func Genres() []GenrePreset {
	presets := loadGenrePresets()
	out := make([]GenrePreset, len(presets))
	copy(out, presets)
	return out
}

// DefaultPersona returns the storyteller instruction used when no genre
// is picked. It also backfills transcripts stored without one.
func DefaultPersona() string {
	for _, preset := range loadGenrePresets() {
		if strings.EqualFold(preset.Name, defaultGenreName) {
			return preset.Persona
		}
	}
	return fallbackPersona
}

// PersonaForGenre maps a genre to its system instruction. The empty
// genre means Default; a genre with no preset gets a generic persona
// that still names it, so an unrecognized choice degrades rather than
// failing.
func PersonaForGenre(genre string) string {
	genre = strings.TrimSpace(genre)
	if genre == "" || strings.EqualFold(genre, defaultGenreName) {
		return DefaultPersona()
	}
	for _, preset := range loadGenrePresets() {
		if strings.EqualFold(preset.Name, genre) {
			return preset.Persona
		}
	}
	return fmt.Sprintf(genericPersonaFormat, genre)
}
