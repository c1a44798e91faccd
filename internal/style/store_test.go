package style

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeStyleFile(t *testing.T, path string, records map[string]storedStyle) {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "style_prompts.json")
	stagingPath := filepath.Join(dir, "staging_styles.json")

	writeStyleFile(t, mainPath, map[string]storedStyle{
		"nordic_light": {
			Title:          "Nordic Light",
			Description:    "Pale woods and soft daylight",
			Category:       "Scandinavian",
			LightingStyle:  "soft diffused daylight",
			StyleModifiers: []string{"pale oak floors", "white walls"},
			HexPalette:     []string{"#f5f1ea", "#d9c7b2"},
		},
		"neon_noir": {
			Title:        "Neon Noir",
			Description:  "Dark surfaces under saturated neon",
			Category:     "Cinematic",
			ColorPalette: Palette{{Slot: "base", Hex: "#12121a"}, {Slot: "neon", Hex: "#ff2079"}},
		},
	})

	return NewStore(StoreOptions{
		MainPath:    mainPath,
		StagingPath: stagingPath,
		Logger:      testLogger(),
	}), mainPath, stagingPath
}

func TestStoreLoadsAndNormalizes(t *testing.T) {
	s, _, _ := newTestStore(t)

	d, ok := s.Get("nordic_light")
	require.True(t, ok)
	assert.Equal(t, "Nordic Light", d.Name)
	assert.Equal(t, "soft diffused daylight", d.LightingSetup)
	assert.Equal(t, DefaultNegativePrompt, d.NegativePrompt)
	// hex_palette entries get synthetic ordered slots
	assert.Equal(t, Palette{{Slot: "color_0", Hex: "#f5f1ea"}, {Slot: "color_1", Hex: "#d9c7b2"}}, d.ColorPalette)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "neon_noir", all[0].ID)
	assert.Equal(t, "nordic_light", all[1].ID)
}

func TestStoreCategories(t *testing.T) {
	s, _, _ := newTestStore(t)

	cats := s.Categories()
	require.Contains(t, cats, "Scandinavian")
	require.Contains(t, cats, "Cinematic")
	assert.Equal(t, []string{"nordic_light"}, cats["Scandinavian"].Styles)

	byCat := s.ByCategory("Cinematic")
	require.Len(t, byCat, 1)
	assert.Equal(t, "Neon Noir", byCat[0].Name)

	assert.Nil(t, s.ByCategory("Missing"))
}

func TestStoreSaveGoesToStagingOnly(t *testing.T) {
	s, _, stagingPath := newTestStore(t)

	id, err := s.Save(&Descriptor{
		ID:            "warm_terracotta_123",
		Name:          "Warm Terracotta",
		Description:   "Clay tones and afternoon sun",
		LightingSetup: "warm afternoon sun",
		ColorPalette:  Palette{{Slot: "clay", Hex: "#c96f4a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "warm_terracotta_123", id)

	// Resolvable by id, hidden from the public list.
	d, ok := s.Get(id)
	require.True(t, ok)
	assert.True(t, d.Staging)
	assert.Len(t, s.All(), 2)

	raw, err := os.ReadFile(stagingPath)
	require.NoError(t, err)
	var staged map[string]storedStyle
	require.NoError(t, json.Unmarshal(raw, &staged))
	require.Contains(t, staged, id)
	assert.Equal(t, "User Created", staged[id].Category)
}

func TestStoreSaveIDConflictGetsSuffix(t *testing.T) {
	s, _, _ := newTestStore(t)

	first, err := s.Save(&Descriptor{ID: "dup", Name: "Dup"})
	require.NoError(t, err)
	require.Equal(t, "dup", first)

	second, err := s.Save(&Descriptor{ID: "dup", Name: "Dup"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "dup_")

	_, ok := s.Get(first)
	assert.True(t, ok)
	_, ok = s.Get(second)
	assert.True(t, ok)
}

func TestStoreMissingFilesAreEmptyNotFatal(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(StoreOptions{
		MainPath:    filepath.Join(dir, "absent.json"),
		StagingPath: filepath.Join(dir, "also_absent.json"),
		Logger:      testLogger(),
	})

	assert.Empty(t, s.All())
	_, ok := s.Get("anything")
	assert.False(t, ok)
}
