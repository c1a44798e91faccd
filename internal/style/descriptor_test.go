package style

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Nordic Light":           "nordic_light",
		"  Art-Déco / Luxe  ":    "art_d_co_luxe",
		"UPPER case 42":          "upper_case_42",
		"---":                    "style",
		"":                       "style",
		"already_snake":          "already_snake",
		"double  spaces__inside": "double_spaces_inside",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestNewIDUniqueAndPrefixed(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := NewID("Nordic Light")
		require.True(t, strings.HasPrefix(id, "nordic_light_"), id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNormalizeDefaults(t *testing.T) {
	d := &Descriptor{Name: "  Bare  "}
	d.Normalize()

	assert.Equal(t, "Bare", d.Name)
	assert.Equal(t, "Standard ambient lighting", d.LightingSetup)
	assert.Equal(t, DefaultNegativePrompt, d.NegativePrompt)
	assert.Equal(t, "Uncategorized", d.Category)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	d := &Descriptor{
		Name:           "Neon Noir",
		LightingSetup:  "hard neon rim light",
		NegativePrompt: "no daylight",
		Category:       "Cinematic",
	}
	d.Normalize()

	assert.Equal(t, "hard neon rim light", d.LightingSetup)
	assert.Equal(t, "no daylight", d.NegativePrompt)
	assert.Equal(t, "Cinematic", d.Category)
}

func TestMaterialsFallsBackToPaletteSlots(t *testing.T) {
	d := &Descriptor{
		ColorPalette: Palette{
			{Slot: "oak", Hex: "#a87f4f"},
			{Slot: "linen", Hex: "#f0ead6"},
			{Slot: "slate", Hex: "#4a5560"},
		},
	}
	assert.Equal(t, []string{"oak", "linen", "slate"}, d.Materials())

	d.MaterialsList = []string{"brushed brass"}
	assert.Equal(t, []string{"brushed brass"}, d.Materials())
}

func TestNonPhotorealisticDetection(t *testing.T) {
	assert.True(t, (&Descriptor{Name: "Architect Sketch"}).NonPhotorealistic())
	assert.True(t, (&Descriptor{Description: "clean blueprint linework"}).NonPhotorealistic())
	assert.True(t, (&Descriptor{LightingSetup: "flat wireframe shading"}).NonPhotorealistic())
	assert.False(t, (&Descriptor{Name: "Warm Scandinavian", Description: "soft daylight interior"}).NonPhotorealistic())
}

func TestPaletteRoundTripPreservesOrder(t *testing.T) {
	p := Palette{
		{Slot: "primary", Hex: "#2c3e50"},
		{Slot: "accent", Hex: "#e67e22"},
		{Slot: "floor", Hex: "#d7ccc8"},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"primary":"#2c3e50","accent":"#e67e22","floor":"#d7ccc8"}`, string(data))

	var back Palette
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestPaletteValuesCapped(t *testing.T) {
	p := Palette{
		{Slot: "a", Hex: "#111111"},
		{Slot: "b", Hex: "#222222"},
		{Slot: "c", Hex: "#333333"},
	}
	assert.Equal(t, []string{"#111111", "#222222"}, p.Values(2))
	assert.Equal(t, []string{"#111111", "#222222", "#333333"}, p.Values(5))
}

func TestPaletteRejectsNonObject(t *testing.T) {
	var p Palette
	assert.Error(t, json.Unmarshal([]byte(`["#111111"]`), &p))
}
