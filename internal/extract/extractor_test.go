package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/vision"
)

type fakeAnalyzer struct {
	text   string
	err    error
	calls  int
	model  string
	prompt string
	images []vision.ImageInput
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, model, instruction string, images ...vision.ImageInput) (string, error) {
	f.calls++
	f.model = model
	f.prompt = instruction
	f.images = images
	return f.text, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleDNA = "```json\n" + `{
  "name": "Nordic Light",
  "description": "Pale woods under soft daylight",
  "base_prompt": "Render as a bright Scandinavian interior.",
  "style_modifiers": ["pale oak floors", "white walls"],
  "materials_list": ["oak", "linen"],
  "lighting_setup": "Soft North Light",
  "negative_prompt": "harsh shadows",
  "color_palette": {"primary": "#f5f1ea", "accent": "#2c3e50"},
  "persona": "Use V-Ray with diffuse skylight."
}` + "\n```"

func TestExtractBuildsDescriptor(t *testing.T) {
	fa := &fakeAnalyzer{text: sampleDNA}
	e := New(Options{Vision: fa, Logger: testLogger()})

	img := vision.ImageInput{Data: []byte{1, 2, 3}, MimeType: "image/png"}
	d, err := e.Extract(context.Background(), img, "", false)
	require.NoError(t, err)

	assert.Equal(t, 1, fa.calls)
	assert.Equal(t, DefaultModel, fa.model)
	require.Len(t, fa.images, 1)
	assert.Equal(t, "image/png", fa.images[0].MimeType)

	assert.True(t, strings.HasPrefix(d.ID, "nordic_light_"), d.ID)
	assert.Equal(t, "Nordic Light", d.Name)
	assert.Equal(t, "Use V-Ray with diffuse skylight.", d.Persona)
	assert.Equal(t, "harsh shadows", d.NegativePrompt)
	assert.Equal(t, "User Created", d.Category)
	// palette order survives the round trip
	assert.Equal(t, style.Palette{{Slot: "primary", Hex: "#f5f1ea"}, {Slot: "accent", Hex: "#2c3e50"}}, d.ColorPalette)
}

func TestExtractIDsAreUnique(t *testing.T) {
	fa := &fakeAnalyzer{text: sampleDNA}
	e := New(Options{Vision: fa, Logger: testLogger()})

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		d, err := e.Extract(context.Background(), vision.ImageInput{Data: []byte{1}}, "", false)
		require.NoError(t, err)
		require.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}

func TestExtractStrictModeChangesPrompt(t *testing.T) {
	fa := &fakeAnalyzer{text: sampleDNA}
	e := New(Options{Vision: fa, Logger: testLogger()})

	_, err := e.Extract(context.Background(), vision.ImageInput{Data: []byte{1}}, "", true)
	require.NoError(t, err)
	assert.Contains(t, fa.prompt, "CRITICAL STRICT MODE ENGAGED")

	_, err = e.Extract(context.Background(), vision.ImageInput{Data: []byte{1}}, "", false)
	require.NoError(t, err)
	assert.NotContains(t, fa.prompt, "CRITICAL STRICT MODE ENGAGED")
}

func TestExtractWrapsRemoteError(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("boom")}
	e := New(Options{Vision: fa, Logger: testLogger()})

	_, err := e.Extract(context.Background(), vision.ImageInput{Data: []byte{1}}, "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractWrapsParseError(t *testing.T) {
	fa := &fakeAnalyzer{text: "I could not find a style here."}
	e := New(Options{Vision: fa, Logger: testLogger()})

	_, err := e.Extract(context.Background(), vision.ImageInput{Data: []byte{1}}, "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestGetPersonaAlwaysResolves(t *testing.T) {
	for _, id := range []string{"", "style_engineer", "unknown"} {
		p := GetPersona(id)
		assert.Equal(t, "style_engineer", p.ID)
	}
	assert.Len(t, Personas(), 1)
}
