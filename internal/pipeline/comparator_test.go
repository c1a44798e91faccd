package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/vision"
)

type analyzeCall struct {
	model  string
	prompt string
	images int
}

type fakeComparatorVision struct {
	responses []func(call analyzeCall) (string, error)
	calls     []analyzeCall
}

func (f *fakeComparatorVision) Analyze(ctx context.Context, model, instruction string, images ...vision.ImageInput) (string, error) {
	call := analyzeCall{model: model, prompt: instruction, images: len(images)}
	f.calls = append(f.calls, call)
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx](call)
}

func (f *fakeComparatorVision) Generate(ctx context.Context, model, instruction string, images []vision.ImageInput, cfg vision.SamplingConfig) (vision.Result, error) {
	return vision.Result{}, errors.New("not used")
}

func comparatorDescriptor() *style.Descriptor {
	d := &style.Descriptor{
		Name:          "Nordic Light",
		Description:   "Pale woods under soft daylight",
		LightingSetup: "Soft North Light",
		ColorPalette:  style.Palette{{Slot: "primary", Hex: "#f5f1ea"}},
	}
	d.Normalize()
	return d
}

const comparisonJSON = "```json\n" + `{
  "visualMatchScore": 92,
  "analysis": "Close match with slightly warmer highlights.",
  "matchedAttributes": ["palette", "lighting direction"],
  "differences": ["warmer highlights"],
  "suggestions": ["cool the white balance"]
}` + "\n```"

func TestCompareParsesResult(t *testing.T) {
	fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
		func(analyzeCall) (string, error) { return comparisonJSON, nil },
	}}
	c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

	generated := vision.ImageInput{Data: []byte{1}, MimeType: "image/png"}
	reference := &vision.ImageInput{Data: []byte{2}, MimeType: "image/jpeg"}
	res := c.Compare(context.Background(), comparatorDescriptor(), generated, reference, "PREMIUM")

	require.NotNil(t, res)
	assert.Equal(t, 92, res.Score)
	assert.Equal(t, []string{"palette", "lighting direction"}, res.MatchedAttributes)
	assert.Equal(t, []string{"warmer highlights"}, res.Differences)

	require.Len(t, fv.calls, 1)
	call := fv.calls[0]
	assert.Equal(t, "gemini-2.5-pro", call.model)
	assert.Equal(t, 2, call.images)
	assert.Contains(t, call.prompt, "STYLE AUDITOR")
	assert.Contains(t, call.prompt, "DEFAULT SCORE IS 100")
	assert.Contains(t, call.prompt, "PRO MODEL")
	assert.Contains(t, call.prompt, "Image 1: REFERENCE")
}

func TestCompareTierCalibration(t *testing.T) {
	for tierName, marker := range map[string]string{
		"FREE":  "FAST MODEL",
		"ULTRA": "PRO MODEL",
	} {
		fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
			func(analyzeCall) (string, error) { return comparisonJSON, nil },
		}}
		c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

		c.Compare(context.Background(), comparatorDescriptor(), vision.ImageInput{Data: []byte{1}}, nil, tierName)
		require.Len(t, fv.calls, 1, tierName)
		assert.Contains(t, fv.calls[0].prompt, marker, tierName)
	}
}

func TestCompareWithoutReferenceOmitsPairing(t *testing.T) {
	fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
		func(analyzeCall) (string, error) { return comparisonJSON, nil },
	}}
	c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

	c.Compare(context.Background(), comparatorDescriptor(), vision.ImageInput{Data: []byte{1}}, nil, "FREE")
	require.Len(t, fv.calls, 1)
	assert.Equal(t, 1, fv.calls[0].images)
	assert.NotContains(t, fv.calls[0].prompt, "Image 1: REFERENCE")
}

func TestCompareScoreClamped(t *testing.T) {
	for raw, want := range map[string]int{"150": 100, "-5": 0} {
		fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
			func(analyzeCall) (string, error) {
				return `{"visualMatchScore": ` + raw + `, "analysis": "x"}`, nil
			},
		}}
		c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

		res := c.Compare(context.Background(), comparatorDescriptor(), vision.ImageInput{Data: []byte{1}}, nil, "FREE")
		assert.Equal(t, want, res.Score, "raw score %s", raw)
		assert.NotNil(t, res.MatchedAttributes)
		assert.NotNil(t, res.Differences)
		assert.NotNil(t, res.Suggestions)
	}
}

func TestCompareRetriesModelFailureOnce(t *testing.T) {
	fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
		func(analyzeCall) (string, error) { return "", errors.New("overloaded") },
		func(analyzeCall) (string, error) { return comparisonJSON, nil },
	}}
	c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

	res := c.Compare(context.Background(), comparatorDescriptor(), vision.ImageInput{Data: []byte{1}}, nil, "ULTRA")
	assert.Equal(t, 92, res.Score)

	require.Len(t, fv.calls, 2)
	assert.Equal(t, "gemini-3-pro-preview", fv.calls[0].model)
	assert.Equal(t, comparisonFallbackModel, fv.calls[1].model)
}

func TestCompareDegradesWhenBothModelsFail(t *testing.T) {
	fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
		func(analyzeCall) (string, error) { return "", errors.New("down") },
	}}
	c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

	res := c.Compare(context.Background(), comparatorDescriptor(), vision.ImageInput{Data: []byte{1}}, nil, "FREE")

	require.NotNil(t, res)
	assert.Zero(t, res.Score)
	assert.Contains(t, res.Analysis, "Failed to perform AI analysis")
	assert.Empty(t, res.MatchedAttributes)
	require.Len(t, fv.calls, 2)
}

func TestCompareParseFailureGetsNoRetry(t *testing.T) {
	fv := &fakeComparatorVision{responses: []func(analyzeCall) (string, error){
		func(analyzeCall) (string, error) { return "prose, not JSON", nil },
	}}
	c := NewComparator(ComparatorOptions{Vision: fv, Logger: testLogger()})

	res := c.Compare(context.Background(), comparatorDescriptor(), vision.ImageInput{Data: []byte{1}}, nil, "FREE")

	assert.Zero(t, res.Score)
	assert.Contains(t, res.Analysis, "Failed to perform AI analysis")
	require.Len(t, fv.calls, 1)
}

func TestRefinementFromResult(t *testing.T) {
	r := RefinementFromResult(3, &ComparisonResult{
		Score:             72,
		Analysis:          "lighting too warm",
		MatchedAttributes: []string{"palette"},
		Differences:       []string{"wrong lighting direction"},
		Suggestions:       []string{"cool it down"},
	})

	assert.Equal(t, 3, r.Attempt)
	assert.Equal(t, 72, r.PreviousScore)
	assert.Equal(t, []string{"wrong lighting direction"}, r.Issues)
	assert.Equal(t, []string{"palette"}, r.Keepers)
	assert.Equal(t, "lighting too warm", r.AIAnalysis)
}
