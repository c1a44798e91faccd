package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Snoopiam/mqt/internal/compose"
	"github.com/Snoopiam/mqt/internal/extract"
	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/tier"
	"github.com/Snoopiam/mqt/internal/vision"
)

// comparisonFallbackModel is tried once when the tier's analysis model
// itself errors out.
const comparisonFallbackModel = "gemini-2.0-flash-exp"

// ComparisonResult scores how closely a generated image matches a style
// DNA. A zero score with a populated Analysis means the comparison itself
// degraded; the refinement loop keeps working either way.
type ComparisonResult struct {
	Score             int      `json:"visualMatchScore"`
	Analysis          string   `json:"analysis"`
	MatchedAttributes []string `json:"matchedAttributes"`
	Differences       []string `json:"differences"`
	Suggestions       []string `json:"suggestions"`
}

type ComparatorOptions struct {
	Vision VisionModel
	Logger *slog.Logger

	// AnalysisModelOverride pins the scoring model regardless of tier.
	AnalysisModelOverride string
}

// Comparator runs the self-verification pass: one analyze call over the
// generated image (and optionally the original reference) against the
// style descriptor, returning a calibrated 0-100 score.
type Comparator struct {
	vm         VisionModel
	logger     *slog.Logger
	analysisOv string
}

func NewComparator(opts ComparatorOptions) *Comparator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparator{vm: opts.Vision, logger: logger, analysisOv: opts.AnalysisModelOverride}
}

// Compare never returns an error: any failure yields a degraded
// ComparisonResult so the caller's refinement loop always has something to
// branch on.
func (c *Comparator) Compare(ctx context.Context, d *style.Descriptor, generated vision.ImageInput, reference *vision.ImageInput, tierName string) *ComparisonResult {
	cfg := tier.Resolve(tierName)

	model := cfg.AnalysisModel
	if c.analysisOv != "" {
		model = c.analysisOv
	}

	prompt := buildComparisonPrompt(d, cfg.Tier, reference != nil)

	images := make([]vision.ImageInput, 0, 2)
	if reference != nil {
		images = append(images, *reference)
	}
	images = append(images, generated)

	text, err := c.vm.Analyze(ctx, model, prompt, images...)
	if err != nil {
		// One retry against a known-good lower-tier model; a parse failure
		// below gets no such retry.
		c.logger.Warn("comparison model failed, retrying with fallback", "tier", cfg.Tier, "model", model, "stage", "comparison", "err", err)
		text, err = c.vm.Analyze(ctx, comparisonFallbackModel, prompt, images...)
	}
	if err != nil {
		c.logger.Error("comparison failed", "tier", cfg.Tier, "model", model, "stage", "comparison", "err", err)
		return degradedResult(err)
	}

	var result ComparisonResult
	if err := vision.ParseModelJSON(text, &result); err != nil {
		c.logger.Error("comparison parse failed", "tier", cfg.Tier, "model", model, "stage", "comparison", "err", err)
		return degradedResult(err)
	}

	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 100 {
		result.Score = 100
	}
	ensureLists(&result)

	c.logger.Info("comparison complete", "score", result.Score, "tier", cfg.Tier, "has_reference", reference != nil)
	return &result
}

func degradedResult(err error) *ComparisonResult {
	return &ComparisonResult{
		Score:             0,
		Analysis:          "Failed to perform AI analysis: " + err.Error(),
		MatchedAttributes: []string{},
		Differences:       []string{},
		Suggestions:       []string{},
	}
}

func ensureLists(r *ComparisonResult) {
	if r.MatchedAttributes == nil {
		r.MatchedAttributes = []string{}
	}
	if r.Differences == nil {
		r.Differences = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
}

func buildComparisonPrompt(d *style.Descriptor, t tier.Tier, hasReference bool) string {
	var b strings.Builder
	b.Grow(4096)

	b.WriteString("YOU ARE THE \"STYLE AUDITOR\" - an expert at judging architectural visualization style fidelity.\n")
	fmt.Fprintf(&b, "Audit discipline: %s\n\n", extract.GetPersona("").ComparisonStyle)

	if hasReference {
		b.WriteString(`IMAGES PROVIDED:
- Image 1: REFERENCE - The original style exemplar we extracted the DNA from
- Image 2: GENERATED - The visualization produced from a floor plan using that DNA

YOUR PRIMARY TASK: Visually compare Image 2 against Image 1. Does Image 2 capture the STYLE ESSENCE of Image 1?
`)
	} else {
		b.WriteString(`IMAGE PROVIDED: The GENERATED visualization we want to evaluate.
TASK: Evaluate how well it matches the Style DNA description below.
`)
	}

	palette, _ := json.Marshal(d.ColorPalette)
	modifiers, _ := json.Marshal(d.StyleModifiers)
	materials, _ := json.Marshal(d.MaterialsList)

	b.WriteString("\nSTYLE DNA CONTEXT:\n")
	fmt.Fprintf(&b, "- Name: %s\n", d.Name)
	fmt.Fprintf(&b, "- Description: %s\n", d.Description)
	fmt.Fprintf(&b, "- Expected Colors: %s\n", palette)
	fmt.Fprintf(&b, "- Expected Lighting: %s\n", d.LightingSetup)
	fmt.Fprintf(&b, "- Style Modifiers: %s\n", modifiers)
	fmt.Fprintf(&b, "- Materials: %s\n", materials)

	switch t {
	case tier.Free:
		b.WriteString(`
MODEL CONTEXT: This image was generated by a FAST inference model optimized for speed over perfection.
SCORING ADJUSTMENT FOR FAST MODEL:
- Evaluate STYLE DIRECTION and overall aesthetic match, not fine detail or photorealism
- If the COLOR PALETTE matches and the OVERALL MOOD is correct, score 95+
- Minor simplifications in material texture or edge definition should NOT reduce score below 90
- The core style signature (colors, lighting direction, overall aesthetic) is what matters
`)
	case tier.Premium, tier.Ultra:
		b.WriteString(`
MODEL CONTEXT: This image was generated by a professional-grade model capable of high fidelity.
SCORING ADJUSTMENT FOR PRO MODEL:
- Full style fidelity including material detail and lighting nuance is achievable
- If the style signature is clearly present with correct colors and mood, score 95+
- If the image would be indistinguishable from the reference style in a portfolio, score 98+
- Only penalize for obvious mismatches in core style elements (wrong colors, wrong lighting direction)
`)
	}

	b.WriteString(`
CALIBRATED SCORING RUBRIC:
- 100: PERFECT STYLE MATCH - The generated image captures the reference style. Colors match, lighting matches, overall aesthetic is correct.
- 95-99: NEAR-PERFECT - Style signature clearly transferred with trivial differences only.
- 90-94: STRONG MATCH - Style DNA clearly present. Minor acceptable variations.
- 80-89: GOOD MATCH - Correct style direction with some noticeable attribute differences.
- Below 80: NEEDS IMPROVEMENT - Significant style deviation.

CRITICAL SCORING GUIDELINES - READ CAREFULLY:
1. DEFAULT SCORE IS 100 unless you find specific style mismatches
2. If the COLOR PALETTE is recognizably the same → DO NOT REDUCE SCORE
3. If the LIGHTING DIRECTION is correct → DO NOT REDUCE SCORE
4. If the OVERALL AESTHETIC matches → SCORE 100

WHAT SHOULD **NOT** REDUCE THE SCORE:
- Different floor plan layouts (expected - it's a different floor plan!)
- Minor texture simplification (AI limitation, not style failure)
- Slight color saturation/brightness differences (natural variation)
- Small rendering artifacts or noise
- Missing furniture details (layout differences are expected)
- Resolution or sharpness differences

WHAT **SHOULD** REDUCE THE SCORE:
- Wrong color scheme (warm instead of cool, different hue family)
- Wrong lighting direction (harsh vs soft, day vs night)
- Missing KEY style elements (wireframe should be wireframe, neon should have neon)
- Completely different aesthetic category

`)

	if hasReference {
		b.WriteString("FINAL CHECK: Would a designer say \"yes, these are the same style\"? If YES → score 100.\n")
	} else {
		b.WriteString("FINAL CHECK: Does the image match the described DNA? If YES → score 100.\n")
	}

	b.WriteString(`
OUTPUT FORMAT: JSON ONLY (no markdown, no explanation outside JSON)
{
   "visualMatchScore": <integer 0-100>,
   "analysis": "<2-3 sentences visually comparing the style match>",
   "matchedAttributes": ["list", "of", "well-matched", "style", "elements"],
   "differences": ["specific discrepancies if any"],
   "suggestions": ["actionable improvements"]
}
`)

	return b.String()
}

// RefinementFromResult packages a comparison outcome into the feedback
// block for the next generation attempt.
func RefinementFromResult(attempt int, r *ComparisonResult) *compose.Refinement {
	return &compose.Refinement{
		Attempt:       attempt,
		PreviousScore: r.Score,
		Issues:        r.Differences,
		Keepers:       r.MatchedAttributes,
		AIAnalysis:    r.Analysis,
		Suggestions:   r.Suggestions,
	}
}
