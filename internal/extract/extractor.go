package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/vision"
)

// ErrExtractionFailed wraps any remote or parse error from a DNA
// extraction. No partial result is ever returned.
var ErrExtractionFailed = errors.New("style extraction failed")

// DefaultModel is the most capable vision model available; extraction
// quality sets the ceiling for every later generation with that style.
const DefaultModel = "gemini-3-pro-preview"

// Analyzer is the slice of the vision client extraction needs.
type Analyzer interface {
	Analyze(ctx context.Context, model, instruction string, images ...vision.ImageInput) (string, error)
}

type Options struct {
	Vision Analyzer
	Model  string
	Logger *slog.Logger
}

// Extractor turns a reference image into a style.Descriptor through a
// single analyze call.
type Extractor struct {
	vm     Analyzer
	model  string
	logger *slog.Logger
}

func New(opts Options) *Extractor {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{vm: opts.Vision, model: model, logger: logger}
}

// dnaResponse is the JSON schema the model is instructed to return.
type dnaResponse struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	BasePrompt     string        `json:"base_prompt"`
	StyleModifiers []string      `json:"style_modifiers"`
	MaterialsList  []string      `json:"materials_list"`
	LightingSetup  string        `json:"lighting_setup"`
	NegativePrompt string        `json:"negative_prompt"`
	ColorPalette   style.Palette `json:"color_palette"`
	Persona        string        `json:"persona"`
}

// Extract runs the DNA analysis on a reference image. strict demands
// forensic material and lighting classification in professional terms
// instead of mood language.
func (e *Extractor) Extract(ctx context.Context, image vision.ImageInput, personaID string, strict bool) (*style.Descriptor, error) {
	persona := GetPersona(personaID)
	prompt := buildExtractionPrompt(persona, strict)

	text, err := e.vm.Analyze(ctx, e.model, prompt, image)
	if err != nil {
		e.logger.Error("dna extraction call failed", "model", e.model, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var dna dnaResponse
	if err := vision.ParseModelJSON(text, &dna); err != nil {
		e.logger.Error("dna extraction parse failed", "model", e.model, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	d := &style.Descriptor{
		ID:             style.NewID(dna.Name),
		Name:           dna.Name,
		Description:    dna.Description,
		BasePrompt:     dna.BasePrompt,
		Persona:        dna.Persona,
		StyleModifiers: dna.StyleModifiers,
		MaterialsList:  dna.MaterialsList,
		LightingSetup:  dna.LightingSetup,
		ColorPalette:   dna.ColorPalette,
		NegativePrompt: dna.NegativePrompt,
		Category:       "User Created",
	}
	d.Normalize()

	e.logger.Info("dna extracted", "id", d.ID, "name", d.Name, "strict", strict)
	return d, nil
}

func buildExtractionPrompt(persona Persona, strict bool) string {
	var b strings.Builder
	b.Grow(2048)

	b.WriteString("YOU ARE THE \"SUPREME ARCHITECTURAL ANALYST\".\n")
	fmt.Fprintf(&b, "Your active persona is: %q.\n", persona.Name)
	fmt.Fprintf(&b, "Instruction: %s\n", persona.ExtractionStyle)

	if strict {
		b.WriteString(`
CRITICAL STRICT MODE ENGAGED:
- PERFORM DEEP FORENSIC ANALYSIS.
- IGNORE artistic "vibe" or "mood".
- CLASSIFY the ARCHITECTURAL STYLE using professional terminology (e.g. "Brutalist", "Mid-Century Modern", "Parametric").
- IDENTIFY SPECIFIC MATERIALS (e.g. "Carrara Marble", "Polished Concrete", "Rift-Sawn Oak").
- IDENTIFY EXACT LIGHTING (e.g. "4000K Diffused", "Hard Noon Shadows", "Volumetric God Rays").
`)
	}

	b.WriteString(`
Your mission is to perform a PIXEL-PERFECT forensic analysis on this architectural image and extract its "Visual DNA".

CRITICAL: You are extracting the STYLE DNA to be applied to *other* floor plans.
Do NOT describe the room layout (e.g. "there is a bed").
DESCRIBE THE AESTHETIC RULES that make this image look the way it does.

OUTPUT FORMAT: JSON ONLY.

{
  "name": "Precise Architectural Style Name",
  "description": "Professional architectural specification of the visual style.",
  "base_prompt": "A master-level rendering prompt capturing the essence of this style.",
  "style_modifiers": ["list", "of", "10+", "highly", "specific", "visual", "attributes"],
  "materials_list": ["list", "of", "exact", "materials", "detected"],
  "lighting_setup": "Specific lighting instruction (e.g. 'Soft North Light with Warm Interior Accents')",
  "negative_prompt": "bad quality, blurry, text, watermark, distorted, extra walls, changing layout, hallucinated furniture",
  "color_palette": {
    "primary": "#Hex",
    "secondary": "#Hex",
    "accent": "#Hex",
    "material_1": "#Hex",
    "material_2": "#Hex"
  },
  "persona": "WRITE A SYSTEM INSTRUCTION FOR AN AI. TELL IT EXACTLY HOW TO RENDER LIKE THIS. Focus on: Camera settings, Render Engine (e.g. V-Ray, Octane), Lighting physics, and Material roughness."
}

DEEP DIVE ANALYSIS:
1. What IS this style? (Be specific).
2. What are the signature materials?
3. How is the scene lit? (Kelvin temp, softness, direction).
4. What is the color grading?
`)

	return b.String()
}
