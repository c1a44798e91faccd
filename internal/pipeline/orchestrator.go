package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Snoopiam/mqt/internal/compose"
	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/tier"
	"github.com/Snoopiam/mqt/internal/vision"
)

// structuralAnalysisPrompt drives the first remote call. The explicit
// "state EMPTY" instruction is the anchor that keeps generation from
// staging furniture into rooms the plan leaves bare.
const structuralAnalysisPrompt = `CRITICAL: Perform a PRECISE FORENSIC STRUCTURAL ANALYSIS of this floor plan image.
Your analysis will be used to generate a visualization that MUST match this layout EXACTLY.

REQUIRED ANALYSIS:

1. WALL GEOMETRY:
   - List every wall segment with approximate position (e.g., "north wall from corner A to corner B")
   - Note wall thickness where visible
   - Identify interior vs exterior walls

2. OPENINGS:
   - Count and locate ALL doors (e.g., "Door 1: bedroom to hallway, south wall")
   - Count and locate ALL windows (e.g., "Window 1: living room, west wall")
   - Note door swing direction if visible

3. ROOM IDENTIFICATION:
   - List each room by function (bedroom, living room, kitchen, bathroom, etc.)
   - Note approximate room dimensions if labeled
   - Identify open-plan areas vs enclosed rooms

4. FURNITURE INVENTORY (CRITICAL - BE EXACT):
   - List ONLY furniture that is EXPLICITLY DRAWN in the image
   - Use format: "Room X contains: [item 1], [item 2], ..."
   - If a room appears EMPTY, state "Room X: EMPTY - no furniture drawn"
   - DO NOT assume or add furniture that is not clearly visible

5. TERRACE/BALCONY/OUTDOOR:
   - Identify any outdoor spaces
   - Note if they are enclosed or open

6. VIEWPOINT: Confirm the camera angle (typically top-down orthographic)

OUTPUT FORMAT: Provide a structured, factual inventory. This analysis will be used to ensure the rendered visualization matches the input EXACTLY.`

// VisionModel is the slice of the vision client the pipeline consumes.
type VisionModel interface {
	Analyze(ctx context.Context, model, instruction string, images ...vision.ImageInput) (string, error)
	Generate(ctx context.Context, model, instruction string, images []vision.ImageInput, cfg vision.SamplingConfig) (vision.Result, error)
}

type Options struct {
	Vision VisionModel
	Usage  tier.UsageLimiter
	Logger *slog.Logger

	// DefaultTier is the process-configured tier; requests may override.
	DefaultTier string

	// Global model overrides; empty means "use the tier's model".
	AnalysisModelOverride   string
	GenerationModelOverride string
}

// Orchestrator runs the full floor-plan pipeline: structural analysis,
// prompt composition, tier-aware generation with one fallback.
type Orchestrator struct {
	vm          VisionModel
	usage       tier.UsageLimiter
	logger      *slog.Logger
	defaultTier string
	analysisOv  string
	generateOv  string
}

func NewOrchestrator(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	usage := opts.Usage
	if usage == nil {
		usage = tier.NewDailyCounter()
	}
	return &Orchestrator{
		vm:          opts.Vision,
		usage:       usage,
		logger:      logger,
		defaultTier: opts.DefaultTier,
		analysisOv:  opts.AnalysisModelOverride,
		generateOv:  opts.GenerationModelOverride,
	}
}

type Request struct {
	Image          vision.ImageInput
	UserPrompt     string
	Style          *style.Descriptor
	NegativePrompt string
	TierOverride   string
	Refinement     *compose.Refinement
}

type Metadata struct {
	ProcessingTime    time.Duration `json:"processing_time_ms"`
	ModelTier         string        `json:"model_tier"`
	AnalysisModel     string        `json:"analysis_model"`
	GenerationModel   string        `json:"generation_model"`
	PromptUsed        string        `json:"prompt_used"`
	FloorPlanAnalysis string        `json:"floor_plan_analysis"`
}

type Result struct {
	Image    []byte
	MimeType string
	Metadata Metadata
}

// generation path states; see runGeneration.
type genStage int

const (
	stagePrimary genStage = iota
	stageFallback
	stageStandard
)

// ResolveTier returns the effective tier config for an optional override.
// Unknown overrides silently fall back to the process default.
func (o *Orchestrator) ResolveTier(override string) tier.Config {
	if tier.Known(override) {
		return tier.Resolve(override)
	}
	return tier.Resolve(o.defaultTier)
}

// Remaining reports generations left today under the given tier, or -1
// when unlimited. An unknown name falls back to the process default.
func (o *Orchestrator) Remaining(override string) int {
	return o.usage.Remaining(o.ResolveTier(override).Tier)
}

// Generate runs the pipeline. The usage counter is checked up front and
// incremented only after a successful generation.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	cfg := o.ResolveTier(req.TierOverride)
	if !o.usage.CheckLimit(cfg.Tier) {
		return nil, fmt.Errorf("%w: tier %s allows %d per day", ErrRateLimited, cfg.Tier, cfg.DailyLimit)
	}

	analysisModel := cfg.AnalysisModel
	if o.analysisOv != "" {
		analysisModel = o.analysisOv
	}

	o.logger.Info("analyzing floor plan", "model", analysisModel, "tier", cfg.Tier)
	analysis, err := o.vm.Analyze(ctx, analysisModel, structuralAnalysisPrompt, req.Image)
	if err != nil {
		o.logger.Error("structural analysis failed", "tier", cfg.Tier, "model", analysisModel, "stage", "analysis", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	prompt := compose.Compose(compose.Input{
		StructuralAnalysis:  analysis,
		Style:               req.Style,
		EnforcementStrategy: cfg.EnforcementStrategy,
		Refinement:          req.Refinement,
		UserPrompt:          req.UserPrompt,
		NegativePrompt:      req.NegativePrompt,
	})

	generationModel := cfg.GenerationModel
	if o.generateOv != "" {
		generationModel = o.generateOv
	}

	image, mimeType, err := o.runGeneration(ctx, cfg, generationModel, prompt, req)
	if err != nil {
		return nil, err
	}

	o.usage.Increment(cfg.Tier)

	duration := time.Since(start)
	o.logger.Info("generation complete", "tier", cfg.Tier, "model", generationModel, "dur_ms", duration.Milliseconds())

	return &Result{
		Image:    image,
		MimeType: mimeType,
		Metadata: Metadata{
			ProcessingTime:    duration,
			ModelTier:         string(cfg.Tier),
			AnalysisModel:     analysisModel,
			GenerationModel:   generationModel,
			PromptUsed:        truncate(prompt, 200),
			FloorPlanAnalysis: truncate(analysis, 150),
		},
	}, nil
}

// runGeneration walks the {Primary, Fallback, Standard} path. Imagen-family
// models get a direct attempt first; on failure exactly one fallback runs
// against the FREE tier's model. The standard path is terminal: any error
// or missing image payload there is GenerationFailed.
func (o *Orchestrator) runGeneration(ctx context.Context, cfg tier.Config, model, prompt string, req Request) ([]byte, string, error) {
	stage := stageStandard
	if tier.IsImagenModel(model) {
		stage = stagePrimary
	}

	for {
		switch stage {
		case stagePrimary:
			res, err := o.vm.Generate(ctx, model, prompt, nil, vision.SamplingConfig{})
			if err != nil {
				// Only a remote failure earns the one fallback retry; an
				// imageless success falls through to the standard path.
				o.logger.Error("primary generation failed", "tier", cfg.Tier, "model", model, "stage", "primary", "err", err)
				stage = stageFallback
				continue
			}
			if len(res.ImageData) > 0 {
				return res.ImageData, res.MimeType, nil
			}
			stage = stageStandard

		case stageFallback:
			fallbackModel := tier.Resolve(string(tier.Free)).GenerationModel
			fallbackPrompt := "Generate an architectural visualization from this floor plan. " + prompt

			res, err := o.vm.Generate(ctx, fallbackModel, fallbackPrompt, []vision.ImageInput{req.Image}, vision.SamplingConfig{
				ResponseModalities: []string{"TEXT", "IMAGE"},
			})
			if err == nil && len(res.ImageData) > 0 {
				o.logger.Info("fallback generation succeeded", "model", fallbackModel)
				return res.ImageData, res.MimeType, nil
			}
			// Fallback errors are absorbed; the standard path decides.
			o.logger.Error("fallback generation failed", "tier", cfg.Tier, "model", fallbackModel, "stage", "fallback", "err", err)
			stage = stageStandard

		case stageStandard:
			imagePrompt := buildImagePrompt(prompt, req.Style)

			res, err := o.vm.Generate(ctx, model, imagePrompt, []vision.ImageInput{req.Image}, vision.SamplingConfig{
				Temperature:        cfg.Sampling.Temperature,
				TopP:               cfg.Sampling.TopP,
				TopK:               cfg.Sampling.TopK,
				MaxOutputTokens:    8192,
				ResponseModalities: []string{"TEXT", "IMAGE"},
			})
			if err != nil {
				o.logger.Error("generation failed", "tier", cfg.Tier, "model", model, "stage", "standard", "err", err)
				return nil, "", fmt.Errorf("%w: model %s: %v", ErrGenerationFailed, model, err)
			}
			if len(res.ImageData) == 0 {
				o.logger.Error("generation returned no image", "tier", cfg.Tier, "model", model, "stage", "standard")
				return nil, "", fmt.Errorf("%w: model %s did not produce image output", ErrGenerationFailed, model)
			}
			return res.ImageData, res.MimeType, nil
		}
	}
}

func buildImagePrompt(prompt string, d *style.Descriptor) string {
	renderInstruction := "Generate a high-fidelity architectural visualization image."
	if d != nil && d.NonPhotorealistic() {
		renderInstruction = "Generate a stylized architectural visualization matching the described style aesthetic."
	}

	return fmt.Sprintf(`CRITICAL: Generate an image that EXACTLY matches the input floor plan layout.

%s

%s

FINAL REMINDER: The generated image MUST preserve ALL walls, doors, windows, and furniture positions from the input floor plan. Do NOT add or remove ANY elements.`, prompt, renderInstruction)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
