package tier

import "strings"

// Tier names the model/pricing bracket a generation runs under.
// Unknown values resolve to Free.
type Tier string

const (
	Free    Tier = "FREE"
	Mid     Tier = "MID"
	Premium Tier = "PREMIUM"
	Ultra   Tier = "ULTRA"
	Preview Tier = "PREVIEW"
)

// Sampling holds the generation sampling parameters for a tier.
// Paid tiers sample more deterministically to hold structural fidelity.
type Sampling struct {
	Temperature float64
	TopP        float64
	TopK        int
}

type Config struct {
	Tier            Tier
	AnalysisModel   string
	GenerationModel string
	RequiresBilling bool

	// DailyLimit of 0 means unlimited.
	DailyLimit int

	Sampling            Sampling
	EnforcementStrategy string

	Quality      string
	CostPerImage float64
}

// Repetition for the fast models, a reasoning audit for the pro ones.
const (
	enforceRepetition = `
STRATEGY: REPETITIVE REINFORCEMENT
- RULE REMINDER: Do not change the layout.
- RULE REMINDER: Do not add furniture.
- RULE REMINDER: Keep walls exactly where they are.
`

	enforceAudit = `
STRATEGY: STRUCTURAL AUDIT
- Act as a Structural Engineer.
- Step 1: Map the exact X/Y coordinates of all walls in the input.
- Step 2: Render the style ONLY within those existing boundaries.
- Step 3: Verify the output matches the input overlay exactly.
`
)

var configs = map[Tier]Config{
	Free: {
		Tier:                Free,
		AnalysisModel:       "gemini-2.5-flash",
		GenerationModel:     "gemini-2.5-flash-image",
		RequiresBilling:     false,
		DailyLimit:          100,
		Sampling:            Sampling{Temperature: 0.10, TopP: 0.70, TopK: 30},
		EnforcementStrategy: enforceRepetition,
		Quality:             "Standard (Unified)",
		CostPerImage:        0,
	},
	Mid: {
		Tier:                Mid,
		AnalysisModel:       "gemini-2.5-pro",
		GenerationModel:     "gemini-2.5-flash-image",
		RequiresBilling:     true,
		Sampling:            Sampling{Temperature: 0.08, TopP: 0.65, TopK: 25},
		EnforcementStrategy: enforceRepetition,
		Quality:             "High Fidelity",
		CostPerImage:        0.004,
	},
	Premium: {
		Tier:                Premium,
		AnalysisModel:       "gemini-2.5-pro",
		GenerationModel:     "gemini-3-pro-image-preview",
		RequiresBilling:     true,
		Sampling:            Sampling{Temperature: 0.05, TopP: 0.60, TopK: 20},
		EnforcementStrategy: enforceAudit,
		Quality:             "Professional",
		CostPerImage:        0.032,
	},
	Ultra: {
		Tier:                Ultra,
		AnalysisModel:       "gemini-3-pro-preview",
		GenerationModel:     "gemini-3-pro-image-preview",
		RequiresBilling:     true,
		Sampling:            Sampling{Temperature: 0.03, TopP: 0.50, TopK: 15},
		EnforcementStrategy: enforceAudit,
		Quality:             "State-of-the-Art",
		CostPerImage:        0.06,
	},
	Preview: {
		Tier:                Preview,
		AnalysisModel:       "gemini-2.0-flash-thinking-exp-1219",
		GenerationModel:     "imagen-4.0-ultra-generate-001",
		RequiresBilling:     true,
		Sampling:            Sampling{Temperature: 0.05, TopP: 0.60, TopK: 20},
		EnforcementStrategy: enforceAudit,
		Quality:             "Cutting Edge (Preview)",
		CostPerImage:        0.06,
	},
}

// Resolve maps a tier name to its config. Names are case-sensitive per the
// API contract; anything unrecognized (including "") falls back to FREE.
func Resolve(name string) Config {
	if cfg, ok := configs[Tier(name)]; ok {
		return cfg
	}
	return configs[Free]
}

// Known reports whether name is a recognized tier identifier.
func Known(name string) bool {
	_, ok := configs[Tier(name)]
	return ok
}

// All returns the tier configs in ascending price order.
func All() []Config {
	out := make([]Config, 0, len(configs))
	for _, t := range []Tier{Free, Mid, Premium, Ultra, Preview} {
		out = append(out, configs[t])
	}
	return out
}

// IsImagenModel reports whether a generation model name belongs to the
// Imagen family, which takes the dedicated generation path with fallback.
func IsImagenModel(model string) bool {
	return strings.Contains(model, "imagen")
}
