// Package compose builds the layered generation instruction. Everything in
// here is pure text assembly: same input, byte-identical output.
package compose

import (
	"fmt"
	"strings"

	"github.com/Snoopiam/mqt/internal/style"
)

// UnifiedNegativePrompt is the baseline exclusion list appended to every
// composed prompt regardless of style.
const UnifiedNegativePrompt = `low quality, blurry, distorted, structural errors,
missing walls, extra walls, changed layout,
furniture swapping, floating objects, impossible geometry,
watermark, text, signature, sketch, drawing,
hand-drawn, cartoon, anime, painting,
messy, clutter, broken lines, incorrect perspective,
bad lighting, shadows, noise, grain, artifacts`

// GroundRules is the non-negotiable constitution: structural elements are
// immutable, inventory is exact, and the two conflict-resolution rulings
// (ghost objects, orphaned objects) decide every style-vs-layout clash.
const GroundRules = `*** MQT UNIVERSAL CONSTITUTION (ABSOLUTE LAWS) ***
1. STRUCTURAL INTEGRITY: Walls, columns, and posts are IMMUTABLE. You cannot move or remove them.
2. OPENINGS & PORTALS: Doors and windows are FIXED.
   - Keep exact width and position.
   - Maintain door swing direction exactly as drawn.
3. FIXED SYSTEMS: Kitchen islands, toilets, sinks, and showers are "STRUCTURE", not "FURNITURE". They must remain exactly where they are.
4. INVENTORY FIDELITY:
   - Exact Count: If the plan has 1 bed, render 1 bed.
   - Exact Shape: An L-shaped sofa must remain L-shaped.
5. NEGATIVE SPACE: Empty floor space is a design feature. Do NOT fill empty corners with "staging" (plants, lamps) unless drawn.
6. OUTDOOR BOUNDARIES: Balconies and terraces must remain OPEN. Do not glaze them over unless drawn as windows.

*** CONFLICT RESOLUTION PROTOCOLS ***
7. GHOST OBJECTS (Style > Layout):
   - CASE: Style Description mentions an object (e.g., "Grand Fireplace", "Bookshelves", "Rug") but the Input Layout does NOT show it.
   - RULING: IGNORE THE OBJECT. Do not hallucinate it. Apply the style's *materials* (brick, wood, wool) to existing surfaces instead.
8. ORPHANED OBJECTS (Layout > Style):
   - CASE: Input Layout shows an object (e.g., "Piano", "Workbench") but the Style Preset does not mention it.
   - RULING: ADAPT & OUTFIT. You MUST render the object. Texture it using the palette of the selected style (e.g., a "Minimalist Piano" or "Rustic Workbench").`

// defaultDirective is used when no style descriptor is supplied.
const defaultDirective = `CRITICAL INSTRUCTION: You are a professional 3D architectural visualizer.
Your TOP PRIORITY is strictly maintaining the structural geometry and FURNITURE LAYOUT of the provided floor plan.

STRICT RULES:
1. **VIEWPOINT**: Generate a **TOP-DOWN ORTHOGRAPHIC** render. Match the camera angle of the input image exactly.
2. **NO STRUCTURAL CHANGES**: Do NOT add, remove, or move walls, windows, or doors.
3. **NO FURNITURE SWAPPING**: If the plan shows a Bed, render a Bed. If it shows a Sofa, render a Sofa. Do NOT turn bedrooms into living rooms.
4. **BALCONIES/OUTDOORS**: Identify open boundaries. Do NOT enclose balconies with walls.
5. **EXACT MATCH**: The 3D view must be an exact 1:1 overlay of the 2D layout.
6. **NO HALLUCINATIONS**: Do not add clutter, people, or objects not present in the sketch.

If the prompt asks for a style, apply the *materials and lighting* of that style, but DO NOT change the *geometry or furniture placement*.`

// Refinement carries the feedback from a prior comparison into the next
// generation attempt.
type Refinement struct {
	Attempt       int
	PreviousScore int
	Issues        []string
	Keepers       []string
	AIAnalysis    string
	Suggestions   []string
}

// Input is everything the composer consumes. Style and Refinement are
// optional; EnforcementStrategy comes from the resolved tier.
type Input struct {
	StructuralAnalysis  string
	Style               *style.Descriptor
	EnforcementStrategy string
	Refinement          *Refinement
	UserPrompt          string
	NegativePrompt      string
}

// Compose assembles the full instruction text. No I/O, no clock, no
// randomness: callers rely on determinism for caching and testing.
func Compose(in Input) string {
	var b strings.Builder
	b.Grow(8192)

	if in.Refinement != nil {
		writeRefinement(&b, in.Refinement)
	}

	if in.Style != nil {
		writeStyleBlock(&b, in.Style)
	} else {
		b.WriteString(defaultDirective)
		b.WriteString("\n\n")
	}

	b.WriteString("#############################################################\n")
	b.WriteString("#  STRUCTURAL CONSTRAINTS (DO NOT VIOLATE)                  #\n")
	b.WriteString("#############################################################\n\n")
	b.WriteString(GroundRules)
	b.WriteString("\n\n")

	b.WriteString("FLOOR PLAN STRUCTURE (PRESERVE EXACTLY):\n")
	b.WriteString(in.StructuralAnalysis)
	b.WriteString("\n")

	b.WriteString(in.EnforcementStrategy)
	b.WriteString("\n#############################################################\n\n")

	userPrompt := strings.TrimSpace(in.UserPrompt)
	if userPrompt == "" {
		if in.Style != nil {
			userPrompt = "Render this floor plan with the exact style DNA specified above."
		} else {
			userPrompt = "Create a clean architectural visualization."
		}
	}
	fmt.Fprintf(&b, "USER REQUEST: %s\n\n", userPrompt)

	b.WriteString("NEGATIVE CONSTRAINTS (STRICTLY AVOID):\n")
	if extra := strings.TrimSpace(in.NegativePrompt); extra != "" {
		b.WriteString(extra)
		b.WriteString(",\n")
	}
	b.WriteString(UnifiedNegativePrompt)
	b.WriteString("\n\n")

	if in.Style != nil {
		b.WriteString("CRITICAL: The output image MUST look like it was rendered using the EXACT specifications above. Match the style DNA precisely - same materials, same lighting, same color grading, same aesthetic.\n")
	} else {
		b.WriteString("Render the visualization maintaining EXACT layout fidelity.\n")
	}

	return b.String()
}

func writeRefinement(b *strings.Builder, r *Refinement) {
	b.WriteString("##############################################################\n")
	fmt.Fprintf(b, "#  CRITICAL: REFINEMENT ATTEMPT #%d\n", r.Attempt)
	b.WriteString("##############################################################\n\n")
	b.WriteString("THE PREVIOUS GENERATION WAS NOT SATISFACTORY. YOU MUST CHANGE YOUR APPROACH.\n\n")
	fmt.Fprintf(b, "PREVIOUS SCORE: %d/100\n\n", r.PreviousScore)

	b.WriteString("WHAT WENT WRONG (FIX THESE):\n")
	writeList(b, "- ", r.Issues, "- No specific issues identified")
	b.WriteString("\n")

	b.WriteString("AI ANALYSIS OF FAILURE:\n")
	if strings.TrimSpace(r.AIAnalysis) != "" {
		b.WriteString(r.AIAnalysis)
	} else {
		b.WriteString("No analysis provided")
	}
	b.WriteString("\n\n")

	b.WriteString("SUGGESTIONS TO TRY:\n")
	writeList(b, "- ", r.Suggestions, "- Try a different interpretation of the style")
	b.WriteString("\n")

	b.WriteString("WHAT WORKED (KEEP THESE):\n")
	writeList(b, "+ ", r.Keepers, "+ Continue with the general approach")
	b.WriteString("\n")

	b.WriteString(`YOUR TASK: Generate a NEW visualization that:
1. FIXES the issues listed above
2. KEEPS the attributes that matched
3. TRIES A DIFFERENT APPROACH for the problematic areas
4. Achieves a HIGHER match score

DO NOT simply regenerate the same image. ACTIVELY ADJUST your rendering strategy.
##############################################################

`)
}

func writeStyleBlock(b *strings.Builder, d *style.Descriptor) {
	b.WriteString("#############################################################\n")
	b.WriteString("#  ABSOLUTE PRIORITY: STYLE DNA RENDERING INSTRUCTIONS      #\n")
	b.WriteString("#############################################################\n\n")

	// Persona and base prompt collapse into one rendering directive so the
	// model never has to reconcile two competing instruction voices.
	directive := strings.TrimSpace(strings.Join(nonEmpty(d.BasePrompt, d.Persona), "\n\n"))
	if directive != "" {
		b.WriteString("*** THIS IS YOUR EXACT RENDERING SPECIFICATION - FOLLOW EVERY DETAIL ***\n\n")
		b.WriteString(directive)
		b.WriteString("\n\n*** END OF RENDERING SPECIFICATION ***\n\n")
	}

	name := d.Name
	if name == "" {
		name = "Modern"
	}
	description := d.Description
	if description == "" {
		description = "contemporary design"
	}
	fmt.Fprintf(b, "STYLE: %q\nDESCRIPTION: %s\n\n", name, description)

	b.WriteString("VISUAL ATTRIBUTES TO MATCH EXACTLY:\n")
	writeList(b, "• ", d.StyleModifiers, "• Standard modern aesthetic")
	b.WriteString("\n")

	b.WriteString("MATERIALS TO USE:\n")
	writeList(b, "• ", d.Materials(), "• Standard materials")
	b.WriteString("\n")

	fmt.Fprintf(b, "LIGHTING: %s\n\n", d.LightingSetup)
	fmt.Fprintf(b, "COLOR PALETTE: %s\n\n", strings.Join(d.ColorPalette.Values(5), ", "))
}

func writeList(b *strings.Builder, bullet string, items []string, fallback string) {
	wrote := false
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		b.WriteString(bullet)
		b.WriteString(item)
		b.WriteString("\n")
		wrote = true
	}
	if !wrote {
		b.WriteString(fallback)
		b.WriteString("\n")
	}
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
