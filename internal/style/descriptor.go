package style

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultNegativePrompt is applied when a descriptor carries no exclusion
// list of its own.
const DefaultNegativePrompt = "text, watermark, low quality, blurred, distorted structure, swapping furniture, wrong room types, extra walls, missing doors"

// Descriptor is the canonical "Style DNA" record. Extraction output, stored
// presets, and user-supplied custom styles are all normalized into this one
// shape at the ingestion boundary; downstream code never sees field aliases.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// BasePrompt is the master rendering instruction fragment; Persona is
	// the "how to render" directive (camera, engine, lighting physics).
	BasePrompt string `json:"base_prompt"`
	Persona    string `json:"persona"`

	StyleModifiers []string `json:"style_modifiers"`
	MaterialsList  []string `json:"materials_list"`
	LightingSetup  string   `json:"lighting_setup"`
	ColorPalette   Palette  `json:"color_palette"`
	NegativePrompt string   `json:"negative_prompt"`
	Category       string   `json:"category"`

	// Staging styles are resolvable by id but hidden from public listings.
	Staging bool `json:"-"`
}

// Normalize fills defaults and trims free-text fields in place.
func (d *Descriptor) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.BasePrompt = strings.TrimSpace(d.BasePrompt)
	d.Persona = strings.TrimSpace(d.Persona)
	d.LightingSetup = strings.TrimSpace(d.LightingSetup)

	if d.LightingSetup == "" {
		d.LightingSetup = "Standard ambient lighting"
	}
	if strings.TrimSpace(d.NegativePrompt) == "" {
		d.NegativePrompt = DefaultNegativePrompt
	}
	if d.Category == "" {
		d.Category = "Uncategorized"
	}
}

// Materials returns the explicit materials list, falling back to the first
// five palette slot names when none was extracted.
func (d *Descriptor) Materials() []string {
	if len(d.MaterialsList) > 0 {
		return d.MaterialsList
	}
	slots := make([]string, 0, 5)
	for _, e := range d.ColorPalette {
		if len(slots) == 5 {
			break
		}
		slots = append(slots, e.Slot)
	}
	return slots
}

// NonPhotorealistic reports whether the style asks for a drawn/diagrammatic
// aesthetic rather than a photoreal render; the final render instruction
// differs for these.
func (d *Descriptor) NonPhotorealistic() bool {
	haystack := strings.ToLower(d.Name + " " + d.Description + " " + d.LightingSetup)
	for _, marker := range []string{"sketch", "wireframe", "blueprint", "draft", "plan view", "ink", "graphite", "iso"} {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

// PaletteEntry is one named color slot. Palette preserves insertion order,
// which a plain map cannot, so prompt composition stays deterministic.
type PaletteEntry struct {
	Slot string
	Hex  string
}

type Palette []PaletteEntry

// Values returns up to n hex values in palette order.
func (p Palette) Values(n int) []string {
	out := make([]string, 0, n)
	for _, e := range p {
		if len(out) == n {
			break
		}
		out = append(out, e.Hex)
	}
	return out
}

func (p Palette) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Slot)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Hex)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Palette) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("color palette must be a JSON object")
	}

	var out Palette
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		out = append(out, PaletteEntry{Slot: key, Hex: val})
	}

	*p = out
	return nil
}

var (
	idMu     sync.Mutex
	lastIDms int64
)

// NewID derives a descriptor id from the style name plus the current
// timestamp. A process-local monotonic bump keeps ids distinct even when
// two extractions land on the same millisecond.
func NewID(name string) string {
	idMu.Lock()
	defer idMu.Unlock()

	ms := time.Now().UnixMilli()
	if ms <= lastIDms {
		ms = lastIDms + 1
	}
	lastIDms = ms

	return fmt.Sprintf("%s_%d", Slugify(name), ms)
}

// Slugify lowercases the name and collapses anything outside [a-z0-9] into
// underscores.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "style"
	}
	return out
}
