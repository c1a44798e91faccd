package style

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// storedStyle is the on-disk preset record. Field names match the layout
// the frontend presets were authored in, so the same JSON files keep
// working; normalization into Descriptor happens in one place here.
type storedStyle struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	GeneratedPrompt string   `json:"generated_prompt"`
	ActivePersona   string   `json:"active_persona"`
	LightingStyle   string   `json:"lighting_style"`
	LightingEngine  string   `json:"lighting_engine"`
	StyleModifiers  []string `json:"style_modifiers"`
	MaterialsList   []string `json:"materials_list"`
	HexPalette      []string `json:"hex_palette"`
	ColorPalette    Palette  `json:"color_palette_full,omitempty"`
}

type Category struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Styles      []string `json:"styles"`
}

type StoreOptions struct {
	// MainPath holds the shipped public presets; StagingPath holds
	// extracted/user-saved styles, hidden from public listings.
	MainPath    string
	StagingPath string
	Logger      *slog.Logger
}

// Store loads presets from the two JSON files and serves them through an
// in-memory cache. Saves go to the staging file only, then trigger a
// reload so every reader sees one consistent snapshot.
type Store struct {
	mu          sync.Mutex
	mainPath    string
	stagingPath string
	logger      *slog.Logger

	cache      *gocache.Cache
	publicIDs  []string
	categories map[string]Category
}

func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		mainPath:    opts.MainPath,
		stagingPath: opts.StagingPath,
		logger:      logger,
		cache:       gocache.New(gocache.NoExpiration, 10*time.Minute),
		categories:  map[string]Category{},
	}
	s.reload()
	return s
}

// Get resolves a descriptor by id, including staging styles.
func (s *Store) Get(id string) (*Descriptor, bool) {
	if v, ok := s.cache.Get(id); ok {
		d := v.(Descriptor)
		return &d, true
	}
	return nil, false
}

// All returns the public descriptors in a stable order.
func (s *Store) All() []*Descriptor {
	s.mu.Lock()
	ids := make([]string, len(s.publicIDs))
	copy(ids, s.publicIDs)
	s.mu.Unlock()

	out := make([]*Descriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.Get(id); ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Categories() map[string]Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Category, len(s.categories))
	for k, v := range s.categories {
		styles := make([]string, len(v.Styles))
		copy(styles, v.Styles)
		v.Styles = styles
		out[k] = v
	}
	return out
}

func (s *Store) ByCategory(name string) []*Descriptor {
	s.mu.Lock()
	cat, ok := s.categories[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	out := make([]*Descriptor, 0, len(cat.Styles))
	for _, id := range cat.Styles {
		if d, ok := s.Get(id); ok {
			out = append(out, d)
		}
	}
	return out
}

// Save writes a descriptor to the staging file and reloads. When the id is
// already taken a timestamp suffix keeps the new entry distinct.
func (s *Store) Save(d *Descriptor) (string, error) {
	d.Normalize()

	id := d.ID
	if id == "" {
		id = Slugify(d.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := map[string]storedStyle{}
	if raw, err := os.ReadFile(s.stagingPath); err == nil {
		if err := json.Unmarshal(raw, &staged); err != nil {
			return "", fmt.Errorf("staging file corrupt: %w", err)
		}
	}

	if _, exists := staged[id]; exists {
		id = fmt.Sprintf("%s_%d", id, time.Now().UnixMilli())
	}

	staged[id] = storedStyle{
		Title:           d.Name,
		Description:     d.Description,
		Category:        "User Created",
		GeneratedPrompt: d.BasePrompt,
		ActivePersona:   d.Persona,
		LightingStyle:   d.LightingSetup,
		StyleModifiers:  d.StyleModifiers,
		MaterialsList:   d.MaterialsList,
		HexPalette:      d.ColorPalette.Values(len(d.ColorPalette)),
		ColorPalette:    d.ColorPalette,
	}

	data, err := json.MarshalIndent(staged, "", "  ")
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(s.stagingPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(s.stagingPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write staging file: %w", err)
	}

	s.reloadLocked()
	s.logger.Info("style saved", "id", id, "staging", true)
	return id, nil
}

func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()
}

func (s *Store) reloadLocked() {
	s.cache.Flush()
	s.publicIDs = s.publicIDs[:0]
	s.categories = map[string]Category{}

	s.mergeFile(s.mainPath, false)
	s.mergeFile(s.stagingPath, true)

	for name, cat := range s.categories {
		sort.Strings(cat.Styles)
		s.categories[name] = cat
	}
	sort.Strings(s.publicIDs)
}

func (s *Store) mergeFile(path string, staging bool) {
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("style file unreadable", "path", path, "err", err)
		}
		return
	}

	var records map[string]storedStyle
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Error("style file corrupt", "path", path, "err", err)
		return
	}

	for id, rec := range records {
		d := normalizeStored(id, rec, staging)
		s.cache.Set(id, *d, gocache.NoExpiration)

		if staging {
			continue
		}
		s.publicIDs = append(s.publicIDs, id)

		cat, ok := s.categories[d.Category]
		if !ok {
			cat = Category{Name: d.Category, Description: d.Category + " Styles"}
		}
		cat.Styles = append(cat.Styles, id)
		s.categories[d.Category] = cat
	}
}

func normalizeStored(id string, rec storedStyle, staging bool) *Descriptor {
	palette := rec.ColorPalette
	if len(palette) == 0 {
		for i, hex := range rec.HexPalette {
			palette = append(palette, PaletteEntry{Slot: fmt.Sprintf("color_%d", i), Hex: hex})
		}
	}

	lighting := rec.LightingStyle
	if lighting == "" {
		lighting = rec.LightingEngine
	}

	name := rec.Title
	if name == "" {
		name = id
	}

	d := &Descriptor{
		ID:             id,
		Name:           name,
		Description:    rec.Description,
		BasePrompt:     rec.GeneratedPrompt,
		Persona:        rec.ActivePersona,
		StyleModifiers: rec.StyleModifiers,
		MaterialsList:  rec.MaterialsList,
		LightingSetup:  lighting,
		ColorPalette:   palette,
		Category:       rec.Category,
		Staging:        staging,
	}
	d.Normalize()
	return d
}
