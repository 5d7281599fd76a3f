// Package preset loads the calendar presets embedded in the binary.
package preset

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hylla/flexcal/internal/app"
	"github.com/hylla/flexcal/internal/domain"
	"github.com/hylla/flexcal/internal/schedule"
)

//go:embed presets/*.yaml
var embedded embed.FS

// DefaultKey names the preset used by `flexcal seed`.
const DefaultKey = "sample"

// ErrUnknownPreset reports a preset key with no embedded definition.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is one embedded calendar definition.
type Preset struct {
	Key               string  `yaml:"key"`
	Name              string  `yaml:"name"`
	Description       string  `yaml:"description"`
	TotalDays         int     `yaml:"total_days"`
	IncludeWeekends   bool    `yaml:"include_weekends"`
	IncludeExceptions bool    `yaml:"include_exceptions"`
	Layers            []Layer `yaml:"layers"`
}

// Layer is a preset layer plus its optional explicit template items.
type Layer struct {
	Key                      string   `yaml:"key"`
	Name                     string   `yaml:"name"`
	Color                    string   `yaml:"color"`
	Description              string   `yaml:"description"`
	ChainBehavior            string   `yaml:"chain_behavior"`
	AutoShift                *bool    `yaml:"auto_shift"`
	Kind                     string   `yaml:"kind"`
	RespectsGlobalExceptions *bool    `yaml:"respects_global_exceptions"`
	Template                 Template `yaml:"template"`
	Items                    []Item   `yaml:"items"`
}

type Template struct {
	Mode         string `yaml:"mode"`
	ItemCount    int    `yaml:"item_count"`
	TitlePattern string `yaml:"title_pattern"`
}

type Item struct {
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	DurationDays int    `yaml:"duration_days"`
}

// List returns every embedded preset sorted by key.
func List() ([]Preset, error) {
	entries, err := fs.ReadDir(embedded, "presets")
	if err != nil {
		return nil, fmt.Errorf("read embedded presets: %w", err)
	}
	out := make([]Preset, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		p, err := load(path.Join("presets", entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Load returns the preset stored under key.
func Load(key string) (Preset, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = DefaultKey
	}
	p, err := load(path.Join("presets", key+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, key)
		}
		return Preset{}, err
	}
	return p, nil
}

// Parse decodes one preset document and validates its layers.
func Parse(data []byte) (Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("decode preset yaml: %w", err)
	}
	p.Key = strings.ToLower(strings.TrimSpace(p.Key))
	if p.Key == "" {
		return Preset{}, errors.New("preset key is required")
	}
	if len(p.Layers) == 0 {
		return Preset{}, fmt.Errorf("preset %q: at least one layer is required", p.Key)
	}
	for _, layer := range p.Layers {
		if _, err := domain.NewLayer(layer.input()); err != nil {
			return Preset{}, fmt.Errorf("preset %q layer %q: %w", p.Key, layer.Key, err)
		}
	}
	return p, nil
}

// CreateInput converts the preset into a calendar creation request. An empty name
// keeps the preset name.
func (p Preset) CreateInput(name string, start *time.Time) app.CreateCalendarInput {
	if strings.TrimSpace(name) == "" {
		name = p.Name
	}
	includeWeekends := p.IncludeWeekends
	includeExceptions := p.IncludeExceptions
	in := app.CreateCalendarInput{
		Name:                 name,
		PresetKey:            p.Key,
		StartDate:            start,
		TotalDays:            p.TotalDays,
		IncludeWeekends:      &includeWeekends,
		IncludeExceptions:    &includeExceptions,
		Layers:               make([]domain.LayerInput, 0, len(p.Layers)),
		TemplateItemsByLayer: map[string][]schedule.TemplateItem{},
	}
	for _, layer := range p.Layers {
		li := layer.input()
		in.Layers = append(in.Layers, li)
		if len(layer.Items) == 0 {
			continue
		}
		items := make([]schedule.TemplateItem, 0, len(layer.Items))
		for _, it := range layer.Items {
			items = append(items, schedule.TemplateItem{
				Title:        it.Title,
				Description:  it.Description,
				DurationDays: it.DurationDays,
			})
		}
		in.TemplateItemsByLayer[domain.NormalizeLayerKey(layer.Key)] = items
	}
	return in
}

func (l Layer) input() domain.LayerInput {
	return domain.LayerInput{
		Key:                      l.Key,
		Name:                     l.Name,
		Color:                    l.Color,
		Description:              l.Description,
		ChainBehavior:            l.ChainBehavior,
		AutoShift:                l.AutoShift,
		Kind:                     l.Kind,
		RespectsGlobalExceptions: l.RespectsGlobalExceptions,
		Template: domain.LayerTemplate{
			Mode:         domain.TemplateMode(l.Template.Mode),
			ItemCount:    l.Template.ItemCount,
			TitlePattern: l.Template.TitlePattern,
		},
	}
}

func load(name string) (Preset, error) {
	data, err := embedded.ReadFile(name)
	if err != nil {
		return Preset{}, err
	}
	p, err := Parse(data)
	if err != nil {
		return Preset{}, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}
