package domain

import (
	"slices"
	"strings"
)

// ChainBehavior controls whether moving one item cascades to the rest of its layer.
type ChainBehavior string

const (
	ChainLinked      ChainBehavior = "linked"
	ChainIndependent ChainBehavior = "independent"
)

// LayerKind separates real work tracks from blackout-marker tracks.
type LayerKind string

const (
	LayerKindStandard  LayerKind = "standard"
	LayerKindException LayerKind = "exception"
)

// TemplateMode selects how a layer is populated when a calendar is created.
type TemplateMode string

const (
	TemplateGenerated TemplateMode = "generated"
	TemplateManual    TemplateMode = "manual"
)

var (
	validChainBehaviors = []ChainBehavior{ChainLinked, ChainIndependent}
	validLayerKinds     = []LayerKind{LayerKindStandard, LayerKindException}
	validTemplateModes  = []TemplateMode{TemplateGenerated, TemplateManual}
)

// LayerTemplate describes item generation for one layer.
type LayerTemplate struct {
	Mode         TemplateMode
	ItemCount    int
	TitlePattern string
}

// Layer is one named track inside a calendar.
type Layer struct {
	Key                      string
	Name                     string
	Color                    string
	Description              string
	ChainBehavior            ChainBehavior
	Kind                     LayerKind
	RespectsGlobalExceptions bool
	Template                 LayerTemplate
}

// LayerInput holds input values for layer construction. AutoShift and
// RespectsGlobalExceptions are pointers so absent legacy fields keep their defaults.
type LayerInput struct {
	Key                      string
	Name                     string
	Color                    string
	Description              string
	ChainBehavior            string
	AutoShift                *bool
	Kind                     string
	RespectsGlobalExceptions *bool
	Template                 LayerTemplate
}

// NewLayer validates and normalizes one layer definition.
func NewLayer(in LayerInput) (Layer, error) {
	key := NormalizeLayerKey(in.Key)
	if key == "" {
		return Layer{}, ErrInvalidLayerKey
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Layer{}, ErrInvalidName
	}
	chain, err := NormalizeChainBehavior(in.ChainBehavior, in.AutoShift)
	if err != nil {
		return Layer{}, err
	}
	kind, err := NormalizeLayerKind(in.Kind)
	if err != nil {
		return Layer{}, err
	}
	template, err := normalizeTemplate(in.Template)
	if err != nil {
		return Layer{}, err
	}
	respects := true
	if in.RespectsGlobalExceptions != nil {
		respects = *in.RespectsGlobalExceptions
	}

	return Layer{
		Key:                      key,
		Name:                     name,
		Color:                    strings.TrimSpace(in.Color),
		Description:              strings.TrimSpace(in.Description),
		ChainBehavior:            chain,
		Kind:                     kind,
		RespectsGlobalExceptions: respects,
		Template:                 template,
	}, nil
}

// IsException reports whether the layer holds blackout markers.
func (l Layer) IsException() bool {
	return l.Kind == LayerKindException
}

// IsLinked reports whether moving one item cascades through the layer.
func (l Layer) IsLinked() bool {
	return l.ChainBehavior != ChainIndependent
}

// NormalizeLayerKey canonicalizes one layer key.
func NormalizeLayerKey(key string) string {
	return strings.TrimSpace(key)
}

// NormalizeChainBehavior maps explicit and legacy chain settings onto the canonical enum.
// An explicit value wins; otherwise autoShift=false means independent and anything else linked.
func NormalizeChainBehavior(raw string, autoShift *bool) (ChainBehavior, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw != "" {
		chain := ChainBehavior(raw)
		if !slices.Contains(validChainBehaviors, chain) {
			return "", ErrInvalidChainBehavior
		}
		return chain, nil
	}
	if autoShift != nil && !*autoShift {
		return ChainIndependent, nil
	}
	return ChainLinked, nil
}

// NormalizeLayerKind maps an optional kind string onto the canonical enum.
func NormalizeLayerKind(raw string) (LayerKind, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return LayerKindStandard, nil
	}
	kind := LayerKind(raw)
	if !slices.Contains(validLayerKinds, kind) {
		return "", ErrInvalidLayerKind
	}
	return kind, nil
}

func normalizeTemplate(in LayerTemplate) (LayerTemplate, error) {
	mode := TemplateMode(strings.ToLower(strings.TrimSpace(string(in.Mode))))
	if mode == "" {
		mode = TemplateGenerated
	}
	if !slices.Contains(validTemplateModes, mode) {
		return LayerTemplate{}, ErrInvalidTemplateMode
	}
	if in.ItemCount < 0 {
		return LayerTemplate{}, ErrInvalidTotalDays
	}
	return LayerTemplate{
		Mode:         mode,
		ItemCount:    in.ItemCount,
		TitlePattern: strings.TrimSpace(in.TitlePattern),
	}, nil
}
