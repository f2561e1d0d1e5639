// Package config loads and validates declarative viewer configurations.
//
// A config is usually JSON (the viewer format) but YAML is accepted for
// hand-written files. Loading validates document-level shape; per-layer
// validation happens at layer construction so one bad layer never blocks
// the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vtmaps/mapview/internal/style"
)

// LayerDefinition describes one map layer: where its features come from and
// how they are painted. Immutable after load.
type LayerDefinition struct {
	ID          string      `json:"id" yaml:"id" doc:"Unique layer identifier" example:"vt_towns"`
	Name        string      `json:"name" yaml:"name" doc:"Display name" example:"Vermont Towns"`
	Source      string      `json:"source" yaml:"source" doc:"Source locator: file path, http(s) URL, or duckdb:<sql>"`
	ZIndex      int         `json:"zIndex" yaml:"zIndex" doc:"Paint rank; lower paints first" example:"1"`
	Interactive bool        `json:"interactive" yaml:"interactive" doc:"Whether features respond to clicks"`
	Style       style.Rule  `json:"style" yaml:"style" doc:"Style rule for this layer"`
	Tooltip     *TooltipSpec `json:"tooltip,omitempty" yaml:"tooltip,omitempty" doc:"Tooltip fields, in display order"`
}

// Validate reports whether the definition can be constructed.
func (d LayerDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: layer is missing an id", ErrConfiguration)
	}
	if d.Source == "" {
		return fmt.Errorf("%w: layer %q has no source", ErrConfiguration, d.ID)
	}
	switch d.Style.Type {
	case style.RuleStatic, style.RulePropertyRules, style.RuleColorMap:
	default:
		return fmt.Errorf("%w: layer %q has unknown style type %q", ErrConfiguration, d.ID, d.Style.Type)
	}
	if d.Tooltip != nil {
		if err := d.Tooltip.validate(d.ID); err != nil {
			return err
		}
	}
	return nil
}

// TooltipSpec lists the fields shown on hover as ordered field/alias pairs.
// Aliases may be shorter than Fields; missing aliases fall back to the
// field name.
type TooltipSpec struct {
	Fields  []string `json:"fields" yaml:"fields" doc:"Property names, in display order"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty" doc:"Display labels matching Fields"`
}

func (t *TooltipSpec) validate(layerID string) error {
	if len(t.Aliases) > len(t.Fields) {
		return fmt.Errorf("%w: layer %q tooltip has %d aliases for %d fields",
			ErrConfiguration, layerID, len(t.Aliases), len(t.Fields))
	}
	return nil
}

// Alias returns the display label for field index i.
func (t *TooltipSpec) Alias(i int) string {
	if i < len(t.Aliases) && t.Aliases[i] != "" {
		return t.Aliases[i]
	}
	return t.Fields[i]
}

// SelectionMode fixes single- vs multi-select semantics for a session.
type SelectionMode string

const (
	SingleSelect SelectionMode = "single"
	MultiSelect  SelectionMode = "multi"
)

// ExportFormat selects the shape of selection export payloads.
type ExportFormat string

const (
	// KeyedPair maps the first output field's value to the second's, one
	// entry per selected feature.
	KeyedPair ExportFormat = "keyedPair"
	// FullRecord emits a count plus every selected feature's complete
	// property map, in selection order.
	FullRecord ExportFormat = "fullRecord"
)

// SelectionSettings configure the click-to-select behavior.
type SelectionSettings struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" doc:"Whether click selection is active"`
	Mode           SelectionMode `json:"mode,omitempty" yaml:"mode,omitempty" enum:"single,multi" doc:"Selection mode" default:"multi"`
	Highlight      style.Attrs   `json:"highlight,omitempty" yaml:"highlight,omitempty" doc:"Style applied to selected features"`
	IdentityFields []string      `json:"identityFields,omitempty" yaml:"identityFields,omitempty" doc:"Property priority for feature identity"`
	OutputFields   []string      `json:"outputFields,omitempty" yaml:"outputFields,omitempty" doc:"Fields included in exports"`
	OutputFormat   ExportFormat  `json:"outputFormat,omitempty" yaml:"outputFormat,omitempty" enum:"keyedPair,fullRecord" doc:"Export payload shape"`
	Hover          *style.Attrs  `json:"hover,omitempty" yaml:"hover,omitempty" doc:"Emphasis style for unselected hover, passed through to the UI"`
}

// DefaultHighlight matches the deep-pink selection style of the original
// town maps.
var DefaultHighlight = style.Attrs{
	Fill:          "#ff1493",
	Stroke:        "#c90076",
	Weight:        2,
	FillOpacity:   0.8,
	StrokeOpacity: 1,
}

// MapSettings are presentational pass-through values for the UI.
type MapSettings struct {
	Center []float64 `json:"center,omitempty" yaml:"center,omitempty" doc:"Initial center [lat, lon]"`
	Zoom   int       `json:"zoom,omitempty" yaml:"zoom,omitempty" doc:"Initial zoom level"`
	Tiles  string    `json:"tiles,omitempty" yaml:"tiles,omitempty" doc:"Base tile set name"`
}

// Config is one viewer document: ordered layers plus selection and map
// settings.
type Config struct {
	ID        string            `json:"id,omitempty" yaml:"id,omitempty" doc:"Config identifier"`
	Title     string            `json:"title,omitempty" yaml:"title,omitempty" doc:"Map title"`
	Map       MapSettings       `json:"map,omitempty" yaml:"map,omitempty"`
	Layers    []LayerDefinition `json:"layers" yaml:"layers"`
	Selection SelectionSettings `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// ErrConfiguration marks invalid configuration input.
var ErrConfiguration = fmt.Errorf("invalid configuration")

// Load reads a config document from disk, by extension: .yaml/.yml parse as
// YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrConfiguration, filepath.Base(path), err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Selection.Mode == "" {
		c.Selection.Mode = MultiSelect
	}
	if c.Selection.OutputFormat == "" {
		c.Selection.OutputFormat = KeyedPair
	}
	if (c.Selection.Highlight == style.Attrs{}) {
		c.Selection.Highlight = DefaultHighlight
	}
}

// validate checks document-level shape only. Per-layer problems are left for
// layer construction so they stay isolated failures.
func (c *Config) validate() error {
	if len(c.Layers) == 0 {
		return fmt.Errorf("%w: no layers defined", ErrConfiguration)
	}
	switch c.Selection.Mode {
	case SingleSelect, MultiSelect:
	default:
		return fmt.Errorf("%w: unknown selection mode %q", ErrConfiguration, c.Selection.Mode)
	}
	switch c.Selection.OutputFormat {
	case KeyedPair, FullRecord:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrConfiguration, c.Selection.OutputFormat)
	}
	if c.Selection.OutputFormat == KeyedPair && c.Selection.Enabled && len(c.Selection.OutputFields) != 2 {
		return fmt.Errorf("%w: keyedPair output needs exactly two output fields, got %d",
			ErrConfiguration, len(c.Selection.OutputFields))
	}
	return nil
}

// Layer returns the definition with the given ID.
func (c *Config) Layer(id string) (LayerDefinition, bool) {
	for _, d := range c.Layers {
		if d.ID == id {
			return d, true
		}
	}
	return LayerDefinition{}, false
}
