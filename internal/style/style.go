// Package style resolves declarative style rules into paint attributes.
package style

import (
	"fmt"
	"strconv"
)

// Attrs are the paint attributes for one rendered feature.
type Attrs struct {
	Fill          string  `json:"fill,omitempty" yaml:"fill,omitempty" doc:"Fill color (CSS)" example:"#3388ff"`
	Stroke        string  `json:"stroke,omitempty" yaml:"stroke,omitempty" doc:"Border color (CSS)" example:"#2266cc"`
	Weight        float64 `json:"weight,omitempty" yaml:"weight,omitempty" doc:"Border weight in pixels" example:"1.5"`
	FillOpacity   float64 `json:"fillOpacity,omitempty" yaml:"fillOpacity,omitempty" minimum:"0" maximum:"1" doc:"Fill opacity (0-1)"`
	StrokeOpacity float64 `json:"strokeOpacity,omitempty" yaml:"strokeOpacity,omitempty" minimum:"0" maximum:"1" doc:"Border opacity (0-1)"`
}

// RuleType selects the style rule variant.
type RuleType string

const (
	RuleStatic        RuleType = "static"
	RulePropertyRules RuleType = "propertyRules"
	RuleColorMap      RuleType = "colorMap"
)

// Override is a property/value predicate carrying a complete style. When a
// rule has one, a matching feature gets the override style regardless of
// what the rule's base variant would produce.
type Override struct {
	Property string `json:"property" yaml:"property" doc:"Property name to test"`
	Equals   string `json:"equals" yaml:"equals" doc:"Value that triggers the override"`
	Style    Attrs  `json:"style" yaml:"style" doc:"Full style applied on match"`
}

// Rule is a layer's declarative style policy. Exactly one variant is active,
// selected by Type; Special may be set on any variant.
type Rule struct {
	Type RuleType `json:"type" yaml:"type" enum:"static,propertyRules,colorMap" doc:"Rule variant"`

	// Static variant.
	Style Attrs `json:"style,omitempty" yaml:"style,omitempty" doc:"Fixed attributes (static)"`

	// Property the propertyRules and colorMap variants key on.
	Property string `json:"property,omitempty" yaml:"property,omitempty" doc:"Property name to match on"`

	// PropertyRules variant: exact property value -> full attributes.
	Rules map[string]Attrs `json:"rules,omitempty" yaml:"rules,omitempty" doc:"Exact-match style table"`

	// ColorMap variant: property value -> fill color. Border, weight, and
	// opacity come from the rule-level fields below; Fill is the fallback
	// color for unmapped values.
	ColorMap      map[string]string `json:"colorMap,omitempty" yaml:"colorMap,omitempty" doc:"Property value to fill color"`
	Fill          string            `json:"fill,omitempty" yaml:"fill,omitempty" doc:"Fallback fill for unmapped values"`
	Stroke        string            `json:"stroke,omitempty" yaml:"stroke,omitempty" doc:"Border color for colorMap entries"`
	Weight        float64           `json:"weight,omitempty" yaml:"weight,omitempty" doc:"Border weight for colorMap entries"`
	FillOpacity   float64           `json:"fillOpacity,omitempty" yaml:"fillOpacity,omitempty" doc:"Fill opacity for colorMap entries"`
	StrokeOpacity float64           `json:"strokeOpacity,omitempty" yaml:"strokeOpacity,omitempty" doc:"Border opacity for colorMap entries"`

	Special *Override `json:"special,omitempty" yaml:"special,omitempty" doc:"Override evaluated before all other tiers"`
}

// Fallback is the style used when no rule tier matches a feature. A
// resolution miss is visual degradation, never an error.
var Fallback = Attrs{
	Fill:          "#cccccc",
	Stroke:        "#666666",
	Weight:        1,
	FillOpacity:   0.4,
	StrokeOpacity: 0.8,
}

// Resolve maps a feature's properties to paint attributes. It is pure and
// deterministic: calling it twice with the same inputs yields identical
// attributes, which is what makes deselection-restore correct.
//
// Tiers, highest priority first: the rule's Special override, an exact
// propertyRules match, a colorMap lookup (rule-level fill for unmapped
// values), then the package Fallback.
func Resolve(props map[string]any, rule Rule) Attrs {
	if rule.Special != nil {
		if v, ok := props[rule.Special.Property]; ok && PropString(v) == rule.Special.Equals {
			return rule.Special.Style
		}
	}

	switch rule.Type {
	case RuleStatic:
		return rule.Style

	case RulePropertyRules:
		if v, ok := props[rule.Property]; ok {
			if attrs, ok := rule.Rules[PropString(v)]; ok {
				return attrs
			}
		}

	case RuleColorMap:
		fill := rule.Fill
		if v, ok := props[rule.Property]; ok {
			if mapped, ok := rule.ColorMap[PropString(v)]; ok {
				fill = mapped
			}
		}
		if fill != "" {
			return Attrs{
				Fill:          fill,
				Stroke:        rule.Stroke,
				Weight:        rule.Weight,
				FillOpacity:   rule.FillOpacity,
				StrokeOpacity: rule.StrokeOpacity,
			}
		}
	}

	return Fallback
}

// PropString normalizes a property value for table lookups and export keys.
// GeoJSON numbers decode as float64, so integers format without a trailing
// ".0".
func PropString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
