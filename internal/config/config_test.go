package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vtmaps/mapview/internal/style"
)

const viewerJSON = `{
  "id": "vt_towns",
  "title": "Vermont Towns",
  "map": {"center": [44.0, -72.7], "zoom": 8, "tiles": "CartoDB"},
  "layers": [
    {
      "id": "towns",
      "name": "Vermont Towns",
      "source": "vt_towns.geojson",
      "zIndex": 1,
      "interactive": true,
      "style": {
        "type": "colorMap",
        "property": "county_name",
        "colorMap": {"Addison": "#66bb6a"},
        "fill": "#cccccc",
        "stroke": "#2c5f2d",
        "weight": 1,
        "fillOpacity": 0.4
      },
      "tooltip": {"fields": ["NAME", "county_name"], "aliases": ["Town:", "County:"]}
    }
  ],
  "selection": {
    "enabled": true,
    "outputFields": ["GEOID", "NAME"]
  }
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "viewer.json", viewerJSON))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Title != "Vermont Towns" {
		t.Fatalf("title=%q, want Vermont Towns", cfg.Title)
	}
	if len(cfg.Layers) != 1 || cfg.Layers[0].ID != "towns" {
		t.Fatalf("layers=%+v, want one towns layer", cfg.Layers)
	}
	if cfg.Layers[0].Style.Type != style.RuleColorMap {
		t.Fatalf("style type=%q, want colorMap", cfg.Layers[0].Style.Type)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "viewer.json", viewerJSON))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Selection.Mode != MultiSelect {
		t.Fatalf("mode=%q, want multi default", cfg.Selection.Mode)
	}
	if cfg.Selection.OutputFormat != KeyedPair {
		t.Fatalf("format=%q, want keyedPair default", cfg.Selection.OutputFormat)
	}
	if cfg.Selection.Highlight != DefaultHighlight {
		t.Fatalf("highlight=%+v, want default deep pink", cfg.Selection.Highlight)
	}
}

func TestLoadYAML(t *testing.T) {
	yamlDoc := `
title: Rivers
layers:
  - id: rivers
    name: Rivers
    source: rivers.geojson
    zIndex: 2
    style:
      type: static
      style:
        stroke: "#3498db"
        weight: 2
  - id: counties
    name: Counties
    source: counties.geojson
    zIndex: 1
    style:
      type: colorMap
      property: county_name
      colorMap:
        Addison: "#66bb6a"
      fillOpacity: 0.4
selection:
  enabled: true
  outputFields: [GEOID, NAME]
  highlight:
    fill: "#ff1493"
    fillOpacity: 0.8
`
	cfg, err := Load(writeConfig(t, "viewer.yaml", yamlDoc))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Layers[0].Style.Style.Stroke != "#3498db" {
		t.Fatalf("stroke=%q, want #3498db", cfg.Layers[0].Style.Style.Stroke)
	}

	// Multi-word keys must survive the YAML path too, not only JSON.
	counties := cfg.Layers[1].Style
	if counties.ColorMap["Addison"] != "#66bb6a" {
		t.Fatalf("colorMap=%v, want Addison entry", counties.ColorMap)
	}
	if counties.FillOpacity != 0.4 {
		t.Fatalf("fillOpacity=%v, want 0.4", counties.FillOpacity)
	}
	if cfg.Selection.Highlight.FillOpacity != 0.8 {
		t.Fatalf("highlight fillOpacity=%v, want 0.8", cfg.Selection.Highlight.FillOpacity)
	}
}

func TestLoadRejectsBadDocument(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"no layers":         `{"layers": []}`,
		"bad keyedPair":     `{"layers":[{"id":"a","source":"a.geojson","style":{"type":"static"}}],"selection":{"enabled":true,"outputFormat":"keyedPair","outputFields":["GEOID"]}}`,
		"bad output format": `{"layers":[{"id":"a","source":"a.geojson","style":{"type":"static"}}],"selection":{"outputFormat":"csv"}}`,
	}
	for name, doc := range cases {
		if _, err := Load(writeConfig(t, "viewer.json", doc)); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: err=%v, want ErrConfiguration", name, err)
		}
	}
}

func TestLayerValidate(t *testing.T) {
	good := LayerDefinition{ID: "a", Source: "a.geojson", Style: style.Rule{Type: style.RuleStatic}}
	if err := good.Validate(); err != nil {
		t.Fatal(err)
	}

	cases := []LayerDefinition{
		{Source: "a.geojson", Style: style.Rule{Type: style.RuleStatic}},              // no id
		{ID: "a", Style: style.Rule{Type: style.RuleStatic}},                         // no source
		{ID: "a", Source: "a.geojson", Style: style.Rule{Type: "gradient"}},          // unknown rule
		{ID: "a", Source: "a.geojson", Style: style.Rule{Type: style.RuleStatic},     // aliases > fields
			Tooltip: &TooltipSpec{Fields: []string{"NAME"}, Aliases: []string{"a", "b"}}},
	}
	for i, def := range cases {
		if err := def.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("case %d: err=%v, want ErrConfiguration", i, err)
		}
	}
}

func TestTooltipAlias(t *testing.T) {
	spec := TooltipSpec{Fields: []string{"NAME", "MTFCC"}, Aliases: []string{"Road:"}}
	if got := spec.Alias(0); got != "Road:" {
		t.Fatalf("alias=%q, want Road:", got)
	}
	if got := spec.Alias(1); got != "MTFCC" {
		t.Fatalf("alias=%q, want field-name fallback", got)
	}
}
