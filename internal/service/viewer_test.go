package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/render"
	"github.com/vtmaps/mapview/internal/selection"
	"github.com/vtmaps/mapview/internal/source"
	"github.com/vtmaps/mapview/internal/style"
)

// mapFetcher serves collections from a map, counting fetches per locator.
type mapFetcher struct {
	collections map[string]*geojson.FeatureCollection
	errs        map[string]error
	fetches     map[string]int
}

func (m *mapFetcher) Fetch(ctx context.Context, locator string) (*geojson.FeatureCollection, error) {
	if m.fetches == nil {
		m.fetches = make(map[string]int)
	}
	m.fetches[locator]++
	if err, ok := m.errs[locator]; ok {
		return nil, err
	}
	if fc, ok := m.collections[locator]; ok {
		return fc, nil
	}
	return nil, fmt.Errorf("%w: unknown locator %s", source.ErrSourceLoad, locator)
}

func townCollection(geoids ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, id := range geoids {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i)})
		f.Properties = geojson.Properties{"GEOID": id, "NAME": "Town " + id}
		fc.Append(f)
	}
	return fc
}

func testConfig() *config.Config {
	return &config.Config{
		Title: "Test Map",
		Layers: []config.LayerDefinition{
			{
				ID: "towns", Name: "Towns", Source: "towns.geojson", ZIndex: 1,
				Interactive: true,
				Style:       style.Rule{Type: style.RuleStatic, Style: style.Attrs{Fill: "#66bb6a"}},
			},
			{
				ID: "boundary", Name: "State Boundary", Source: "boundary.geojson", ZIndex: 2,
				Style: style.Rule{Type: style.RuleStatic, Style: style.Attrs{Stroke: "#2c5f2d", Weight: 3}},
			},
		},
		Selection: config.SelectionSettings{
			Enabled:      true,
			Mode:         config.MultiSelect,
			Highlight:    config.DefaultHighlight,
			OutputFields: []string{"GEOID", "NAME"},
			OutputFormat: config.KeyedPair,
		},
	}
}

func newTestViewer(t *testing.T) (*Viewer, *mapFetcher) {
	t.Helper()
	fetcher := &mapFetcher{collections: map[string]*geojson.FeatureCollection{
		"towns.geojson":    townCollection("1", "2"),
		"boundary.geojson": townCollection("50"),
	}}
	v := NewViewer(testConfig(), fetcher, nil, nil)
	v.Load(context.Background())
	return v, fetcher
}

func TestClickTogglesSelection(t *testing.T) {
	v, _ := newTestViewer(t)

	exp, err := v.Click("towns", "1")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Count != 1 || exp.Pairs["1"] != "Town 1" {
		t.Fatalf("export=%+v, want one keyed pair", exp)
	}

	exp, err = v.Click("towns", "1")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Count != 0 {
		t.Fatalf("count=%d, want 0 after toggle off", exp.Count)
	}
}

func TestClickNonInteractiveLayer(t *testing.T) {
	v, _ := newTestViewer(t)
	if _, err := v.Click("boundary", "50"); !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("err=%v, want ErrNotInteractive", err)
	}
}

func TestClickUnknownFeature(t *testing.T) {
	v, _ := newTestViewer(t)
	if _, err := v.Click("towns", "999"); err == nil {
		t.Fatal("expected error for unknown feature")
	}
}

func TestClickBeforeLoad(t *testing.T) {
	fetcher := &mapFetcher{}
	v := NewViewer(testConfig(), fetcher, nil, nil)
	if _, err := v.Click("towns", "1"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err=%v, want ErrNotLoaded", err)
	}
}

func TestClickSelectionDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Selection.Enabled = false
	fetcher := &mapFetcher{collections: map[string]*geojson.FeatureCollection{
		"towns.geojson":    townCollection("1"),
		"boundary.geojson": townCollection("50"),
	}}
	v := NewViewer(cfg, fetcher, nil, nil)
	v.Load(context.Background())

	if _, err := v.Click("towns", "1"); !errors.Is(err, ErrSelectionDisabled) {
		t.Fatalf("err=%v, want ErrSelectionDisabled", err)
	}
}

func TestReloadInvalidatesSelection(t *testing.T) {
	v, fetcher := newTestViewer(t)

	if _, err := v.Click("towns", "1"); err != nil {
		t.Fatal(err)
	}
	if err := v.ReloadLayer(context.Background(), "towns"); err != nil {
		t.Fatal(err)
	}

	if exp := v.Export(); exp.Count != 0 {
		t.Fatalf("count=%d, want selection invalidated by reload", exp.Count)
	}
	if fetcher.fetches["towns.geojson"] != 2 {
		t.Fatalf("fetches=%d, want refetch on reload", fetcher.fetches["towns.geojson"])
	}

	// The reloaded layer's features are clickable again.
	if _, err := v.Click("towns", "1"); err != nil {
		t.Fatal(err)
	}
}

func TestReloadFailureDropsLayer(t *testing.T) {
	v, fetcher := newTestViewer(t)
	fetcher.errs = map[string]error{
		"towns.geojson": fmt.Errorf("%w: gone", source.ErrSourceLoad),
	}

	if err := v.ReloadLayer(context.Background(), "towns"); !errors.Is(err, source.ErrSourceLoad) {
		t.Fatalf("err=%v, want ErrSourceLoad", err)
	}

	result := v.Result()
	if _, ok := result.Layer("towns"); ok {
		t.Fatal("failed layer still in result")
	}
	if !errors.Is(result.Failures["towns"], source.ErrSourceLoad) {
		t.Fatalf("failures=%v, want towns recorded", result.Failures)
	}
	// Bound recomputed from the surviving boundary layer.
	if !result.HasBound {
		t.Fatal("bound lost entirely")
	}
	if result.Bound.Max != (orb.Point{0, 0}) {
		t.Fatalf("bound=%v, want boundary layer's bound", result.Bound)
	}
}

func TestReloadKeepsPaintOrder(t *testing.T) {
	v, _ := newTestViewer(t)

	if err := v.ReloadLayer(context.Background(), "towns"); err != nil {
		t.Fatal(err)
	}

	// Reloading the bottom layer must not leave it painted on top: higher
	// ranked layers are restacked above it.
	want := []render.HandleID{"towns/1", "towns/2", "boundary/50"}
	order := v.Sink().PaintOrder()
	if len(order) != len(want) {
		t.Fatalf("painted=%v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("painted=%v, want %v", order, want)
		}
	}
}

func TestReloadKeepsSelectionRaised(t *testing.T) {
	cfg := testConfig()
	cfg.Layers[1].Interactive = true
	fetcher := &mapFetcher{collections: map[string]*geojson.FeatureCollection{
		"towns.geojson":    townCollection("1", "2"),
		"boundary.geojson": townCollection("50", "51"),
	}}
	v := NewViewer(cfg, fetcher, nil, nil)
	v.Load(context.Background())

	if _, err := v.Click("boundary", "50"); err != nil {
		t.Fatal(err)
	}
	if err := v.ReloadLayer(context.Background(), "towns"); err != nil {
		t.Fatal(err)
	}

	order := v.Sink().PaintOrder()
	if got := order[len(order)-1]; got != "boundary/50" {
		t.Fatalf("top of stack=%v, want the selected feature to stay raised", got)
	}
	// The unselected boundary feature still sits above the reloaded layer.
	pos := map[render.HandleID]int{}
	for i, id := range order {
		pos[id] = i
	}
	if pos["boundary/51"] < pos["towns/2"] {
		t.Fatalf("paint order=%v, want boundary above reloaded towns", order)
	}
}

func TestLoadAgainResetsState(t *testing.T) {
	v, _ := newTestViewer(t)

	if _, err := v.Click("towns", "1"); err != nil {
		t.Fatal(err)
	}
	v.Load(context.Background())

	if exp := v.Export(); exp.Count != 0 {
		t.Fatalf("count=%d, want stale selection dropped on reload", exp.Count)
	}
	if order := v.Sink().PaintOrder(); len(order) != 3 {
		t.Fatalf("painted=%v, want only the fresh load's handles", order)
	}
	h, ok := v.Handle("towns", "1")
	if !ok {
		t.Fatal("handle missing after second load")
	}
	if attrs, _ := v.Sink().Current(h.ID); attrs != h.Base {
		t.Fatalf("paint=%+v, want base style, not a leftover highlight", attrs)
	}
}

func TestSelectionEventsPublished(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	fetcher := &mapFetcher{collections: map[string]*geojson.FeatureCollection{
		"towns.geojson":    townCollection("1"),
		"boundary.geojson": townCollection("50"),
	}}
	v := NewViewer(testConfig(), fetcher, bus, nil)
	v.Load(context.Background())

	// Drain the layer-loaded events.
	for len(ch) > 0 {
		<-ch
	}

	if _, err := v.Click("towns", "1"); err != nil {
		t.Fatal(err)
	}

	ev := <-ch
	if ev.Resource != "selection" || ev.Action != "changed" {
		t.Fatalf("event=%+v, want selection changed", ev)
	}
	exp, ok := ev.Payload.(selection.Export)
	if !ok || exp.Count != 1 {
		t.Fatalf("payload=%+v, want export with count 1", ev.Payload)
	}
}

func TestLoadIsolatesLayerFailure(t *testing.T) {
	fetcher := &mapFetcher{
		collections: map[string]*geojson.FeatureCollection{
			"towns.geojson": townCollection("1"),
		},
		errs: map[string]error{
			"boundary.geojson": fmt.Errorf("%w: refused", source.ErrSourceLoad),
		},
	}
	v := NewViewer(testConfig(), fetcher, nil, nil)
	result := v.Load(context.Background())

	if len(result.Layers) != 1 {
		t.Fatalf("loaded=%d, want towns only", len(result.Layers))
	}
	if _, err := v.Click("towns", "1"); err != nil {
		t.Fatalf("click on surviving layer failed: %v", err)
	}
}
