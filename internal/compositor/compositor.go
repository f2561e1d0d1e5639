// Package compositor loads layer feature collections and commits their
// paint in declared z-order.
package compositor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/feature"
	"github.com/vtmaps/mapview/internal/render"
	"github.com/vtmaps/mapview/internal/source"
	"github.com/vtmaps/mapview/internal/style"
)

// Compositor fetches layers, resolves per-feature styles, and emits paint
// commands to the sink.
type Compositor struct {
	fetcher        source.Fetcher
	sink           render.Sink
	identityFields []string
	log            *slog.Logger
}

// New creates a compositor. identityFields may be nil to use the default
// identity priority.
func New(fetcher source.Fetcher, sink render.Sink, identityFields []string, log *slog.Logger) *Compositor {
	if log == nil {
		log = slog.Default()
	}
	return &Compositor{
		fetcher:        fetcher,
		sink:           sink,
		identityFields: identityFields,
		log:            log,
	}
}

// Layer is one successfully loaded layer: its definition, render handles in
// feature order, and its bound.
type Layer struct {
	Def     config.LayerDefinition
	Handles []*render.Handle
	Bound   orb.Bound
}

// Result aggregates a LoadAll run. Failures maps layer ID to its load error;
// a failed layer contributes nothing to Layers or Bound.
type Result struct {
	Layers   []*Layer
	Failures map[string]error
	Bound    orb.Bound
	HasBound bool
}

// Layer returns the loaded layer with the given ID.
func (r *Result) Layer(id string) (*Layer, bool) {
	for _, l := range r.Layers {
		if l.Def.ID == id {
			return l, true
		}
	}
	return nil, false
}

// LoadLayer fetches one layer and commits its paint immediately. Use LoadAll
// when several layers must land in z-order.
func (c *Compositor) LoadLayer(ctx context.Context, def config.LayerDefinition) (*Layer, error) {
	layer, err := c.fetchLayer(ctx, def)
	if err != nil {
		return nil, err
	}
	c.commit(layer)
	return layer, nil
}

// LoadAll loads every definition: fetches run concurrently, but paint
// commits strictly in ascending z-order (declaration order breaks ties), so
// a fast later layer is buffered until every earlier layer has committed.
// Per-layer failures are recorded in the result and never abort the rest.
func (c *Compositor) LoadAll(ctx context.Context, defs []config.LayerDefinition) *Result {
	ordered := make([]config.LayerDefinition, len(defs))
	copy(ordered, defs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ZIndex < ordered[j].ZIndex
	})

	type outcome struct {
		layer *Layer
		err   error
	}
	// One buffered channel per layer is the commit barrier: goroutines
	// finish in any order, the commit loop drains them in z-order.
	done := make([]chan outcome, len(ordered))
	for i := range done {
		done[i] = make(chan outcome, 1)
	}

	var g errgroup.Group
	for i, def := range ordered {
		g.Go(func() error {
			layer, err := c.fetchLayer(ctx, def)
			done[i] <- outcome{layer: layer, err: err}
			return nil
		})
	}

	result := &Result{Failures: make(map[string]error)}
	for i, def := range ordered {
		out := <-done[i]
		if out.err != nil {
			c.log.Warn("layer load failed", "layer", def.ID, "err", out.err)
			result.Failures[def.ID] = out.err
			continue
		}
		c.commit(out.layer)
		result.Layers = append(result.Layers, out.layer)
		if len(out.layer.Handles) > 0 {
			if result.HasBound {
				result.Bound = result.Bound.Union(out.layer.Bound)
			} else {
				result.Bound = out.layer.Bound
				result.HasBound = true
			}
		}
		c.log.Info("layer loaded", "layer", def.ID, "features", len(out.layer.Handles))
	}
	g.Wait()
	return result
}

// fetchLayer retrieves and prepares a layer without touching the sink.
func (c *Compositor) fetchLayer(ctx context.Context, def config.LayerDefinition) (*Layer, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	fc, err := c.fetcher.Fetch(ctx, def.Source)
	if err != nil {
		return nil, err
	}

	// An empty collection is a valid zero-feature layer. It paints nothing
	// and contributes no bound.
	records := feature.FromCollection(fc, c.identityFields)

	layer := &Layer{Def: def}
	for i, rec := range records {
		h := &render.Handle{
			ID:      render.HandleID(def.ID + "/" + rec.ID),
			LayerID: def.ID,
			Feature: rec,
			Base:    style.Resolve(rec.Properties, def.Style),
		}
		layer.Handles = append(layer.Handles, h)
		if i == 0 {
			layer.Bound = rec.Bound()
		} else {
			layer.Bound = layer.Bound.Union(rec.Bound())
		}
	}
	return layer, nil
}

// commit pushes a prepared layer's paint and tooltips to the sink, in
// feature order.
func (c *Compositor) commit(layer *Layer) {
	for _, h := range layer.Handles {
		c.sink.Paint(h.ID, h.Base)
		if layer.Def.Tooltip != nil {
			c.sink.SetTooltip(h.ID, TooltipRows(h.Feature, layer.Def.Tooltip))
		}
	}
}

// TooltipRows builds a feature's tooltip content from the configured field
// list, in order, skipping fields the feature lacks.
func TooltipRows(rec *feature.Record, spec *config.TooltipSpec) []render.TooltipRow {
	var rows []render.TooltipRow
	for i, field := range spec.Fields {
		v, ok := rec.PropString(field)
		if !ok {
			continue
		}
		rows = append(rows, render.TooltipRow{Label: spec.Alias(i), Value: v})
	}
	return rows
}
