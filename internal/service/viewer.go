// Package service contains the viewer session logic tying configuration,
// compositing, and selection together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vtmaps/mapview/internal/compositor"
	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/render"
	"github.com/vtmaps/mapview/internal/selection"
	"github.com/vtmaps/mapview/internal/source"
)

var (
	// ErrNotLoaded means Click or Reload ran before Load.
	ErrNotLoaded = errors.New("viewer not loaded")
	// ErrSelectionDisabled means the config turned click selection off.
	ErrSelectionDisabled = errors.New("selection is disabled")
	// ErrNotInteractive means the clicked layer does not accept clicks.
	ErrNotInteractive = errors.New("layer is not interactive")
)

// Viewer is one map session: a loaded config, its composed layers, and the
// selection state. All mutation goes through its methods.
type Viewer struct {
	cfg  *config.Config
	comp *compositor.Compositor
	sink *render.StateSink
	bus  *EventBus
	log  *slog.Logger

	mu      sync.RWMutex
	engine  *selection.Engine
	result  *compositor.Result
	handles map[render.HandleID]*render.Handle
}

// NewViewer wires a session. bus may be nil to skip event publishing.
func NewViewer(cfg *config.Config, fetcher source.Fetcher, bus *EventBus, log *slog.Logger) *Viewer {
	if log == nil {
		log = slog.Default()
	}
	sink := render.NewStateSink()
	v := &Viewer{
		cfg:     cfg,
		sink:    sink,
		bus:     bus,
		log:     log,
		handles: make(map[render.HandleID]*render.Handle),
	}
	v.comp = compositor.New(fetcher, sink, cfg.Selection.IdentityFields, log)
	v.engine = selection.NewEngine(cfg.Selection, sink, func(exp selection.Export) {
		v.publish(Event{Resource: "selection", Action: "changed", Payload: exp})
	})
	return v
}

// Load fetches and composes every configured layer. Per-layer failures are
// reported in the result, not returned as an error. Loading again starts
// from a clean slate: previous paint state and selections are discarded.
func (v *Viewer) Load(ctx context.Context) *compositor.Result {
	v.mu.Lock()
	if v.result != nil {
		v.engine.Reset()
		v.sink.Reset()
	}
	v.mu.Unlock()

	result := v.comp.LoadAll(ctx, v.cfg.Layers)

	v.mu.Lock()
	v.result = result
	v.handles = make(map[render.HandleID]*render.Handle)
	for _, layer := range result.Layers {
		for _, h := range layer.Handles {
			v.handles[h.ID] = h
		}
	}
	v.mu.Unlock()

	for _, layer := range result.Layers {
		v.publish(Event{Resource: "layer", Action: "loaded", ID: layer.Def.ID})
	}
	for id := range result.Failures {
		v.publish(Event{Resource: "layer", Action: "failed", ID: id})
	}
	return result
}

// Click processes an activation event for a feature, identified by its
// layer and in-layer feature ID.
func (v *Viewer) Click(layerID, featureID string) (selection.Export, error) {
	v.mu.RLock()
	loaded := v.result != nil
	h, ok := v.handles[render.HandleID(layerID+"/"+featureID)]
	v.mu.RUnlock()

	if !loaded {
		return selection.Export{}, ErrNotLoaded
	}
	if !v.cfg.Selection.Enabled {
		return selection.Export{}, ErrSelectionDisabled
	}
	if !ok {
		return selection.Export{}, fmt.Errorf("feature %s/%s not found", layerID, featureID)
	}

	def, ok := v.cfg.Layer(layerID)
	if !ok || !def.Interactive {
		return selection.Export{}, fmt.Errorf("%w: %s", ErrNotInteractive, layerID)
	}

	return v.engine.Activate(h), nil
}

// ClearAll deselects every feature regardless of mode.
func (v *Viewer) ClearAll() selection.Export {
	return v.engine.ClearAll()
}

// ReloadLayer refetches one layer. Selection entries referencing it are
// invalidated without restore: their render handles no longer exist.
func (v *Viewer) ReloadLayer(ctx context.Context, layerID string) error {
	v.mu.RLock()
	loaded := v.result != nil
	v.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}

	def, ok := v.cfg.Layer(layerID)
	if !ok {
		return fmt.Errorf("layer %q not found", layerID)
	}

	v.engine.InvalidateLayer(layerID)

	v.mu.Lock()
	if old, ok := v.result.Layer(layerID); ok {
		for _, h := range old.Handles {
			v.sink.Remove(h.ID)
			delete(v.handles, h.ID)
		}
	}
	v.mu.Unlock()

	layer, err := v.comp.LoadLayer(ctx, def)
	if err != nil {
		v.mu.Lock()
		v.dropLayerLocked(layerID)
		v.result.Failures[layerID] = err
		v.recomputeBoundLocked()
		v.mu.Unlock()
		v.publish(Event{Resource: "layer", Action: "failed", ID: layerID})
		return err
	}

	v.mu.Lock()
	v.dropLayerLocked(layerID)
	delete(v.result.Failures, layerID)
	v.result.Layers = append(v.result.Layers, layer)
	for _, h := range layer.Handles {
		v.handles[h.ID] = h
	}
	v.recomputeBoundLocked()
	v.mu.Unlock()

	v.restackAbove(layerID)

	v.publish(Event{Resource: "layer", Action: "reloaded", ID: layerID})
	return nil
}

// restackAbove re-raises every layer ranked above the reloaded one, in rank
// order, so the reloaded layer's paint lands at its z-position instead of on
// top of the stack. Selected features are raised again last to keep them
// above their layer's other features.
func (v *Viewer) restackAbove(layerID string) {
	ordered := make([]config.LayerDefinition, len(v.cfg.Layers))
	copy(ordered, v.cfg.Layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ZIndex < ordered[j].ZIndex
	})

	v.mu.RLock()
	past := false
	for _, def := range ordered {
		if def.ID == layerID {
			past = true
			continue
		}
		if !past {
			continue
		}
		if layer, ok := v.result.Layer(def.ID); ok {
			for _, h := range layer.Handles {
				v.sink.RaiseToFront(h.ID)
			}
		}
	}
	v.mu.RUnlock()

	for _, key := range v.engine.Selected() {
		v.sink.RaiseToFront(key)
	}
}

// dropLayerLocked removes a layer from the result slice. Must hold v.mu.
func (v *Viewer) dropLayerLocked(layerID string) {
	for i, l := range v.result.Layers {
		if l.Def.ID == layerID {
			v.result.Layers = append(v.result.Layers[:i], v.result.Layers[i+1:]...)
			return
		}
	}
}

// recomputeBoundLocked rebuilds the composite bound from the surviving
// layers. Must hold v.mu.
func (v *Viewer) recomputeBoundLocked() {
	v.result.HasBound = false
	for _, l := range v.result.Layers {
		if len(l.Handles) == 0 {
			continue
		}
		if v.result.HasBound {
			v.result.Bound = v.result.Bound.Union(l.Bound)
		} else {
			v.result.Bound = l.Bound
			v.result.HasBound = true
		}
	}
}

// Export returns the current selection payload without changing state.
func (v *Viewer) Export() selection.Export {
	return v.engine.Export()
}

// Config returns the session's configuration.
func (v *Viewer) Config() *config.Config {
	return v.cfg
}

// Result returns the most recent load result, or nil before Load.
func (v *Viewer) Result() *compositor.Result {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.result
}

// Sink exposes current paint state for the API layer.
func (v *Viewer) Sink() *render.StateSink {
	return v.sink
}

// Handle looks up a render handle by layer and feature ID.
func (v *Viewer) Handle(layerID, featureID string) (*render.Handle, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h, ok := v.handles[render.HandleID(layerID+"/"+featureID)]
	return h, ok
}

func (v *Viewer) publish(e Event) {
	if v.bus != nil {
		v.bus.Publish(e)
	}
}
