// Package selection tracks the clicked-feature set and builds export
// payloads.
package selection

import (
	"sync"

	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/render"
)

// Export is the structured selection payload sent after every transition.
// Pairs is set for the keyedPair format, Records for fullRecord.
type Export struct {
	Format  config.ExportFormat `json:"format" doc:"Payload shape"`
	Count   int                 `json:"count" doc:"Number of selected features"`
	Pairs   map[string]string   `json:"pairs,omitempty" doc:"Key-field value to value-field value"`
	Records []map[string]any    `json:"records,omitempty" doc:"Full property maps in selection order"`
}

// entry is one selected feature: identity key plus non-owning references to
// the feature and its render handle.
type entry struct {
	key    render.HandleID
	handle *render.Handle
}

// Engine is the click-driven selection state machine. Each feature is either
// Unselected or Selected; a feature is Selected exactly when its current
// paint is the highlight style rather than its resolved base style.
//
// All transitions are atomic from the caller's perspective: the mutex covers
// both the registry change and the paint commands.
type Engine struct {
	mu       sync.Mutex
	settings config.SelectionSettings
	sink     render.Sink
	onExport func(Export)

	entries []*entry // selection-insertion order
	byKey   map[render.HandleID]*entry
}

// NewEngine creates an engine painting through sink. onExport, if non-nil,
// receives the export payload after every transition.
func NewEngine(settings config.SelectionSettings, sink render.Sink, onExport func(Export)) *Engine {
	return &Engine{
		settings: settings,
		sink:     sink,
		onExport: onExport,
		byKey:    make(map[render.HandleID]*entry),
	}
}

// Activate handles a click on a feature. A selected feature toggles back to
// its base style; an unselected one gets the highlight style and, in single
// mode, first forces every other selection off.
func (e *Engine) Activate(h *render.Handle) Export {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, selected := e.byKey[h.ID]; selected {
		e.remove(h.ID, true)
		return e.emit()
	}

	if e.settings.Mode == config.SingleSelect {
		for len(e.entries) > 0 {
			e.remove(e.entries[0].key, true)
		}
	}

	ent := &entry{key: h.ID, handle: h}
	e.entries = append(e.entries, ent)
	e.byKey[h.ID] = ent
	e.sink.Paint(h.ID, e.settings.Highlight)
	e.sink.RaiseToFront(h.ID)
	return e.emit()
}

// ClearAll deselects everything, restoring each feature's base style.
func (e *Engine) ClearAll() Export {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.entries) > 0 {
		e.remove(e.entries[0].key, true)
	}
	return e.emit()
}

// InvalidateLayer drops every selection entry referencing the layer without
// repainting: on reload the old render handles no longer exist.
func (e *Engine) InvalidateLayer(layerID string) Export {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := 0; i < len(e.entries); {
		if e.entries[i].handle.LayerID == layerID {
			e.remove(e.entries[i].key, false)
		} else {
			i++
		}
	}
	return e.emit()
}

// Reset drops every entry without repainting or exporting. Used when the
// whole render state is being rebuilt and the old handles no longer exist.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = nil
	e.byKey = make(map[render.HandleID]*entry)
}

// Selected returns the selected handle IDs in insertion order.
func (e *Engine) Selected() []render.HandleID {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]render.HandleID, len(e.entries))
	for i, ent := range e.entries {
		keys[i] = ent.key
	}
	return keys
}

// Export builds the current payload without changing state.
func (e *Engine) Export() Export {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.export()
}

// remove must hold the mutex. restore repaints the feature's base style;
// invalidation passes false because the handle is already gone.
func (e *Engine) remove(key render.HandleID, restore bool) {
	ent, ok := e.byKey[key]
	if !ok {
		return
	}
	delete(e.byKey, key)
	for i, cand := range e.entries {
		if cand.key == key {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			break
		}
	}
	if restore {
		// Base came out of the pure resolver at load time, so repainting it
		// is the same as re-resolving the feature's rule.
		e.sink.Paint(ent.handle.ID, ent.handle.Base)
	}
}

// emit builds the payload and notifies the export callback. Must hold the
// mutex.
func (e *Engine) emit() Export {
	exp := e.export()
	if e.onExport != nil {
		e.onExport(exp)
	}
	return exp
}

// export must hold the mutex.
func (e *Engine) export() Export {
	exp := Export{Format: e.settings.OutputFormat, Count: len(e.entries)}

	switch e.settings.OutputFormat {
	case config.KeyedPair:
		// Exactly two output fields: key property -> value property. A
		// feature missing either field is silently excluded. Duplicate keys
		// are last-written-wins in insertion order; that mirrors the
		// observed viewer behavior and may lose data (flagged upstream).
		exp.Pairs = make(map[string]string)
		if len(e.settings.OutputFields) == 2 {
			kf, vf := e.settings.OutputFields[0], e.settings.OutputFields[1]
			for _, ent := range e.entries {
				k, okK := ent.handle.Feature.PropString(kf)
				v, okV := ent.handle.Feature.PropString(vf)
				if !okK || !okV {
					continue
				}
				exp.Pairs[k] = v
			}
		}

	case config.FullRecord:
		exp.Records = make([]map[string]any, 0, len(e.entries))
		for _, ent := range e.entries {
			exp.Records = append(exp.Records, ent.handle.Feature.Properties)
		}
	}
	return exp
}
