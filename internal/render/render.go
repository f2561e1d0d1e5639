// Package render defines the boundary to the presentation substrate: render
// handles, paint commands, and the sink that receives them.
package render

import (
	"sync"

	"github.com/vtmaps/mapview/internal/feature"
	"github.com/vtmaps/mapview/internal/style"
)

// HandleID identifies one painted feature within a load lifetime.
type HandleID string

// Handle is the compositor's render handle for one feature: a non-owning
// reference the selection engine repaints through. Base is the feature's
// resolved style; the current paint equals Base exactly when the feature is
// unselected.
type Handle struct {
	ID      HandleID
	LayerID string
	Feature *feature.Record
	Base    style.Attrs
}

// TooltipRow is one alias/value line of tooltip content.
type TooltipRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Sink receives paint commands. Implementations must tolerate calls from
// the compositor's commit goroutine and the click path.
type Sink interface {
	// Paint sets a handle's current attributes.
	Paint(h HandleID, attrs style.Attrs)
	// RaiseToFront moves a handle above its layer's other features.
	RaiseToFront(h HandleID)
	// SetTooltip registers hover content for a handle.
	SetTooltip(h HandleID, rows []TooltipRow)
	// Remove drops a handle, e.g. on layer reload.
	Remove(h HandleID)
}

// StateSink retains current paint state so it can be queried, both by the
// HTTP API and by tests asserting on what was painted.
type StateSink struct {
	mu       sync.RWMutex
	paints   map[HandleID]style.Attrs
	tooltips map[HandleID][]TooltipRow
	order    []HandleID // paint-commit order; raised handles move to the end
}

func NewStateSink() *StateSink {
	return &StateSink{
		paints:   make(map[HandleID]style.Attrs),
		tooltips: make(map[HandleID][]TooltipRow),
	}
}

func (s *StateSink) Paint(h HandleID, attrs style.Attrs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paints[h]; !ok {
		s.order = append(s.order, h)
	}
	s.paints[h] = attrs
}

func (s *StateSink) RaiseToFront(h HandleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.order {
		if id == h {
			s.order = append(append(append([]HandleID{}, s.order[:i]...), s.order[i+1:]...), h)
			return
		}
	}
}

func (s *StateSink) SetTooltip(h HandleID, rows []TooltipRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tooltips[h] = rows
}

func (s *StateSink) Remove(h HandleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paints, h)
	delete(s.tooltips, h)
	for i, id := range s.order {
		if id == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Reset drops all retained paint state, e.g. before a full re-load.
func (s *StateSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paints = make(map[HandleID]style.Attrs)
	s.tooltips = make(map[HandleID][]TooltipRow)
	s.order = nil
}

// Current returns the handle's present paint attributes.
func (s *StateSink) Current(h HandleID) (style.Attrs, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.paints[h]
	return attrs, ok
}

// Tooltip returns the handle's registered tooltip rows.
func (s *StateSink) Tooltip(h HandleID) []TooltipRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tooltips[h]
}

// PaintOrder returns handle IDs in commit order, raised handles last.
func (s *StateSink) PaintOrder() []HandleID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HandleID, len(s.order))
	copy(out, s.order)
	return out
}

var _ Sink = (*StateSink)(nil)
