// Package feature wraps decoded GeoJSON features with stable identities.
package feature

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/vtmaps/mapview/internal/style"
)

// Record is one geographic feature: a geometry plus a flat, name-keyed
// property map. The engine never mutates Properties.
type Record struct {
	ID         string
	Geometry   orb.Geometry
	Properties map[string]any
}

// Bound returns the feature's bounding box.
func (r *Record) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// Prop returns the named property value and whether it exists.
func (r *Record) Prop(name string) (any, bool) {
	v, ok := r.Properties[name]
	return v, ok
}

// PropString returns the named property as a normalized string, or "" when
// the feature lacks it.
func (r *Record) PropString(name string) (string, bool) {
	v, ok := r.Properties[name]
	if !ok {
		return "", false
	}
	return style.PropString(v), true
}

// DefaultIdentityFields is the identity derivation priority when a config
// does not name its own fields.
var DefaultIdentityFields = []string{"GEOID", "HYDROID", "id"}

// FromCollection converts a decoded feature collection into records,
// deriving each identity from the first populated field in the priority
// list. Features with no identity field get a synthetic positional ID so
// identities stay unique and stable for the collection's load lifetime.
func FromCollection(fc *geojson.FeatureCollection, identityFields []string) []*Record {
	if len(identityFields) == 0 {
		identityFields = DefaultIdentityFields
	}

	records := make([]*Record, 0, len(fc.Features))
	seen := make(map[string]int, len(fc.Features))

	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		props := map[string]any(f.Properties)
		if props == nil {
			props = map[string]any{}
		}

		id := deriveID(f, props, identityFields, i)
		// Duplicate source IDs would alias selection entries; disambiguate
		// with the occurrence count.
		if n, dup := seen[id]; dup {
			seen[id] = n + 1
			id = fmt.Sprintf("%s~%d", id, n+1)
		} else {
			seen[id] = 0
		}

		records = append(records, &Record{
			ID:         id,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return records
}

func deriveID(f *geojson.Feature, props map[string]any, fields []string, pos int) string {
	for _, name := range fields {
		if v, ok := props[name]; ok {
			if s := style.PropString(v); s != "" {
				return s
			}
		}
	}
	if f.ID != nil {
		if s := style.PropString(f.ID); s != "" {
			return s
		}
	}
	return fmt.Sprintf("feature-%d", pos)
}
