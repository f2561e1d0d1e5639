// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/vtmaps/mapview/internal/config"
	"github.com/vtmaps/mapview/internal/render"
	"github.com/vtmaps/mapview/internal/selection"
	"github.com/vtmaps/mapview/internal/service"
	"github.com/vtmaps/mapview/internal/style"
)

// Types

type LayerIDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"vt_towns"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// BoundBody is the composite viewport bound in lon/lat.
type BoundBody struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

func boundBody(b orb.Bound) *BoundBody {
	return &BoundBody{
		MinLon: b.Min[0], MinLat: b.Min[1],
		MaxLon: b.Max[0], MaxLat: b.Max[1],
	}
}

type LayerSummary struct {
	ID           string `json:"id" doc:"Layer identifier"`
	Name         string `json:"name" doc:"Display name"`
	ZIndex       int    `json:"zIndex" doc:"Paint rank"`
	Interactive  bool   `json:"interactive" doc:"Accepts clicks"`
	FeatureCount int    `json:"featureCount" doc:"Loaded feature count"`
	Error        string `json:"error,omitempty" doc:"Load failure, if any"`
}

type MapBody struct {
	Title     string                   `json:"title,omitempty" doc:"Map title"`
	Map       config.MapSettings       `json:"map,omitempty"`
	Selection config.SelectionSettings `json:"selection,omitempty"`
	Bound     *BoundBody               `json:"bound,omitempty" doc:"Composite bound of loaded layers"`
	Layers    []LayerSummary           `json:"layers"`
}

type PaintedFeature struct {
	Handle  string             `json:"handle" doc:"Render handle ID"`
	Feature string             `json:"feature" doc:"Feature identity within the layer"`
	Attrs   style.Attrs        `json:"attrs" doc:"Current paint attributes"`
	Tooltip []render.TooltipRow `json:"tooltip,omitempty" doc:"Hover content"`
}

type LayerFeaturesBody struct {
	Layer    string           `json:"layer"`
	Features []PaintedFeature `json:"features"`
}

type ClickInput struct {
	Body struct {
		Layer   string `json:"layer" required:"true" doc:"Layer ID" example:"vt_towns"`
		Feature string `json:"feature" required:"true" doc:"Feature identity" example:"5000166250"`
	}
}

type ExportOutput struct {
	Body selection.Export
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

// Handler holds the REST handlers for one viewer session.
type Handler struct {
	viewer *service.Viewer
}

func NewHandler(viewer *service.Viewer) *Handler {
	return &Handler{viewer: viewer}
}

// RegisterRoutes registers every viewer route.
func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/map", h.GetMap, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/features", h.GetLayerFeatures, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/{id}/reload", h.ReloadLayer, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/selection/click", h.Click, huma.OperationTags("selection"))
	huma.Post(api, "/api/v1/selection/clear", h.Clear, huma.OperationTags("selection"))
	huma.Get(api, "/api/v1/selection", h.GetSelection, huma.OperationTags("selection"))
}

// Handlers

func (h *Handler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *Handler) GetMap(ctx context.Context, input *struct{}) (*struct{ Body MapBody }, error) {
	cfg := h.viewer.Config()
	body := MapBody{
		Title:     cfg.Title,
		Map:       cfg.Map,
		Selection: cfg.Selection,
		Layers:    h.layerSummaries(),
	}
	if result := h.viewer.Result(); result != nil && result.HasBound {
		body.Bound = boundBody(result.Bound)
	}
	return &struct{ Body MapBody }{Body: body}, nil
}

func (h *Handler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body []LayerSummary }, error) {
	return &struct{ Body []LayerSummary }{Body: h.layerSummaries()}, nil
}

func (h *Handler) layerSummaries() []LayerSummary {
	cfg := h.viewer.Config()
	result := h.viewer.Result()

	summaries := make([]LayerSummary, 0, len(cfg.Layers))
	for _, def := range cfg.Layers {
		s := LayerSummary{
			ID:          def.ID,
			Name:        def.Name,
			ZIndex:      def.ZIndex,
			Interactive: def.Interactive,
		}
		if result != nil {
			if layer, ok := result.Layer(def.ID); ok {
				s.FeatureCount = len(layer.Handles)
			} else if err, ok := result.Failures[def.ID]; ok {
				s.Error = err.Error()
			}
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func (h *Handler) GetLayerFeatures(ctx context.Context, input *LayerIDInput) (*struct{ Body LayerFeaturesBody }, error) {
	result := h.viewer.Result()
	if result == nil {
		return nil, huma.Error503ServiceUnavailable("layers not loaded")
	}
	layer, ok := result.Layer(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}

	sink := h.viewer.Sink()
	body := LayerFeaturesBody{Layer: input.ID}
	for _, handle := range layer.Handles {
		attrs, _ := sink.Current(handle.ID)
		body.Features = append(body.Features, PaintedFeature{
			Handle:  string(handle.ID),
			Feature: handle.Feature.ID,
			Attrs:   attrs,
			Tooltip: sink.Tooltip(handle.ID),
		})
	}
	return &struct{ Body LayerFeaturesBody }{Body: body}, nil
}

func (h *Handler) ReloadLayer(ctx context.Context, input *LayerIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.viewer.ReloadLayer(ctx, input.ID); err != nil {
		if errors.Is(err, service.ErrNotLoaded) {
			return nil, huma.Error503ServiceUnavailable(err.Error())
		}
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer reloaded"}}, nil
}

func (h *Handler) Click(ctx context.Context, input *ClickInput) (*ExportOutput, error) {
	export, err := h.viewer.Click(input.Body.Layer, input.Body.Feature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotLoaded):
			return nil, huma.Error503ServiceUnavailable(err.Error())
		case errors.Is(err, service.ErrSelectionDisabled), errors.Is(err, service.ErrNotInteractive):
			return nil, huma.Error400BadRequest(err.Error())
		default:
			return nil, huma.Error404NotFound(err.Error())
		}
	}
	return &ExportOutput{Body: export}, nil
}

func (h *Handler) Clear(ctx context.Context, input *struct{}) (*ExportOutput, error) {
	return &ExportOutput{Body: h.viewer.ClearAll()}, nil
}

func (h *Handler) GetSelection(ctx context.Context, input *struct{}) (*ExportOutput, error) {
	return &ExportOutput{Body: h.viewer.Export()}, nil
}
