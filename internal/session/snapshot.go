package session

import (
	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"github.com/Michaelvilleneuve/windviz-go/internal/layer"
	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
)

// GridSummary describes the displayed wind field without its arrays.
type GridSummary struct {
	DatasetID    string        `json:"datasetId"`
	HeightMeters float64       `json:"heightMeters"`
	BBox         geometry.BBox `json:"bbox"`
	NX           int           `json:"nx"`
	NY           int           `json:"ny"`
	SpeedMin     float64       `json:"speedMin"`
	SpeedMax     float64       `json:"speedMax"`
}

func summarize(g *grid.WindField) *GridSummary {
	if g == nil {
		return nil
	}
	return &GridSummary{
		DatasetID:    g.DatasetID,
		HeightMeters: g.HeightMeters,
		BBox:         g.BBox,
		NX:           g.NX,
		NY:           g.NY,
		SpeedMin:     g.SpeedMin,
		SpeedMax:     g.SpeedMax,
	}
}

// Snapshot is an immutable copy of the session state, published after every
// change. Version increases with each publication.
type Snapshot struct {
	Version uint64 `json:"version"`

	DatasetID     string                  `json:"datasetId,omitempty"`
	Heights       []float64               `json:"availableHeightsMeters,omitempty"`
	HeightMeters  *float64                `json:"heightMeters,omitempty"`
	Resolution    api.Resolution          `json:"resolution"`
	Visualization layer.VisualizationType `json:"visualizationType"`

	Viewport   *geometry.BBox  `json:"viewport,omitempty"`
	Center     *geometry.Point `json:"center,omitempty"`
	Zoom       *float64        `json:"zoom,omitempty"`
	ExtentHint *geometry.BBox  `json:"extentHint,omitempty"`

	Loading  bool           `json:"loading"`
	Grid     *GridSummary   `json:"grid,omitempty"`
	Query    *api.WindQuery `json:"query,omitempty"`
	LayerID  string         `json:"layerId,omitempty"`
	Features int            `json:"features"`

	Date            string             `json:"date"`
	MinDate         string             `json:"minDate"`
	MaxDate         string             `json:"maxDate"`
	IntervalMinutes int                `json:"intervalMinutes"`
	Timesteps       []weather.Timestep `json:"timesteps"`
	CurrentIndex    int                `json:"currentIndex"`
	Current         *weather.Timestep  `json:"current,omitempty"`
	Playing         bool               `json:"playing"`
	Speed           float64            `json:"speed"`
}
