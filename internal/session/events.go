package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/layer"
	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
)

// Event is a state change requested from outside the loop. Events are
// applied one at a time on the loop goroutine.
type Event interface {
	apply(ctx context.Context, s *Session) error
}

// SetViewport reports a settled map move. Center defaults to the middle of
// BBox; maps in web mercator should pass their own.
type SetViewport struct {
	BBox   geometry.BBox
	Center *geometry.Point
	Zoom   *float64
}

func (e SetViewport) apply(ctx context.Context, s *Session) error {
	if err := e.BBox.Validate(); err != nil {
		return err
	}
	center := e.BBox.Center()
	if e.Center != nil {
		if !e.BBox.Contains(*e.Center) {
			return fmt.Errorf("center %v outside of viewport", *e.Center)
		}
		center = *e.Center
	}

	// the series of the old centre must be gone before the new bbox is
	// queried
	s.centerChanged(ctx, center)
	if err := s.ctrl.SetViewport(ctx, e.BBox); err != nil {
		return err
	}
	if e.Zoom != nil {
		z := *e.Zoom
		s.zoom = &z
	}
	return nil
}

type SelectDataset struct {
	ID string
}

func (e SelectDataset) apply(ctx context.Context, s *Session) error {
	ds, ok := s.catalog.Find(e.ID)
	if !ok {
		return fmt.Errorf("unknown dataset %q", e.ID)
	}
	s.ctrl.SelectDataset(ctx, ds)
	s.setGrid(nil)
	return nil
}

type SetHeight struct {
	Meters float64
}

func (e SetHeight) apply(ctx context.Context, s *Session) error {
	return s.ctrl.SetHeight(ctx, e.Meters)
}

type SetResolution struct {
	NX, NY int
}

func (e SetResolution) apply(ctx context.Context, s *Session) error {
	return s.ctrl.SetResolution(ctx, api.Resolution{NX: e.NX, NY: e.NY})
}

type SetVisualization struct {
	Type layer.VisualizationType
}

func (e SetVisualization) apply(_ context.Context, s *Session) error {
	vt, ok := layer.ParseVisualizationType(string(e.Type))
	if !ok {
		return fmt.Errorf("unknown visualization type %q", e.Type)
	}
	if vt != s.viz {
		s.viz = vt
		s.rebuildLayer()
	}
	return nil
}

// SetDate selects the UTC day of the reference wind series.
type SetDate struct {
	Date string
}

func (e SetDate) apply(ctx context.Context, s *Session) error {
	if _, err := time.Parse(weather.DATE_LAYOUT, e.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", e.Date, err)
	}
	first, last := s.dateRange()
	if e.Date < first || e.Date > last {
		return fmt.Errorf("date %s outside of %s..%s", e.Date, first, last)
	}
	if e.Date == s.date {
		return nil
	}
	s.date = e.Date
	s.fetchWeather(ctx)
	return nil
}

type SetInterval struct {
	Minutes int
}

func (e SetInterval) apply(ctx context.Context, s *Session) error {
	if e.Minutes == s.anim.Interval() {
		return nil
	}
	if err := s.anim.SetInterval(e.Minutes); err != nil {
		return err
	}
	return s.reinterpolate(ctx)
}

type Play struct{}

func (Play) apply(_ context.Context, s *Session) error {
	s.anim.SetPlaying(true)
	return nil
}

type Pause struct{}

func (Pause) apply(_ context.Context, s *Session) error {
	s.anim.SetPlaying(false)
	return nil
}

type SetSpeed struct {
	Speed float64
}

func (e SetSpeed) apply(_ context.Context, s *Session) error {
	return s.anim.SetSpeed(e.Speed)
}

// SetIndex moves playback to a timestep, as a slider would.
type SetIndex struct {
	Index int
}

func (e SetIndex) apply(ctx context.Context, s *Session) error {
	if err := s.anim.SetCurrentIndex(e.Index); err != nil {
		return err
	}
	s.updateReference(ctx)
	return nil
}
