package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/animation"
	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/catalog"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"github.com/Michaelvilleneuve/windviz-go/internal/layer"
	"github.com/Michaelvilleneuve/windviz-go/internal/metrics"
	"github.com/Michaelvilleneuve/windviz-go/internal/permalink"
	"github.com/Michaelvilleneuve/windviz-go/internal/query"
	"github.com/Michaelvilleneuve/windviz-go/internal/utils"
	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const DATE_RANGE_DAYS = 7

var ErrClosed = errors.New("session closed")

type Options struct {
	Resolution     api.Resolution
	ViewportWidth  int
	ViewportHeight int
	FrameInterval  time.Duration
	// Permalink is a query string restored when the loop starts.
	Permalink string
	// OnChange receives every published snapshot on the loop goroutine and
	// must not block.
	OnChange func(Snapshot)
	Now      func() time.Time
}

type envelope struct {
	event Event
	reply chan error
}

type weatherResult struct {
	token uuid.UUID
	steps []weather.Timestep
	err   error
}

// Session owns every piece of mutable viewer state. All mutation happens on
// the goroutine running Run; other goroutines submit events with Do and read
// the published Snapshot and Layer.
type Session struct {
	opts    Options
	catalog catalog.Catalog
	weather weather.Fetcher

	ctrl *query.Controller
	anim *animation.Scheduler

	viz           layer.VisualizationType
	zoom          *float64
	date          string
	weatherCenter *geometry.Point
	hourly        []weather.Timestep
	series        []weather.Timestep

	events         chan envelope
	results        chan query.Result
	weatherResults chan weatherResult
	done           chan struct{}

	version  uint64
	snapshot *atomic.Pointer[Snapshot]
	layer    *atomic.Pointer[layer.Layer]
}

func New(cat catalog.Catalog, grids query.GridFetcher, wx weather.Fetcher, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 50 * time.Millisecond
	}
	if opts.Resolution.NX <= 0 || opts.Resolution.NY <= 0 {
		opts.Resolution = api.Resolution{NX: 100, NY: 100}
	}

	results := make(chan query.Result, 1)
	s := &Session{
		opts:           opts,
		catalog:        cat,
		weather:        wx,
		ctrl:           query.NewController(grids, results, opts.Resolution),
		anim:           animation.New(),
		viz:            layer.Arrows,
		events:         make(chan envelope),
		results:        results,
		weatherResults: make(chan weatherResult, 1),
		done:           make(chan struct{}),
		snapshot:       atomic.NewPointer(&Snapshot{}),
		layer:          atomic.NewPointer[layer.Layer](nil),
	}
	s.date = s.today()
	return s
}

// Snapshot returns the most recently published state.
func (s *Session) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Layer returns the draw primitives of the displayed grid, nil when there is
// no grid.
func (s *Session) Layer() *layer.Layer {
	return s.layer.Load()
}

func (s *Session) Catalog() catalog.Catalog {
	return s.catalog
}

// Do submits an event to the loop and waits until it has been applied and
// the resulting snapshot published.
func (s *Session) Do(ctx context.Context, ev Event) error {
	env := envelope{event: ev, reply: make(chan error, 1)}
	select {
	case s.events <- env:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run restores the configured permalink and processes events until ctx is
// done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.ctrl.Close()

	s.restore(ctx, permalink.Decode(s.opts.Permalink))
	s.publish()

	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env := <-s.events:
			err := env.event.apply(ctx, s)
			if err != nil {
				utils.Log("event rejected", "event", env.event, "error", err)
			} else {
				s.publish()
			}
			env.reply <- err

		case r := <-s.results:
			if s.applyGrid(r) {
				s.publish()
			}

		case r := <-s.weatherResults:
			if s.applyWeather(ctx, r) {
				s.publish()
			}

		case now := <-ticker.C:
			if s.tick(ctx, now) {
				s.publish()
			}
		}
	}
}

// restore applies a decoded permalink. Without a dataset in it, a catalog
// holding a single dataset selects that one.
func (s *Session) restore(ctx context.Context, p permalink.State) {
	if p.NX > 0 && p.NY > 0 {
		if err := s.ctrl.SetResolution(ctx, api.Resolution{NX: p.NX, NY: p.NY}); err != nil {
			slog.Warn("ignoring permalink resolution", "error", err)
		}
	}
	if p.Visualization != "" {
		s.viz = p.Visualization
	}
	if p.Date != "" {
		if first, last := s.dateRange(); p.Date >= first && p.Date <= last {
			s.date = p.Date
		} else {
			slog.Warn("ignoring permalink date outside forecast range", "date", p.Date)
		}
	}
	if p.IntervalMinutes > 0 {
		_ = s.anim.SetInterval(p.IntervalMinutes)
	}
	if p.HeightMeters != nil {
		s.ctrl.PreferHeight(*p.HeightMeters)
	}

	if ds, ok := s.catalog.Find(p.DatasetID); ok {
		s.ctrl.SelectDataset(ctx, ds)
	} else if ds, ok := s.catalog.Single(); ok {
		if p.DatasetID != "" {
			slog.Warn("permalink dataset not in catalog", "dataset", p.DatasetID)
		}
		s.ctrl.SelectDataset(ctx, ds)
	}

	if p.Center != nil && p.Zoom != nil {
		bbox := geometry.ViewBBox(*p.Center, *p.Zoom, s.opts.ViewportWidth, s.opts.ViewportHeight)
		if err := (SetViewport{BBox: bbox, Center: p.Center, Zoom: p.Zoom}).apply(ctx, s); err != nil {
			slog.Warn("ignoring permalink viewport", "error", err)
		}
	}
}

// Permalink captures the restorable part of the current state.
func (s *Session) Permalink() permalink.State {
	snap := s.Snapshot()
	p := permalink.State{
		DatasetID:       snap.DatasetID,
		HeightMeters:    snap.HeightMeters,
		NX:              snap.Resolution.NX,
		NY:              snap.Resolution.NY,
		Visualization:   snap.Visualization,
		Zoom:            snap.Zoom,
		Date:            snap.Date,
		IntervalMinutes: snap.IntervalMinutes,
	}
	if snap.Center != nil {
		center := *snap.Center
		p.Center = &center
	}
	return p
}

func (s *Session) today() string {
	return s.opts.Now().UTC().Format(weather.DATE_LAYOUT)
}

func (s *Session) dateRange() (string, string) {
	now := s.opts.Now().UTC()
	return now.Format(weather.DATE_LAYOUT), now.AddDate(0, 0, DATE_RANGE_DAYS).Format(weather.DATE_LAYOUT)
}

// centerChanged refetches the reference series for a new map centre. The
// old series belonged to another location: it is dropped, playback stops and
// rewinds, and no grid is queried until the new series arrives.
func (s *Session) centerChanged(ctx context.Context, center geometry.Point) {
	if s.weatherCenter != nil {
		if *s.weatherCenter == center {
			return
		}
		if utils.DebugEnabled() {
			utils.Log("map centre moved", "km", geometry.HaversineDistance(*s.weatherCenter, center))
		}
	}
	s.weatherCenter = &center
	s.anim.Reset()
	s.hourly = nil
	s.series = nil
	s.anim.SetCount(0)
	s.updateReference(ctx)
	s.fetchWeather(ctx)
}

func (s *Session) fetchWeather(ctx context.Context) {
	if s.weatherCenter == nil {
		return
	}
	center, date := *s.weatherCenter, s.date

	reqCtx, token := s.ctrl.StartWeather(ctx)
	go func() {
		steps, err := s.weather.Fetch(reqCtx, center.Lat, center.Lon, date)
		select {
		case s.weatherResults <- weatherResult{token: token, steps: steps, err: err}:
		case <-reqCtx.Done():
		}
	}()
}

func (s *Session) applyWeather(ctx context.Context, r weatherResult) bool {
	if !s.ctrl.FinishWeather(r.token) {
		metrics.WeatherFetches.WithLabelValues(metrics.OUTCOME_SUPERSEDED).Inc()
		return false
	}
	if r.err != nil {
		if query.IsCancelled(r.err) {
			metrics.WeatherFetches.WithLabelValues(metrics.OUTCOME_SUPERSEDED).Inc()
		} else {
			metrics.WeatherFetches.WithLabelValues(metrics.OUTCOME_FAILED).Inc()
			slog.Error("failed to fetch reference wind", "date", s.date, "error", r.err)
		}
		// loading state changed
		return true
	}

	metrics.WeatherFetches.WithLabelValues(metrics.OUTCOME_APPLIED).Inc()
	s.hourly = r.steps
	if err := s.reinterpolate(ctx); err != nil {
		slog.Error("failed to interpolate reference wind", "error", err)
	}
	return true
}

func (s *Session) reinterpolate(ctx context.Context) error {
	series, err := weather.Interpolate(s.hourly, s.anim.Interval())
	if err != nil {
		return err
	}
	s.series = series
	s.anim.SetCount(len(series))
	s.updateReference(ctx)
	return nil
}

// updateReference feeds the reference wind of the current frame into the
// query controller.
func (s *Session) updateReference(ctx context.Context) {
	idx := s.anim.CurrentIndex()
	if idx >= len(s.series) {
		s.ctrl.SetReference(ctx, nil)
		return
	}
	ts := s.series[idx]
	s.ctrl.SetReference(ctx, &api.Reference{WS: ts.WSRef, WD: ts.WDRef})
}

func (s *Session) applyGrid(r query.Result) bool {
	applied, err := s.ctrl.Apply(r)
	switch {
	case err != nil:
		metrics.GridQueries.WithLabelValues(metrics.OUTCOME_FAILED).Inc()
		slog.Error("wind field query failed", "dataset", r.Query.DatasetID, "error", err)
		return true
	case !applied:
		metrics.GridQueries.WithLabelValues(metrics.OUTCOME_SUPERSEDED).Inc()
		return true
	}

	metrics.GridQueries.WithLabelValues(metrics.OUTCOME_APPLIED).Inc()
	s.setGrid(s.ctrl.Grid())
	return true
}

func (s *Session) tick(ctx context.Context, now time.Time) bool {
	s.anim.SetBlocked(s.ctrl.QueryPending())
	if !s.anim.Tick(now) {
		return false
	}
	s.updateReference(ctx)
	return true
}

func (s *Session) setGrid(g *grid.WindField) {
	if g == nil {
		s.layer.Store(nil)
		return
	}
	s.rebuildLayer()
}

func (s *Session) rebuildLayer() {
	g := s.ctrl.Grid()
	if g == nil {
		s.layer.Store(nil)
		return
	}
	l, err := layer.Build(g, s.viz)
	if err != nil {
		slog.Error("failed to build layer", "error", err)
		return
	}
	metrics.LayerFeatures.WithLabelValues(string(l.Type)).Set(float64(l.Len()))
	s.layer.Store(l)
}

func (s *Session) publish() {
	s.version++
	first, last := s.dateRange()

	snap := Snapshot{
		Version:         s.version,
		DatasetID:       s.ctrl.DatasetID(),
		HeightMeters:    s.ctrl.Height(),
		Resolution:      s.ctrl.Resolution(),
		Visualization:   s.viz,
		Viewport:        s.ctrl.BBox(),
		Center:          s.weatherCenter,
		Zoom:            s.zoom,
		ExtentHint:      s.ctrl.ExtentHint(),
		Loading:         s.ctrl.Loading(),
		Grid:            summarize(s.ctrl.Grid()),
		Date:            s.date,
		MinDate:         first,
		MaxDate:         last,
		IntervalMinutes: s.anim.Interval(),
		Timesteps:       s.series,
		CurrentIndex:    s.anim.CurrentIndex(),
		Playing:         s.anim.Playing(),
		Speed:           s.anim.Speed(),
	}
	if ds := s.ctrl.Dataset(); ds != nil {
		snap.Heights = ds.AvailableHeightsMeters
	}
	if q, ok := s.ctrl.InFlightQuery(); ok {
		snap.Query = &q
	}
	if l := s.layer.Load(); l != nil {
		snap.LayerID = l.ID
		snap.Features = l.Len()
	}
	if idx := s.anim.CurrentIndex(); idx < len(s.series) {
		current := s.series[idx]
		snap.Current = &current
	}

	metrics.AnimationIndex.Set(float64(snap.CurrentIndex))
	s.snapshot.Store(&snap)
	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}
}
