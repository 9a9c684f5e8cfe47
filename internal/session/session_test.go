package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/catalog"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"github.com/Michaelvilleneuve/windviz-go/internal/layer"
	"github.com/Michaelvilleneuve/windviz-go/internal/permalink"
	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
	"github.com/matryer/is"
)

var (
	fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	alps = catalog.DatasetInfo{
		ID:                     "alps",
		DatasetExtent:          geometry.BBox{MinLon: 5, MaxLon: 11, MinLat: 45, MaxLat: 48},
		AvailableHeightsMeters: []float64{10, 80},
	}
	coast = catalog.DatasetInfo{
		ID:                     "coast",
		DatasetExtent:          geometry.BBox{MinLon: -5, MaxLon: 0, MinLat: 43, MaxLat: 49},
		AvailableHeightsMeters: []float64{50, 120},
	}
	view = geometry.BBox{MinLon: 8, MaxLon: 9, MinLat: 46, MaxLat: 47}
)

type fakeGrids struct {
	mu      sync.Mutex
	queries []api.WindQuery
}

func (f *fakeGrids) FetchWindField(ctx context.Context, q api.WindQuery) (*grid.WindField, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	return &grid.WindField{
		DatasetID: q.DatasetID, HeightMeters: q.HeightMeters, BBox: q.BBox, NX: 2, NY: 1,
		U: []float32{1, 0}, V: []float32{0, 1}, SpeedMin: 1, SpeedMax: 1,
	}, nil
}

func (f *fakeGrids) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeGrids) last() api.WindQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeWeather struct {
	mu    sync.Mutex
	calls []geometry.Point
	dates []string
	gate  chan struct{}
}

func (f *fakeWeather) Fetch(ctx context.Context, lat, lon float64, date string) ([]weather.Timestep, error) {
	f.mu.Lock()
	f.calls = append(f.calls, geometry.Point{Lat: lat, Lon: lon})
	f.dates = append(f.dates, date)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}

	start, _ := time.Parse(weather.DATE_LAYOUT, date)
	steps := make([]weather.Timestep, 3)
	for i := range steps {
		dt := start.Add(time.Duration(i) * time.Hour)
		steps[i] = weather.Timestep{Timestep: i, Datetime: dt, Label: dt.Format(weather.LABEL_LAYOUT), WSRef: float64(2 + i), WDRef: 180}
	}
	return steps, nil
}

// hold makes later fetches wait until the returned func is called.
func (f *fakeWeather) hold() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeWeather) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func start(t *testing.T, cat catalog.Catalog, opts Options) (*Session, *fakeGrids, *fakeWeather) {
	t.Helper()

	grids, wx := &fakeGrids{}, &fakeWeather{}
	opts.Now = func() time.Time { return fixedNow }
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth, opts.ViewportHeight = 1280, 800
	}
	s := New(cat, grids, wx, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, grids, wx
}

func eventually(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Snapshot(); cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met, last snapshot: %+v", s.Snapshot())
	return Snapshot{}
}

func settled(snap Snapshot) bool {
	return snap.Grid != nil && !snap.Loading && len(snap.Timesteps) > 0
}

func TestSingleDatasetIsSelectedAndQueried(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, grids, wx := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	snap := eventually(t, s, func(s Snapshot) bool { return s.DatasetID == "alps" })
	is.Equal(*snap.HeightMeters, 10.0)
	is.Equal(*snap.ExtentHint, alps.DatasetExtent)
	is.Equal(snap.Date, "2025-06-01")
	is.Equal(snap.MaxDate, "2025-06-08")

	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	snap = eventually(t, s, settled)

	is.Equal(wx.count(), 1)
	q := grids.last()
	is.Equal(q.BBox, view)
	is.Equal(q.Reference.WS, 2.0) // first timestep feeds the query
	is.Equal(snap.LayerID, "wind-arrows-alps-10")
	is.Equal(snap.Features, 2)
	is.Equal(s.Layer().Type, layer.Arrows)
}

func TestVisualizationSwitchRebuildsLayer(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, _, _ := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)

	is.NoErr(s.Do(ctx, SetVisualization{Type: layer.Heatmap}))
	snap := eventually(t, s, func(s Snapshot) bool { return s.LayerID == "wind-heatmap" })
	is.Equal(snap.Visualization, layer.Heatmap)
	is.Equal(len(s.Layer().Cells), 2)
}

func TestCenterChangePausesAndRewinds(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, _, wx := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)

	is.NoErr(s.Do(ctx, SetIndex{Index: 2}))
	is.NoErr(s.Do(ctx, Play{}))
	eventually(t, s, func(s Snapshot) bool { return s.Playing })

	moved := geometry.BBox{MinLon: 8.2, MaxLon: 9.2, MinLat: 46, MaxLat: 47}
	is.NoErr(s.Do(ctx, SetViewport{BBox: moved}))
	snap := eventually(t, s, func(s Snapshot) bool { return s.Viewport != nil && *s.Viewport == moved })
	is.True(!snap.Playing)
	is.Equal(snap.CurrentIndex, 0)

	eventually(t, s, settled)
	is.Equal(wx.count(), 2)
}

func TestCenterChangeWaitsForNewSeries(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, grids, wx := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)
	queried := grids.count()

	release := wx.hold()
	moved := geometry.BBox{MinLon: 10, MaxLon: 11, MinLat: 46, MaxLat: 47}
	is.NoErr(s.Do(ctx, SetViewport{BBox: moved}))

	snap := s.Snapshot()
	is.True(snap.Loading)
	is.Equal(len(snap.Timesteps), 0)
	is.Equal(snap.Grid.BBox, view) // old field stays on screen
	time.Sleep(20 * time.Millisecond)
	is.Equal(grids.count(), queried)

	release()
	eventually(t, s, func(s Snapshot) bool { return settled(s) && s.Grid.BBox == moved })
	is.Equal(grids.count(), queried+1)
	is.Equal(wx.count(), 2)
}

func TestUnchangedInputsDoNotRequery(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, grids, _ := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)
	queried := grids.count()

	is.NoErr(s.Do(ctx, SetInterval{Minutes: 60}))
	is.NoErr(s.Do(ctx, SetIndex{Index: 0}))
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	is.NoErr(s.Do(ctx, SetResolution{NX: 100, NY: 100}))

	snap := s.Snapshot()
	is.True(!snap.Loading)
	time.Sleep(20 * time.Millisecond)
	is.Equal(grids.count(), queried)
}

func TestZoomWithoutCenterMoveKeepsSeries(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, _, wx := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)

	zoomed := geometry.BBox{MinLon: 8.25, MaxLon: 8.75, MinLat: 46.25, MaxLat: 46.75}
	is.NoErr(s.Do(ctx, SetViewport{BBox: zoomed}))
	eventually(t, s, func(s Snapshot) bool { return settled(s) && s.Grid.BBox == zoomed })
	is.Equal(wx.count(), 1)
}

func TestRejectedEvents(t *testing.T) {
	ctx := context.Background()
	s, _, _ := start(t, catalog.New([]catalog.DatasetInfo{alps, coast}), Options{})

	tests := []struct {
		name  string
		event Event
	}{
		{"unknown dataset", SelectDataset{ID: "nowhere"}},
		{"height without dataset", SetHeight{Meters: 10}},
		{"zero resolution", SetResolution{NX: 0, NY: 10}},
		{"unknown visualization", SetVisualization{Type: "streamlines"}},
		{"date too far", SetDate{Date: "2025-06-09"}},
		{"date in the past", SetDate{Date: "2025-05-31"}},
		{"malformed date", SetDate{Date: "June 1st"}},
		{"uneven interval", SetInterval{Minutes: 20}},
		{"unsupported speed", SetSpeed{Speed: 3}},
		{"index without series", SetIndex{Index: 4}},
		{"inverted viewport", SetViewport{BBox: geometry.BBox{MinLon: 9, MaxLon: 8, MinLat: 46, MaxLat: 47}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.True(s.Do(ctx, tt.event) != nil)
		})
	}
}

func TestDateChangeRefetches(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, _, wx := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)

	is.NoErr(s.Do(ctx, SetDate{Date: "2025-06-08"}))
	eventually(t, s, func(s Snapshot) bool {
		return settled(s) && s.Timesteps[0].Datetime.Day() == 8
	})
	is.Equal(wx.count(), 2)
	is.Equal(wx.dates[1], "2025-06-08")
}

func TestIntervalChangeReinterpolates(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, _, _ := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)
	is.NoErr(s.Do(ctx, SetIndex{Index: 1}))

	is.NoErr(s.Do(ctx, SetInterval{Minutes: 15}))
	snap := eventually(t, s, func(s Snapshot) bool { return s.IntervalMinutes == 15 })
	is.Equal(len(snap.Timesteps), 3*4-3)
	is.Equal(snap.CurrentIndex, 0)
	is.Equal(snap.Timesteps[1].Label, "00:15")
}

func TestPlaybackAdvances(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, grids, _ := start(t, catalog.New([]catalog.DatasetInfo{alps}), Options{FrameInterval: 5 * time.Millisecond})
	is.NoErr(s.Do(ctx, SetViewport{BBox: view}))
	eventually(t, s, settled)

	is.NoErr(s.Do(ctx, SetSpeed{Speed: 4}))
	is.NoErr(s.Do(ctx, Play{}))
	snap := eventually(t, s, func(s Snapshot) bool { return s.CurrentIndex == 1 && settled(s) })
	is.Equal(snap.Current.WSRef, 3.0)
	eventually(t, s, func(s Snapshot) bool { return grids.last().Reference.WS != 2 })
}

func TestPermalinkRestoreAndCapture(t *testing.T) {
	is := is.New(t)

	link := "dataset=coast&height=120&nx=50&ny=40&viz=heatmap&lon=-2.500000&lat=46.000000&zoom=7.00&date=2025-06-03&interval=30"
	s, grids, wx := start(t, catalog.New([]catalog.DatasetInfo{alps, coast}), Options{Permalink: link})

	snap := eventually(t, s, settled)
	is.Equal(snap.DatasetID, "coast")
	is.Equal(*snap.HeightMeters, 120.0)
	is.Equal(snap.Resolution, api.Resolution{NX: 50, NY: 40})
	is.Equal(snap.Visualization, layer.Heatmap)
	is.Equal(snap.Date, "2025-06-03")
	is.Equal(snap.IntervalMinutes, 30)
	is.Equal(len(snap.Timesteps), 5)
	is.True(snap.Viewport.Contains(geometry.Point{Lat: 46, Lon: -2.5}))

	is.Equal(wx.calls[0], geometry.Point{Lat: 46, Lon: -2.5})
	is.Equal(grids.last().DatasetID, "coast")

	is.Equal(permalink.Encode(s.Permalink()), permalink.Encode(permalink.Decode(link)))
}

func TestDoAfterStop(t *testing.T) {
	is := is.New(t)

	s := New(catalog.New(nil), &fakeGrids{}, &fakeWeather{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	<-done

	is.True(errors.Is(s.Do(context.Background(), Play{}), ErrClosed))
}
