package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/catalog"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"github.com/Michaelvilleneuve/windviz-go/internal/utils"
	"github.com/google/uuid"
)

var (
	// ErrSuperseded is the cancellation cause of a request replaced by a
	// newer one. It is never a failure.
	ErrSuperseded = errors.New("request superseded")

	ErrInvalidState = errors.New("query inputs incomplete")
)

// IsCancelled reports whether err comes from a cancelled request.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrSuperseded)
}

type GridFetcher interface {
	FetchWindField(ctx context.Context, q api.WindQuery) (*grid.WindField, error)
}

// Result is the completion of one issued grid query.
type Result struct {
	Token uuid.UUID
	Query api.WindQuery
	Grid  *grid.WindField
	Err   error
}

// Controller turns viewport and selection changes into grid queries with at
// most one request in flight. It is owned by a single goroutine; only the
// fetch itself runs elsewhere, reporting back through the results channel.
type Controller struct {
	fetcher GridFetcher
	results chan<- Result

	bbox       *geometry.BBox
	dataset    *catalog.DatasetInfo
	height     *float64
	preferred  *float64
	resolution api.Resolution
	reference  *api.Reference

	grid       *grid.WindField
	extentHint *geometry.BBox

	gridOp    Op
	weatherOp Op
	inFlight  api.WindQuery
	// query that produced grid
	displayed *api.WindQuery
}

func NewController(fetcher GridFetcher, results chan<- Result, resolution api.Resolution) *Controller {
	return &Controller{fetcher: fetcher, results: results, resolution: resolution}
}

func (c *Controller) BBox() *geometry.BBox          { return c.bbox }
func (c *Controller) Height() *float64              { return c.height }
func (c *Controller) Resolution() api.Resolution    { return c.resolution }
func (c *Controller) Reference() *api.Reference     { return c.reference }
func (c *Controller) Grid() *grid.WindField         { return c.grid }
func (c *Controller) ExtentHint() *geometry.BBox    { return c.extentHint }
func (c *Controller) Dataset() *catalog.DatasetInfo { return c.dataset }
func (c *Controller) QueryPending() bool            { return c.gridOp.Pending() }
func (c *Controller) InFlightQuery() (api.WindQuery, bool) {
	return c.inFlight, c.gridOp.Pending()
}

func (c *Controller) DatasetID() string {
	if c.dataset == nil {
		return ""
	}
	return c.dataset.ID
}

// Loading is true while either the grid query or the weather fetch is
// outstanding.
func (c *Controller) Loading() bool {
	return c.gridOp.Pending() || c.weatherOp.Pending()
}

// CanQuery reports whether every query input is present.
func (c *Controller) CanQuery() bool {
	return c.bbox != nil && c.dataset != nil && c.height != nil && c.reference != nil
}

// Query builds the query for the current inputs.
func (c *Controller) Query() (api.WindQuery, error) {
	if !c.CanQuery() {
		return api.WindQuery{}, ErrInvalidState
	}
	ref := *c.reference
	return api.WindQuery{
		DatasetID:    c.dataset.ID,
		HeightMeters: *c.height,
		BBox:         *c.bbox,
		Resolution:   c.resolution,
		Reference:    &ref,
	}, nil
}

func (c *Controller) SetViewport(ctx context.Context, b geometry.BBox) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if c.bbox != nil && *c.bbox == b {
		return nil
	}
	c.bbox = &b
	c.refresh(ctx)
	return nil
}

// PreferHeight records a height to keep on the next dataset selection if
// that dataset offers it.
func (c *Controller) PreferHeight(h float64) {
	c.preferred = &h
}

// SelectDataset switches dataset: the displayed grid is cleared, the height
// falls back to the dataset default unless a preferred height applies, and
// the extent hint becomes the dataset extent.
func (c *Controller) SelectDataset(ctx context.Context, ds catalog.DatasetInfo) {
	c.gridOp.Cancel(ErrSuperseded)

	c.dataset = &ds
	c.grid = nil
	c.displayed = nil
	extent := ds.DatasetExtent
	c.extentHint = &extent

	c.height = nil
	if c.preferred != nil && ds.HasHeight(*c.preferred) {
		h := *c.preferred
		c.height = &h
	} else if h, ok := ds.DefaultHeight(); ok {
		c.height = &h
	}
	c.preferred = nil

	utils.Log("dataset selected", "dataset", ds.ID)
	c.refresh(ctx)
}

func (c *Controller) SetHeight(ctx context.Context, h float64) error {
	if c.dataset == nil {
		return fmt.Errorf("cannot set height %v: %w", h, ErrInvalidState)
	}
	if !c.dataset.HasHeight(h) {
		return fmt.Errorf("height %v is not available for dataset %s", h, c.dataset.ID)
	}
	c.height = &h
	c.refresh(ctx)
	return nil
}

func (c *Controller) SetResolution(ctx context.Context, r api.Resolution) error {
	if r.NX <= 0 || r.NY <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", r.NX, r.NY)
	}
	c.resolution = r
	c.refresh(ctx)
	return nil
}

// SetReference updates the reference wind of the current animation frame.
// A nil reference makes the inputs incomplete.
func (c *Controller) SetReference(ctx context.Context, ref *api.Reference) {
	if ref != nil {
		r := *ref
		ref = &r
	}
	c.reference = ref
	c.refresh(ctx)
}

// refresh issues a query for the current inputs unless the same query is
// already in flight or produced the displayed grid. Incomplete inputs cancel
// any outstanding request and leave the displayed grid as it is.
func (c *Controller) refresh(ctx context.Context) {
	q, err := c.Query()
	if err != nil {
		c.gridOp.Cancel(ErrSuperseded)
		return
	}
	if c.gridOp.Pending() && c.inFlight.Equal(q) {
		return
	}
	if c.displayed != nil && c.displayed.Equal(q) {
		// back to what is shown: drop whatever was requested since
		c.gridOp.Cancel(ErrSuperseded)
		return
	}

	reqCtx, token := c.gridOp.Start(ctx)
	c.inFlight = q

	utils.Log("issuing wind query", "token", token, "dataset", q.DatasetID, "height", q.HeightMeters, "bbox", q.BBox)

	go func() {
		g, err := c.fetcher.FetchWindField(reqCtx, q)
		if err == nil && reqCtx.Err() != nil {
			err = context.Cause(reqCtx)
		}
		select {
		case c.results <- Result{Token: token, Query: q, Grid: g, Err: err}:
		case <-reqCtx.Done():
		}
	}()
}

// Apply installs the result of the in-flight query. Results of superseded or
// cancelled requests are ignored. A failed request leaves the displayed grid
// untouched and returns its error.
func (c *Controller) Apply(r Result) (bool, error) {
	if !c.gridOp.Finish(r.Token) {
		return false, nil
	}
	if r.Err != nil {
		if IsCancelled(r.Err) {
			return false, nil
		}
		return false, r.Err
	}
	if r.Grid == nil {
		return false, fmt.Errorf("empty wind field for %s", r.Query.DatasetID)
	}
	c.grid = r.Grid
	q := r.Query
	c.displayed = &q
	return true, nil
}

// StartWeather supersedes any pending weather fetch.
func (c *Controller) StartWeather(ctx context.Context) (context.Context, uuid.UUID) {
	return c.weatherOp.Start(ctx)
}

func (c *Controller) FinishWeather(token uuid.UUID) bool {
	return c.weatherOp.Finish(token)
}

// Close cancels every outstanding request.
func (c *Controller) Close() {
	c.gridOp.Cancel(context.Canceled)
	c.weatherOp.Cancel(context.Canceled)
}
