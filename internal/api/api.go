package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/catalog"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/grid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TransportError is a network failure or a non-2xx backend response.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend request failed: %v", e.Err)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Resolution struct {
	NX int `json:"nx"`
	NY int `json:"ny"`
}

// Reference is the reference wind forcing a grid query.
type Reference struct {
	WS float64 `json:"wsRef"`
	WD float64 `json:"wdRef"`
}

type WindQuery struct {
	DatasetID    string        `json:"datasetId"`
	HeightMeters float64       `json:"heightMeters"`
	BBox         geometry.BBox `json:"bbox"`
	Resolution   Resolution    `json:"resolution"`
	Reference    *Reference    `json:"reference,omitempty"`
}

// Equal compares every field, the bbox by all four bounds.
func (q WindQuery) Equal(o WindQuery) bool {
	if q.DatasetID != o.DatasetID || q.HeightMeters != o.HeightMeters || q.BBox != o.BBox || q.Resolution != o.Resolution {
		return false
	}
	if q.Reference == nil || o.Reference == nil {
		return q.Reference == nil && o.Reference == nil
	}
	return *q.Reference == *o.Reference
}

// Values renders the query as backend request parameters.
func (q WindQuery) Values() url.Values {
	params := url.Values{}
	params.Set("datasetId", q.DatasetID)
	params.Set("heightMeters", formatFloat(q.HeightMeters))
	params.Set("minLon", formatFloat(q.BBox.MinLon))
	params.Set("minLat", formatFloat(q.BBox.MinLat))
	params.Set("maxLon", formatFloat(q.BBox.MaxLon))
	params.Set("maxLat", formatFloat(q.BBox.MaxLat))
	params.Set("nx", strconv.Itoa(q.Resolution.NX))
	params.Set("ny", strconv.Itoa(q.Resolution.NY))
	if q.Reference != nil {
		params.Set("wsRef", formatFloat(q.Reference.WS))
		params.Set("wdRef", formatFloat(q.Reference.WD))
	}
	return params
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type healthResponse struct {
	Status  string `json:"status"`
	Source  string `json:"source,omitempty"`
	DataDir string `json:"dataDir,omitempty"`
}

// Client talks to the wind field backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchWindField runs a grid query and decodes the response.
func (c *Client) FetchWindField(ctx context.Context, q WindQuery) (*grid.WindField, error) {
	resp, err := c.get(ctx, "/api/wind", q.Values())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload grid.Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &grid.MalformedGridError{Field: "payload", Err: err}
	}

	return grid.Decode(payload)
}

func (c *Client) FetchDatasets(ctx context.Context) ([]catalog.DatasetInfo, error) {
	resp, err := c.get(ctx, "/api/datasets", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var datasets []catalog.DatasetInfo
	if err := json.NewDecoder(resp.Body).Decode(&datasets); err != nil {
		return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("decoding datasets: %w", err)}
	}
	return datasets, nil
}

// CheckHealth reports whether the backend answered with status "ok".
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/api/health", nil)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.Err == nil {
			return false, nil
		}
		return false, err
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("decoding health: %w", err)}
	}
	return health.Status == "ok", nil
}

// get issues a GET and returns the response only for 2xx status codes.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return nil, &TransportError{Status: resp.StatusCode, Body: text}
	}

	return resp, nil
}
