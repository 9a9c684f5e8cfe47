package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DATE_LAYOUT      = "2006-01-02"
	LABEL_LAYOUT     = "15:04"
	OPEN_METEO_TIME  = "2006-01-02T15:04"
	KMH_PER_MS       = 3.6
	DEFAULT_HEIGHT_M = 120
)

// Timestep is one reference wind reading.
type Timestep struct {
	Timestep int       `json:"timestep"`
	Datetime time.Time `json:"datetime"`
	Label    string    `json:"label"`
	WSRef    float64   `json:"wsRef"`
	WDRef    float64   `json:"wdRef"`
}

// Fetcher returns the hourly reference wind series for one UTC day.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64, date string) ([]Timestep, error)
}

// Client reads hourly wind from an open-meteo compatible forecast API.
type Client struct {
	baseURL    string
	heightM    int
	httpClient *http.Client
}

func New(baseURL string, heightM int, timeout time.Duration) *Client {
	if heightM <= 0 {
		heightM = DEFAULT_HEIGHT_M
	}
	return &Client{
		baseURL: baseURL,
		heightM: heightM,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) speedVar() string     { return fmt.Sprintf("wind_speed_%dm", c.heightM) }
func (c *Client) directionVar() string { return fmt.Sprintf("wind_direction_%dm", c.heightM) }

type openMeteoResponse struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Elevation float64                    `json:"elevation"`
	Hourly    map[string]json.RawMessage `json:"hourly"`
}

// Fetch requests the given day (YYYY-MM-DD, UTC). Speeds are converted from
// km/h to m/s; directions are passed through in degrees (coming from).
func (c *Client) Fetch(ctx context.Context, lat, lon float64, date string) ([]Timestep, error) {
	if _, err := time.Parse(DATE_LAYOUT, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.6f", lat))
	params.Set("longitude", fmt.Sprintf("%.6f", lon))
	params.Set("hourly", c.speedVar()+","+c.directionVar())
	params.Set("models", "best_match")
	params.Set("timezone", "GMT")
	params.Set("start_date", date)
	params.Set("end_date", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	utils.Log("fetching reference wind", "lat", lat, "lon", lon, "date", date)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &api.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &api.TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("invalid open-meteo response: %w", err)
	}

	return c.parseHourly(data)
}

func (c *Client) parseHourly(data openMeteoResponse) ([]Timestep, error) {
	var (
		times      []string
		speeds     []*float64
		directions []*float64
	)
	if err := unmarshalHourly(data.Hourly, "time", &times); err != nil {
		return nil, err
	}
	if err := unmarshalHourly(data.Hourly, c.speedVar(), &speeds); err != nil {
		return nil, err
	}
	if err := unmarshalHourly(data.Hourly, c.directionVar(), &directions); err != nil {
		return nil, err
	}
	if len(speeds) != len(times) || len(directions) != len(times) {
		return nil, fmt.Errorf("invalid open-meteo response: %d times, %d speeds, %d directions", len(times), len(speeds), len(directions))
	}

	timesteps := make([]Timestep, 0, len(times))
	for i, raw := range times {
		datetime, err := time.ParseInLocation(OPEN_METEO_TIME, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid open-meteo time %q: %w", raw, err)
		}
		if speeds[i] == nil || directions[i] == nil {
			utils.Log("skipping hour without reading", "time", raw)
			continue
		}

		timesteps = append(timesteps, Timestep{
			Timestep: len(timesteps),
			Datetime: datetime,
			Label:    datetime.UTC().Format(LABEL_LAYOUT),
			WSRef:    *speeds[i] / KMH_PER_MS,
			WDRef:    *directions[i],
		})
	}

	return timesteps, nil
}

func unmarshalHourly(hourly map[string]json.RawMessage, key string, dst any) error {
	raw, ok := hourly[key]
	if !ok {
		return fmt.Errorf("invalid open-meteo response: missing hourly.%s", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid open-meteo response: hourly.%s: %w", key, err)
	}
	return nil
}
