package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Michaelvilleneuve/windviz-go/internal/catalog"
	"github.com/Michaelvilleneuve/windviz-go/internal/geometry"
	"github.com/Michaelvilleneuve/windviz-go/internal/health"
	"github.com/Michaelvilleneuve/windviz-go/internal/layer"
	"github.com/Michaelvilleneuve/windviz-go/internal/metrics"
	"github.com/Michaelvilleneuve/windviz-go/internal/palette"
	"github.com/Michaelvilleneuve/windviz-go/internal/permalink"
	"github.com/Michaelvilleneuve/windviz-go/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	DEFAULT_LEGEND_STEPS = 9
	MAX_LEGEND_STEPS     = 64
	MAX_BODY_BYTES       = 64 << 10
)

// Viewer is the session as seen by HTTP handlers.
type Viewer interface {
	Do(ctx context.Context, ev session.Event) error
	Snapshot() session.Snapshot
	Layer() *layer.Layer
	Permalink() permalink.State
	Catalog() catalog.Catalog
}

type StatusSource interface {
	Status() health.Status
}

type Server struct {
	viewer Viewer
	health StatusSource
	hub    *Hub
}

func New(viewer Viewer, status StatusSource, hub *Hub) *Server {
	return &Server{viewer: viewer, health: status, hub: hub}
}

// StateMessage is the websocket payload sent on connect and after each
// session change.
func (s *Server) StateMessage() Message {
	return Message{Type: "state", Data: s.state(s.viewer.Snapshot())}
}

type stateResponse struct {
	session.Snapshot
	Backend health.Status `json:"backend"`
}

func (s *Server) state(snap session.Snapshot) stateResponse {
	return stateResponse{Snapshot: snap, Backend: s.health.Status()}
}

// PublishState pushes a session snapshot to websocket clients.
func (s *Server) PublishState(snap session.Snapshot) {
	s.hub.Broadcast("state", s.state(snap))
}

// PublishHealth pushes a health probe result to websocket clients.
func (s *Server) PublishHealth(status health.Status) {
	s.hub.Broadcast("health", status)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws", s.hub)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/layer", s.handleLayer)
		r.Get("/legend", s.handleLegend)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/permalink", s.handlePermalink)
		r.Post("/viewport", s.handleViewport)
		r.Post("/selection", s.handleSelection)
		r.Post("/playback", s.handlePlayback)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_BYTES))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// apply submits events in order and stops at the first rejected one.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, events []session.Event) {
	for _, ev := range events {
		if err := s.viewer.Do(r.Context(), ev); err != nil {
			if errors.Is(err, session.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.state(s.viewer.Snapshot()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state(s.viewer.Snapshot()))
}

func (s *Server) handleLayer(w http.ResponseWriter, _ *http.Request) {
	l := s.viewer.Layer()
	if l == nil {
		writeError(w, http.StatusNotFound, errors.New("no wind field loaded"))
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	steps := DEFAULT_LEGEND_STEPS
	if v := r.URL.Query().Get("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > MAX_LEGEND_STEPS {
			writeError(w, http.StatusBadRequest, fmt.Errorf("steps must be an integer between 2 and %d", MAX_LEGEND_STEPS))
			return
		}
		steps = n
	}

	g := s.viewer.Snapshot().Grid
	if g == nil {
		writeError(w, http.StatusNotFound, errors.New("no wind field loaded"))
		return
	}
	writeJSON(w, http.StatusOK, palette.NewLegend(g.SpeedMin, g.SpeedMax, steps))
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	datasets := s.viewer.Catalog().Datasets
	if datasets == nil {
		datasets = []catalog.DatasetInfo{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (s *Server) handlePermalink(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"query": permalink.Encode(s.viewer.Permalink())})
}

type viewportRequest struct {
	geometry.BBox
	Center *geometry.Point `json:"center,omitempty"`
	Zoom   *float64        `json:"zoom,omitempty"`
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.apply(w, r, []session.Event{session.SetViewport{BBox: req.BBox, Center: req.Center, Zoom: req.Zoom}})
}

type selectionRequest struct {
	DatasetID         *string  `json:"datasetId,omitempty"`
	HeightMeters      *float64 `json:"heightMeters,omitempty"`
	NX                *int     `json:"nx,omitempty"`
	NY                *int     `json:"ny,omitempty"`
	VisualizationType *string  `json:"visualizationType,omitempty"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var events []session.Event
	if req.DatasetID != nil {
		events = append(events, session.SelectDataset{ID: *req.DatasetID})
	}
	if req.HeightMeters != nil {
		events = append(events, session.SetHeight{Meters: *req.HeightMeters})
	}
	if req.NX != nil || req.NY != nil {
		res := s.viewer.Snapshot().Resolution
		if req.NX != nil {
			res.NX = *req.NX
		}
		if req.NY != nil {
			res.NY = *req.NY
		}
		events = append(events, session.SetResolution{NX: res.NX, NY: res.NY})
	}
	if req.VisualizationType != nil {
		events = append(events, session.SetVisualization{Type: layer.VisualizationType(*req.VisualizationType)})
	}
	s.apply(w, r, events)
}

type playbackRequest struct {
	Playing         *bool    `json:"playing,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	Index           *int     `json:"index,omitempty"`
	Date            *string  `json:"date,omitempty"`
	IntervalMinutes *int     `json:"intervalMinutes,omitempty"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// date and interval replace the series, so they go before the index
	var events []session.Event
	if req.Date != nil {
		events = append(events, session.SetDate{Date: *req.Date})
	}
	if req.IntervalMinutes != nil {
		events = append(events, session.SetInterval{Minutes: *req.IntervalMinutes})
	}
	if req.Speed != nil {
		events = append(events, session.SetSpeed{Speed: *req.Speed})
	}
	if req.Index != nil {
		events = append(events, session.SetIndex{Index: *req.Index})
	}
	if req.Playing != nil {
		if *req.Playing {
			events = append(events, session.Play{})
		} else {
			events = append(events, session.Pause{})
		}
	}
	s.apply(w, r, events)
}
