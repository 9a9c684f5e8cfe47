package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OUTCOME_APPLIED    = "applied"
	OUTCOME_SUPERSEDED = "superseded"
	OUTCOME_FAILED     = "failed"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windviz_http_requests_total",
			Help: "Total requests by route, method, and status.",
		},
		[]string{"route", "method", "status"},
	)

	GridQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windviz_grid_queries_total",
			Help: "Completed wind field queries by outcome.",
		},
		[]string{"outcome"},
	)

	WeatherFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windviz_weather_fetches_total",
			Help: "Completed reference wind fetches by outcome.",
		},
		[]string{"outcome"},
	)

	BackendUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "windviz_backend_up",
		Help: "1 when the last health probe succeeded.",
	})

	LayerFeatures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "windviz_layer_features",
			Help: "Features in the most recently built layer.",
		},
		[]string{"type"},
	)

	AnimationIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "windviz_animation_index",
		Help: "Current playback index.",
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "windviz_websocket_clients",
		Help: "Connected websocket clients.",
	})
)

func init() {
	prometheus.MustRegister(requestCounter, GridQueries, WeatherFetches, BackendUp, LayerFeatures, AnimationIndex, WebsocketClients)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func SetBackendUp(up bool) {
	if up {
		BackendUp.Set(1)
	} else {
		BackendUp.Set(0)
	}
}

// Middleware counts requests by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		requestCounter.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}
