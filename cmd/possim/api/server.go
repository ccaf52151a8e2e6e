// Package api serves the simulator control API: device control, event
// history, flows, a WebSocket event stream and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/flow"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/version"
)

// Config holds the dependencies of the API.
type Config struct {
	Hardware *hardware.Orchestrator
	Flows    *flow.Orchestrator

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Logger receives request errors. Nil disables logging.
	Logger *slog.Logger

	// RequestTimeout bounds each non-streaming request (default 30s).
	RequestTimeout time.Duration
}

// Server handles the control API.
type Server struct {
	hw      *hardware.Orchestrator
	hist    *history.History
	flows   *flow.Orchestrator
	hub     *Hub
	logger  *slog.Logger
	started time.Time
	router  chi.Router
}

// NewServer creates the API and subscribes its WebSocket hub to the event
// history. Call Close to detach it.
func NewServer(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	hist := cfg.Hardware.History()
	s := &Server{
		hw:      cfg.Hardware,
		hist:    hist,
		flows:   cfg.Flows,
		hub:     NewHub(hist, cfg.Logger),
		logger:  cfg.Logger,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(version.MustCurrent().Path(), func(r chi.Router) {
		r.Use(s.negotiateVersion)
		r.Get("/ws", s.hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			r.Get("/health", s.handleHealth)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/connect", s.handleConnectAll)
				r.Post("/disconnect", s.handleDisconnectAll)
				r.Post("/reset", s.handleResetAll)
				r.Get("/{id}", s.handleGetDevice)
				r.Post("/{id}/connect", s.handleConnect)
				r.Post("/{id}/disconnect", s.handleDisconnect)
				r.Post("/{id}/reset", s.handleReset)
				r.Post("/{id}/reconnect", s.handleReconnect)
				r.Post("/{id}/trigger", s.handleTrigger)
				r.Post("/{id}/operate", s.handleOperate)
				r.Get("/{id}/config", s.handleGetConfig)
				r.Patch("/{id}/config", s.handlePatchConfig)
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", s.handleEvents)
				r.Get("/stats", s.handleStats)
				r.Post("/simulate", s.handleSimulate)
				r.Delete("/", s.handleClearEvents)
			})

			r.Route("/patterns", func(r chi.Router) {
				r.Get("/", s.handleListPatterns)
				r.Post("/", s.handleDefinePattern)
				r.Delete("/{name}", s.handleRemovePattern)
			})

			r.Route("/flows", func(r chi.Router) {
				r.Get("/", s.handleListFlows)
				r.Post("/{name}/start", s.handleStartFlow)
				r.Get("/instances", s.handleListInstances)
				r.Get("/instances/{id}", s.handleGetInstance)
				r.Post("/instances/{id}/advance", s.handleAdvanceFlow)
				r.Delete("/instances/{id}", s.handleRemoveInstance)
			})
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	s.hub.Close()
}

// VersionHeader carries the API version. The server always sets it; a
// client may send it to state the version it was written against.
const VersionHeader = "X-Possim-Api-Version"

// ErrIncompatibleVersion is returned when a client asks for a version the
// server cannot serve.
var ErrIncompatibleVersion = errors.New("incompatible API version")

func (s *Server) negotiateVersion(next http.Handler) http.Handler {
	current := version.MustCurrent()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(VersionHeader, current.String())
		if raw := r.Header.Get(VersionHeader); raw != "" {
			want, err := version.Parse(raw)
			if err != nil {
				s.writeError(w, r, errors.Join(errBadRequest, err))
				return
			}
			if !current.Compatible(want) {
				s.writeError(w, r, fmt.Errorf("%w: client wants %s, server is %s", ErrIncompatibleVersion, want, current))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var (
		opErr      *device.OperationError
		connErr    *device.ConnectionError
		unknownEvt *device.UnknownEventError
		regErr     *hardware.RegistrationError
	)
	switch {
	case errors.Is(err, hardware.ErrDeviceNotFound),
		errors.Is(err, flow.ErrFlowNotFound),
		errors.Is(err, flow.ErrInstanceNotFound),
		errors.Is(err, history.ErrPatternNotFound):
		return http.StatusNotFound
	case errors.Is(err, hardware.ErrAlreadyRegistered),
		errors.Is(err, hardware.ErrReconnectInProgress),
		errors.Is(err, history.ErrDuplicatePattern),
		errors.Is(err, device.ErrNotConnected),
		errors.Is(err, device.ErrAlreadyConnecting):
		return http.StatusConflict
	case errors.As(err, &unknownEvt),
		errors.As(err, &regErr),
		errors.Is(err, hardware.ErrUnknownAction),
		errors.Is(err, device.ErrInvalidConfig),
		errors.Is(err, device.ErrInvalidArgument),
		errors.Is(err, model.ErrUnknownDeviceType),
		errors.Is(err, history.ErrEmptyPattern),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrIncompatibleVersion):
		return http.StatusNotAcceptable
	case errors.As(err, &opErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body. An empty body leaves v unchanged.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Join(errBadRequest, errors.New(key+" must be a non-negative integer"))
	}
	return n, nil
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Devices   int    `json:"devices"`
	Connected int    `json:"connected"`
	Events    int    `json:"events"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   version.Current,
		Devices:   len(s.hw.Devices()),
		Connected: len(s.hw.ConnectedDevices()),
		Events:    s.hist.Len(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}
