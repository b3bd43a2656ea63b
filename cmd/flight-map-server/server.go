package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/unklstewy/flighttrack/internal/metrics"
	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/render"
	"github.com/unklstewy/flighttrack/pkg/tracking"
)

// mapTokenMessage is returned by map endpoints when no token is configured.
const mapTokenMessage = "Map access token is not configured. Set " + config.EnvMapToken + " and restart the server."

const (
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// Server holds the HTTP router and its dependencies
type Server struct {
	router   *chi.Mux
	session  *session.Session
	metrics  *metrics.Metrics
	cfg      *config.Config
	renderer *render.GeoJSONRenderer
	mapErr   error
	upgrader websocket.Upgrader
}

// NewServer wires routes. A missing map token is not fatal: the map
// endpoints answer 503 until the server is restarted with one.
func NewServer(cfg *config.Config, sess *session.Session, m *metrics.Metrics) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		session: sess,
		metrics: m,
		cfg:     cfg,
	}
	s.renderer, s.mapErr = render.NewGeoJSONRenderer(cfg.Map.Binding())
	if s.renderer != nil {
		s.renderer.OnPointClick(func(m render.Marker) {
			log.Printf("Marker clicked: %s (%s)", m.Key, m.Label)
		})
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/map/config", s.handleMapConfig)
		r.Post("/map/click", s.handleMapClick)

		r.Get("/flights/active", s.handleActiveFlights)
		r.Get("/flights/{number}", s.handleTrackFlight)
		r.Get("/flights/{number}/position", s.handlePosition)
		r.Get("/flights/{number}/geojson", s.handleGeoJSON)
		r.Get("/flights/{number}/stream", s.handleStream)
	})

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		r.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := s.cfg.Server.AllowedOrigins
	return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// handleMapConfig hands the browser what it needs to initialize the map
func (s *Server) handleMapConfig(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		respondError(w, http.StatusServiceUnavailable, mapTokenMessage)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: s.renderer.Config()})
}

func (s *Server) handleActiveFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := s.session.ActiveFlights(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: flights})
}

// trackResponse is the payload of GET /flights/{number}
type trackResponse struct {
	Flight     flight.Flight           `json:"flight"`
	Current    *flight.TrackingSample  `json:"currentPosition"`
	Statistics flight.FlightStatistics `json:"statistics"`
	Scene      render.Scene            `json:"scene"`
}

// handleTrackFlight loads a flight and paints it on the map renderer
func (s *Server) handleTrackFlight(w http.ResponseWriter, r *http.Request) {
	view, err := s.track(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: trackResponse{
		Flight:     view.Flight,
		Current:    view.Current,
		Statistics: view.Statistics,
		Scene:      view.Scene,
	}})
}

func (s *Server) track(r *http.Request) (*session.View, error) {
	view, err := s.session.TrackFlight(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		return nil, err
	}
	if s.renderer != nil {
		if err := s.session.Paint(s.renderer, view); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// handlePosition resolves the position at ?at= (RFC 3339, default now) and
// moves the current marker there when the flight is on the map
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	number := flight.NormalizeFlightNumber(chi.URLParam(r, "number"))

	at := time.Now().UTC()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'at' parameter, expected RFC 3339")
			return
		}
		at = parsed
	}

	pos, err := s.session.Locate(r.Context(), number, at)
	if err != nil {
		respondErr(w, err)
		return
	}

	if last, ok := s.session.Adapter().Last(); ok && s.renderer != nil && last.FlightNumber == number {
		err := s.session.ShowPosition(s.renderer, pos)
		if err != nil && !errors.Is(err, session.ErrSuperseded) {
			log.Printf("Failed to move current marker: %v", err)
		}
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"currentPosition": pos.TrackingSample,
	}})
}

// handleGeoJSON serves the painted scene, loading the flight first when a
// different one is on the map
func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		respondError(w, http.StatusServiceUnavailable, mapTokenMessage)
		return
	}
	number := flight.NormalizeFlightNumber(chi.URLParam(r, "number"))
	if last, ok := s.session.Adapter().Last(); !ok || last.FlightNumber != number {
		if _, err := s.track(r); err != nil {
			respondErr(w, err)
			return
		}
	}

	fc := s.renderer.FeatureCollection()
	if layer := r.URL.Query().Get("layer"); layer != "" {
		if layer != render.LayerRoute && layer != render.LayerPoints {
			respondError(w, http.StatusBadRequest, "Unknown layer "+layer)
			return
		}
		fc = s.renderer.Layer(layer)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode features")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleMapClick forwards a marker click from the browser and returns the
// marker's details
func (s *Server) handleMapClick(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		respondError(w, http.StatusServiceUnavailable, mapTokenMessage)
		return
	}
	var req struct {
		Key render.MarkerKey `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !s.renderer.Click(req.Key) {
		respondError(w, http.StatusNotFound, "No marker "+req.Key.String())
		return
	}
	m, _ := s.session.Adapter().Marker(req.Key)
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: m})
}

// streamMessage is pushed to WebSocket clients on every path change
type streamMessage struct {
	Type         string       `json:"type"`
	FlightNumber string       `json:"flightNumber"`
	Version      uint64       `json:"version"`
	Kind         string       `json:"kind,omitempty"`
	Scene        render.Scene `json:"scene"`
}

// handleStream pushes a fresh scene whenever the flight's path changes
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	number := flight.NormalizeFlightNumber(chi.URLParam(r, "number"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	updates := make(chan tracking.PathEvent, 16)
	unsubscribe := s.session.Subscribe(func(ev tracking.PathEvent) {
		if ev.FlightNumber != number {
			return
		}
		select {
		case updates <- ev:
		default:
			// Client is behind; the next event carries the full scene anyway
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := s.session.Store().Snapshot(number)
	if err := s.push(conn, number, snap.Version, ""); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev := <-updates:
			if err := s.push(conn, number, ev.Version, string(ev.Kind)); err != nil {
				log.Printf("Stream for %s closed: %v", number, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) push(conn *websocket.Conn, number string, version uint64, kind string) error {
	path := s.session.Store().Get(number)

	var f *flight.Flight
	if held, err := s.session.Lifecycle().Get(number); err == nil {
		f = &held
	}
	var current *flight.TrackingSample
	if len(path) > 0 {
		current = &path[len(path)-1]
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(streamMessage{
		Type:         "scene",
		FlightNumber: number,
		Version:      version,
		Kind:         kind,
		Scene:        s.session.Adapter().Build(path, f, current),
	})
}

// envelope mirrors the backend's response shape
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Message: message})
}

// respondErr maps the error taxonomy to HTTP statuses
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), flight.Message(err))
}

func statusFor(err error) int {
	var re *flight.RemoteError
	switch {
	case errors.Is(err, flight.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, flight.ErrNotFound), errors.Is(err, flight.ErrUnknownFlight):
		return http.StatusNotFound
	case errors.Is(err, flight.ErrTransition), errors.Is(err, flight.ErrFlightCompleted),
		errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &re):
		if re.IsNotFound() {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
