package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/taskdock/internal/logger"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/overlay"
	"github.com/bryanchriswhite/taskdock/internal/pins"
	"github.com/bryanchriswhite/taskdock/internal/pipeline"
	"github.com/bryanchriswhite/taskdock/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Intents accepts presentation-layer intents.
type Intents interface {
	Submit(ctx context.Context, in pipeline.Intent) error
}

// Views exposes published views.
type Views interface {
	Latest() (model.View, bool)
	Subscribe() chan model.View
	Unsubscribe(ch chan model.View)
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	intents  Intents
	views    Views
	pins     *pins.Registry
	overlay  *overlay.Manager
	upgrader websocket.Upgrader
}

// NewServer creates a new API server. pins and overlay may be nil.
func NewServer(intents Intents, views Views, pinReg *pins.Registry, ov *overlay.Manager) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		intents: intents,
		views:   views,
		pins:    pinReg,
		overlay: ov,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local dock UI, any origin
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// View state
	api.HandleFunc("/view", s.handleGetView).Methods("GET")
	api.HandleFunc("/stream", s.handleStream)
	api.HandleFunc("/containers/aggregate", s.handleGetAggregate).Methods("GET")
	api.HandleFunc("/containers/aggregate/order", s.handleMoveAggregate).Methods("PUT")
	api.HandleFunc("/containers/{display:[0-9]+}/{space:[0-9]+}", s.handleGetContainer).Methods("GET")
	api.HandleFunc("/containers/{display:[0-9]+}/{space:[0-9]+}/order", s.handleMoveContainer).Methods("PUT")

	// Pins
	api.HandleFunc("/pins", s.handleGetPins).Methods("GET")
	api.HandleFunc("/pins/windows/{id:[0-9]+}", s.handlePinWindow(pipeline.PinOpPin)).Methods("POST")
	api.HandleFunc("/pins/windows/{id:[0-9]+}", s.handlePinWindow(pipeline.PinOpUnpin)).Methods("DELETE")
	api.HandleFunc("/pins/windows/{id:[0-9]+}/toggle", s.handlePinWindow(pipeline.PinOpToggle)).Methods("POST")
	api.HandleFunc("/pins/apps/{app}", s.handlePinApp(pipeline.PinOpPin)).Methods("POST")
	api.HandleFunc("/pins/apps/{app}", s.handlePinApp(pipeline.PinOpUnpin)).Methods("DELETE")

	// Window actions
	api.HandleFunc("/windows/{id:[0-9]+}/activate", s.handleWindowAction(func(id model.WindowID) pipeline.Intent {
		return pipeline.Activate{ID: id}
	})).Methods("POST")
	api.HandleFunc("/windows/{id:[0-9]+}/close", s.handleWindowAction(func(id model.WindowID) pipeline.Intent {
		return pipeline.Close{ID: id}
	})).Methods("POST")
	api.HandleFunc("/windows/{id:[0-9]+}/minimize", s.handleWindowAction(func(id model.WindowID) pipeline.Intent {
		return pipeline.Minimize{ID: id}
	})).Methods("POST")

	// Overlay
	api.HandleFunc("/overlay", s.handleGetOverlay).Methods("GET")
	api.HandleFunc("/overlay", s.handleUpdateOverlay).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://localhost"+addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Response write failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// statusFor maps intent errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnknownWindow), errors.Is(err, window.ErrWindowGone):
		return http.StatusNotFound
	case errors.Is(err, window.ErrUnsupported):
		return http.StatusConflict
	case errors.Is(err, pins.ErrEmptyID):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, in pipeline.Intent) {
	if err := s.intents.Submit(r.Context(), in); err != nil {
		logger.WithComponent("api").Debug().
			Err(err).
			Str("intent", fmt.Sprintf("%T", in)).
			Msg("Intent rejected")
		writeError(w, statusFor(err), err)
		return
	}
	writeOK(w)
}

func windowIDVar(r *http.Request) (model.WindowID, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id: %w", err)
	}
	return model.WindowID(id), nil
}

func containerVars(r *http.Request) (model.ContainerID, error) {
	vars := mux.Vars(r)
	display, err := strconv.ParseUint(vars["display"], 10, 32)
	if err != nil {
		return model.ContainerID{}, fmt.Errorf("invalid display: %w", err)
	}
	space, err := strconv.ParseUint(vars["space"], 10, 64)
	if err != nil {
		return model.ContainerID{}, fmt.Errorf("invalid space: %w", err)
	}
	c := model.ContainerID{Display: model.DisplayID(display), Space: model.SpaceID(space)}
	if c.IsAggregate() {
		return model.ContainerID{}, fmt.Errorf("space %d is reserved", space)
	}
	return c, nil
}

// HTTP Handlers

func (s *Server) latest(w http.ResponseWriter) (model.View, bool) {
	v, ok := s.views.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("no view published yet"))
	}
	return v, ok
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.latest(w); ok {
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.latest(w); ok {
		writeJSON(w, http.StatusOK, v.Aggregate)
	}
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	c, err := containerVars(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, ok := s.latest(w)
	if !ok {
		return
	}
	cv, ok := v.Container(c)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no container %s", c))
		return
	}
	writeJSON(w, http.StatusOK, cv)
}

type orderRequest struct {
	Order []model.WindowID `json:"order"`
}

func decodeOrder(r *http.Request) ([]model.WindowID, error) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return req.Order, nil
}

func (s *Server) handleMoveAggregate(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeOrder(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, pipeline.Move{Container: model.AggregateContainer, Order: ids})
}

func (s *Server) handleMoveContainer(w http.ResponseWriter, r *http.Request) {
	c, err := containerVars(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := decodeOrder(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, pipeline.Move{Container: c, Order: ids})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.views.Subscribe()
	defer s.views.Unsubscribe(updates)

	// Drain client frames so a closed socket ends the stream.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if v, ok := s.views.Latest(); ok {
		if err := conn.WriteJSON(v); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	for {
		select {
		case v, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(v); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleGetPins(w http.ResponseWriter, r *http.Request) {
	if s.pins == nil {
		writeJSON(w, http.StatusOK, pins.State{})
		return
	}
	writeJSON(w, http.StatusOK, s.pins.State())
}

func (s *Server) handlePinWindow(op pipeline.PinOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := windowIDVar(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.submit(w, r, pipeline.PinWindow{ID: id, Op: op})
	}
}

func (s *Server) handlePinApp(op pipeline.PinOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.submit(w, r, pipeline.PinApp{AppID: model.AppID(mux.Vars(r)["app"]), Op: op})
	}
}

func (s *Server) handleWindowAction(build func(model.WindowID) pipeline.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := windowIDVar(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.submit(w, r, build(id))
	}
}

func (s *Server) handleGetOverlay(w http.ResponseWriter, r *http.Request) {
	if s.overlay == nil {
		writeJSON(w, http.StatusOK, overlay.Settings{})
		return
	}
	writeJSON(w, http.StatusOK, s.overlay.Settings())
}

func (s *Server) handleUpdateOverlay(w http.ResponseWriter, r *http.Request) {
	if s.overlay == nil {
		writeError(w, http.StatusNotFound, errors.New("overlay not configured"))
		return
	}

	settings := s.overlay.Settings()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.overlay.Update(settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Re-run the guard against the new strip.
	if err := s.intents.Submit(r.Context(), pipeline.Refresh{}); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Refresh after overlay update failed")
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
