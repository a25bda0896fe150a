// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
	"github.com/okian/keystudy/pkg/logger"
)

const defaultMaxBodyBytes int64 = 10 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ParticipantDependencies
	EventDependencies
	FeatureDependencies
	DataDependencies
	HealthDependencies
}

// Server wires HTTP routes for the study API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	participantsHandler *ParticipantsHandler
	eventsHandler       *EventsHandler
	featuresHandler     *FeaturesHandler
	dataHandler         *DataHandler

	maxBodyBytes int64
	corsOrigin   string
	log          logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxBodyBytes limits request bodies of write endpoints.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value for /api routes.
// An empty origin disables CORS headers.
func WithCORSOrigin(origin string) ServerOption {
	return func(s *Server) {
		s.corsOrigin = origin
	}
}

// WithLogger sets the logger used to report server-side failures.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		maxBodyBytes: defaultMaxBodyBytes,
		corsOrigin:   "*",
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.participantsHandler = NewParticipantsHandler(deps, s.log)
	s.eventsHandler = NewEventsHandler(deps, s.log)
	s.featuresHandler = NewFeaturesHandler(deps, s.log)
	s.dataHandler = NewDataHandler(deps, s.log)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("api: nil mux")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	s.api(mux, "POST /api/create_participant", "create_participant", s.participantsHandler.HandleCreate)
	s.api(mux, "GET /api/participants/{id}", "get_participant", s.participantsHandler.HandleGet)
	s.api(mux, "POST /api/save_events", "save_events", s.limit(s.eventsHandler.HandleSaveEvents))
	s.api(mux, "POST /api/save_features", "save_features", s.limit(s.featuresHandler.HandleSaveFeatures))
	s.api(mux, "GET /api/get_data", "get_data", s.dataHandler.HandleGetData)
	s.api(mux, "GET /api/export_csv", "export_csv", s.dataHandler.HandleExportCSV)
	mux.Handle("OPTIONS /api/", CORS(s.corsOrigin, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}

func (s *Server) api(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.Handle(pattern, CORS(s.corsOrigin, MetricsMiddleware(h, endpoint)))
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Success: false, Message: msg, Code: code})
}

// decodeJSON reads exactly one JSON object into v. Unknown fields and
// trailing data are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON body", ErrBadRequest)
	}
	return nil
}

// validationMessage returns a short message for a validation failure.
func validationMessage(err error) string {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return err.Error()
}
