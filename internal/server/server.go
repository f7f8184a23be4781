// Package server provides the HTTP API: model training and prediction, data
// ingestion endpoints, system status, and the live event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/config"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/ingest"
	"github.com/agrilab/quantfarm/internal/models"
	"github.com/agrilab/quantfarm/internal/reliability"
	"github.com/agrilab/quantfarm/internal/scheduler"
)

// Deps carries everything the HTTP layer needs. Backup may be nil when no
// offsite target is configured.
type Deps struct {
	Cfg        *config.Config
	Ingest     *ingest.Service
	Yield      *models.YieldRegressor
	Irrigation *models.IrrigationModel
	Pest       *models.PestClassifier
	Snapshots  *reliability.SnapshotService
	Backup     *reliability.OffsiteBackupService
	Bus        *events.Bus
	Scheduler  *scheduler.Scheduler
	Jobs       map[string]scheduler.Job
	Log        zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	deps   Deps
	model  *ModelHandlers
	data   *DataHandlers
	system *SystemHandlers
	stream *EventStreamHandler
}

// New creates the server and wires all routes.
func New(deps Deps) *Server {
	log := deps.Log.With().Str("component", "server").Logger()

	data := NewDataHandlers(deps)
	s := &Server{
		router: chi.NewRouter(),
		log:    log,
		deps:   deps,
		model:  NewModelHandlers(deps, data),
		data:   data,
		system: NewSystemHandlers(deps),
		stream: NewEventStreamHandler(deps.Bus, deps.Log),
	}

	s.setupMiddleware(deps.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", deps.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // training requests are slow
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.system.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Live event stream, websocket.
		r.Get("/events/stream", s.stream.ServeHTTP)

		r.Route("/data", func(r chi.Router) {
			r.Get("/weather", s.data.HandleWeather)
			r.Get("/market", s.data.HandleMarket)
			r.Get("/market/history", s.data.HandleMarketHistory)
			r.Get("/soil", s.data.HandleSoil)
			r.Get("/features", s.data.HandleFeatures)
		})

		r.Route("/models", func(r chi.Router) {
			r.Post("/yield/train", s.model.HandleYieldTrain)
			r.Post("/yield/predict", s.model.HandleYieldPredict)
			r.Post("/irrigation/train", s.model.HandleIrrigationTrain)
			r.Get("/irrigation/plan", s.model.HandleIrrigationPlan)
			r.Post("/pest/train", s.model.HandlePestTrain)
			r.Post("/pest/predict", s.model.HandlePestPredict)

			r.Post("/{model}/snapshot", s.model.HandleSnapshot)
			r.Post("/{model}/restore", s.model.HandleRestore)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleStatus)
			r.Get("/snapshots", s.system.HandleListSnapshots)
			r.Get("/backups", s.system.HandleListBackups)
			r.Post("/jobs/{name}", s.system.HandleTriggerJob)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.deps.Cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.stream.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
