package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/emit"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/session"
	"github.com/example/ride-dispatch/internal/storage"
	"github.com/example/ride-dispatch/internal/ws"
)

type Server struct {
	Geo      geo.Index
	Engine   *ride.Engine
	Store    storage.RideStore
	Kafka    *ingest.KafkaProducer
	Registry *session.Registry

	wsHandler *ws.Handler
	logger    *slog.Logger
	mux       *mux.Router

	// last reported availability per driver, so the gauge moves only
	// on an actual state change, not on every heartbeat
	availMu sync.Mutex
	avail   map[string]bool
}

// New wires the dispatch core from configuration: Redis geo index and
// Postgres store when configured, in-memory fallbacks otherwise.
func New(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var gidx geo.Index
	if cfg.RedisAddr != "" {
		gidx = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		gidx = geo.NewMemIndex()
	}

	var store storage.RideStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	registry := session.NewRegistry()
	emitter := emit.New(registry, logger)
	if cfg.PushEndpoint != "" {
		emitter.Fallback = emit.NewHTTPPush(cfg.PushEndpoint)
	}

	engine := ride.NewEngine(store, gidx, emitter, logger, cfg.DispatchRadiusM, cfg.MaxCandidates)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	s := &Server{
		Geo:       gidx,
		Engine:    engine,
		Store:     store,
		Kafka:     kp,
		Registry:  registry,
		wsHandler: ws.NewHandler(verifier, registry, engine, logger),
		logger:    logger,
		mux:       mux.NewRouter(),
		avail:     make(map[string]bool),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/ws", s.wsHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handleDriverLocation is the driver-side location/availability update
// flow. It feeds Kafka for the consumer fleet and upserts the local
// index so a single-node deployment dispatches without the pipeline.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if d.ID == "" || !d.Loc.Valid() {
		http.Error(w, "driver id and a valid location are required", http.StatusBadRequest)
		return
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(d); err != nil {
			s.logger.Warn("kafka publish failed", "driver_id", d.ID, "error", err)
		}
	}
	if err := s.Geo.Upsert(r.Context(), d); err != nil {
		http.Error(w, "index unavailable", http.StatusServiceUnavailable)
		return
	}
	s.trackAvailability(d)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) trackAvailability(d models.Driver) {
	s.availMu.Lock()
	defer s.availMu.Unlock()
	prev, seen := s.avail[d.ID]
	if seen && prev == d.Available {
		return
	}
	s.avail[d.ID] = d.Available
	if d.Available {
		observability.DriversAvailable.Inc()
	} else if seen {
		observability.DriversAvailable.Dec()
	}
}
