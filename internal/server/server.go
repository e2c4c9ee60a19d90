package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathewevviai/diala-sub005/internal/cache"
	"github.com/mathewevviai/diala-sub005/internal/db"
	"github.com/mathewevviai/diala-sub005/internal/embedding"
	"github.com/mathewevviai/diala-sub005/internal/export"
	"github.com/mathewevviai/diala-sub005/internal/intake"
	"github.com/mathewevviai/diala-sub005/internal/jobs"
	"github.com/mathewevviai/diala-sub005/internal/ratelimit"
	"github.com/mathewevviai/diala-sub005/internal/worker"
	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	db            *db.DB
	registry      *jobs.Registry
	limiter       *ratelimit.Limiter
	entities      *cache.Cache
	engine        *workflow.Engine
	exporter      *export.Exporter
	intake        *intake.Intake
	inline        *worker.InlineWorker
	webhookSecret string
	sweepInterval time.Duration
	sweepDone     chan struct{}
}

// Config holds server configuration
type Config struct {
	Port           int
	DatabaseURL    string
	WebhookSecret  string
	WorkerURL      string
	WorkerSecret   string
	InlineWorker   bool
	ExportDir      string
	EmbeddingURL   string
	EmbeddingModel string
	SweepInterval  time.Duration
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	// Connect to database
	database, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, err
	}

	s := &Server{
		db:            database,
		webhookSecret: cfg.WebhookSecret,
		sweepInterval: cfg.SweepInterval,
	}

	s.registry = jobs.NewRegistry(database)
	s.limiter = ratelimit.NewLimiter(database, ratelimit.LoadConfig())
	s.entities = cache.New(database, nil)

	tiers := workflow.StaticTiers{}

	var dispatcher workflow.Dispatcher
	if cfg.InlineWorker {
		var embedder embedding.Embedder
		if cfg.EmbeddingURL != "" {
			embedder, err = embedding.NewOpenAIEmbedder(&embedding.Config{
				BaseURL: cfg.EmbeddingURL,
				Model:   cfg.EmbeddingModel,
			})
			if err != nil {
				database.Close()
				return nil, fmt.Errorf("failed to create embedder: %w", err)
			}
		} else {
			// No embedding endpoint configured; deterministic vectors keep
			// the full loop runnable in development.
			embedder = &embedding.MockEmbedder{}
		}
		s.inline, err = worker.NewInlineWorker(embedder, database, worker.InlineConfig{
			ExportDir: cfg.ExportDir,
		})
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create inline worker: %w", err)
		}
		dispatcher = s.inline
	} else {
		dispatcher = worker.NewHTTPDispatcher(cfg.WorkerURL, cfg.WorkerSecret)
	}

	s.engine = workflow.NewEngine(database, s.registry, dispatcher, tiers)
	s.exporter = export.NewExporter(s.registry, s.engine, tiers, dispatcher)
	s.intake = intake.New(s.registry, s.engine, s.entities)
	if s.inline != nil {
		s.inline.SetSink(s.intake)
	}

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(s.routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the request router.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job registry
	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /users/{id}/jobs", s.handleDeleteUserJobs)
	mux.HandleFunc("GET /users/{id}/limits/{kind}", s.handleCheckLimit)
	mux.HandleFunc("GET /users/{id}/quota", s.handleCheckQuota)

	// Worker webhook
	mux.HandleFunc("POST /webhooks/completions", s.handleWebhook)

	// Entity cache
	mux.HandleFunc("GET /cache/{type}/{key}", s.handleGetCachedEntity)

	// Workflows
	mux.HandleFunc("POST /workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("DELETE /workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("POST /workflows/{id}/sources", s.handleAddSource)
	mux.HandleFunc("POST /workflows/{id}/process", s.handleProcessWorkflow)
	mux.HandleFunc("GET /workflows/{id}/stats", s.handleWorkflowStats)
	mux.HandleFunc("POST /workflows/{id}/export", s.handleExportWorkflow)

	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	s.startSweeper()

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.stopSweeper()
	if s.inline != nil {
		s.inline.Close()
	}
	s.db.Close()
	log.Println("Server stopped")
	return nil
}

// startSweeper runs the expiry sweep on a ticker.
func (s *Server) startSweeper() {
	if s.sweepInterval <= 0 {
		return
	}
	s.sweepDone = make(chan struct{})
	ticker := time.NewTicker(s.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.sweepDone:
				return
			case <-ticker.C:
				swept, err := s.engine.SweepExpired(context.Background(), time.Now())
				if err != nil {
					log.Printf("[sweep] failed: %v", err)
				} else if swept > 0 {
					log.Printf("[sweep] removed %d expired workflows", swept)
				}
			}
		}
	}()
}

func (s *Server) stopSweeper() {
	if s.sweepDone != nil {
		close(s.sweepDone)
	}
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// domainError maps a domain error to its HTTP status and writes it.
func (s *Server) domainError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}
