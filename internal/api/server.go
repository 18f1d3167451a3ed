package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"sbzdeck/internal/coordinator"
	"sbzdeck/internal/settings"
	"sbzdeck/internal/shadowstate"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const statusTimeout = 2 * time.Second

// StatusSource reads the coordinator state.
type StatusSource interface {
	Status(ctx context.Context) (coordinator.Status, error)
}

// HistorySource reads the recorded decisions.
type HistorySource interface {
	GetState() shadowstate.SwitchShadowState
}

// Server provides a local HTTP view of the plugin state
type Server struct {
	status  StatusSource
	history HistorySource
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(status StatusSource, history HistorySource, logger *zap.Logger, port int) *Server {
	s := &Server{
		status:  status,
		history: history,
		logger:  logger.Named("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleGetState)
		r.Get("/history", s.handleGetHistory)
	})
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// writeJSON encodes v before writing the header so an unencodable value becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

// StateResponse represents the JSON response for the state endpoint
type StateResponse struct {
	CurrentOutput      string                  `json:"currentOutput"`
	Contexts           []string                `json:"contexts"`
	SelectedParameters map[string][]string     `json:"selectedParameters"`
	Profiles           settings.ProfilesRecord `json:"profiles"`
}

// handleGetState returns the active output, registered buttons and stored profiles
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	status, err := s.status.Status(ctx)
	if err != nil {
		s.logger.Error("Failed to read coordinator status", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	record := settings.Encode(status.Settings)
	response := StateResponse{
		CurrentOutput:      "unknown",
		Contexts:           status.Contexts,
		SelectedParameters: record.SelectedParameters,
		Profiles:           record.Profiles,
	}
	if status.CurrentOutput != nil {
		response.CurrentOutput = status.CurrentOutput.String()
	}
	if response.Contexts == nil {
		response.Contexts = []string{}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetHistory returns the observed inputs and recent decisions
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.GetState())
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{
		Path:        "/",
		Method:      "GET",
		Description: "This sitemap - lists all available API endpoints",
	},
	{
		Path:        "/api/state",
		Method:      "GET",
		Description: "Current output, registered buttons, selection and stored profiles",
	},
	{
		Path:        "/api/history",
		Method:      "GET",
		Description: "Observed hardware values and recent switching decisions",
	},
	{
		Path:        "/health",
		Method:      "GET",
		Description: "Health check endpoint - returns {\"status\": \"ok\"}",
	},
}

var sitemapPage = template.Must(template.New("sitemap").Parse(`<!DOCTYPE html>
<html>
<head><title>sbzdeck</title></head>
<body>
<h1>sbzdeck status</h1>
<table>
{{range .}}<tr><td>{{.Method}}</td><td><a href="{{.Path}}">{{.Path}}</a></td><td>{{.Description}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// handleSitemap lists the endpoints as HTML for browsers and plain text otherwise
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sitemapPage.Execute(w, endpoints); err != nil {
			s.logger.Warn("Failed to render sitemap", zap.Error(err))
		}
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "sbzdeck\n")
		fmt.Fprintf(w, "=======\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-10s %-20s %s\n", ep.Method, ep.Path, ep.Description)
		}
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
