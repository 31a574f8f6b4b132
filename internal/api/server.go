// Package api exposes review runs over HTTP. Webhook ingestion stays outside
// this service; callers submit raw diffs directly.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/secureview/internal/pipeline"
	"github.com/secureview/internal/review"
)

// runStatus tracks one submitted review.
type runStatus struct {
	RunID  string           `json:"run_id"`
	Status string           `json:"status"` // running, finished
	Result *pipeline.Result `json:"result,omitempty"`
}

// Server is the API server. Each submitted review runs in its own goroutine;
// the registry of runs is the only shared state and it is mutex-guarded.
type Server struct {
	echo    *echo.Echo
	port    int
	service *review.Service

	mu   sync.Mutex
	runs map[string]*runStatus
}

// NewServer creates an API server over the given review service.
func NewServer(port int, service *review.Service) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:    e,
		port:    port,
		service: service,
		runs:    make(map[string]*runStatus),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/reviews", s.createReview)
	v1.GET("/reviews/:id", s.getReviewByID)
}

// Start runs the server until interrupted, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

type createReviewRequest struct {
	RunID           string `json:"run_id,omitempty"`
	Diff            string `json:"diff"`
	ManifestDiff    string `json:"manifest_diff,omitempty"`
	EnableRetrieval *bool  `json:"enable_retrieval,omitempty"`
}

func (s *Server) createReview(c echo.Context) error {
	var req createReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Diff == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "diff is required"})
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.runs[runID]; exists {
		s.mu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "run already exists: " + runID})
	}
	status := &runStatus{RunID: runID, Status: "running"}
	s.runs[runID] = status
	s.mu.Unlock()

	go func() {
		result := s.service.ProcessReview(context.Background(), review.Request{
			RunID:           runID,
			RawDiff:         req.Diff,
			ManifestDiff:    req.ManifestDiff,
			EnableRetrieval: req.EnableRetrieval,
		})

		s.mu.Lock()
		status.Status = "finished"
		status.Result = result
		s.mu.Unlock()
	}()

	// Respond with a snapshot; the run goroutine owns the registry entry.
	return c.JSON(http.StatusAccepted, runStatus{RunID: runID, Status: "running"})
}

func (s *Server) getReviewByID(c echo.Context) error {
	id := c.Param("id")

	s.mu.Lock()
	status, ok := s.runs[id]
	var snapshot runStatus
	if ok {
		snapshot = *status
	}
	s.mu.Unlock()

	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no such run: " + id})
	}
	return c.JSON(http.StatusOK, snapshot)
}
