// Package api serves HTTP receipt intake, stage lookups and the employee admin endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/models"
	"receipt-agent/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxConcurrent  = 4
	defaultMaxUploadBytes = 10 << 20
)

type Processor interface {
	Process(ctx context.Context, doc extraction.Document) (*pipeline.Result, error)
}

type StageReader interface {
	Get(ctx context.Context, fileID string) (*models.FileStatus, error)
	List(ctx context.Context, limit int) ([]*models.FileStatus, error)
}

type EmployeeStore interface {
	Get(ctx context.Context, employeeID string) (*models.Employee, error)
	List(ctx context.Context) ([]*models.Employee, error)
	Upsert(ctx context.Context, emp *models.Employee) error
}

// Options configures a Server. Ready is optional and backs /ready.
type Options struct {
	Processor      Processor
	Stages         StageReader
	Employees      EmployeeStore
	Logger         logger.Logger
	MaxConcurrent  int
	MaxUploadBytes int64
	Ready          func(ctx context.Context) error
}

type Server struct {
	opts   Options
	sem    *semaphore.Weighted
	logger logger.Logger

	// background processing outlives the request; it is cancelled by Shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	newID func() string
}

func NewServer(opts Options) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:  opts.Logger,
		baseCtx: ctx,
		cancel:  cancel,
		newID:   newFileID,
	}
}

// Router builds the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/processReceipt", s.processReceipt)
	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", s.listReceipts)
		r.Get("/{fileID}/stages", s.receiptStages)
	})
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", s.listEmployees)
		r.Get("/{employeeID}", s.getEmployee)
		r.Put("/{employeeID}", s.putEmployee)
	})
	return r
}

// ListenAndServe blocks until ctx is done, then drains in-flight receipts.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("intake server listening", map[string]interface{}{"address": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown(shutdownCtx)
	return err
}

// Shutdown waits for background receipts until ctx expires, then cancels the rest.
func (s *Server) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("cancelling in-flight receipts", nil)
	}
	s.cancel()
	<-done
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}
		s.logger.Debug("http request", map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start).String(),
			"requestId": middleware.GetReqID(r.Context()),
		})
	})
}
