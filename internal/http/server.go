// Package http serves the clinic JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"clinic/internal/log"
	"clinic/internal/metrics"
	"clinic/internal/middleware/ratelimit"
	"clinic/internal/middleware/security"
	"clinic/internal/middleware/trace"
	"clinic/internal/services"

	"github.com/gorilla/mux"
)

// Config holds listener and middleware settings.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxHeaderBytes     int
}

func DefaultConfig() Config {
	return Config{
		Addr:               ":8000",
		RateLimitPerMinute: ratelimit.DefaultConfig().RequestsPerMinute,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     64 << 10,
	}
}

type Server struct {
	http.Server

	records *services.RecordService
	reports *services.ReportService
	metrics *metrics.Collector
	logger  *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, records *services.RecordService, reports *services.ReportService, collector *metrics.Collector, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if collector == nil {
		collector = metrics.New()
	}
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = def.MaxHeaderBytes
	}

	s := &Server{
		Server: http.Server{
			Addr:           cfg.Addr,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		records: records,
		reports: reports,
		metrics: collector,
		logger:  logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		securityDetector: security.NewDetector(logger),
		started:          time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	router := mux.NewRouter()
	s.routes(router)

	router.Use(
		s.metrics.Middleware,
		s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited),
		log.Middleware(s.logger, trace.FromRequest),
	)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = NotFoundError("Not Found").Write(w)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ErrorResponse(http.StatusMethodNotAllowed, "Method Not Allowed").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig(), security.DefaultCORSConfig())
	s.Handler = headers.Middleware(
		s.securityDetector.Middleware(
			s.traceMiddleware.Middleware(router)))

	return s
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	collection(r, "/patients", s.handleListPatients, http.MethodGet)
	collection(r, "/patients", s.handleCreatePatient, http.MethodPost)
	r.HandleFunc("/patients/{id}", s.handleGetPatient).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}", s.handleUpdatePatient).Methods(http.MethodPut)
	r.HandleFunc("/patients/{id}", s.handleDeletePatient).Methods(http.MethodDelete)

	collection(r, "/appointments", s.handleListAppointments, http.MethodGet)
	collection(r, "/appointments", s.handleCreateAppointment, http.MethodPost)
	r.HandleFunc("/appointments/{id}", s.handleGetAppointment).Methods(http.MethodGet)
	r.HandleFunc("/appointments/{id}", s.handleUpdateAppointment).Methods(http.MethodPut)
	r.HandleFunc("/appointments/{id}", s.handleDeleteAppointment).Methods(http.MethodDelete)

	collection(r, "/payments", s.handleListPayments, http.MethodGet)
	collection(r, "/payments", s.handleCreatePayment, http.MethodPost)
	r.HandleFunc("/payments/patient/{id}", s.handleListPatientPayments).Methods(http.MethodGet)
	r.HandleFunc("/payments/{id}", s.handleGetPayment).Methods(http.MethodGet)
	r.HandleFunc("/payments/{id}", s.handleUpdatePayment).Methods(http.MethodPut)
	r.HandleFunc("/payments/{id}", s.handleDeletePayment).Methods(http.MethodDelete)

	collection(r, "/visits", s.handleListVisits, http.MethodGet)
	collection(r, "/visits", s.handleCreateVisit, http.MethodPost)
	r.HandleFunc("/visits/{id}", s.handleGetVisit).Methods(http.MethodGet)
	r.HandleFunc("/visits/{id}", s.handleUpdateVisit).Methods(http.MethodPut)
	r.HandleFunc("/visits/{id}", s.handleDeleteVisit).Methods(http.MethodDelete)

	analytics := r.PathPrefix("/analytics").Subrouter()
	analytics.HandleFunc("/patients", s.handlePatientStats).Methods(http.MethodGet)
	analytics.HandleFunc("/appointments", s.handleAppointmentStats).Methods(http.MethodGet)
	analytics.HandleFunc("/finance", s.handleFinanceStats).Methods(http.MethodGet)
	analytics.HandleFunc("/visits", s.handleVisitStats).Methods(http.MethodGet)
	analytics.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	r.HandleFunc("/export/patients", s.handleExportPatients).Methods(http.MethodGet)
	r.HandleFunc("/import/patients", s.handleImportPatients).Methods(http.MethodPost)
}

// collection registers path with and without the trailing slash.
func collection(r *mux.Router, path string, h http.HandlerFunc, method string) {
	r.HandleFunc(path, h).Methods(method)
	r.HandleFunc(path+"/", h).Methods(method)
}

func (s *Server) onRateLimited(r *http.Request) {
	s.metrics.RateLimited()
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
}

// Shutdown stops the rate limiter cleanup and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
