package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"clinic/internal/core"
	"clinic/internal/log"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, NewJSONResponse().Body(map[string]string{
		"message": "Clinic Management API is running",
		"docs":    "/docs",
	}))
}

// handleHealth is a liveness check; it touches no dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, NewJSONResponse().Body(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}))
}

// handleReady pings the database and reports 503 when it is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients": s.rateLimiter.ActiveClients(),
			"status":         "ok",
		},
	}

	if err := s.records.Ping(ctx); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		code = http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
	} else {
		checks["database"] = "ok"
	}

	s.respond(w, r, NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}))
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *JSONResponseBuilder) {
	if err := b.Write(w); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to write response",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	}
}

// writeError translates service errors into the {"detail": ...} envelope.
// Unclassified errors are logged and reported without their cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())

	var (
		verr     *core.ValidationError
		notFound *core.NotFoundError
		conflict *core.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		s.respond(w, r, BadRequestError(verr.Error()))
	case errors.As(err, &notFound):
		s.respond(w, r, NotFoundError(notFound.Error()))
	case errors.As(err, &conflict):
		s.respond(w, r, ConflictError(conflict.Error()))
	case errors.Is(err, context.Canceled):
		logger.InfoContext(r.Context(), "Request cancelled by client", log.FieldPath, r.URL.Path)
	default:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal)
		s.respond(w, r, InternalServerError())
	}
}

// notFound reports an absent target record.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request, entity string) {
	s.respond(w, r, NotFoundError(entity+" not found"))
}

func (s *Server) deleted(w http.ResponseWriter, r *http.Request, entity string) {
	s.respond(w, r, MessageResponse(entity+" deleted successfully"))
}
