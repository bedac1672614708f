package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"clinic/internal/core"
	"clinic/internal/log"
)

func (s *Server) handlePatientStats(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.reports.PatientStats(r.Context(), dr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(stats))
}

func (s *Server) handleAppointmentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reports.AppointmentStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(stats))
}

func (s *Server) handleFinanceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reports.FinanceStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(stats))
}

func (s *Server) handleVisitStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reports.VisitStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(stats))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.reports.Dashboard(r.Context(), dr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(stats))
}

// Bulk import/export

// trackingWriter notes whether any byte reached the client.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.written = true
	return t.ResponseWriter.Write(b)
}

func (s *Server) handleExportPatients(w http.ResponseWriter, r *http.Request) {
	tw := &trackingWriter{ResponseWriter: w}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="patients_export.csv"`)

	if err := s.records.ExportPatientsCSV(r.Context(), tw); err != nil {
		if !tw.written {
			w.Header().Del("Content-Disposition")
			s.writeError(w, r, err)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Export aborted mid-stream",
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
	}
}

type importResult struct {
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
}

func (s *Server) handleImportPatients(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respond(w, r, BadRequestError(fmt.Sprintf("File must not exceed %d bytes", tooLarge.Limit)))
			return
		}
		s.respond(w, r, BadRequestError("Request must be multipart/form-data with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respond(w, r, BadRequestError("file is required"))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		s.respond(w, r, BadRequestError("File must be a CSV"))
		return
	}

	n, err := s.records.ImportPatientsCSV(r.Context(), file)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			s.respond(w, r, BadRequestError("Error importing CSV: "+err.Error()))
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.respond(w, r, NewJSONResponse().Body(importResult{
		Message:       fmt.Sprintf("Successfully imported %d patients", n),
		ImportedCount: n,
	}))
}
