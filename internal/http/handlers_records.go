package http

import (
	"net/http"

	"clinic/internal/core"
	"clinic/internal/storage"
)

// Patients

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patients, err := s.records.ListPatients(r.Context(), storage.PatientFilter{
		Page:   page,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(patients))
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var in core.PatientInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.CreatePatient(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(p))
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.GetPatient(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case p == nil:
		s.notFound(w, r, core.EntityPatient)
	default:
		s.respond(w, r, NewJSONResponse().Body(p))
	}
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in core.PatientInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.UpdatePatient(r.Context(), id, in)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case p == nil:
		s.notFound(w, r, core.EntityPatient)
	default:
		s.respond(w, r, NewJSONResponse().Body(p))
	}
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.DeletePatient(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case p == nil:
		s.notFound(w, r, core.EntityPatient)
	default:
		s.deleted(w, r, core.EntityPatient)
	}
}

// Appointments

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.records.ListAppointments(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(out))
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var in core.AppointmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.records.CreateAppointment(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(a))
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.records.GetAppointment(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case a == nil:
		s.notFound(w, r, core.EntityAppointment)
	default:
		s.respond(w, r, NewJSONResponse().Body(a))
	}
}

func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in core.AppointmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.records.UpdateAppointment(r.Context(), id, in)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case a == nil:
		s.notFound(w, r, core.EntityAppointment)
	default:
		s.respond(w, r, NewJSONResponse().Body(a))
	}
}

func (s *Server) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.records.DeleteAppointment(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case a == nil:
		s.notFound(w, r, core.EntityAppointment)
	default:
		s.deleted(w, r, core.EntityAppointment)
	}
}

// Payments

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.records.ListPayments(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(out))
}

func (s *Server) handleListPatientPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.records.ListPaymentsByPatient(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(out))
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var in core.PaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.CreatePayment(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(p))
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.GetPayment(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case p == nil:
		s.notFound(w, r, core.EntityPayment)
	default:
		s.respond(w, r, NewJSONResponse().Body(p))
	}
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in core.PaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.UpdatePayment(r.Context(), id, in)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case p == nil:
		s.notFound(w, r, core.EntityPayment)
	default:
		s.respond(w, r, NewJSONResponse().Body(p))
	}
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.records.DeletePayment(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case p == nil:
		s.notFound(w, r, core.EntityPayment)
	default:
		s.deleted(w, r, core.EntityPayment)
	}
}

// Visits

func (s *Server) handleListVisits(w http.ResponseWriter, r *http.Request) {
	f, err := parseVisitFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.records.ListVisits(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(out))
}

func (s *Server) handleCreateVisit(w http.ResponseWriter, r *http.Request) {
	var in core.VisitInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.records.CreateVisit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Body(v))
}

func (s *Server) handleGetVisit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.records.GetVisit(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case v == nil:
		s.notFound(w, r, core.EntityVisit)
	default:
		s.respond(w, r, NewJSONResponse().Body(v))
	}
}

func (s *Server) handleUpdateVisit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in core.VisitInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.records.UpdateVisit(r.Context(), id, in)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case v == nil:
		s.notFound(w, r, core.EntityVisit)
	default:
		s.respond(w, r, NewJSONResponse().Body(v))
	}
}

func (s *Server) handleDeleteVisit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.records.DeleteVisit(r.Context(), id)
	switch {
	case err != nil:
		s.writeError(w, r, err)
	case v == nil:
		s.notFound(w, r, core.EntityVisit)
	default:
		s.deleted(w, r, core.EntityVisit)
	}
}
