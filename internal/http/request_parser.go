package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"clinic/internal/core"
	"clinic/internal/storage"

	"github.com/gorilla/mux"
)

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 10 << 20
)

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected. Like every parser here it fails with a *core.ValidationError so
// the handler answers 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var verr *core.ValidationError
		switch {
		case errors.As(err, &tooLarge):
			return core.Invalidf("", "request body must not exceed %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return core.Invalidf("", "request body is empty")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return core.Invalidf("", "request body is truncated JSON")
		case errors.As(err, &syntaxErr):
			return core.Invalidf("", "malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return core.Invalidf(typeErr.Field, "must be a %s", typeErr.Type)
		case errors.As(err, &verr):
			return verr
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return core.Invalidf(field, "unknown field")
		default:
			return core.Invalidf("", "invalid request body: %v", err)
		}
	}
	if dec.More() {
		return core.Invalidf("", "request body must contain a single JSON object")
	}
	return nil
}

// pathID reads the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.Invalidf("id", "%q is not an integer", raw)
	}
	return id, nil
}

// parseInt reads an optional integer query parameter.
func parseInt(q url.Values, name string, fallback int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalidf(name, "%q is not an integer", v)
	}
	return n, nil
}

// parsePage reads skip and limit, defaulting to 0 and 100.
func parsePage(q url.Values) (storage.Page, error) {
	page := storage.DefaultPage()
	var err error
	if page.Skip, err = parseInt(q, "skip", page.Skip); err != nil {
		return storage.Page{}, err
	}
	if page.Limit, err = parseInt(q, "limit", page.Limit); err != nil {
		return storage.Page{}, err
	}
	return page, nil
}

// parseDate reads an optional YYYY-MM-DD query parameter. A missing value is
// the zero Date.
func parseDate(q url.Values, name string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Invalid(name, err)
	}
	return d, nil
}

func parseDateRange(q url.Values) (core.DateRange, error) {
	start, err := parseDate(q, "start_date")
	if err != nil {
		return core.DateRange{}, err
	}
	end, err := parseDate(q, "end_date")
	if err != nil {
		return core.DateRange{}, err
	}
	return core.DateRange{Start: start, End: end}, nil
}

func parseVisitFilter(q url.Values) (storage.VisitFilter, error) {
	page, err := parsePage(q)
	if err != nil {
		return storage.VisitFilter{}, err
	}
	patientID, err := parseInt(q, "patient_id", 0)
	if err != nil {
		return storage.VisitFilter{}, err
	}
	r, err := parseDateRange(q)
	if err != nil {
		return storage.VisitFilter{}, err
	}
	return storage.VisitFilter{Page: page, PatientID: int64(patientID), From: r.Start, To: r.End}, nil
}
