package metrics

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinic/internal/core"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveQuery(t *testing.T) {
	c := New()

	c.ObserveQuery("get_patient", 3*time.Millisecond, nil)
	c.ObserveQuery("get_patient", time.Millisecond, nil)
	c.ObserveQuery("create_payment", time.Millisecond, &core.NotFoundError{Entity: "Patient", ID: 4})
	c.ObserveQuery("delete_patient", time.Millisecond, &core.ConflictError{PatientID: 1})
	c.ObserveQuery("list_visits", time.Millisecond, errors.New("disk I/O error"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dbQueries.WithLabelValues("get_patient", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbQueries.WithLabelValues("create_payment", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbQueries.WithLabelValues("delete_patient", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbQueries.WithLabelValues("list_visits", "error")))
	assert.Equal(t, 4, testutil.CollectAndCount(c.dbDuration))
}

func TestEventsAndRateLimit(t *testing.T) {
	c := New()

	c.ObserveEvent("payment.recorded", nil)
	c.ObserveEvent("payment.recorded", errors.New("circuit open"))
	c.ObserveLedgerRow("payment.deleted", nil)
	c.RateLimited()
	c.RateLimited()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("payment.recorded", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("payment.recorded", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ledgerRows.WithLabelValues("payment.deleted", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rateLimitHits))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	c := New()
	r := mux.NewRouter()
	r.Use(c.Middleware)
	r.HandleFunc("/patients/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	for _, path := range []string{"/patients/1", "/patients/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/patients/{id}", "404")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := New()
	c.RegisterDB("sqlite", func() sql.DBStats { return sql.DBStats{OpenConnections: 1, InUse: 1} })
	c.RateLimited()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "clinic_rate_limit_hits_total 1"))
	assert.True(t, strings.Contains(text, `clinic_db_open_connections{dialect="sqlite"} 1`))
}
