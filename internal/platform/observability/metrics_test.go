package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareLabelsByRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/api/v1/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"ord_1", "ord_2"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	count := testutil.ToFloat64(metrics.requests.WithLabelValues("/api/v1/orders/{orderID}", "GET", "404"))
	assert.Equal(t, float64(2), count)
}

func TestMetricsOrderCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.OrderCreated()
	metrics.OrderTransition("shipped", "applied")
	metrics.OrderTransition("shipped", "conflict")
	metrics.ItemUpdate("cancelled", true)
	metrics.ItemUpdate("cancelled", false)
	metrics.StockReservationFailed()
	metrics.NotificationFailed("order.confirmation")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ordersCreate))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.transitions.WithLabelValues("shipped", "conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.itemUpdates.WithLabelValues("cancelled", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.stockFails))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifyFails.WithLabelValues("order.confirmation")))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "storefront_orders_created_total 1")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.OrderCreated()
	metrics.ItemUpdate("confirmed", true)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSanitizers(t *testing.T) {
	assert.Equal(t, "/", SanitizeRoute("  "))
	assert.Equal(t, "/orders", SanitizeRoute("/ord\x00ers"))
	assert.Len(t, SanitizeRoute("/"+strings.Repeat("a", 400)), maxRouteLength)
	assert.Equal(t, "GET", SanitizeMethod(" get\x07"))
	assert.Equal(t, "", SanitizeUserID(""))
	assert.Len(t, SanitizeUserID(strings.Repeat("u", 100)), maxUserIDLength)
}
