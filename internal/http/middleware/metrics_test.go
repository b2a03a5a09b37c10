package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/chats/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.DELETE("/chats/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseGet := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/chats/:id", "200"))
	baseDel := testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "/chats/:id", "204"))
	baseMiss := testutil.ToFloat64(httpRequests.WithLabelValues("GET", unmatchedRoute, "404"))

	serve(r, httptest.NewRequest(http.MethodGet, "/chats/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/chats/2", nil))
	serve(r, httptest.NewRequest(http.MethodDelete, "/chats/2", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/chats/:id", "200")); got != baseGet+2 {
		t.Fatalf("GET counter = %v; want %v", got, baseGet+2)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "/chats/:id", "204")); got != baseDel+1 {
		t.Fatalf("DELETE counter = %v; want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v", got)
	}
}
