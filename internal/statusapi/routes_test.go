package statusapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openferry/ferry/internal/statusapi/middleware"
)

func TestSetupRoutes_AuthGuardsV1(t *testing.T) {
	routes := SetupRoutes(&stubSource{}, &RouteConfig{
		Auth: middleware.TokenAuthConfig{Token: "hunter2"},
	})

	// index is open
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("index: expected %d, got %d", http.StatusOK, w.Code)
	}

	// healthz is open
	w = httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz: expected %d, got %d", http.StatusOK, w.Code)
	}

	// v1 without token is rejected
	w = httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected %d, got %d", http.StatusUnauthorized, w.Code)
	}

	// v1 with token passes
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	routes.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token: expected %d, got %d", http.StatusOK, w.Code)
	}

	// unknown routes 404
	w = httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route: expected %d, got %d", http.StatusNotFound, w.Code)
	}
}
