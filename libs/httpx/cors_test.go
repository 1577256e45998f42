package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSExposesConfiguredHeaders(t *testing.T) {
	mw := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.voyago.example"},
		AllowedMethods: []string{"GET", "POST"},
		ExposedHeaders: []string{"X-Request-Id"},
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	req.Header.Set("Origin", "https://app.voyago.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-Id" {
		t.Fatalf("Access-Control-Expose-Headers = %q, want X-Request-Id", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.voyago.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSIgnoresUnlistedOrigin(t *testing.T) {
	mw := WithCORS(CORSPolicy{AllowedOrigins: []string{"https://app.voyago.example"}})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must get no CORS headers, got %q", got)
	}
}
