package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteSplit(t *testing.T) {
	booking := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Backend", "booking")
		w.WriteHeader(http.StatusOK)
	})
	reminder := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Backend", "reminder")
		w.WriteHeader(http.StatusOK)
	})

	mux := http.NewServeMux()
	registerServiceRoutes(mux, booking, reminder)

	cases := []struct {
		path    string
		backend string
	}{
		{"/api/v1/public/slots", "booking"},
		{"/api/v1/public/book", "booking"},
		{"/api/v1/bookings/cancel", "booking"},
		{"/api/v1/admin/slots/generate", "booking"},
		{"/api/v1/admin/hours", "booking"},
		{"/api/v1/admin/reminders/run", "reminder"},
		{"/api/v1/admin/settings/reminders", "reminder"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://gateway"+tc.path, nil)
		rw := httptest.NewRecorder()
		mux.ServeHTTP(rw, req)
		if got := rw.Header().Get("X-Backend"); got != tc.backend {
			t.Fatalf("path %s routed to %q, want %q", tc.path, got, tc.backend)
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	mux := http.NewServeMux()
	registerServiceRoutes(mux,
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	req := httptest.NewRequest(http.MethodGet, "http://gateway/api/v1/billing/invoices", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("unrouted path returned %d, want 404", rw.Code)
	}
}
