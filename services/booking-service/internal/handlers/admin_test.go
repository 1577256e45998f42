package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/slotgen"
)

type stubHours struct {
	windows []slotgen.Window
}

func (s stubHours) WindowsFor(context.Context, time.Weekday) ([]slotgen.Window, error) {
	return s.windows, nil
}

type stubStore struct {
	created int
}

func (s *stubStore) InsertIfAbsent(context.Context, model.Slot) (bool, error) {
	s.created++
	return true, nil
}

func TestGenerateSlotsEndpoint(t *testing.T) {
	window, err := slotgen.ParseWindow("09:00", "11:00", 2)
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	store := &stubStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := slotgen.NewGenerator(stubHours{windows: []slotgen.Window{window}}, store, logger)
	h := NewAdminHandler(gen, nil, nil, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/slots/generate", strings.NewReader(`{"date":"2099-06-02"}`))
	rw := httptest.NewRecorder()
	h.GenerateSlots(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rw.Code, rw.Body.String())
	}
	if store.created == 0 {
		t.Fatalf("expected slots to be created")
	}
	if !strings.Contains(rw.Body.String(), `"created"`) {
		t.Fatalf("response missing created count: %s", rw.Body.String())
	}
}

func TestGenerateSlotsRejectsBadDate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := slotgen.NewGenerator(stubHours{}, &stubStore{}, logger)
	h := NewAdminHandler(gen, nil, nil, logger)

	for _, body := range []string{`{"date":"02-06-2099"}`, `{"date":"2001-01-01"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/slots/generate", strings.NewReader(body))
		rw := httptest.NewRecorder()
		h.GenerateSlots(rw, req)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rw.Code)
		}
	}
}
