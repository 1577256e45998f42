package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/slotgen"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/storage"
)

type AdminHandler struct {
	generator *slotgen.Generator
	hours     *storage.HoursRepository
	slots     *storage.SlotRepository
	logger    *slog.Logger
}

func NewAdminHandler(generator *slotgen.Generator, hours *storage.HoursRepository, slots *storage.SlotRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		generator: generator,
		hours:     hours,
		slots:     slots,
		logger:    logger,
	}
}

type generateRequest struct {
	Date string `json:"date"`
}

type generateRecurringRequest struct {
	DaysAhead int `json:"days_ahead"`
}

type generateResponse struct {
	Created int `json:"created"`
}

// GenerateSlots materializes the slots of one date from the weekly working
// hours. Re-running for the same date is a no-op for existing slots.
func (h *AdminHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	created, err := h.generator.GenerateForDate(r.Context(), strings.TrimSpace(req.Date))
	if err != nil {
		if errors.Is(err, slotgen.ErrInvalidDate) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("slot generation failed", "date", req.Date, "err", err)
		http.Error(w, "slot generation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Created: created})
}

// GenerateRecurring materializes slots for today through today+days_ahead.
// Days that fail are logged and skipped rather than aborting the sweep.
func (h *AdminHandler) GenerateRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.DaysAhead <= 0 {
		req.DaysAhead = 30
	}
	if req.DaysAhead > 365 {
		http.Error(w, "days_ahead must be at most 365", http.StatusBadRequest)
		return
	}

	created, err := h.generator.GenerateRecurring(r.Context(), req.DaysAhead)
	if err != nil {
		h.logger.Error("recurring slot generation failed", "err", err)
		http.Error(w, "slot generation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Created: created})
}

type availabilityRequest struct {
	SlotID    string `json:"slot_id"`
	Available bool   `json:"available"`
}

// SetAvailability opens or closes a single slot without touching its
// bookings. Closed slots stay visible but reject new bookings.
func (h *AdminHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	if uuid.Validate(req.SlotID) != nil {
		http.Error(w, "slot_id must be a uuid", http.StatusBadRequest)
		return
	}

	if err := h.slots.SetAvailability(r.Context(), req.SlotID, req.Available); err != nil {
		if db.IsNotFound(err) {
			http.Error(w, "slot not found", http.StatusNotFound)
			return
		}
		h.logger.Error("slot availability update failed", "slot_id", req.SlotID, "err", err)
		http.Error(w, "failed to update slot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type clearRequest struct {
	Date string `json:"date"`
}

type clearResponse struct {
	Removed int64 `json:"removed"`
}

// ClearUnbooked deletes the still-empty slots of one day, typically after
// the working hours changed and the day needs regenerating.
func (h *AdminHandler) ClearUnbooked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	removed, err := h.slots.ClearUnbooked(r.Context(), day)
	if err != nil {
		h.logger.Error("slot clear failed", "date", req.Date, "err", err)
		http.Error(w, "failed to clear slots", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Removed: removed})
}

// Hours serves GET and PUT of the weekly working-hours table that slot
// generation reads from.
func (h *AdminHandler) Hours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hours, err := h.hours.ListAll(r.Context())
		if err != nil {
			h.logger.Error("hours listing failed", "err", err)
			http.Error(w, "failed to list working hours", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, hours)
	case http.MethodPut:
		var hours []storage.WeekdayHours
		if err := json.NewDecoder(r.Body).Decode(&hours); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		for _, wh := range hours {
			if wh.Weekday < 0 || wh.Weekday > 6 {
				http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
				return
			}
			if _, err := slotgen.ParseWindow(wh.Start, wh.End, wh.Capacity); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if err := h.hours.ReplaceAll(r.Context(), hours); err != nil {
			h.logger.Error("hours replace failed", "err", err)
			http.Error(w, "failed to store working hours", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, hours)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
