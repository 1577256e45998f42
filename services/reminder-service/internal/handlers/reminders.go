package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/yawo-koffi/voyago/services/reminder-service/internal/scan"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/storage"
)

type ReminderHandler struct {
	scanner      *scan.Scanner
	settingsRepo *storage.SettingsRepository
	logger       *slog.Logger
}

func NewReminderHandler(scanner *scan.Scanner, settingsRepo *storage.SettingsRepository, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{
		scanner:      scanner,
		settingsRepo: settingsRepo,
		logger:       logger,
	}
}

type runRequest struct {
	// LeadHours is either a configured lead time or the string "all".
	LeadHours json.RawMessage `json:"lead_hours"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Run triggers a reminder scan on demand and reports how many reminders were
// dispatched and how many failed.
func (h *ReminderHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	raw := strings.Trim(strings.TrimSpace(string(req.LeadHours)), `"`)
	if raw == "" || raw == "all" {
		report, err := h.scanner.RunAll(r.Context())
		if err != nil {
			h.logger.Error("reminder run failed", "err", err)
			http.Error(w, "reminder run failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	lead, err := strconv.Atoi(raw)
	if err != nil || lead <= 0 {
		http.Error(w, `lead_hours must be a positive integer or "all"`, http.StatusBadRequest)
		return
	}

	cfg, err := h.settingsRepo.Current(r.Context())
	if err != nil {
		h.logger.Error("settings load failed", "err", err)
		http.Error(w, "failed to load reminder settings", http.StatusInternalServerError)
		return
	}
	if !cfg.HasLead(lead) {
		http.Error(w, "lead_hours is not a configured lead time", http.StatusBadRequest)
		return
	}

	report, err := h.scanner.RunForLead(r.Context(), cfg, lead)
	if err != nil {
		h.logger.Error("reminder run failed", "lead_hours", lead, "err", err)
		http.Error(w, "reminder run failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Settings serves GET and PUT of the singleton reminder configuration.
func (h *ReminderHandler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.settingsRepo.Current(r.Context())
		if err != nil {
			h.logger.Error("settings load failed", "err", err)
			http.Error(w, "failed to load reminder settings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		// Decode over the stored settings so a body that omits a field
		// keeps its current value instead of zeroing it.
		cfg, err := h.settingsRepo.Current(r.Context())
		if err != nil {
			h.logger.Error("settings load failed", "err", err)
			http.Error(w, "failed to load reminder settings", http.StatusInternalServerError)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		stored, err := h.settingsRepo.Save(r.Context(), cfg)
		if err != nil {
			h.logger.Error("settings save failed", "err", err)
			http.Error(w, "failed to store reminder settings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
