// Package scan finds upcoming bookings whose reminder lead time has come due
// and hands them to the dispatcher, at most once per booking and lead.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/yawo-koffi/voyago/services/reminder-service/internal/settings"
)

// The scan window brackets now+lead by half an hour on each side, so a
// scanner that runs at least twice an hour cannot miss a booking.
const windowSlack = 30 * time.Minute

// A candidate must sit within an hour of its exact lead mark to fire.
// Anything further off is either too early or already missed.
const precisionSlack = 1.0

// Candidate is a projected booking eligible for a reminder.
type Candidate struct {
	BookingID    string
	SubjectName  string
	ContactEmail string
	ContactPhone string
	SlotStart    time.Time
	SlotEnd      time.Time
	Status       string
}

// Store is the projection the scanner reads from and records sends into.
type Store interface {
	// DueCandidates returns active bookings starting inside [from, to].
	DueCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error)
	// ClaimSend records that a reminder for (booking, lead) is being sent.
	// It returns false when one was already recorded.
	ClaimSend(ctx context.Context, bookingID string, leadHours int) (bool, error)
	// ReleaseSend undoes a claim after a failed dispatch so a later scan
	// can retry.
	ReleaseSend(ctx context.Context, bookingID string, leadHours int) error
}

// Dispatcher delivers one reminder. The configuration rides along so the
// delivery edge sees the channel flags and templates that were current when
// the reminder fired. The scanner counts an error as a failed send.
type Dispatcher interface {
	Dispatch(ctx context.Context, c Candidate, leadHours int, cfg settings.Settings) error
}

// SettingsSource yields the current reminder configuration.
type SettingsSource interface {
	Current(ctx context.Context) (settings.Settings, error)
}

// Report is the outcome of one scan run.
type Report struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func (r *Report) add(other Report) {
	r.Sent += other.Sent
	r.Failed += other.Failed
}

type Scanner struct {
	store      Store
	dispatcher Dispatcher
	settings   SettingsSource
	logger     *slog.Logger
	now        func() time.Time
}

func NewScanner(store Store, dispatcher Dispatcher, src SettingsSource, logger *slog.Logger) *Scanner {
	return &Scanner{
		store:      store,
		dispatcher: dispatcher,
		settings:   src,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the scanner's clock.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// RunForLead scans for bookings due a reminder at the given lead time and
// dispatches one reminder per booking. Re-running the same lead never sends
// twice for the same booking.
func (s *Scanner) RunForLead(ctx context.Context, cfg settings.Settings, leadHours int) (Report, error) {
	var report Report
	if leadHours <= 0 {
		return report, nil
	}

	now := s.now().UTC()
	mark := now.Add(time.Duration(leadHours) * time.Hour)
	candidates, err := s.store.DueCandidates(ctx, mark.Add(-windowSlack), mark.Add(windowSlack))
	if err != nil {
		return report, err
	}

	for _, c := range candidates {
		hoursUntil := c.SlotStart.Sub(now).Hours()
		if hoursUntil < 0 {
			// Already started; nothing to remind about.
			continue
		}
		if math.Abs(hoursUntil-float64(leadHours)) > precisionSlack {
			continue
		}

		claimed, err := s.store.ClaimSend(ctx, c.BookingID, leadHours)
		if err != nil {
			return report, err
		}
		if !claimed {
			continue
		}

		if err := s.dispatcher.Dispatch(ctx, c, leadHours, cfg); err != nil {
			s.logger.Error("reminder dispatch failed", "booking_id", c.BookingID, "lead_hours", leadHours, "err", err)
			if rerr := s.store.ReleaseSend(ctx, c.BookingID, leadHours); rerr != nil {
				s.logger.Error("reminder claim release failed", "booking_id", c.BookingID, "lead_hours", leadHours, "err", rerr)
			}
			report.Failed++
			continue
		}
		report.Sent++
	}

	s.logger.Info("reminder scan finished", "lead_hours", leadHours, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

// RunAll runs every configured lead time and aggregates the outcomes.
// A disabled configuration yields an empty report.
func (s *Scanner) RunAll(ctx context.Context) (Report, error) {
	var report Report

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return report, err
	}
	if !cfg.Enabled {
		return report, nil
	}
	if !cfg.AnyChannelEnabled() {
		// Claiming sends with every channel off would burn the one shot
		// each (booking, lead) pair gets. Leave them for when a channel
		// comes back on.
		s.logger.Info("reminder scan skipped, no delivery channel enabled")
		return report, nil
	}

	var errs []error
	for _, lead := range cfg.LeadHours {
		r, err := s.RunForLead(ctx, cfg, lead)
		report.add(r)
		if err != nil {
			s.logger.Error("lead scan failed", "lead_hours", lead, "err", err)
			errs = append(errs, err)
		}
	}
	// One bad lead must not hide the others' work; error out only when
	// nothing ran at all.
	if len(errs) > 0 && len(errs) == len(cfg.LeadHours) {
		return report, errors.Join(errs...)
	}
	return report, nil
}
