package slotgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
)

// ErrInvalidDate marks unparseable or out-of-range generation dates.
var ErrInvalidDate = errors.New("invalid date")

// Window is one working-hours window of a weekday template, expressed as
// minutes since midnight so it can be projected onto any calendar day.
type Window struct {
	StartMinute int
	EndMinute   int
	Capacity    int
}

// ParseWindow builds a Window from "HH:MM" clock strings.
func ParseWindow(start, end string, capacity int) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("window end %q not after start %q", end, start)
	}
	if capacity < 1 {
		capacity = 1
	}
	return Window{StartMinute: s, EndMinute: e, Capacity: capacity}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("bad clock value %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Materialize projects the window onto a calendar day (UTC midnight).
func (w Window) Materialize(day time.Time) (start, end time.Time) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(w.StartMinute) * time.Minute),
		day.Add(time.Duration(w.EndMinute) * time.Minute)
}

// HoursProvider supplies the per-weekday working-hours template.
type HoursProvider interface {
	WindowsFor(ctx context.Context, weekday time.Weekday) ([]Window, error)
}

// SlotWriter persists a slot unless one already exists for the same
// date + start time. Returns true when a row was created.
type SlotWriter interface {
	InsertIfAbsent(ctx context.Context, s model.Slot) (bool, error)
}

type Generator struct {
	hours  HoursProvider
	store  SlotWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewGenerator(hours HoursProvider, store SlotWriter, logger *slog.Logger) *Generator {
	return &Generator{
		hours:  hours,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateForDate materializes slots for one calendar day. Re-running for an
// already populated date creates no duplicates. Dates that do not parse as
// YYYY-MM-DD, or that lie in the past, fail with ErrInvalidDate.
func (g *Generator) GenerateForDate(ctx context.Context, dateStr string) (int, error) {
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, dateStr)
	}
	today := g.today()
	if day.Before(today) {
		return 0, fmt.Errorf("%w: %q is in the past", ErrInvalidDate, dateStr)
	}
	return g.generateForDay(ctx, day)
}

// GenerateRecurring materializes slots for each day in [today, today+daysAhead].
// Weekdays without configured windows are skipped. Generation is best-effort:
// a failed day is logged and does not roll back earlier days.
func (g *Generator) GenerateRecurring(ctx context.Context, daysAhead int) (int, error) {
	if daysAhead < 0 {
		return 0, fmt.Errorf("%w: days ahead must not be negative", ErrInvalidDate)
	}

	total := 0
	today := g.today()
	for d := 0; d <= daysAhead; d++ {
		day := today.AddDate(0, 0, d)
		n, err := g.generateForDay(ctx, day)
		if err != nil {
			g.logger.Error("slot generation failed for day", "date", day.Format("2006-01-02"), "err", err)
			continue
		}
		total += n
	}
	return total, nil
}

func (g *Generator) generateForDay(ctx context.Context, day time.Time) (int, error) {
	windows, err := g.hours.WindowsFor(ctx, day.Weekday())
	if err != nil {
		return 0, err
	}

	created := 0
	for _, w := range windows {
		start, end := w.Materialize(day)
		ok, err := g.store.InsertIfAbsent(ctx, model.Slot{
			Date:     day,
			StartAt:  start,
			EndAt:    end,
			Capacity: w.Capacity,
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (g *Generator) today() time.Time {
	now := g.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
