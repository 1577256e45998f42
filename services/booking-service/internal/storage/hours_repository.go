package storage

import (
	"context"
	"time"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/slotgen"
)

// HoursRepository stores the agency's weekly working-hours template, the
// source the slot generator materializes slots from.
type HoursRepository struct {
	pool *db.Pool
}

func NewHoursRepository(pool *db.Pool) *HoursRepository {
	return &HoursRepository{pool: pool}
}

func (r *HoursRepository) WindowsFor(ctx context.Context, weekday time.Weekday) ([]slotgen.Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), capacity
		FROM agency_hours
		WHERE weekday = $1
		ORDER BY start_time
	`, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []slotgen.Window
	for rows.Next() {
		var start, end string
		var capacity int
		if err := rows.Scan(&start, &end, &capacity); err != nil {
			return nil, err
		}
		w, err := slotgen.ParseWindow(start, end, capacity)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

type WeekdayHours struct {
	Weekday  int    `json:"weekday"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Capacity int    `json:"capacity"`
}

func (r *HoursRepository) ListAll(ctx context.Context) ([]WeekdayHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), capacity
		FROM agency_hours
		ORDER BY weekday, start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeekdayHours
	for rows.Next() {
		var h WeekdayHours
		if err := rows.Scan(&h.Weekday, &h.Start, &h.End, &h.Capacity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceAll swaps the whole weekly template in one transaction.
func (r *HoursRepository) ReplaceAll(ctx context.Context, hours []WeekdayHours) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM agency_hours`); err != nil {
		return err
	}
	for _, h := range hours {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agency_hours (weekday, start_time, end_time, capacity)
			VALUES ($1, $2::time, $3::time, $4)
		`, h.Weekday, h.Start, h.End, h.Capacity); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
