package scan

import (
	"context"
	"log/slog"
	"time"
)

// Worker runs the scanner on a fixed interval. The interval must not exceed
// the scan window slack or bookings can slip between consecutive windows.
type Worker struct {
	scanner  *Scanner
	logger   *slog.Logger
	interval time.Duration
}

func NewWorker(scanner *Scanner, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 || interval > windowSlack {
		interval = 15 * time.Minute
	}
	return &Worker{scanner: scanner, logger: logger, interval: interval}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.scanner.RunAll(ctx); err != nil {
				w.logger.Error("reminder scan run failed", "err", err)
			}
		}
	}
}
