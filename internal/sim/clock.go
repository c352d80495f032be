package sim

import (
	"context"
	"log/slog"
	"time"

	"predictsim/internal/config"
)

// Clock drives RunDay on a ticker, one simulated day per tick.
type Clock struct {
	orch  *Orchestrator
	cfg   config.ClockConfig
	onDay func(DayResult)
}

// NewClock creates a Clock. onDay, if non-nil, sees every completed day.
func NewClock(orch *Orchestrator, cfg config.ClockConfig, onDay func(DayResult)) *Clock {
	return &Clock{orch: orch, cfg: cfg, onDay: onDay}
}

// Run advances state until ctx is cancelled or MaxDays days have run, and
// returns the last state. Cancellation is only observed between days; a day
// that has started always completes.
func (c *Clock) Run(ctx context.Context, state State) (State, error) {
	defer func() {
		if err := c.orch.Flush(context.WithoutCancel(ctx), state.GameID); err != nil {
			slog.Warn("buffered writes lost at shutdown", "game", state.GameID, "error", err)
		}
	}()

	slog.Info("clock starting",
		"game", state.GameID,
		"tick_interval", c.cfg.TickInterval.Duration,
		"max_days", c.cfg.MaxDays,
		"start_date", state.Date,
	)

	ran := 0
	step := func() error {
		res, err := c.orch.RunDay(context.WithoutCancel(ctx), state)
		if err != nil {
			return err
		}
		state = res.State
		ran++
		if c.onDay != nil {
			c.onDay(res)
		}
		return nil
	}
	done := func() bool { return c.cfg.MaxDays > 0 && ran >= c.cfg.MaxDays }

	// Run the first day immediately.
	if err := ctx.Err(); err != nil {
		return state, err
	}
	if err := step(); err != nil {
		slog.Error("day failed", "day", state.Day, "error", err)
		return state, err
	}

	interval := c.cfg.TickInterval.Duration
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !done() {
		select {
		case <-ctx.Done():
			slog.Info("clock shutting down", "game", state.GameID, "days_run", ran)
			return state, ctx.Err()
		case <-ticker.C:
			if err := step(); err != nil {
				slog.Error("day failed", "day", state.Day, "error", err)
				return state, err
			}
		}
	}

	slog.Info("clock finished", "game", state.GameID, "days_run", ran)
	return state, nil
}
