package performance

import (
	"context"
	"database/sql"
	"fmt"
)

// Tracker computes performance metrics from the database.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report contains all performance metrics.
type Report struct {
	GamesPlayed       int
	QuestionsResolved int
	TotalBets         int
	TotalWagered      float64
	FeesCollected     float64
	SettledPositions  int
	WinRate           float64
	AvgReputation     float64
	CorrectRate       float64
	RoleStats         map[string]RoleStats
}

// RoleStats contains per-role performance.
type RoleStats struct {
	Agents    int
	BetCount  int
	Wagered   float64
	Settled   int
	WinRate   float64
	PnL       float64
	AvgReturn float64
}

// Generate computes the full performance report.
func (t *Tracker) Generate(ctx context.Context) (*Report, error) {
	r := &Report{
		RoleStats: make(map[string]RoleStats),
	}

	if err := t.computeOverall(ctx, r); err != nil {
		return nil, fmt.Errorf("computing overall stats: %w", err)
	}
	if err := t.computeRoleStats(ctx, r); err != nil {
		return nil, fmt.Errorf("computing role stats: %w", err)
	}
	if err := t.computeReputation(ctx, r); err != nil {
		return nil, fmt.Errorf("computing reputation: %w", err)
	}

	return r, nil
}

func (t *Tracker) computeOverall(ctx context.Context, r *Report) error {
	row := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`)
	if err := row.Scan(&r.GamesPlayed); err != nil {
		return err
	}

	row = t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE status = 'resolved'`)
	if err := row.Scan(&r.QuestionsResolved); err != nil {
		return err
	}

	row = t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN action = 'buy' THEN amount ELSE 0 END), 0)
		FROM bets`)
	if err := row.Scan(&r.TotalBets, &r.TotalWagered); err != nil {
		return err
	}

	row = t.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(fee_accumulator), 0) FROM markets`)
	if err := row.Scan(&r.FeesCollected); err != nil {
		return err
	}

	// A settled position wins when it was paid out.
	row = t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN payout > 0 THEN 1 ELSE 0 END), 0)
		FROM positions WHERE closed = 1 AND shares > 0`)
	var wins int
	if err := row.Scan(&r.SettledPositions, &wins); err != nil {
		return err
	}
	if r.SettledPositions > 0 {
		r.WinRate = float64(wins) / float64(r.SettledPositions)
	}

	return nil
}

func (t *Tracker) computeRoleStats(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT role, COUNT(*), COALESCE(SUM(balance - starting_balance), 0),
		       COALESCE(SUM(starting_balance), 0)
		FROM agents GROUP BY role`)
	if err != nil {
		return err
	}
	defer rows.Close()

	staked := make(map[string]float64)
	for rows.Next() {
		var role string
		var stats RoleStats
		var start float64
		if err := rows.Scan(&role, &stats.Agents, &stats.PnL, &start); err != nil {
			return err
		}
		staked[role] = start
		r.RoleStats[role] = stats
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = t.db.QueryContext(ctx, `
		SELECT a.role, COUNT(*), COALESCE(SUM(CASE WHEN b.action = 'buy' THEN b.amount ELSE 0 END), 0)
		FROM bets b JOIN agents a ON a.game_id = b.game_id AND a.id = b.agent_id
		GROUP BY a.role`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var bets int
		var wagered float64
		if err := rows.Scan(&role, &bets, &wagered); err != nil {
			return err
		}
		stats := r.RoleStats[role]
		stats.BetCount = bets
		stats.Wagered = wagered
		r.RoleStats[role] = stats
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = t.db.QueryContext(ctx, `
		SELECT a.role, COUNT(*), COALESCE(SUM(CASE WHEN p.payout > 0 THEN 1 ELSE 0 END), 0)
		FROM positions p JOIN agents a ON a.game_id = p.game_id AND a.id = p.agent_id
		WHERE p.closed = 1 AND p.shares > 0
		GROUP BY a.role`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var settled, wins int
		if err := rows.Scan(&role, &settled, &wins); err != nil {
			return err
		}
		stats := r.RoleStats[role]
		stats.Settled = settled
		if settled > 0 {
			stats.WinRate = float64(wins) / float64(settled)
		}
		r.RoleStats[role] = stats
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for role, stats := range r.RoleStats {
		if staked[role] > 0 {
			stats.AvgReturn = stats.PnL / staked[role]
		}
		r.RoleStats[role] = stats
	}
	return nil
}

func (t *Tracker) computeReputation(ctx context.Context, r *Report) error {
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(magnitude), 0),
		       COALESCE(SUM(CASE WHEN outcome_correct = 1 THEN 1 ELSE 0 END), 0)
		FROM reputation_deltas`)
	var n, correct int
	if err := row.Scan(&n, &r.AvgReputation, &correct); err != nil {
		return err
	}
	if n > 0 {
		r.CorrectRate = float64(correct) / float64(n)
	}
	return nil
}
