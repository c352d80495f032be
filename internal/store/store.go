// Package store persists simulation state, the event log and reputation
// deltas to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"predictsim/internal/amm"
	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/sim"
	"predictsim/internal/simerr"
)

var ErrGameNotFound = fmt.Errorf("%w: game not found", simerr.ErrValidation)

// Store implements sim.Persistence and settlement.Reputation.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func collaboratorErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", simerr.ErrCollaborator, op, err)
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return collaboratorErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return collaboratorErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return collaboratorErr(op, err)
	}
	return nil
}

func ensureGame(ctx context.Context, tx *sql.Tx, gameID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO games (id) VALUES (?)`, gameID)
	return err
}

// AppendEvents appends events to the game's log in order. agent:bet events
// are also written to the bets table for reporting.
func (s *Store) AppendEvents(ctx context.Context, gameID string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.withTx(ctx, "appending events", func(tx *sql.Tx) error {
		if err := ensureGame(ctx, tx, gameID); err != nil {
			return err
		}
		for _, e := range events {
			body, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (game_id, day, type, body) VALUES (?, ?, ?, ?)`,
				gameID, e.Day, string(e.Type()), string(body),
			); err != nil {
				return err
			}

			bet, ok := e.Payload.(event.AgentBetPayload)
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO bets (game_id, day, agent_id, question_id, action, side, amount, shares, price, fee)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				gameID, e.Day, bet.AgentID, bet.Bet.QuestionID, bet.Bet.Action, string(bet.Position),
				bet.Bet.Amount, bet.Bet.Shares, bet.Bet.Price, bet.Bet.Fee,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEvents decodes a game's persisted log in append order.
func (s *Store) LoadEvents(ctx context.Context, gameID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM events WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, collaboratorErr("loading events", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, collaboratorErr("scanning event", err)
		}
		var e event.Event
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decoding stored event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, collaboratorErr("loading events", err)
	}
	return out, nil
}

// SaveSnapshot upserts the game, its questions, agents, positions and
// markets, and appends one market snapshot per market.
func (s *Store) SaveSnapshot(ctx context.Context, st sim.State) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	lastDay := max(st.Day-1, 0)

	return s.withTx(ctx, "saving snapshot", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO games (id, seed, day, date, next_id, state_json)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				seed = excluded.seed,
				day = excluded.day,
				date = excluded.date,
				next_id = excluded.next_id,
				state_json = excluded.state_json,
				updated_at = datetime('now')`,
			st.GameID, int64(st.Seed), st.Day, st.Date, int64(st.NextID), string(stateJSON),
		); err != nil {
			return err
		}

		for _, q := range st.Questions {
			var resolved *int
			if q.ResolvedOutcome != nil {
				v := boolToInt(*q.ResolvedOutcome)
				resolved = &v
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO questions (game_id, id, text, status, scenario_id, created_date, resolution_date, resolved_outcome, predetermined_outcome)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(game_id, id) DO UPDATE SET
					status = excluded.status,
					resolved_outcome = excluded.resolved_outcome`,
				st.GameID, int64(q.ID), q.Text, string(q.Status), q.ScenarioID,
				q.CreatedDate, q.ResolutionDate, resolved, boolToInt(q.PredeterminedOutcome),
			); err != nil {
				return fmt.Errorf("question %d: %w", q.ID, err)
			}
		}

		for _, a := range st.Agents {
			if err := upsertAgent(ctx, tx, st.GameID, a); err != nil {
				return fmt.Errorf("agent %s: %w", a.ID, err)
			}
		}

		for _, id := range slices.Sorted(maps.Keys(st.Markets)) {
			m := st.Markets[id]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO markets (game_id, question_id, yes_shares, no_shares, fee_accumulator)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(game_id, question_id) DO UPDATE SET
					yes_shares = excluded.yes_shares,
					no_shares = excluded.no_shares,
					fee_accumulator = excluded.fee_accumulator,
					last_updated_at = datetime('now')`,
				st.GameID, int64(id), m.YesShares, m.NoShares, m.FeeAccumulator,
			); err != nil {
				return fmt.Errorf("market %d: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO market_snapshots (game_id, question_id, day, yes_shares, no_shares, fee_accumulator, yes_price)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				st.GameID, int64(id), lastDay, m.YesShares, m.NoShares, m.FeeAccumulator, amm.CurrentPrice(m, amm.Yes),
			); err != nil {
				return fmt.Errorf("snapshot %d: %w", id, err)
			}
		}
		return nil
	})
}

func upsertAgent(ctx context.Context, tx *sql.Tx, gameID string, a domain.Agent) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agents (game_id, id, name, role, balance, starting_balance, risk_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id, id) DO UPDATE SET
			balance = excluded.balance`,
		gameID, a.ID, a.Name, string(a.Role), a.Balance, a.StartingBalance, a.RiskThreshold,
	); err != nil {
		return err
	}
	for _, qid := range domain.SortedQuestionIDs(a.Positions) {
		p := a.Positions[qid]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (game_id, agent_id, question_id, side, shares, cost_basis, closed, payout)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(game_id, agent_id, question_id) DO UPDATE SET
				side = excluded.side,
				shares = excluded.shares,
				cost_basis = excluded.cost_basis,
				closed = excluded.closed,
				payout = excluded.payout`,
			gameID, a.ID, int64(qid), string(p.Side), p.Shares, p.CostBasis, boolToInt(p.Closed), p.Payout,
		); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot restores the last saved state of a game, including the hidden
// outcomes that the state's JSON form omits.
func (s *Store) LoadSnapshot(ctx context.Context, gameID string) (sim.State, error) {
	var stateJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM games WHERE id = ?`, gameID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !stateJSON.Valid) {
		return sim.State{}, fmt.Errorf("loading %s: %w", gameID, ErrGameNotFound)
	}
	if err != nil {
		return sim.State{}, collaboratorErr("loading snapshot", err)
	}

	var st sim.State
	if err := json.Unmarshal([]byte(stateJSON.String), &st); err != nil {
		return sim.State{}, fmt.Errorf("decoding snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, predetermined_outcome FROM questions WHERE game_id = ?`, gameID)
	if err != nil {
		return sim.State{}, collaboratorErr("loading outcomes", err)
	}
	defer rows.Close()

	hidden := make(map[uint64]bool)
	for rows.Next() {
		var id int64
		var outcome int
		if err := rows.Scan(&id, &outcome); err != nil {
			return sim.State{}, collaboratorErr("scanning outcome", err)
		}
		hidden[uint64(id)] = outcome == 1
	}
	if err := rows.Err(); err != nil {
		return sim.State{}, collaboratorErr("loading outcomes", err)
	}
	for i := range st.Questions {
		st.Questions[i].PredeterminedOutcome = hidden[st.Questions[i].ID]
	}
	return st, nil
}

// Record implements settlement.Reputation.
func (s *Store) Record(ctx context.Context, deltas []domain.ReputationDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	err := s.withTx(ctx, "recording reputation", func(tx *sql.Tx) error {
		for _, d := range deltas {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reputation_deltas (agent_id, question_id, outcome_correct, magnitude)
				VALUES (?, ?, ?, ?)`,
				d.AgentID, int64(d.QuestionID), boolToInt(d.OutcomeCorrect), d.Magnitude,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		slog.Debug("reputation recorded", "deltas", len(deltas))
	}
	return err
}

// GameIDs lists stored games, newest first.
func (s *Store) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM games ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, collaboratorErr("listing games", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, collaboratorErr("scanning game", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
