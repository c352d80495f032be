// Package game runs a single complete game offline: one question, a fresh
// roster, a fixed number of days, and a record suitable for training
// export.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"predictsim/internal/agent"
	"predictsim/internal/amm"
	"predictsim/internal/config"
	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/question"
	"predictsim/internal/settlement"
	"predictsim/internal/sim"
	"predictsim/internal/simerr"
)

// MinDuration is the shortest game that still has early, mid and late
// disclosure bands.
const MinDuration = 3

var ErrInvalidGame = fmt.Errorf("%w: invalid game config", simerr.ErrValidation)

// GameConfig describes one complete game.
type GameConfig struct {
	Outcome           bool
	NumAgents         int
	Duration          int // days
	InsiderPercentage float64

	// Optional. Question overrides the generated question text, StartDate
	// the configured start date and Seed the configured seed.
	Question  string
	StartDate string
	Seed      uint64
}

// GameResult is the full record of a finished game.
type GameResult struct {
	ID        uuid.UUID       `json:"id"`
	Question  string          `json:"question"`
	Outcome   bool            `json:"outcome"`
	Events    []event.Event   `json:"events"`
	Winners   []string        `json:"winners"`
	Outcomes  []MarketOutcome `json:"outcomes"`
	Agents    []domain.Agent  `json:"agents"`
	StartDate string          `json:"startDate"`
	Duration  int             `json:"duration"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   time.Time       `json:"endedAt"`

	// Trajectories holds each agent's per-day record, in roster order.
	Trajectories []Trajectory `json:"trajectories"`
	PnL          PnLStats     `json:"pnlStats"`
}

// Runner plays complete games through the day orchestrator.
type Runner struct {
	cfg  *config.Config
	deps sim.Deps
	orch *sim.Orchestrator
}

// NewRunner creates a Runner. Question creation is always disabled for the
// orchestrator it drives; the game question is the only question.
func NewRunner(cfg *config.Config, deps sim.Deps) *Runner {
	deps.DisableCreation = true
	return &Runner{cfg: cfg, deps: deps, orch: sim.NewOrchestrator(cfg, deps)}
}

func (gc GameConfig) validate() error {
	switch {
	case gc.NumAgents <= 0:
		return fmt.Errorf("%w: numAgents must be positive, got %d", ErrInvalidGame, gc.NumAgents)
	case gc.Duration < MinDuration:
		return fmt.Errorf("%w: duration must be at least %d days, got %d", ErrInvalidGame, MinDuration, gc.Duration)
	case gc.InsiderPercentage < 0 || gc.InsiderPercentage > 1:
		return fmt.Errorf("%w: insiderPercentage must be in [0, 1], got %f", ErrInvalidGame, gc.InsiderPercentage)
	}
	return nil
}

// RunCompleteGame plays gc to the end. The question resolves to gc.Outcome on
// the last day.
func (r *Runner) RunCompleteGame(ctx context.Context, gc GameConfig) (GameResult, error) {
	if err := gc.validate(); err != nil {
		return GameResult{}, err
	}
	if gc.StartDate == "" {
		gc.StartDate = r.cfg.Game.StartDate
	}
	if gc.Seed == 0 {
		gc.Seed = r.cfg.General.Seed
	}

	id := uuid.New()
	started := time.Now().UTC()
	rng := rand.New(rand.NewPCG(gc.Seed, ^gc.Seed))

	agentsCfg := r.cfg.Agents
	agentsCfg.Count = gc.NumAgents
	agentsCfg.InsiderPct = gc.InsiderPercentage
	roster := agent.NewRoster(agentsCfg, rng)

	st, err := sim.NewState(id.String(), gc.Seed, gc.StartDate, roster)
	if err != nil {
		return GameResult{}, fmt.Errorf("starting game: %w", err)
	}

	lastDay := gc.Duration - 1
	q, err := r.gameQuestion(ctx, gc, st.NextID, lastDay, rng)
	if err != nil {
		return GameResult{}, err
	}
	m, err := amm.InitializeMarket(r.cfg.Market.InitialLiquidity)
	if err != nil {
		return GameResult{}, err
	}
	st.Questions = []question.Question{q}
	st.Markets[q.ID] = m
	st.NextID++
	st.Horizons = map[uint64]sim.Horizon{q.ID: {StartDay: 0, EndDay: lastDay}}

	slog.Info("game starting",
		"game", id,
		"agents", gc.NumAgents,
		"insiders", agent.InsiderCount(gc.NumAgents, gc.InsiderPercentage),
		"duration", gc.Duration,
		"question", q.Text,
	)

	log := event.NewLog()
	opening := []event.Event{
		log.Append(0, event.GameStartedPayload{ID: id.String(), Question: q.Text}),
		log.Append(0, event.MarketUpdate(q.ID, m, r.cfg.Market.ReportPrecision)),
	}
	r.emit(ctx, id.String(), opening)

	rec := newRecorder(st.Agents, r.cfg.Market.ReportPrecision)
	for day := 0; day < gc.Duration; day++ {
		if err := ctx.Err(); err != nil {
			return GameResult{}, fmt.Errorf("game %s cancelled on day %d: %w", id, day, err)
		}
		res, err := r.orch.RunDay(ctx, st)
		if err != nil {
			return GameResult{}, fmt.Errorf("game %s day %d: %w", id, day, err)
		}
		log.Extend(res.Events...)
		st = res.State
		rec.record(day, st, res.Events)
	}

	winners := settlement.Winners(settlement.Deltas(q.ID, gc.Outcome, st.Agents))
	if winners == nil {
		winners = []string{}
	}
	if err := r.orch.Flush(ctx, id.String()); err != nil {
		slog.Warn("buffered game writes still pending", "game", id, "error", err)
	}
	closing := log.Append(lastDay, event.GameEndedPayload{Outcome: gc.Outcome, Winners: winners})
	r.emit(ctx, id.String(), []event.Event{closing})

	final, _ := st.Question(q.ID)
	trajs := rec.trajectories()
	result := GameResult{
		ID:           id,
		Question:     q.Text,
		Outcome:      gc.Outcome,
		Events:       log.Events(),
		Winners:      winners,
		Outcomes:     Outcomes(st.Questions, st.Markets, r.cfg.Market.ReportPrecision),
		Agents:       st.Agents,
		Trajectories: trajs,
		PnL:          Stats(trajs),
		StartDate:    gc.StartDate,
		Duration:     gc.Duration,
		StartedAt:    started,
		EndedAt:      time.Now().UTC(),
	}

	slog.Info("game finished",
		"game", id,
		"outcome", amm.SideOf(gc.Outcome),
		"status", final.Status,
		"winners", len(winners),
		"events", len(result.Events),
		"avg_pnl", result.PnL.Avg,
		"final_yes_price", amm.CurrentPrice(st.Markets[q.ID], amm.Yes),
	)
	return result, nil
}

// gameQuestion builds the single question of a game. Its stored resolution
// date is clamped like any other question; the game horizon decides when
// it actually resolves.
func (r *Runner) gameQuestion(ctx context.Context, gc GameConfig, id uint64, lastDay int, rng *rand.Rand) (question.Question, error) {
	resolution, err := question.ResolutionDate(gc.StartDate, lastDay)
	if err != nil {
		return question.Question{}, err
	}

	text, scenarioID := gc.Question, ""
	if text == "" {
		end, err := question.AddDays(gc.StartDate, lastDay)
		if err != nil {
			return question.Question{}, err
		}
		req := question.TextRequest{Date: gc.StartDate, ResolutionDate: end, Variant: int(id)}
		if r.deps.Scenarios != nil {
			if list, err := r.deps.Scenarios.Scenarios(ctx); err == nil && len(list) > 0 {
				req.Scenario = list[rng.IntN(len(list))]
			} else if err != nil {
				slog.Warn("scenario source failed, using default scenario", "error", err)
			}
		}
		text = r.questionText(ctx, req)
		scenarioID = req.Scenario.ID
	}

	return question.Question{
		ID:                   id,
		Text:                 text,
		Status:               question.Active,
		ScenarioID:           scenarioID,
		CreatedDate:          gc.StartDate,
		ResolutionDate:       resolution,
		PredeterminedOutcome: gc.Outcome,
	}, nil
}

func (r *Runner) questionText(ctx context.Context, req question.TextRequest) string {
	if n := r.deps.Narrator; n != nil {
		text, err := n.GenerateQuestionText(ctx, req)
		if err == nil && text != "" {
			return text
		}
		slog.Warn("narrator failed, using template", "error", err)
	}
	text, _ := question.TemplateNarrator{}.GenerateQuestionText(ctx, req)
	return text
}

// emit hands runner-level events to the orchestrator so they join its
// buffered batch in order. Failures are logged; the game continues.
func (r *Runner) emit(ctx context.Context, gameID string, events []event.Event) {
	if err := r.orch.Emit(ctx, gameID, events); err != nil {
		slog.Warn("game event persistence failed", "game", gameID, "error", err)
	}
}
