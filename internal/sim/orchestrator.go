package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"predictsim/internal/agent"
	"predictsim/internal/amm"
	"predictsim/internal/config"
	"predictsim/internal/decision"
	"predictsim/internal/disclosure"
	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/execution"
	"predictsim/internal/question"
	"predictsim/internal/risk"
	"predictsim/internal/scenario"
	"predictsim/internal/settlement"
)

// Deps are the orchestrator's optional collaborators. Nil fields are
// skipped, except Narrator and Strategy which fall back to built-ins.
type Deps struct {
	Narrator    question.Narrator
	Scenarios   scenario.Source
	Strategy    decision.Strategy
	Persistence Persistence
	Reputation  settlement.Reputation
	Sink        event.Sink

	// Actors and Organizations seed question text when a scenario names none.
	Actors        []string
	Organizations []string

	// DisableCreation turns off daily question generation.
	DisableCreation bool
}

// Orchestrator runs the daily pipeline: question creation, clue disclosure,
// decision scoring, trade application, social reactions and resolution.
type Orchestrator struct {
	cfg        *config.Config
	deps       Deps
	questions  *question.Manager
	disclosure *disclosure.Model
	strategy   decision.Strategy
	sizer      *risk.Manager
	executor   *execution.Executor
	social     *decision.Social

	// Writes that failed are retried at the end of the next day.
	mu            sync.Mutex
	pendingEvents map[string][]event.Event
	pendingDeltas []domain.ReputationDelta
}

func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	strategy := deps.Strategy
	if strategy == nil {
		strategy = decision.NewClueFollower()
	}
	return &Orchestrator{
		cfg:           cfg,
		deps:          deps,
		questions:     question.NewManager(cfg.Questions, deps.Narrator),
		disclosure:    disclosure.NewModel(cfg.Disclosure),
		strategy:      strategy,
		sizer:         risk.NewManager(cfg.Risk),
		executor:      execution.NewExecutor(cfg.Market.Fees()),
		social:        decision.NewSocial(cfg.Agents),
		pendingEvents: make(map[string][]event.Event),
	}
}

// NewState returns day zero of a simulation.
func NewState(gameID string, seed uint64, startDate string, agents []domain.Agent) (State, error) {
	if _, err := question.ParseDate(startDate); err != nil {
		return State{}, err
	}
	return State{
		GameID:  gameID,
		Seed:    seed,
		Date:    startDate,
		Markets: make(map[uint64]amm.Market),
		Agents:  domain.CloneAgents(agents),
		NextID:  1,
	}, nil
}

// dayRand returns the rng for one day. Every draw a day makes comes from it,
// so a state and seed replay identically.
func dayRand(seed uint64, day int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(day)))
}

// RunDay runs in.Day and returns the state for the following day together
// with the events the day appended. in is not modified.
func (o *Orchestrator) RunDay(ctx context.Context, in State) (DayResult, error) {
	if _, err := question.ParseDate(in.Date); err != nil {
		return DayResult{}, fmt.Errorf("running day %d: %w", in.Day, err)
	}

	st := in.Clone()
	rng := dayRand(st.Seed, st.Day)
	log := event.NewLog()

	log.Append(st.Day, event.DayChangedPayload{Day: st.Day, Date: st.Date})

	if !o.deps.DisableCreation {
		o.createQuestions(ctx, &st, log, rng)
	}
	o.disclose(&st, log)

	sized, err := o.score(ctx, st)
	if err != nil {
		return DayResult{}, fmt.Errorf("scoring day %d: %w", st.Day, err)
	}
	o.apply(&st, sized, log, rng)

	deltas := o.resolve(ctx, &st, log)
	events := log.Events()

	next, err := question.AddDays(st.Date, 1)
	if err != nil {
		return DayResult{}, err
	}
	st.Day++
	st.Date = next

	o.persist(ctx, st, events, deltas)

	slog.Info("day complete",
		"game", st.GameID,
		"day", st.Day-1,
		"events", len(events),
		"active_questions", len(st.Active()),
	)
	return DayResult{State: st, Events: events}, nil
}

func (o *Orchestrator) createQuestions(ctx context.Context, st *State, log *event.Log, rng *rand.Rand) {
	var scenarios []question.Scenario
	if o.deps.Scenarios != nil {
		list, err := o.deps.Scenarios.Scenarios(ctx)
		if err != nil {
			slog.Warn("scenario source failed, generating without scenarios", "error", err)
		}
		scenarios = list
	}

	res := o.questions.CreateQuestions(ctx, question.CreationParams{
		Date:          st.Date,
		Scenarios:     scenarios,
		Actors:        o.deps.Actors,
		Organizations: o.deps.Organizations,
		Active:        st.Active(),
		RecentEvents:  st.RecentEvents,
		NextID:        st.NextID,
	}, rng)

	if len(res.Questions) == 0 && res.Reason != "" {
		slog.Debug("no questions created", "day", st.Day, "reason", res.Reason)
	}
	for _, q := range res.Questions {
		m, err := amm.InitializeMarket(o.cfg.Market.InitialLiquidity)
		if err != nil {
			slog.Error("market initialization failed", "question", q.ID, "error", err)
			continue
		}
		st.Questions = append(st.Questions, q)
		st.Markets[q.ID] = m
		log.Append(st.Day, event.MarketUpdate(q.ID, m, o.cfg.Market.ReportPrecision))
		st.remember(o.cfg.Questions.RecentEventLimit, fmt.Sprintf("New question: %s", q.Text))
	}
	st.NextID = res.NextID
}

// timeline places q on the current day, honouring any pinned horizon.
func (st *State) timeline(q question.Question) disclosure.Timeline {
	if h, ok := st.Horizons[q.ID]; ok {
		return disclosure.Timeline{Window: h.EndDay - h.StartDay, DaysUntil: max(h.EndDay-st.Day, 0)}
	}
	return disclosure.TimelineFor(q, st.Date)
}

func (o *Orchestrator) disclose(st *State, log *event.Log) {
	for _, q := range st.Active() {
		t := st.timeline(q)
		for i := range st.Agents {
			a := &st.Agents[i]
			clue, ok := o.disclosure.ClueFor(q, t, st.Day, a.Role)
			if !ok {
				continue
			}
			a.Knowledge = append(a.Knowledge, clue)
			log.Append(st.Day, event.ClueDistributedPayload{
				AgentID:      a.ID,
				Clue:         clue,
				PointsToward: clue.PointsToward,
			})
		}
	}
}

// score evaluates every agent in parallel. Goroutines only read st and each
// writes its own slot of the result.
func (o *Orchestrator) score(ctx context.Context, st State) ([][]risk.SizedSignal, error) {
	sized := make([][]risk.SizedSignal, len(st.Agents))
	if !o.strategy.Enabled() {
		return sized, nil
	}
	active := st.Active()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Agents.DecisionWorkers, 1))
	for i := range st.Agents {
		g.Go(func() error {
			a := st.Agents[i]
			signals, err := o.strategy.Evaluate(gctx, decision.View{
				Agent:     a,
				Questions: active,
				Markets:   st.Markets,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("strategy evaluation failed", "strategy", o.strategy.Name(), "agent", a.ID, "error", err)
				return nil
			}
			sized[i] = o.sizer.SizeSignals(a, signals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sized, nil
}

// apply executes sized intents one at a time, agents in a shuffled order.
func (o *Orchestrator) apply(st *State, sized [][]risk.SizedSignal, log *event.Log, rng *rand.Rand) {
	book := &execution.Book{Markets: st.Markets, Open: make(map[uint64]bool)}
	for _, q := range st.Active() {
		book.Open[q.ID] = true
	}

	_, others := agent.ByRole(st.Agents)
	outsiders := make([]string, len(others))
	for i, a := range others {
		outsiders[i] = a.ID
	}

	executed, failed := 0, 0
	for _, i := range rng.Perm(len(st.Agents)) {
		a := &st.Agents[i]
		for _, sig := range sized[i] {
			res := o.executor.Apply(book, a, sig)
			if !res.Success() {
				failed++
				continue
			}
			executed++
			f := res.Fill.Rounded(o.cfg.Market.ReportPrecision)
			log.Append(st.Day, event.AgentBetPayload{
				AgentID: a.ID,
				Bet: event.Bet{
					QuestionID: f.QuestionID,
					Action:     string(f.Action),
					Amount:     f.Amount,
					Shares:     f.Shares,
					Price:      f.Price,
					Fee:        f.Fee.Total,
				},
				Position: f.Side,
			})
			log.Append(st.Day, event.MarketUpdate(f.QuestionID, book.Markets[f.QuestionID], o.cfg.Market.ReportPrecision))

			post, dm := o.social.React(rng, *a, sig.Signal, outsiders)
			if post != nil {
				log.Append(st.Day, event.AgentPostPayload{AgentID: post.AgentID, Post: post.Content, QuestionID: post.QuestionID})
			}
			if dm != nil {
				log.Append(st.Day, event.AgentDMPayload{From: dm.From, To: dm.To, Message: dm.Message})
			}
		}
	}
	if executed+failed > 0 {
		slog.Info("trades applied", "day", st.Day, "executed", executed, "skipped", failed)
	}
}

// due reports whether q resolves today.
func (st *State) due(q question.Question) bool {
	if h, ok := st.Horizons[q.ID]; ok {
		return st.Day >= h.EndDay
	}
	return len(question.DueForResolution([]question.Question{q}, st.Date)) == 1
}

// unresolvable reports whether q carries a resolution date that can never
// come due. Horizon-pinned questions ignore their date.
func (st *State) unresolvable(q question.Question) bool {
	if _, ok := st.Horizons[q.ID]; ok || q.ResolutionDate == "" {
		return false
	}
	_, err := question.ParseDate(q.ResolutionDate)
	return err != nil
}

func (o *Orchestrator) resolve(ctx context.Context, st *State, log *event.Log) []domain.ReputationDelta {
	var deltas []domain.ReputationDelta
	for _, q := range st.Active() {
		if st.unresolvable(q) {
			slog.Warn("cancelling question with unusable resolution date",
				"question", q.ID, "date", q.ResolutionDate)
			st.replaceQuestion(question.Cancel(q))
			continue
		}
		if !st.due(q) {
			continue
		}
		outcome := q.PredeterminedOutcome
		res := settlement.Settle(q, outcome, st.Agents)
		if !res.Settled {
			continue
		}
		st.replaceQuestion(res.Question)
		st.Agents = res.Agents
		deltas = append(deltas, res.Deltas...)

		proof := o.questions.ResolutionProof(ctx, res.Question, outcome)
		log.Append(st.Day, event.OutcomeRevealedPayload{QuestionID: q.ID, Outcome: outcome, Proof: proof})
		st.remember(o.cfg.Questions.RecentEventLimit, proof)

		slog.Info("question resolved",
			"question", q.ID,
			"outcome", amm.SideOf(outcome),
			"payouts", len(res.Payouts),
			"winners", len(settlement.Winners(res.Deltas)),
		)
	}
	return deltas
}

// persist hands the day's output to the collaborators. st is already
// advanced, so a saved snapshot resumes at the next day. Failed event and
// reputation writes are buffered and retried with the next day's batch.
func (o *Orchestrator) persist(ctx context.Context, st State, events []event.Event, deltas []domain.ReputationDelta) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_ = o.appendLocked(ctx, st.GameID, events)
	if p := o.deps.Persistence; p != nil {
		if err := p.SaveSnapshot(ctx, st); err != nil {
			slog.Warn("snapshot failed", "game", st.GameID, "next_day", st.Day, "error", err)
		}
	}
	_ = o.recordLocked(ctx, deltas)
	o.publishLocked(ctx, st.GameID, events)
}

// Emit persists and publishes events produced outside RunDay, such as a
// game's opening and closing events. They are appended behind any buffered
// events so the stored log keeps its order.
func (o *Orchestrator) Emit(ctx context.Context, gameID string, events []event.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	err := o.appendLocked(ctx, gameID, events)
	o.publishLocked(ctx, gameID, events)
	return err
}

// Start emits game:started for a fresh game. Resumed games already carry it.
func (o *Orchestrator) Start(ctx context.Context, st State) error {
	e := event.Event{Day: st.Day, Payload: event.GameStartedPayload{ID: st.GameID}}
	return o.Emit(ctx, st.GameID, []event.Event{e})
}

// Flush retries buffered event and reputation writes. It returns an error
// if anything is still buffered afterwards.
func (o *Orchestrator) Flush(ctx context.Context, gameID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return errors.Join(o.appendLocked(ctx, gameID, nil), o.recordLocked(ctx, nil))
}

func (o *Orchestrator) appendLocked(ctx context.Context, gameID string, events []event.Event) error {
	p := o.deps.Persistence
	if p == nil {
		return nil
	}
	batch := append(o.pendingEvents[gameID], events...)
	if len(batch) == 0 {
		return nil
	}
	if err := p.AppendEvents(ctx, gameID, batch); err != nil {
		slog.Warn("event persistence failed, buffering", "game", gameID, "buffered", len(batch), "error", err)
		o.pendingEvents[gameID] = batch
		return fmt.Errorf("appending %d events: %w", len(batch), err)
	}
	delete(o.pendingEvents, gameID)
	return nil
}

func (o *Orchestrator) recordLocked(ctx context.Context, deltas []domain.ReputationDelta) error {
	r := o.deps.Reputation
	if r == nil {
		return nil
	}
	batch := append(o.pendingDeltas, deltas...)
	if len(batch) == 0 {
		return nil
	}
	if err := r.Record(ctx, batch); err != nil {
		slog.Warn("reputation update failed, buffering", "buffered", len(batch), "error", err)
		o.pendingDeltas = batch
		return fmt.Errorf("recording %d reputation deltas: %w", len(batch), err)
	}
	o.pendingDeltas = nil
	return nil
}

func (o *Orchestrator) publishLocked(ctx context.Context, gameID string, events []event.Event) {
	s := o.deps.Sink
	if s == nil || len(events) == 0 {
		return
	}
	if err := s.Publish(ctx, gameID, events); err != nil {
		slog.Warn("event publish failed", "game", gameID, "error", err)
	}
}

// Pending returns how many event writes are waiting for a retry.
func (o *Orchestrator) Pending(gameID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pendingEvents[gameID])
}

func (st *State) remember(limit int, line string) {
	if limit <= 0 || line == "" {
		return
	}
	st.RecentEvents = append(st.RecentEvents, line)
	if n := len(st.RecentEvents); n > limit {
		st.RecentEvents = append([]string(nil), st.RecentEvents[n-limit:]...)
	}
}
