package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonnyspicer/mango"

	"predictsim/internal/agent"
	"predictsim/internal/amm"
	"predictsim/internal/archive"
	"predictsim/internal/config"
	"predictsim/internal/db"
	"predictsim/internal/event"
	"predictsim/internal/game"
	"predictsim/internal/performance"
	"predictsim/internal/scenario"
	"predictsim/internal/sim"
	"predictsim/internal/store"
	"predictsim/internal/stream"
)

func main() {
	// Parse CLI flags.
	gameMode := flag.Bool("game", false, "Run a single complete game and archive it")
	reportMode := flag.Bool("report", false, "Log a performance report from stored games and exit")
	outcome := flag.String("outcome", "yes", "Predetermined outcome of the game question (yes or no)")
	numAgents := flag.Int("agents", 0, "Agents in the game (default: agents.count)")
	duration := flag.Int("duration", 0, "Game length in days (default: game.duration_days)")
	insiders := flag.Float64("insiders", -1, "Insider fraction (default: agents.insider_pct)")
	questionText := flag.String("question", "", "Override the game question text")
	resume := flag.String("resume", "", "Resume a stored live game by ID, or \"latest\"")
	flag.Parse()

	// Load configuration.
	configPath := "config.toml"
	if p := os.Getenv("PREDICTSIM_CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	})))

	slog.Info("predictsim starting")

	// Initialize database.
	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath)

	if *reportMode {
		report, err := performance.NewTracker(database).Generate(context.Background())
		if err != nil {
			slog.Error("report failed", "error", err)
			os.Exit(1)
		}
		performance.LogReport(report)
		return
	}

	// Graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	st := store.New(database)
	deps := sim.Deps{
		Persistence: st,
		Reputation:  st,
	}
	cache, actors, orgs := scenarios(cfg)
	deps.Actors, deps.Organizations = actors, orgs
	if cache != nil {
		deps.Scenarios = cache
	}

	if cfg.Redis.Enabled {
		rdb, err := stream.New(ctx, cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.Sink = stream.NewPublisher(rdb, cfg.Redis)
		slog.Info("event stream enabled", "stream", cfg.Redis.Stream)
	}

	if *gameMode {
		side, err := amm.ParseSide(*outcome)
		if err != nil {
			slog.Error("invalid outcome", "outcome", *outcome, "error", err)
			os.Exit(1)
		}
		gc := game.GameConfig{
			Outcome:           side == amm.Yes,
			NumAgents:         cfg.Agents.Count,
			Duration:          cfg.Game.DurationDays,
			InsiderPercentage: cfg.Agents.InsiderPct,
			Question:          *questionText,
			StartDate:         cfg.Game.StartDate,
			Seed:              cfg.General.Seed,
		}
		if *numAgents > 0 {
			gc.NumAgents = *numAgents
		}
		if *duration > 0 {
			gc.Duration = *duration
		}
		if *insiders >= 0 {
			gc.InsiderPercentage = *insiders
		}
		if err := runGame(ctx, cfg, deps, gc); err != nil {
			slog.Error("game failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Live mode.
	state, resumed, err := liveState(ctx, cfg, st, *resume)
	if err != nil {
		slog.Error("failed to prepare game", "error", err)
		os.Exit(1)
	}

	// SIGHUP drops cached scenarios so edits to the catalogue are picked up.
	if cache != nil {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		go func() {
			for range hupCh {
				cache.Invalidate()
				slog.Info("scenario cache invalidated")
			}
		}()
	}

	orch := sim.NewOrchestrator(cfg, deps)
	if !resumed {
		if err := orch.Start(ctx, state); err != nil {
			slog.Warn("game start not persisted, will retry", "game", state.GameID, "error", err)
		}
	}
	clock := sim.NewClock(orch, cfg.Clock, func(res sim.DayResult) {
		rs := event.Replay(res.Events)
		slog.Info("day summary",
			"day", res.State.Day-1,
			"events", len(res.Events),
			"active", len(res.State.Active()),
			"resolved", len(rs.Outcomes),
			"pending", orch.Pending(res.State.GameID),
		)
	})

	if _, err := clock.Run(ctx, state); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("clock error", "error", err)
		os.Exit(1)
	}

	slog.Info("predictsim stopped")
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// scenarios assembles the configured scenario sources behind a TTL cache.
// The cache is nil when no source is configured.
func scenarios(cfg *config.Config) (*scenario.Cache, []string, []string) {
	var sources scenario.Multi
	var actors, orgs []string

	if cfg.Scenarios.File != "" {
		cat, err := scenario.LoadFile(cfg.Scenarios.File)
		if err != nil {
			slog.Warn("scenario catalogue unavailable", "path", cfg.Scenarios.File, "error", err)
		} else {
			sources = append(sources, scenario.Static(cat.Scenarios))
			actors, orgs = cat.Actors, cat.Organizations
			slog.Info("scenario catalogue loaded", "path", cfg.Scenarios.File, "scenarios", len(cat.Scenarios))
		}
	}

	if cfg.Scenarios.ManifoldImport {
		mc := mango.DefaultClientInstance()
		sources = append(sources, scenario.NewManifoldSource(mc, cfg.Scenarios.ManifoldLimit))
		slog.Info("manifold client initialized")
	}

	if len(sources) == 0 {
		return nil, actors, orgs
	}
	return scenario.NewCache(sources, cfg.Scenarios.CacheTTL.Duration), actors, orgs
}

func runGame(ctx context.Context, cfg *config.Config, deps sim.Deps, gc game.GameConfig) error {
	res, err := game.NewRunner(cfg, deps).RunCompleteGame(ctx, gc)
	if err != nil {
		return err
	}

	targets := archive.Multi{archive.LocalArchiver{Dir: cfg.Archive.Dir}}
	if cfg.Archive.S3Enabled {
		s3a, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		targets = append(targets, s3a)
	}

	loc, err := targets.Archive(ctx, res)
	if err != nil {
		return err
	}
	slog.Info("game archived",
		"game", res.ID,
		"location", loc,
		"winners", len(res.Winners),
		"events", len(res.Events),
	)
	return nil
}

// liveState loads the game named by resume, or starts a new one when resume
// is empty. It reports whether the state was resumed.
func liveState(ctx context.Context, cfg *config.Config, st *store.Store, resume string) (sim.State, bool, error) {
	if resume == "latest" {
		ids, err := st.GameIDs(ctx)
		if err != nil {
			return sim.State{}, false, err
		}
		if len(ids) == 0 {
			return sim.State{}, false, store.ErrGameNotFound
		}
		resume = ids[0]
	}

	if resume != "" {
		state, err := st.LoadSnapshot(ctx, resume)
		if err != nil {
			return sim.State{}, false, err
		}
		slog.Info("resuming game", "game", resume, "day", state.Day)
		return state, true, nil
	}

	seed := cfg.General.Seed
	agents := agent.NewRoster(cfg.Agents, rand.New(rand.NewPCG(seed, ^seed)))
	state, err := sim.NewState(uuid.NewString(), seed, cfg.Game.StartDate, agents)
	return state, false, err
}
