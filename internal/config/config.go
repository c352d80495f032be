package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"predictsim/internal/amm"
)

type Config struct {
	General    GeneralConfig    `toml:"general"`
	Market     MarketConfig     `toml:"market"`
	Questions  QuestionsConfig  `toml:"questions"`
	Disclosure DisclosureConfig `toml:"disclosure"`
	Agents     AgentsConfig     `toml:"agents"`
	Risk       RiskConfig       `toml:"risk"`
	Game       GameConfig       `toml:"game"`
	Clock      ClockConfig      `toml:"clock"`
	Scenarios  ScenariosConfig  `toml:"scenarios"`
	Redis      RedisConfig      `toml:"redis"`
	Archive    ArchiveConfig    `toml:"archive"`
}

type GeneralConfig struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
	Seed     uint64 `toml:"seed"`
}

type MarketConfig struct {
	InitialLiquidity float64 `toml:"initial_liquidity"`
	FeeRate          float64 `toml:"fee_rate"`
	PlatformShare    float64 `toml:"platform_share"`
	MinFee           float64 `toml:"min_fee"`
	ReportPrecision  int32   `toml:"report_precision"`
}

// Fees returns the pricing engine's fee settings.
func (c MarketConfig) Fees() amm.FeeConfig {
	return amm.FeeConfig{Rate: c.FeeRate, PlatformShare: c.PlatformShare, MinFee: c.MinFee}
}

type QuestionsConfig struct {
	MaxActive         int `toml:"max_active"`
	MinPerCall        int `toml:"min_per_call"`
	MaxPerCall        int `toml:"max_per_call"`
	MinResolutionDays int `toml:"min_resolution_days"`
	MaxResolutionDays int `toml:"max_resolution_days"`
	RecentEventLimit  int `toml:"recent_event_limit"`
}

type DisclosureConfig struct {
	InsiderFloor       float64 `toml:"insider_floor"`
	OutsiderFloor      float64 `toml:"outsider_floor"`
	OutsiderMidCeiling float64 `toml:"outsider_mid_ceiling"`
	InsiderEveryDays   int     `toml:"insider_every_days"`
	OutsiderEveryDays  int     `toml:"outsider_every_days"`
}

type AgentsConfig struct {
	Count            int     `toml:"count"`
	InsiderPct       float64 `toml:"insider_pct"`
	StartingBalance  float64 `toml:"starting_balance"`
	RiskThresholdMin float64 `toml:"risk_threshold_min"`
	RiskThresholdMax float64 `toml:"risk_threshold_max"`
	PostProbability  float64 `toml:"post_probability"`
	DMProbability    float64 `toml:"dm_probability"`
	DecisionWorkers  int     `toml:"decision_workers"`
}

type RiskConfig struct {
	KellyFraction  float64 `toml:"kelly_fraction"`
	MaxPositionPct float64 `toml:"max_position_pct"`
	MinBetAmount   float64 `toml:"min_bet_amount"`
	MinEdge        float64 `toml:"min_edge"`
}

type GameConfig struct {
	DurationDays int    `toml:"duration_days"`
	StartDate    string `toml:"start_date"`
}

type ClockConfig struct {
	TickInterval Duration `toml:"tick_interval"`
	MaxDays      int      `toml:"max_days"`
}

type ScenariosConfig struct {
	File           string   `toml:"file"`
	ManifoldImport bool     `toml:"manifold_import"`
	ManifoldLimit  int64    `toml:"manifold_limit"`
	CacheTTL       Duration `toml:"cache_ttl"`
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Stream   string `toml:"stream"`
	MaxLen   int64  `toml:"max_len"`
}

type ArchiveConfig struct {
	Dir            string `toml:"dir"`
	S3Enabled      bool   `toml:"s3_enabled"`
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Prefix         string `toml:"prefix"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Load reads the TOML file at path on top of the defaults, then applies
// PREDICTSIM_* environment overrides (a .env file is honoured if present).
// A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	fees := amm.DefaultFeeConfig()
	return &Config{
		General: GeneralConfig{
			DBPath:   "./data/predictsim.db",
			LogLevel: "info",
			Seed:     1,
		},
		Market: MarketConfig{
			InitialLiquidity: amm.DefaultLiquidity,
			FeeRate:          fees.Rate,
			PlatformShare:    fees.PlatformShare,
			MinFee:           fees.MinFee,
			ReportPrecision:  4,
		},
		Questions: QuestionsConfig{
			MaxActive:         20,
			MinPerCall:        0,
			MaxPerCall:        3,
			MinResolutionDays: 1,
			MaxResolutionDays: 7,
			RecentEventLimit:  20,
		},
		Disclosure: DisclosureConfig{
			InsiderFloor:       0.6,
			OutsiderFloor:      0.1,
			OutsiderMidCeiling: 0.4,
			InsiderEveryDays:   1,
			OutsiderEveryDays:  1,
		},
		Agents: AgentsConfig{
			Count:            10,
			InsiderPct:       0.3,
			StartingBalance:  1000,
			RiskThresholdMin: 0.05,
			RiskThresholdMax: 0.15,
			PostProbability:  0.3,
			DMProbability:    0.2,
			DecisionWorkers:  4,
		},
		Risk: RiskConfig{
			KellyFraction:  0.25,
			MaxPositionPct: 0.2,
			MinBetAmount:   1.0,
			MinEdge:        0.0,
		},
		Game: GameConfig{
			DurationDays: 30,
			StartDate:    "2025-10-01",
		},
		Clock: ClockConfig{
			TickInterval: Duration{1 * time.Minute},
			MaxDays:      0,
		},
		Scenarios: ScenariosConfig{
			ManifoldLimit: 50,
			CacheTTL:      Duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "predictsim:events",
			MaxLen: 10000,
		},
		Archive: ArchiveConfig{
			Dir:    "./data/games",
			Region: "us-east-1",
			Prefix: "games/",
		},
	}
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Market.InitialLiquidity > 0, "market.initial_liquidity must be positive")
	check(c.Market.FeeRate >= 0 && c.Market.FeeRate < 1, "market.fee_rate must be in [0, 1)")
	check(c.Market.PlatformShare >= 0 && c.Market.PlatformShare <= 1, "market.platform_share must be in [0, 1]")
	check(c.Market.MinFee >= 0, "market.min_fee must not be negative")
	check(c.Questions.MaxActive > 0, "questions.max_active must be positive")
	check(c.Questions.MinPerCall >= 0 && c.Questions.MinPerCall <= c.Questions.MaxPerCall, "questions.min_per_call must be in [0, max_per_call]")
	check(c.Questions.MinResolutionDays <= c.Questions.MaxResolutionDays, "questions.min_resolution_days must not exceed max_resolution_days")
	check(c.Disclosure.InsiderFloor >= 0 && c.Disclosure.InsiderFloor <= 1, "disclosure.insider_floor must be in [0, 1]")
	check(c.Disclosure.OutsiderFloor >= 0 && c.Disclosure.OutsiderFloor <= c.Disclosure.OutsiderMidCeiling, "disclosure.outsider_floor must be in [0, outsider_mid_ceiling]")
	check(c.Disclosure.OutsiderMidCeiling <= c.Disclosure.InsiderFloor, "disclosure.outsider_mid_ceiling must not exceed insider_floor")
	check(c.Disclosure.InsiderEveryDays >= 1 && c.Disclosure.OutsiderEveryDays >= 1, "disclosure clue intervals must be at least 1 day")
	check(c.Agents.Count > 0, "agents.count must be positive")
	check(c.Agents.InsiderPct >= 0 && c.Agents.InsiderPct <= 1, "agents.insider_pct must be in [0, 1]")
	check(c.Agents.StartingBalance > 0, "agents.starting_balance must be positive")
	check(c.Agents.RiskThresholdMin >= 0 && c.Agents.RiskThresholdMin <= c.Agents.RiskThresholdMax, "agents.risk_threshold_min must be in [0, risk_threshold_max]")
	check(c.Risk.KellyFraction > 0 && c.Risk.KellyFraction <= 1, "risk.kelly_fraction must be in (0, 1]")
	check(c.Risk.MaxPositionPct > 0 && c.Risk.MaxPositionPct <= 1, "risk.max_position_pct must be in (0, 1]")
	check(c.Game.DurationDays >= 3, "game.duration_days must be at least 3")
	if _, err := time.Parse("2006-01-02", c.Game.StartDate); err != nil {
		errs = append(errs, fmt.Errorf("game.start_date: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
