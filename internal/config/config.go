package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/execution"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/optimizer"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/overlay"
)

// Config holds all application configuration
type Config struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Liability struct {
		DurationBumpBps  float64 `mapstructure:"duration_bump_bps"`
		ConvexityBumpBps float64 `mapstructure:"convexity_bump_bps"`
	} `mapstructure:"liability"`
	Optimizer struct {
		FeasibilityTol float64       `mapstructure:"feasibility_tol"`
		InfeasibleTol  float64       `mapstructure:"infeasible_tol"`
		OptimalityTol  float64       `mapstructure:"optimality_tol"`
		PSDTol         float64       `mapstructure:"psd_tol"`
		TieEpsilon     float64       `mapstructure:"tie_epsilon"`
		PenaltyGrowth  float64       `mapstructure:"penalty_growth"`
		MaxIterations  int           `mapstructure:"max_iterations"`
		Starts         int           `mapstructure:"starts"`
		Workers        int           `mapstructure:"workers"`
		Seed           int64         `mapstructure:"seed"`
		Timeout        time.Duration `mapstructure:"timeout"`
	} `mapstructure:"optimizer"`
	Execution struct {
		SliceInterval        time.Duration `mapstructure:"slice_interval"`
		MaxParticipation     float64       `mapstructure:"max_participation"`
		POVRate              float64       `mapstructure:"pov_rate"`
		LargeOrderADV        float64       `mapstructure:"large_order_adv"`
		RiskAversion         float64       `mapstructure:"risk_aversion"`
		PermanentCoefficient float64       `mapstructure:"permanent_coefficient"`
		PermanentExponent    float64       `mapstructure:"permanent_exponent"`
		TemporaryCoefficient float64       `mapstructure:"temporary_coefficient"`
		TemporaryExponent    float64       `mapstructure:"temporary_exponent"`
		MaxHorizonDays       int           `mapstructure:"max_horizon_days"`
		UrgencySessions      struct {
			High   float64 `mapstructure:"high"`
			Medium float64 `mapstructure:"medium"`
			Low    float64 `mapstructure:"low"`
		} `mapstructure:"urgency_sessions"`
	} `mapstructure:"execution"`
	Overlay struct {
		RelativeTolerance float64 `mapstructure:"relative_tolerance"`
		AbsDuration       float64 `mapstructure:"abs_duration"`
		AbsConvexity      float64 `mapstructure:"abs_convexity"`
		AbsEquity         float64 `mapstructure:"abs_equity"`
		MatchConvexity    bool    `mapstructure:"match_convexity"`
	} `mapstructure:"overlay"`
	Run struct {
		Parallelism int           `mapstructure:"parallelism"`
		SessionOpen time.Duration `mapstructure:"session_open"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"run"`
	Schedule struct {
		Cron string `mapstructure:"cron"`
	} `mapstructure:"schedule"`
	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
	GRPC struct {
		Addr  string `mapstructure:"addr"`
		Token string `mapstructure:"token"`
	} `mapstructure:"grpc"`
	Store struct {
		Snapshot    string `mapstructure:"snapshot"`
		PostgresDSN string `mapstructure:"postgres_dsn"`
	} `mapstructure:"store"`
}

// Load reads config from a YAML file, then applies LDI_ environment overrides
// An empty path loads defaults and environment only
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	opt := optimizer.DefaultConfig()
	exe := execution.DefaultConfig()
	ovl := overlay.DefaultConfig()

	v.SetDefault("log.level", "info")

	v.SetDefault("liability.duration_bump_bps", 1.0)
	v.SetDefault("liability.convexity_bump_bps", 10.0)

	v.SetDefault("optimizer.feasibility_tol", opt.FeasibilityTol)
	v.SetDefault("optimizer.infeasible_tol", opt.InfeasibleTol)
	v.SetDefault("optimizer.optimality_tol", opt.OptimalityTol)
	v.SetDefault("optimizer.psd_tol", opt.PSDTol)
	v.SetDefault("optimizer.tie_epsilon", opt.TieEpsilon)
	v.SetDefault("optimizer.penalty_growth", opt.PenaltyGrowth)
	v.SetDefault("optimizer.max_iterations", opt.MaxIterations)
	v.SetDefault("optimizer.starts", opt.Starts)
	v.SetDefault("optimizer.workers", opt.Workers)
	v.SetDefault("optimizer.seed", opt.Seed)
	v.SetDefault("optimizer.timeout", 30*time.Second)

	v.SetDefault("execution.slice_interval", exe.SliceInterval)
	v.SetDefault("execution.max_participation", exe.MaxParticipation)
	v.SetDefault("execution.pov_rate", exe.POVRate)
	v.SetDefault("execution.large_order_adv", exe.LargeOrderADV)
	v.SetDefault("execution.risk_aversion", exe.RiskAversion)
	v.SetDefault("execution.permanent_coefficient", exe.Impact.PermanentCoefficient)
	v.SetDefault("execution.permanent_exponent", exe.Impact.PermanentExponent)
	v.SetDefault("execution.temporary_coefficient", exe.Impact.TemporaryCoefficient)
	v.SetDefault("execution.temporary_exponent", exe.Impact.TemporaryExponent)
	v.SetDefault("execution.max_horizon_days", exe.MaxHorizonDays)
	v.SetDefault("execution.urgency_sessions.high", exe.UrgencySessions[domain.UrgencyHigh])
	v.SetDefault("execution.urgency_sessions.medium", exe.UrgencySessions[domain.UrgencyMedium])
	v.SetDefault("execution.urgency_sessions.low", exe.UrgencySessions[domain.UrgencyLow])

	v.SetDefault("overlay.relative_tolerance", ovl.RelativeTolerance)
	v.SetDefault("overlay.abs_duration", ovl.AbsDuration)
	v.SetDefault("overlay.abs_convexity", ovl.AbsConvexity)
	v.SetDefault("overlay.abs_equity", ovl.AbsEquity)
	v.SetDefault("overlay.match_convexity", ovl.MatchConvexity)

	v.SetDefault("run.parallelism", 4)
	v.SetDefault("run.session_open", 14*time.Hour+30*time.Minute)
	v.SetDefault("run.timeout", 2*time.Minute)

	v.SetDefault("schedule.cron", "0 22 * * 1-5")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("grpc.addr", ":8080")
	v.SetDefault("grpc.token", "")
	v.SetDefault("store.snapshot", "")
	v.SetDefault("store.postgres_dsn", "")
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Execution.MaxParticipation <= 0 || c.Execution.MaxParticipation > 1 {
		return errors.New("execution.max_participation must be in (0, 1]")
	}
	if c.Execution.POVRate > c.Execution.MaxParticipation {
		return errors.New("execution.pov_rate cannot exceed execution.max_participation")
	}
	if c.Execution.SliceInterval <= 0 {
		return errors.New("execution.slice_interval must be positive")
	}
	u := c.Execution.UrgencySessions
	if u.High <= 0 || u.Medium <= 0 || u.Low <= 0 {
		return errors.New("execution.urgency_sessions must be positive")
	}
	if c.Optimizer.TieEpsilon < 0 {
		return errors.New("optimizer.tie_epsilon cannot be negative")
	}
	if c.Overlay.RelativeTolerance < 0 {
		return errors.New("overlay.relative_tolerance cannot be negative")
	}
	if c.Run.Parallelism <= 0 {
		return errors.New("run.parallelism must be positive")
	}
	if c.Run.Timeout <= 0 {
		return errors.New("run.timeout must be positive")
	}
	if c.Run.SessionOpen < 0 || c.Run.SessionOpen >= 24*time.Hour {
		return errors.New("run.session_open must be within a day")
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	return nil
}

// OptimizerConfig maps the optimizer section onto the optimizer's settings
func (c *Config) OptimizerConfig() optimizer.Config {
	cfg := optimizer.DefaultConfig()
	o := c.Optimizer
	cfg.FeasibilityTol = o.FeasibilityTol
	cfg.InfeasibleTol = o.InfeasibleTol
	cfg.OptimalityTol = o.OptimalityTol
	cfg.PSDTol = o.PSDTol
	cfg.TieEpsilon = o.TieEpsilon
	cfg.PenaltyGrowth = o.PenaltyGrowth
	cfg.MaxIterations = o.MaxIterations
	cfg.Starts = o.Starts
	cfg.Workers = o.Workers
	cfg.Seed = o.Seed
	cfg.Timeout = o.Timeout
	return cfg
}

// ExecutionConfig maps the execution section onto the scheduler's settings
func (c *Config) ExecutionConfig() execution.Config {
	cfg := execution.DefaultConfig()
	e := c.Execution
	cfg.SliceInterval = e.SliceInterval
	cfg.MaxParticipation = e.MaxParticipation
	cfg.POVRate = e.POVRate
	cfg.LargeOrderADV = e.LargeOrderADV
	cfg.RiskAversion = e.RiskAversion
	cfg.Impact = execution.ImpactModel{
		PermanentCoefficient: e.PermanentCoefficient,
		PermanentExponent:    e.PermanentExponent,
		TemporaryCoefficient: e.TemporaryCoefficient,
		TemporaryExponent:    e.TemporaryExponent,
	}
	cfg.MaxHorizonDays = e.MaxHorizonDays
	cfg.UrgencySessions = map[domain.Urgency]float64{
		domain.UrgencyHigh:   e.UrgencySessions.High,
		domain.UrgencyMedium: e.UrgencySessions.Medium,
		domain.UrgencyLow:    e.UrgencySessions.Low,
	}
	return cfg
}

// OverlayConfig maps the overlay section onto the overlay manager's settings
func (c *Config) OverlayConfig() overlay.Config {
	cfg := overlay.DefaultConfig()
	o := c.Overlay
	cfg.RelativeTolerance = o.RelativeTolerance
	cfg.AbsDuration = o.AbsDuration
	cfg.AbsConvexity = o.AbsConvexity
	cfg.AbsEquity = o.AbsEquity
	cfg.MatchConvexity = o.MatchConvexity
	return cfg
}
