package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"pmgate/internal/logging"
)

// Config represents the full engine configuration. A loaded Config is
// immutable; hot reloads produce a fresh instance swapped in by the Manager.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   logging.Config  `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	Engine    EngineConfig    `yaml:"engine"`
	Risk      RiskConfig      `yaml:"risk"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Drawdown  DrawdownConfig  `yaml:"drawdown"`
	Execution ExecutionConfig `yaml:"execution"`
	Alerting  AlertingConfig  `yaml:"alerting"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

// DatabaseConfig represents the audit-trail database configuration
type DatabaseConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig represents the state-store configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// APIConfig represents the ops API configuration
type APIConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	JWTSecret            string        `yaml:"jwt_secret"`
	TokenTTL             time.Duration `yaml:"token_ttl"`
	OperatorUser         string        `yaml:"operator_user"`
	OperatorPasswordHash string        `yaml:"operator_password_hash"` // bcrypt
}

// EngineConfig represents the decision-cycle configuration
type EngineConfig struct {
	ScanSchedule       string        `yaml:"scan_schedule"` // cron expression
	MaxConcurrentEvals int           `yaml:"max_concurrent_evals"`
	CycleTimeout       time.Duration `yaml:"cycle_timeout"`
	MarketRegime       string        `yaml:"market_regime"`
	DryRun             bool          `yaml:"dry_run"`
	InitialBankrollUSD float64       `yaml:"initial_bankroll_usd"`
	ForecastQueue      string        `yaml:"forecast_queue"`
	FeedURL            string        `yaml:"feed_url"` // websocket book feed; empty disables
}

// RiskConfig represents admission-control thresholds
type RiskConfig struct {
	MinEdge             float64       `yaml:"min_edge"`
	MinEvidenceQuality  float64       `yaml:"min_evidence_quality"`
	MinConfidence       string        `yaml:"min_confidence"` // low|medium|high
	MinLiquidityUSD     float64       `yaml:"min_liquidity_usd"`
	MaxSpread           float64       `yaml:"max_spread"`
	MinTimeToResolution time.Duration `yaml:"min_time_to_resolution"`
	MaxTimeToResolution time.Duration `yaml:"max_time_to_resolution"` // zero disables the far bound
	MaxOpenPositions    int           `yaml:"max_open_positions"`
	MaxDailyLossUSD     float64       `yaml:"max_daily_loss_usd"`
	MaxDailyExposureUSD float64       `yaml:"max_daily_exposure_usd"`
	MaxCategoryFraction float64       `yaml:"max_category_fraction"`
	LiveTradingEnabled  bool          `yaml:"live_trading_enabled"`
}

// Band maps a lower bound on a float input to a sizing factor. Bands are
// matched by the highest Min not exceeding the input.
type Band struct {
	Min    float64 `yaml:"min"`
	Factor float64 `yaml:"factor"`
}

// CountBand maps a lower bound on an integer input to a sizing factor
type CountBand struct {
	Min    int     `yaml:"min"`
	Factor float64 `yaml:"factor"`
}

// SizingConfig represents Kelly sizing configuration. Every factor table is
// optional; an unmatched input yields a neutral 1.0 multiplier.
type SizingConfig struct {
	KellyFraction        float64            `yaml:"kelly_fraction"`
	MaxStakePerMarketUSD float64            `yaml:"max_stake_per_market_usd"`
	MaxBankrollFraction  float64            `yaml:"max_bankroll_fraction"`
	MinTicketUSD         float64            `yaml:"min_ticket_usd"`
	EvidenceBands        []Band             `yaml:"evidence_bands"`
	AgreementBands       []CountBand        `yaml:"agreement_bands"`
	RegimeFactors        map[string]float64 `yaml:"regime_factors"`
	CategoryFactors      map[string]float64 `yaml:"category_factors"`
	LiquidityBands       []Band             `yaml:"liquidity_bands"`
	ConfidenceFactors    map[string]float64 `yaml:"confidence_factors"`
}

// DrawdownConfig represents heat-level thresholds and their Kelly multipliers
type DrawdownConfig struct {
	WarmThreshold      float64 `yaml:"warm_threshold"`
	HotThreshold       float64 `yaml:"hot_threshold"`
	CriticalThreshold  float64 `yaml:"critical_threshold"`
	CoolMultiplier     float64 `yaml:"cool_multiplier"`
	WarmMultiplier     float64 `yaml:"warm_multiplier"`
	HotMultiplier      float64 `yaml:"hot_multiplier"`
	CriticalMultiplier float64 `yaml:"critical_multiplier"`
}

// ExecutionConfig represents order execution configuration
type ExecutionConfig struct {
	ImpactThreshold     float64       `yaml:"impact_threshold"` // stake / liquidity
	TightSpread         float64       `yaml:"tight_spread"`
	VolatilityThreshold float64       `yaml:"volatility_threshold"`
	ThinDepthRatio      float64       `yaml:"thin_depth_ratio"` // stake / visible top depth
	MaxSliceUSD         float64       `yaml:"max_slice_usd"`
	VisibleSliceUSD     float64       `yaml:"visible_slice_usd"`
	SliceInterval       time.Duration `yaml:"slice_interval"`
	SlippageTolerance   float64       `yaml:"slippage_tolerance"`
	CompletionThreshold float64       `yaml:"completion_threshold"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	OrderTimeout        time.Duration `yaml:"order_timeout"`
	OrdersPerSecond     float64       `yaml:"orders_per_second"`
	OrderBurst          int           `yaml:"order_burst"`
}

// AlertingConfig represents alert delivery configuration
type AlertingConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryCount    int           `yaml:"retry_count"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// Load loads configuration from a YAML file, expanding ${VAR} references
// from the environment before parsing.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := Default()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with conservative defaults. Values are
// overridden by the YAML file; defaults keep a sparse file safe to run.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "pmgate", Env: "development"},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			ScanSchedule:       "*/5 * * * *",
			MaxConcurrentEvals: 4,
			CycleTimeout:       2 * time.Minute,
			MarketRegime:       "neutral",
			DryRun:             true,
			ForecastQueue:      "pmgate:forecasts",
		},
		Risk: RiskConfig{
			MinEdge:             0.05,
			MinEvidenceQuality:  0.5,
			MinConfidence:       "medium",
			MinLiquidityUSD:     10000,
			MaxSpread:           0.05,
			MinTimeToResolution: 6 * time.Hour,
			MaxOpenPositions:    10,
			MaxDailyLossUSD:     500,
			MaxDailyExposureUSD: 2000,
			MaxCategoryFraction: 0.30,
		},
		Sizing: SizingConfig{
			KellyFraction:        0.25,
			MaxStakePerMarketUSD: 250,
			MaxBankrollFraction:  0.10,
			MinTicketUSD:         5,
		},
		Drawdown: DrawdownConfig{
			WarmThreshold:      0.05,
			HotThreshold:       0.10,
			CriticalThreshold:  0.20,
			CoolMultiplier:     1.0,
			WarmMultiplier:     0.75,
			HotMultiplier:      0.5,
			CriticalMultiplier: 0.0,
		},
		Execution: ExecutionConfig{
			ImpactThreshold:     0.01,
			TightSpread:         0.03,
			VolatilityThreshold: 0.08,
			ThinDepthRatio:      2.0,
			MaxSliceUSD:         100,
			VisibleSliceUSD:     25,
			SliceInterval:       30 * time.Second,
			SlippageTolerance:   0.01,
			CompletionThreshold: 0.95,
			MaxRetries:          3,
			RetryBackoff:        time.Second,
			OrderTimeout:        10 * time.Second,
			OrdersPerSecond:     2,
			OrderBurst:          4,
		},
		Alerting: AlertingConfig{
			Timeout:       5 * time.Second,
			RetryCount:    3,
			RetryInterval: 2 * time.Second,
		},
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8370,
			TokenTTL: time.Hour,
		},
		Database: DatabaseConfig{
			SSLMode: "disable",
			MaxOpen: 10,
			MaxIdle: 2,
			Timeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
	}
}
