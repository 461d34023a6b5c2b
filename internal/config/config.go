package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

// Config aggregates all configuration sections for the application.
// Fields are populated from environment variables; nested structs are
// tagged with envPrefix so their fields parse with the given prefix.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"lumen-core"`

	HTTP       HTTP       `envPrefix:"HTTP_"`
	DB         DB         `envPrefix:"DB_"`
	Log        Log        `envPrefix:"LOG_"`
	Tracing    Tracing    `envPrefix:"TRACING_"`
	Billing    Billing    `envPrefix:"BILLING_"`
	Settlement Settlement `envPrefix:"SETTLEMENT_"`
	Scheduler  Scheduler  `envPrefix:"SCHEDULER_"`
}

// HTTP configures the gin server.
type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// DB configures the persistent store connection.
type DB struct {
	Driver       string        `env:"DRIVER" envDefault:"postgres"`
	DSN          string        `env:"DSN" envDefault:"host=localhost user=lumen dbname=lumen sslmode=disable"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFE" envDefault:"30m"`
	AutoMigrate  bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	Seed         bool          `env:"SEED" envDefault:"false"`
}

// Log configures the structured logger.
type Log struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled          bool    `env:"ENABLED" envDefault:"false"`
	ExporterEndpoint string  `env:"EXPORTER_ENDPOINT"`
	ExporterProtocol string  `env:"EXPORTER_PROTOCOL" envDefault:"grpc"`
	SamplingRatio    float64 `env:"SAMPLING_RATIO" envDefault:"0.1"`
}

// Billing configures invoice generation and payment terms.
type Billing struct {
	// TaxRateBps is the tax applied to invoice amounts, in basis points.
	TaxRateBps int64 `env:"TAX_RATE_BPS" envDefault:"1000"`
	// PaymentTermsDays sets the invoice due date relative to creation.
	PaymentTermsDays int `env:"PAYMENT_TERMS_DAYS" envDefault:"30"`
	// SummaryCacheTTL bounds staleness of cached account summaries.
	SummaryCacheTTL time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"5m"`
}

// Settlement configures partner payout computation.
type Settlement struct {
	// DefaultCPMCents is the rate-card CPM used when a partner has no
	// negotiated override, in cents per thousand impressions.
	DefaultCPMCents int64 `env:"DEFAULT_CPM_CENTS" envDefault:"500"`
	// PeriodDays is the length of an aligned settlement window.
	PeriodDays int `env:"PERIOD_DAYS" envDefault:"30"`
}

// Scheduler configures the background sweep worker.
type Scheduler struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"50"`
}

// Load reads configuration from environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Module provides the parsed configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
