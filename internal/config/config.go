package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"crossmarket/internal/eventstudy"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" validate:"min=1024"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// RunTimeout bounds one analysis request end to end.
	RunTimeout time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	MaxBodyBytes int64           `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"min=1024"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration. Relative paths are
// resolved against BaseDir when it is set.
type PathsConfig struct {
	BaseDir   string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
	// BasketsFile holds basket definitions; empty means no predefined baskets.
	BasketsFile string `yaml:"baskets_file" envconfig:"BASKETS_FILE"`
}

// DataConfig describes how price files are read
type DataConfig struct {
	// Location interprets timestamps that carry no zone offset.
	Location   string `yaml:"location" envconfig:"LOCATION" validate:"required"`
	TimeLayout string `yaml:"time_layout" envconfig:"TIME_LAYOUT" validate:"required"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// AnalysisConfig holds every tunable of the event-study engine
type AnalysisConfig struct {
	ReturnMode           string        `yaml:"return_mode" envconfig:"RETURN_MODE" validate:"oneof=log simple"`
	Interval             time.Duration `yaml:"interval" envconfig:"INTERVAL" validate:"gt=0"`
	SessionFilter        bool          `yaml:"session_filter" envconfig:"SESSION_FILTER"`
	SessionLocation      string        `yaml:"session_location" envconfig:"SESSION_LOCATION" validate:"required"`
	SessionOpen          string        `yaml:"session_open" envconfig:"SESSION_OPEN" validate:"required"`
	SessionClose         string        `yaml:"session_close" envconfig:"SESSION_CLOSE" validate:"required"`
	GapPolicy            string        `yaml:"gap_policy" envconfig:"GAP_POLICY" validate:"oneof=skip include fail"`
	BaselineDays         int           `yaml:"baseline_days" envconfig:"BASELINE_DAYS" validate:"min=1"`
	MinObservations      int           `yaml:"min_observations" envconfig:"MIN_OBSERVATIONS" validate:"min=3"`
	MinReferenceVariance float64       `yaml:"min_reference_variance" envconfig:"MIN_REFERENCE_VARIANCE" validate:"gte=0"`
	FitIntercept         bool          `yaml:"fit_intercept" envconfig:"FIT_INTERCEPT"`
	ThresholdSD          float64       `yaml:"threshold_sd" envconfig:"THRESHOLD_SD" validate:"gt=0"`
	MinSustained         int           `yaml:"min_sustained" envconfig:"MIN_SUSTAINED" validate:"min=1"`
	MinBaselineSamples   int           `yaml:"min_baseline_samples" envconfig:"MIN_BASELINE_SAMPLES" validate:"min=2"`
	PercentileMethod     string        `yaml:"percentile_method" envconfig:"PERCENTILE_METHOD" validate:"oneof=normal empirical"`
	SignificanceLevelSD  float64       `yaml:"significance_level_sd" envconfig:"SIGNIFICANCE_LEVEL_SD" validate:"gt=0"`
	MinSpreadBars        int           `yaml:"min_spread_bars" envconfig:"MIN_SPREAD_BARS" validate:"min=2"`
	Concurrency          int           `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1"`
}

// Default returns the built-in configuration
func Default() *Config {
	engine := eventstudy.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RunTimeout:      90 * time.Second,
		},
		Security: SecurityConfig{
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "stdout",
			FilePath: filepath.Join(DefaultLogsDir, "crossmarket.log"),
		},
		Paths: PathsConfig{
			DataDir:   DefaultDataDir,
			OutputDir: DefaultOutputDir,
			LogsDir:   DefaultLogsDir,
		},
		Data: DataConfig{
			Location:   DefaultLocation,
			TimeLayout: DefaultTimeLayout,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricsEnabled: true,
		},
		Analysis: AnalysisConfig{
			ReturnMode:           string(engine.ReturnMode),
			Interval:             engine.Interval,
			SessionFilter:        true,
			SessionLocation:      DefaultLocation,
			SessionOpen:          "09:30",
			SessionClose:         "16:00",
			GapPolicy:            string(engine.GapPolicy),
			BaselineDays:         engine.BaselineDays,
			MinObservations:      engine.MinObservations,
			MinReferenceVariance: engine.MinReferenceVariance,
			FitIntercept:         engine.FitIntercept,
			ThresholdSD:          engine.ThresholdSD,
			MinSustained:         engine.MinSustained,
			MinBaselineSamples:   engine.MinBaselineSamples,
			PercentileMethod:     string(engine.PercentileMethod),
			SignificanceLevelSD:  engine.SignificanceLevelSD,
			MinSpreadBars:        engine.MinSpreadBars,
			Concurrency:          engine.Concurrency,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// XMKT_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	} else if os.Getenv(EnvConfigFile) != "" {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file on cfg; keys absent from the file keep
// their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func getConfigFilePath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return DefaultConfigFile
}

func (c *Config) resolvePaths() {
	if c.Paths.BaseDir == "" {
		return
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Paths.BaseDir, p)
	}
	c.Paths.DataDir = resolve(c.Paths.DataDir)
	c.Paths.OutputDir = resolve(c.Paths.OutputDir)
	c.Paths.LogsDir = resolve(c.Paths.LogsDir)
	c.Paths.BasketsFile = resolve(c.Paths.BasketsFile)
	c.Logging.FilePath = resolve(c.Logging.FilePath)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Logging.Output != "stdout" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when output is %q", c.Logging.Output)
	}
	if _, err := time.LoadLocation(c.Data.Location); err != nil {
		return fmt.Errorf("data.location: %w", err)
	}
	if _, err := c.Analysis.ToEngineConfig(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return nil
}

// DataLocation returns the zone used for naive price timestamps.
func (c *Config) DataLocation() *time.Location {
	loc, err := time.LoadLocation(c.Data.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ToEngineConfig converts the analysis section into the engine's configuration.
func (a AnalysisConfig) ToEngineConfig() (eventstudy.Config, error) {
	cfg := eventstudy.Config{
		ReturnMode:           eventstudy.ReturnMode(a.ReturnMode),
		Interval:             a.Interval,
		GapPolicy:            eventstudy.GapPolicy(a.GapPolicy),
		BaselineDays:         a.BaselineDays,
		MinObservations:      a.MinObservations,
		MinReferenceVariance: a.MinReferenceVariance,
		FitIntercept:         a.FitIntercept,
		ThresholdSD:          a.ThresholdSD,
		MinSustained:         a.MinSustained,
		MinBaselineSamples:   a.MinBaselineSamples,
		PercentileMethod:     eventstudy.PercentileMethod(a.PercentileMethod),
		SignificanceLevelSD:  a.SignificanceLevelSD,
		MinSpreadBars:        a.MinSpreadBars,
		Concurrency:          a.Concurrency,
	}

	session, err := eventstudy.NewSession(a.SessionLocation, a.SessionOpen, a.SessionClose)
	if err != nil {
		return eventstudy.Config{}, err
	}
	if a.SessionFilter {
		cfg.Session = session
	}

	if err := cfg.Validate(); err != nil {
		return eventstudy.Config{}, err
	}
	return cfg, nil
}
