package config

// Application constants
const (
	AppName    = "crossmarket"
	AppVersion = "0.4.0"

	// EnvPrefix namespaces every environment variable, e.g. XMKT_SERVER_PORT.
	EnvPrefix         = "XMKT"
	EnvConfigFile     = "XMKT_CONFIG_FILE"
	DefaultConfigFile = "config.yaml"

	DefaultDataDir   = "data"
	DefaultOutputDir = "output"
	DefaultLogsDir   = "logs"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultLocation   = "America/New_York"
	DefaultTimeLayout = "2006-01-02 15:04:05"

	// API Endpoints
	APIBasePath      = "/api/v1"
	AnalysesEndpoint = "/api/v1/analyses"
	BasketsEndpoint  = "/api/v1/baskets"
	HealthEndpoint   = "/api/health"
	VersionEndpoint  = "/api/version"
	MetricsEndpoint  = "/metrics"
)
