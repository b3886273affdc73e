// Package config loads the crossmarket configuration.
//
// # Configuration Sources
//
// Values are layered in increasing order of precedence:
//
//	1. Built-in defaults (Default)
//	2. YAML file named by XMKT_CONFIG_FILE (config.yaml when unset)
//	3. Environment variables with the XMKT_ prefix
//
// # Environment Variables
//
// Nested sections are joined with underscores:
//
//	XMKT_SERVER_PORT=8080
//	XMKT_LOGGING_LEVEL=debug
//	XMKT_PATHS_DATA_DIR=/srv/prices
//	XMKT_ANALYSIS_BASELINE_DAYS=20
//	XMKT_ANALYSIS_RETURN_MODE=simple
//
// # Configuration File
//
//	server:
//	  port: 8080
//	paths:
//	  data_dir: data
//	  baskets_file: baskets.yaml
//	analysis:
//	  interval: 5m
//	  threshold_sd: 2.0
//	  min_sustained: 3
//	  percentile_method: empirical
//
// Validation uses go-playground/validator struct tags; the analysis section
// is additionally checked by converting it with AnalysisConfig.ToEngineConfig.
package config
