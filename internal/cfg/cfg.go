// Package cfg loads the toolkit configuration from a YAML file (CONFIG_FILE)
// with environment-variable overrides, or from the environment alone.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	DatasetPath  string
	TargetColumn string
	RunName      string
	DataPath     string // run-history store directory; empty disables it
	ReportPath   string // JSON report output; empty disables it

	NPerm       int
	Workers     int
	Seed        int64
	Loss        string
	ScoreProba  bool
	Groups      map[string][]string // group name -> feature names; empty means per-feature
	Imputation  string              // ridge or knn
	RidgeAlpha  float64
	KNNK        int
	Standardize bool
	SplitRatio  float64

	RemoteURL   string // score an already-fitted remote model instead of training
	RESTTimeout time.Duration

	MetricsPort int // 0 disables the metrics endpoint
}

// ConfigFile is the YAML layout.
type ConfigFile struct {
	Dataset struct {
		Path        string  `yaml:"path"`
		Target      string  `yaml:"target"`
		Standardize bool    `yaml:"standardize"`
		SplitRatio  float64 `yaml:"splitRatio"`
	} `yaml:"dataset"`

	Importance struct {
		RunName    string              `yaml:"runName"`
		NPerm      int                 `yaml:"nPerm"`
		Workers    int                 `yaml:"workers"`
		Seed       int64               `yaml:"seed"`
		Loss       string              `yaml:"loss"`
		ScoreProba bool                `yaml:"scoreProba"`
		Groups     map[string][]string `yaml:"groups"`
	} `yaml:"importance"`

	Imputation struct {
		Model      string  `yaml:"model"`
		RidgeAlpha float64 `yaml:"ridgeAlpha"`
		KNNK       int     `yaml:"knnK"`
	} `yaml:"imputation"`

	Model struct {
		RemoteURL   string `yaml:"remoteURL"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"model"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		ReportPath  string `yaml:"reportPath"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load reads CONFIG_FILE when set, otherwise the environment.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	restTimeout, err := time.ParseDuration(config.Model.RESTTimeout)
	if err != nil {
		restTimeout = 5 * time.Second
	}

	settings := Settings{
		DatasetPath:  getEnvOrDefault("DATASET_PATH", config.Dataset.Path),
		TargetColumn: getEnvOrDefault("TARGET_COLUMN", config.Dataset.Target),
		RunName:      getEnvOrDefault("RUN_NAME", defaultString(config.Importance.RunName, "cpi")),
		DataPath:     getEnvOrDefault("DATA_PATH", config.System.DataPath),
		ReportPath:   getEnvOrDefault("REPORT_PATH", config.System.ReportPath),
		NPerm:        getIntFromEnvOrConfig("N_PERM", config.Importance.NPerm, 50),
		Workers:      getIntFromEnvOrConfig("WORKERS", config.Importance.Workers, 1),
		Seed:         int64(getIntFromEnvOrConfig("SEED", int(config.Importance.Seed), 0)),
		Loss:         getEnvOrDefault("LOSS", defaultString(config.Importance.Loss, "mse")),
		ScoreProba:   getBoolFromEnvOrConfig("SCORE_PROBA", config.Importance.ScoreProba),
		Groups:       config.Importance.Groups,
		Imputation:   getEnvOrDefault("IMPUTATION", defaultString(config.Imputation.Model, "ridge")),
		RidgeAlpha:   getFloatFromEnvOrConfig("RIDGE_ALPHA", config.Imputation.RidgeAlpha, 1.0),
		KNNK:         getIntFromEnvOrConfig("KNN_K", config.Imputation.KNNK, 5),
		Standardize:  getBoolFromEnvOrConfig("STANDARDIZE", config.Dataset.Standardize),
		SplitRatio:   getFloatFromEnvOrConfig("SPLIT_RATIO", config.Dataset.SplitRatio, 0.8),
		RemoteURL:    getEnvOrDefault("REMOTE_URL", config.Model.RemoteURL),
		RESTTimeout:  restTimeout,
		MetricsPort:  getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	datasetPath, err := getEnvRequired("DATASET_PATH")
	if err != nil {
		return Settings{}, err
	}
	target, err := getEnvRequired("TARGET_COLUMN")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DatasetPath:  datasetPath,
		TargetColumn: target,
		RunName:      getEnvOrDefault("RUN_NAME", "cpi"),
		DataPath:     os.Getenv("DATA_PATH"), // optional
		ReportPath:   os.Getenv("REPORT_PATH"),
		NPerm:        getIntOrDefault("N_PERM", 50),
		Workers:      getIntOrDefault("WORKERS", 1),
		Seed:         int64(getIntOrDefault("SEED", 0)),
		Loss:         getEnvOrDefault("LOSS", "mse"),
		ScoreProba:   getBoolOrDefault("SCORE_PROBA", false),
		Imputation:   getEnvOrDefault("IMPUTATION", "ridge"),
		RidgeAlpha:   getFloatOrDefault("RIDGE_ALPHA", 1.0),
		KNNK:         getIntOrDefault("KNN_K", 5),
		Standardize:  getBoolOrDefault("STANDARDIZE", true),
		SplitRatio:   getFloatOrDefault("SPLIT_RATIO", 0.8),
		RemoteURL:    os.Getenv("REMOTE_URL"),
		RESTTimeout:  getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
		MetricsPort:  getIntOrDefault("METRICS_PORT", 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func validateSettings(settings *Settings) error {
	if settings.DatasetPath == "" {
		return fmt.Errorf("dataset path is required")
	}
	if settings.TargetColumn == "" {
		return fmt.Errorf("target column is required")
	}
	if settings.NPerm < 1 || settings.NPerm > 10000 {
		return fmt.Errorf("permutation count must be between 1 and 10000, got %d", settings.NPerm)
	}
	if settings.Workers < 1 || settings.Workers > 1024 {
		return fmt.Errorf("workers must be between 1 and 1024, got %d", settings.Workers)
	}
	switch settings.Loss {
	case "mse", "mae", "rmse", "logloss":
	default:
		return fmt.Errorf("loss must be one of mse, mae, rmse, logloss, got %q", settings.Loss)
	}
	switch settings.Imputation {
	case "ridge", "knn":
	default:
		return fmt.Errorf("imputation must be ridge or knn, got %q", settings.Imputation)
	}
	if settings.RidgeAlpha < 0 {
		return fmt.Errorf("ridge alpha must be >= 0, got %f", settings.RidgeAlpha)
	}
	if settings.KNNK < 1 {
		return fmt.Errorf("knn k must be >= 1, got %d", settings.KNNK)
	}
	if settings.SplitRatio <= 0 || settings.SplitRatio >= 1 {
		return fmt.Errorf("split ratio must be in (0, 1), got %f", settings.SplitRatio)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if strings.Contains(settings.RunName, "_") {
		// Run-store keys are "<runName>_<timestamp>"; an underscore in the
		// name corrupts the range scan over a study's history.
		return fmt.Errorf("run name %q: underscores are reserved in run-store keys", settings.RunName)
	}
	for name, features := range settings.Groups {
		if len(features) == 0 {
			return fmt.Errorf("group %q has no features", name)
		}
	}
	return nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}
