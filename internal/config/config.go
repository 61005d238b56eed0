package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// Config represents the tonecheck configuration.
type Config struct {
	Provider          string           `json:"provider"`
	Model             string           `json:"model"`
	Format            string           `json:"format"`
	Temperature       float64          `json:"temperature"`
	MaxTokens         int              `json:"maxTokens"`
	MaxRetries        int              `json:"maxRetries"`
	ChunkSize         int              `json:"chunkSize"`
	Concurrency       int              `json:"concurrency"`
	ReasonLanguage    string           `json:"reasonLanguage"`
	GuidelinesFile    string           `json:"guidelinesFile,omitempty"`
	HistoryDB         string           `json:"historyDB,omitempty"`
	PendingTTLSeconds int              `json:"pendingTTLSeconds"`
	WorkerURL         string           `json:"workerURL,omitempty"`
	Guidelines        GuidelinesConfig `json:"guidelines"`
	Cache             CacheConfig      `json:"cache"`
	Log               LogConfig        `json:"log"`
}

// GuidelinesConfig identifies the knowledge-base page and rule database
// that `guidelines sync` reads.
type GuidelinesConfig struct {
	PageID     string `json:"pageId,omitempty"`
	DatabaseID string `json:"databaseId,omitempty"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:          "openai",
		Model:             "gpt-4o-mini",
		Format:            "text",
		Temperature:       0.3,
		MaxTokens:         4096,
		MaxRetries:        0,
		ChunkSize:         40,
		Concurrency:       4,
		ReasonLanguage:    "Korean",
		PendingTTLSeconds: 120,
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for tonecheck.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tonecheck"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "tonecheck"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tonecheck"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "tonecheck"), nil
	default:
		return filepath.Join(home, ".config", "tonecheck"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// HistoryPath returns the history database path: HistoryDB when set,
// otherwise history.db in the config directory.
func (c Config) HistoryPath() (string, error) {
	if c.HistoryDB != "" {
		return c.HistoryDB, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// LoadFile loads config from the config file. Returns zero Config and nil error if file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	mergeEnv(&cfg)
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(dst *Config, src Config) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	// A zero temperature in the file is indistinguishable from unset; use
	// `config set temperature 0` semantics via env or flags instead.
	if src.Temperature > 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens > 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.MaxRetries > 0 {
		dst.MaxRetries = src.MaxRetries
	}
	if src.ChunkSize > 0 {
		dst.ChunkSize = src.ChunkSize
	}
	if src.Concurrency > 0 {
		dst.Concurrency = src.Concurrency
	}
	if src.ReasonLanguage != "" {
		dst.ReasonLanguage = src.ReasonLanguage
	}
	if src.GuidelinesFile != "" {
		dst.GuidelinesFile = src.GuidelinesFile
	}
	if src.HistoryDB != "" {
		dst.HistoryDB = src.HistoryDB
	}
	if src.PendingTTLSeconds > 0 {
		dst.PendingTTLSeconds = src.PendingTTLSeconds
	}
	if src.WorkerURL != "" {
		dst.WorkerURL = src.WorkerURL
	}
	if src.Guidelines.PageID != "" {
		dst.Guidelines.PageID = src.Guidelines.PageID
	}
	if src.Guidelines.DatabaseID != "" {
		dst.Guidelines.DatabaseID = src.Guidelines.DatabaseID
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Cache.TTLSeconds > 0 {
		dst.Cache.TTLSeconds = src.Cache.TTLSeconds
	}
	// JSON cannot tell an unset bool from false, so a file can only turn
	// these on.
	dst.Cache.Enabled = src.Cache.Enabled || dst.Cache.Enabled
	dst.Log.Development = src.Log.Development || dst.Log.Development
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("TONECHECK_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("TONECHECK_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("TONECHECK_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("TONECHECK_WORKER_URL"); v != "" {
		cfg.WorkerURL = v
	}
	if v := os.Getenv("TONECHECK_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("TONECHECK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TONECHECK_GUIDELINES_FILE"); v != "" {
		cfg.GuidelinesFile = v
	}
	if v := os.Getenv("TONECHECK_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
}

// overrideKeys are the keys CLI flags may override.
var overrideKeys = []string{
	"provider", "model", "format", "temperature", "chunkSize", "concurrency",
	"reasonLanguage", "guidelinesFile", "historyDB", "workerURL", "log.level",
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for _, key := range overrideKeys {
		v, ok := overrides[key]
		if !ok || v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "format":
		cfg.Format = value
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		cfg.Temperature = f
	case "maxTokens":
		return setInt(&cfg.MaxTokens, key, value)
	case "maxRetries":
		return setInt(&cfg.MaxRetries, key, value)
	case "chunkSize":
		return setInt(&cfg.ChunkSize, key, value)
	case "concurrency":
		return setInt(&cfg.Concurrency, key, value)
	case "reasonLanguage":
		cfg.ReasonLanguage = value
	case "guidelinesFile":
		cfg.GuidelinesFile = value
	case "historyDB":
		cfg.HistoryDB = value
	case "pendingTTLSeconds":
		return setInt(&cfg.PendingTTLSeconds, key, value)
	case "workerURL":
		cfg.WorkerURL = value
	case "guidelines.pageId":
		cfg.Guidelines.PageID = value
	case "guidelines.databaseId":
		cfg.Guidelines.DatabaseID = value
	case "cache.enabled":
		return setBool(&cfg.Cache.Enabled, key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		return setInt(&cfg.Cache.TTLSeconds, key, value)
	case "log.level":
		cfg.Log.Level = value
	case "log.development":
		return setBool(&cfg.Log.Development, key, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}
