package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Thresholds used by the different retrieval call sites. They differ on
// purpose and are overridable through the environment or the config file.
const (
	DefaultSearchThreshold    = 0.7
	DefaultRelevanceThreshold = 0.5
	DefaultSemanticThreshold  = 0.6
	DefaultSearchLimit        = 10
	DefaultFingerprintDim     = 128
)

// StorageMode selects where the store keeps its data.
type StorageMode string

const (
	StorageSQLite StorageMode = "sqlite"
	StorageMemory StorageMode = "memory"
)

type Config struct {
	Port     int    `yaml:"port"`
	DBURL    string `yaml:"db_url"`
	LogLevel string `yaml:"log_level"`
	APIKey   string `yaml:"api_key"`

	// Derived from DBURL by Load.
	StorageMode StorageMode `yaml:"-"`
	DBPath      string      `yaml:"-"`

	// Fingerprints
	FingerprintDim       int    `yaml:"fingerprint_dim"`
	FingerprintCacheSize int    `yaml:"fingerprint_cache_size"`
	EmbeddingProvider    string `yaml:"embedding_provider"`
	OllamaBaseURL        string `yaml:"ollama_base_url"`
	EmbeddingModel       string `yaml:"embedding_model"`

	// Native top-K index
	IndexBackend     string `yaml:"index_backend"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// Retrieval tuning
	SearchThreshold    float64 `yaml:"search_threshold"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	SemanticThreshold  float64 `yaml:"semantic_threshold"`
	SearchLimit        int     `yaml:"search_limit"`

	// Background indexing
	IndexTaskDelay      time.Duration `yaml:"index_task_delay"`
	MaintenanceSchedule string        `yaml:"maintenance_schedule"`
	WatchActiveFiles    bool          `yaml:"watch_active_files"`
	FileSampleBytes     int           `yaml:"file_sample_bytes"`
	MaxIndexFileBytes   int64         `yaml:"max_index_file_bytes"`
}

// Error reports a configuration value that prevents startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	dbURL := "file:recall.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbURL = "file:" + filepath.Join(home, ".recall", "recall.db")
	}
	return &Config{
		Port:                 8742,
		DBURL:                dbURL,
		LogLevel:             "info",
		FingerprintDim:       DefaultFingerprintDim,
		FingerprintCacheSize: 4096,
		EmbeddingProvider:    "hash",
		OllamaBaseURL:        "http://localhost:11434",
		EmbeddingModel:       "nomic-embed-text",
		IndexBackend:         "chromem",
		QdrantURL:            "http://localhost:6333",
		QdrantCollection:     "recall_fingerprints",
		SearchThreshold:      DefaultSearchThreshold,
		RelevanceThreshold:   DefaultRelevanceThreshold,
		SemanticThreshold:    DefaultSemanticThreshold,
		SearchLimit:          DefaultSearchLimit,
		IndexTaskDelay:       100 * time.Millisecond,
		MaintenanceSchedule:  "@every 10m",
		WatchActiveFiles:     true,
		FileSampleBytes:      8192,
		MaxIndexFileBytes:    1 << 20,
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by RECALL_CONFIG, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("RECALL_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.resolveStorage(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &Error{Key: "RECALL_CONFIG", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.DBURL = envStr("RECALL_DB_URL", c.DBURL)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.FingerprintDim = envInt("FINGERPRINT_DIM", c.FingerprintDim)
	c.FingerprintCacheSize = envInt("FINGERPRINT_CACHE_SIZE", c.FingerprintCacheSize)
	c.EmbeddingProvider = envStr("EMBEDDING_PROVIDER", c.EmbeddingProvider)
	c.OllamaBaseURL = envStr("OLLAMA_BASE_URL", c.OllamaBaseURL)
	c.EmbeddingModel = envStr("EMBEDDING_MODEL", c.EmbeddingModel)
	c.IndexBackend = envStr("INDEX_BACKEND", c.IndexBackend)
	c.QdrantURL = envStr("QDRANT_URL", c.QdrantURL)
	c.QdrantCollection = envStr("QDRANT_COLLECTION", c.QdrantCollection)
	c.SearchThreshold = envFloat("SEARCH_THRESHOLD", c.SearchThreshold)
	c.RelevanceThreshold = envFloat("RELEVANCE_THRESHOLD", c.RelevanceThreshold)
	c.SemanticThreshold = envFloat("SEMANTIC_THRESHOLD", c.SemanticThreshold)
	c.SearchLimit = envInt("SEARCH_LIMIT", c.SearchLimit)
	c.IndexTaskDelay = envDuration("INDEX_TASK_DELAY", c.IndexTaskDelay)
	c.MaintenanceSchedule = envStr("MAINTENANCE_SCHEDULE", c.MaintenanceSchedule)
	c.WatchActiveFiles = envBool("WATCH_ACTIVE_FILES", c.WatchActiveFiles)
	c.FileSampleBytes = envInt("FILE_SAMPLE_BYTES", c.FileSampleBytes)
	c.MaxIndexFileBytes = int64(envInt("MAX_INDEX_FILE_BYTES", int(c.MaxIndexFileBytes)))
}

// resolveStorage derives StorageMode and DBPath from DBURL.
func (c *Config) resolveStorage() error {
	mode, path, err := ParseDBURL(c.DBURL)
	if err != nil {
		return err
	}
	c.StorageMode = mode
	c.DBPath = path
	return nil
}

// ParseDBURL accepts "file:<path>", "sqlite:<path>" (either with or without
// "//"), "memory:" and bare filesystem paths. Other schemes are rejected.
func ParseDBURL(raw string) (StorageMode, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", &Error{Key: "RECALL_DB_URL", Reason: "must not be empty"}
	}
	if raw == ":memory:" {
		return StorageMemory, "", nil
	}

	scheme, rest, ok := splitScheme(raw)
	if !ok {
		return StorageSQLite, expandHome(raw), nil
	}
	rest = strings.TrimPrefix(rest, "//")

	switch scheme {
	case "memory":
		return StorageMemory, "", nil
	case "file", "sqlite":
		if rest == "" {
			return "", "", &Error{Key: "RECALL_DB_URL", Reason: "missing database path"}
		}
		return StorageSQLite, expandHome(rest), nil
	default:
		return "", "", &Error{Key: "RECALL_DB_URL", Reason: fmt.Sprintf("unsupported scheme %q", scheme)}
	}
}

func splitScheme(raw string) (string, string, bool) {
	i := strings.Index(raw, ":")
	if i < 2 {
		// no scheme, or a single drive letter
		return "", "", false
	}
	scheme := strings.ToLower(raw[:i])
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return "", "", false
		}
	}
	return scheme, raw[i+1:], true
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &Error{Key: "PORT", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.Port)}
	}
	if c.FingerprintDim < 1 {
		return &Error{Key: "FINGERPRINT_DIM", Reason: fmt.Sprintf("must be positive, got %d", c.FingerprintDim)}
	}
	if c.FingerprintCacheSize < 1 {
		return &Error{Key: "FINGERPRINT_CACHE_SIZE", Reason: fmt.Sprintf("must be positive, got %d", c.FingerprintCacheSize)}
	}
	switch c.EmbeddingProvider {
	case "hash":
	case "ollama":
		if c.OllamaBaseURL == "" {
			return &Error{Key: "OLLAMA_BASE_URL", Reason: "required when EMBEDDING_PROVIDER=ollama"}
		}
	default:
		return &Error{Key: "EMBEDDING_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.EmbeddingProvider)}
	}
	switch c.IndexBackend {
	case "chromem", "none":
	case "qdrant":
		if c.QdrantURL == "" {
			return &Error{Key: "QDRANT_URL", Reason: "required when INDEX_BACKEND=qdrant"}
		}
	default:
		return &Error{Key: "INDEX_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.IndexBackend)}
	}
	for key, v := range map[string]float64{
		"SEARCH_THRESHOLD":    c.SearchThreshold,
		"RELEVANCE_THRESHOLD": c.RelevanceThreshold,
		"SEMANTIC_THRESHOLD":  c.SemanticThreshold,
	} {
		if v < -1 || v > 1 {
			return &Error{Key: key, Reason: fmt.Sprintf("must be within [-1, 1], got %f", v)}
		}
	}
	if c.SearchLimit < 1 {
		return &Error{Key: "SEARCH_LIMIT", Reason: fmt.Sprintf("must be positive, got %d", c.SearchLimit)}
	}
	if c.IndexTaskDelay < 0 {
		return &Error{Key: "INDEX_TASK_DELAY", Reason: "must not be negative"}
	}
	if c.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(c.MaintenanceSchedule); err != nil {
			return &Error{Key: "MAINTENANCE_SCHEDULE", Reason: err.Error()}
		}
	}
	if c.FileSampleBytes < 64 {
		return &Error{Key: "FILE_SAMPLE_BYTES", Reason: fmt.Sprintf("must be at least 64, got %d", c.FileSampleBytes)}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
