// Package config loads examprep settings from defaults, a .env file, an
// optional config file, EXAMPREP_* environment variables and explicit
// overrides, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abhisek/examprep/internal/llm"
	"github.com/abhisek/examprep/internal/retrieval"
	"github.com/abhisek/examprep/internal/store"
	"github.com/abhisek/examprep/internal/studyplan"
	"github.com/abhisek/examprep/internal/synthesis"
	"github.com/abhisek/examprep/internal/vectorindex"
)

const EnvPrefix = "EXAMPREP"

// Keys.
const (
	KeyLogMode              = "log.mode"
	KeyStoreBackend         = "store.backend"
	KeyDB                   = "db"
	KeyMongoURI             = "mongo.uri"
	KeyMongoDatabase        = "mongo.database"
	KeyVectorBackend        = "vector.backend"
	KeyVectorDimension      = "vector.dimension"
	KeyVectorPath           = "vector.path"
	KeyVectorCollection     = "vector.collection"
	KeyPineconeAPIKey       = "pinecone.api_key"
	KeyPineconeIndexName    = "pinecone.index_name"
	KeyPineconeIndexHost    = "pinecone.index_host"
	KeyPineconeNamespace    = "pinecone.namespace"
	KeyRetrievalTopK        = "retrieval.top_k"
	KeySynthesisMaxChunks   = "synthesis.max_context_chunks"
	KeySynthesisMaxChars    = "synthesis.max_context_chars"
	KeySynthesisTemperature = "synthesis.temperature"
	KeySynthesisMaxTokens   = "synthesis.max_tokens"
	KeyRequestTimeout       = "request.timeout"
	KeyPlanPolicy           = "plan.policy"
	KeyPlanTopicsPerDay     = "plan.topics_per_day"
	KeyPlanDefaultMinutes   = "plan.default_minutes"
	KeyIngestBatchSize      = "ingest.batch_size"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	VectorChromem  = "chromem"
	VectorPinecone = "pinecone"
)

type Config struct {
	LogMode string

	Store  StoreConfig
	Vector VectorConfig

	Retrieval retrieval.Config
	Synthesis synthesis.Config
	Plan      studyplan.Config

	RequestTimeout  time.Duration
	IngestBatchSize int
}

type StoreConfig struct {
	Backend       string
	DBPath        string
	MongoURI      string
	MongoDatabase string
}

type VectorConfig struct {
	Backend    string
	Dimension  int
	Path       string
	Collection string
	Pinecone   PineconeConfig
}

type PineconeConfig struct {
	APIKey    string
	IndexName string
	IndexHost string
	Namespace string
}

// LoadOptions name the optional inputs of Load.
type LoadOptions struct {
	// File is a config file (yaml, json or toml). Empty means none.
	File string
	// DotEnv is loaded into the environment when it exists. Variables
	// already set are kept. Empty means ".env".
	DotEnv string
	// Overrides take precedence over everything else, keyed like the
	// Key constants. Used for command-line flags.
	Overrides map[string]any
}

// Load resolves the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadDotEnv(opts.DotEnv); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Code: CodeReadFile, Key: opts.File, Err: err}
		}
	}
	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &Error{Code: CodeReadFile, Key: path, Err: err}
	}
	if err := godotenv.Load(path); err != nil {
		return &Error{Code: CodeReadFile, Key: path, Err: err}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	syn := synthesis.DefaultConfig()
	plan := studyplan.DefaultConfig()

	v.SetDefault(KeyLogMode, "development")
	v.SetDefault(KeyStoreBackend, StoreSQLite)
	v.SetDefault(KeyDB, "")
	v.SetDefault(KeyMongoURI, "")
	v.SetDefault(KeyMongoDatabase, "examprep")
	v.SetDefault(KeyVectorBackend, VectorChromem)
	v.SetDefault(KeyVectorDimension, 1536)
	v.SetDefault(KeyVectorPath, "")
	v.SetDefault(KeyVectorCollection, vectorindex.DefaultCollection)
	v.SetDefault(KeyPineconeAPIKey, "")
	v.SetDefault(KeyPineconeIndexName, "")
	v.SetDefault(KeyPineconeIndexHost, "")
	v.SetDefault(KeyPineconeNamespace, "")
	v.SetDefault(KeyRetrievalTopK, retrieval.DefaultTopK)
	v.SetDefault(KeySynthesisMaxChunks, syn.MaxContextChunks)
	v.SetDefault(KeySynthesisMaxChars, syn.MaxContextChars)
	v.SetDefault(KeySynthesisTemperature, *syn.Temperature)
	v.SetDefault(KeySynthesisMaxTokens, syn.MaxTokens)
	v.SetDefault(KeyRequestTimeout, 5*time.Minute)
	v.SetDefault(KeyPlanPolicy, string(plan.Policy))
	v.SetDefault(KeyPlanTopicsPerDay, plan.TopicsPerDay)
	v.SetDefault(KeyPlanDefaultMinutes, plan.DefaultMinutes)
	v.SetDefault(KeyIngestBatchSize, vectorindex.DefaultBatchSize)
}

func fromViper(v *viper.Viper) (*Config, error) {
	backend := strings.ToLower(v.GetString(KeyStoreBackend))
	dbPath := v.GetString(KeyDB)
	vecPath := v.GetString(KeyVectorPath)
	// The memory backend keeps vectors in memory too unless a path is set.
	if backend != StoreMemory {
		if dbPath == "" {
			p, err := store.DefaultDBPath()
			if err != nil {
				return nil, &Error{Code: CodeInvalidValue, Key: KeyDB, Err: err}
			}
			dbPath = p
		}
		if vecPath == "" {
			vecPath = filepath.Join(filepath.Dir(dbPath), "vectors")
		}
	}

	syn := synthesis.DefaultConfig()
	syn.MaxContextChunks = v.GetInt(KeySynthesisMaxChunks)
	syn.MaxContextChars = v.GetInt(KeySynthesisMaxChars)
	syn.Temperature = llm.Float(v.GetFloat64(KeySynthesisTemperature))
	syn.MaxTokens = v.GetInt(KeySynthesisMaxTokens)

	return &Config{
		LogMode: v.GetString(KeyLogMode),
		Store: StoreConfig{
			Backend:       backend,
			DBPath:        dbPath,
			MongoURI:      v.GetString(KeyMongoURI),
			MongoDatabase: v.GetString(KeyMongoDatabase),
		},
		Vector: VectorConfig{
			Backend:    strings.ToLower(v.GetString(KeyVectorBackend)),
			Dimension:  v.GetInt(KeyVectorDimension),
			Path:       vecPath,
			Collection: v.GetString(KeyVectorCollection),
			Pinecone: PineconeConfig{
				APIKey:    v.GetString(KeyPineconeAPIKey),
				IndexName: v.GetString(KeyPineconeIndexName),
				IndexHost: v.GetString(KeyPineconeIndexHost),
				Namespace: v.GetString(KeyPineconeNamespace),
			},
		},
		Retrieval: retrieval.Config{TopK: v.GetInt(KeyRetrievalTopK)},
		Synthesis: syn,
		Plan: studyplan.Config{
			Policy:         studyplan.Policy(v.GetString(KeyPlanPolicy)),
			TopicsPerDay:   v.GetInt(KeyPlanTopicsPerDay),
			DefaultMinutes: v.GetInt(KeyPlanDefaultMinutes),
		},
		RequestTimeout:  v.GetDuration(KeyRequestTimeout),
		IngestBatchSize: v.GetInt(KeyIngestBatchSize),
	}, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite, StoreMemory:
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return missing(KeyMongoURI)
		}
	default:
		return invalid(KeyStoreBackend, c.Store.Backend, "want sqlite, mongo or memory")
	}

	if c.Vector.Dimension <= 0 {
		return invalid(KeyVectorDimension, c.Vector.Dimension, "must be positive")
	}
	switch c.Vector.Backend {
	case VectorChromem:
	case VectorPinecone:
		if c.Vector.Pinecone.APIKey == "" {
			return missing(KeyPineconeAPIKey)
		}
		if c.Vector.Pinecone.IndexName == "" && c.Vector.Pinecone.IndexHost == "" {
			return missing(KeyPineconeIndexName)
		}
	default:
		return invalid(KeyVectorBackend, c.Vector.Backend, "want chromem or pinecone")
	}

	policy, err := studyplan.ParsePolicy(string(c.Plan.Policy))
	if err != nil {
		return &Error{Code: CodeInvalidValue, Key: KeyPlanPolicy, Err: err}
	}
	c.Plan.Policy = policy

	if c.Plan.TopicsPerDay <= 0 {
		return invalid(KeyPlanTopicsPerDay, c.Plan.TopicsPerDay, "must be positive")
	}
	if c.Plan.DefaultMinutes <= 0 {
		return invalid(KeyPlanDefaultMinutes, c.Plan.DefaultMinutes, "must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		return invalid(KeyRetrievalTopK, c.Retrieval.TopK, "must be positive")
	}
	if t := c.Synthesis.Temperature; t != nil && (*t < 0 || *t > 1) {
		return invalid(KeySynthesisTemperature, *t, "must be within 0..1")
	}
	if c.RequestTimeout <= 0 {
		return invalid(KeyRequestTimeout, c.RequestTimeout, "must be positive")
	}
	if c.IngestBatchSize <= 0 {
		return invalid(KeyIngestBatchSize, c.IngestBatchSize, "must be positive")
	}
	return nil
}

// ErrorCode classifies a configuration error.
type ErrorCode string

const (
	CodeInvalidValue ErrorCode = "invalid_value"
	CodeMissingValue ErrorCode = "missing_value"
	CodeReadFile     ErrorCode = "read_file"
)

// Error is a configuration problem tied to one key or file.
type Error struct {
	Code ErrorCode
	Key  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s (%s): %v", e.Key, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func missing(key string) error {
	return &Error{Code: CodeMissingValue, Key: key, Err: errors.New("required")}
}

func invalid(key string, val any, reason string) error {
	return &Error{Code: CodeInvalidValue, Key: key, Err: fmt.Errorf("%v: %s", val, reason)}
}
