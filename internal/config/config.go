package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"intellidoc/internal/models"
)

type Config struct {
	Log        LogConfig        `yaml:"log" toml:"log"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm" toml:"embed_llm"`
	ChatLLM    LLMConfig        `yaml:"chat_llm" toml:"chat_llm"`
	Reranker   RerankerConfig   `yaml:"reranker" toml:"reranker"`
	RAG        RAGConfig        `yaml:"rag" toml:"rag"`
	Legal      LegalConfig      `yaml:"legal" toml:"legal"`
	Extraction ExtractionConfig `yaml:"extraction" toml:"extraction"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	JSON  bool   `yaml:"json" toml:"json"`
}

type ServerConfig struct {
	Addr         string  `yaml:"addr" toml:"addr" validate:"required"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" toml:"rate_limit_rps" validate:"gte=0"`
	RateBurst    int     `yaml:"rate_burst" toml:"rate_burst" validate:"gte=0"`
	MaxUploadMB  int64   `yaml:"max_upload_mb" toml:"max_upload_mb" validate:"gt=0"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend" toml:"backend" validate:"oneof=chromem pgvector"`
	IndexDir      string `yaml:"index_dir" toml:"index_dir" validate:"required"`
	Collection    string `yaml:"collection" toml:"collection" validate:"required"`
	Compress      bool   `yaml:"compress" toml:"compress"`
	UploadsDir    string `yaml:"uploads_dir" toml:"uploads_dir" validate:"required"`
	RegistryPath  string `yaml:"registry_path" toml:"registry_path" validate:"required"`
	EncryptionKey string `yaml:"encryption_key" toml:"encryption_key"`
}

type DatabaseConfig struct {
	DSN        string `yaml:"dsn" toml:"dsn"`
	Password   string `yaml:"password" toml:"password"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" validate:"gte=0"`
	Debug      bool   `yaml:"debug" toml:"debug"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Key         string  `yaml:"key" toml:"key"`
	Model       string  `yaml:"model" toml:"model"`
	Dimensions  int     `yaml:"dimensions" toml:"dimensions" validate:"gte=0"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
}

type RerankerConfig struct {
	Provider    string `yaml:"provider" toml:"provider" validate:"oneof=cross-encoder lexical"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

type RAGConfig struct {
	Splitter          string `yaml:"splitter" toml:"splitter" validate:"oneof=recursive langchain"`
	ChunkSize         int    `yaml:"chunk_size" toml:"chunk_size" validate:"gt=0"`
	ChunkOverlap      int    `yaml:"chunk_overlap" toml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	LegalChunkOverlap int    `yaml:"legal_chunk_overlap" toml:"legal_chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK              int    `yaml:"top_k" toml:"top_k" validate:"gt=0"`
	Candidates        int    `yaml:"candidates" toml:"candidates" validate:"gtefield=TopK"`
}

type LegalConfig struct {
	RulesDir string         `yaml:"rules_dir" toml:"rules_dir"`
	Severity map[string]int `yaml:"severity" toml:"severity"`
}

type ExtractionConfig struct {
	OCR           bool   `yaml:"ocr" toml:"ocr"`
	TesseractPath string `yaml:"tesseract_path" toml:"tesseract_path"`
	Language      string `yaml:"language" toml:"language"`
}

type CacheConfig struct {
	Size      int    `yaml:"size" toml:"size" validate:"gte=0"`
	BadgerDir string `yaml:"badger_dir" toml:"badger_dir"`
}

// LoadConfig reads a YAML or TOML file (chosen by extension), applies defaults and
// environment overrides, and validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: config: %v", models.ErrInvalidInput, err)
	}
	if cfg.Storage.Backend == "pgvector" && cfg.Database.DSN == "" {
		return fmt.Errorf("%w: config: database.dsn is required for the pgvector backend", models.ErrInvalidInput)
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Addr: ":8080", RateBurst: 20, MaxUploadMB: 32},
		Storage: StorageConfig{
			Backend:      "chromem",
			IndexDir:     "./chroma_db",
			Collection:   "documents",
			UploadsDir:   "./uploads",
			RegistryPath: "./uploads/registry.db",
		},
		Database: DatabaseConfig{Dimensions: 384},
		EmbedLLM: LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "all-minilm"},
		ChatLLM:  LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3:8b", MaxTokens: 1024},
		Reranker: RerankerConfig{Provider: "lexical", Model: "cross-encoder/ms-marco-MiniLM-L-6-v2", TimeoutSecs: 30},
		RAG: RAGConfig{
			Splitter:          "recursive",
			ChunkSize:         models.DefaultChunkSize,
			ChunkOverlap:      models.DefaultChunkOverlap,
			LegalChunkOverlap: models.DefaultLegalChunkOverlap,
			TopK:              models.DefaultTopK,
			Candidates:        models.DefaultCandidates,
		},
		Extraction: ExtractionConfig{OCR: true, TesseractPath: "tesseract", Language: "eng"},
		Cache:      CacheConfig{Size: 4096},
	}
}

// zero values left by a partial file fall back to the defaults
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = def.Storage.IndexDir
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = def.Storage.Collection
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = def.Storage.UploadsDir
	}
	if cfg.Storage.RegistryPath == "" {
		cfg.Storage.RegistryPath = filepath.Join(cfg.Storage.UploadsDir, "registry.db")
	}
	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = def.Reranker.Provider
	}
	if cfg.RAG.Splitter == "" {
		cfg.RAG.Splitter = def.RAG.Splitter
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = def.RAG.ChunkSize
		if cfg.RAG.ChunkOverlap == 0 {
			cfg.RAG.ChunkOverlap = def.RAG.ChunkOverlap
		}
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.Candidates == 0 {
		cfg.RAG.Candidates = max(def.RAG.Candidates, cfg.RAG.TopK)
	}
	if cfg.Extraction.TesseractPath == "" {
		cfg.Extraction.TesseractPath = def.Extraction.TesseractPath
	}
	if cfg.Extraction.Language == "" {
		cfg.Extraction.Language = def.Extraction.Language
	}
}

// secrets are usually supplied through the environment or a .env file
func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Log.Level, "INTELLIDOC_LOG_LEVEL")
	set(&cfg.Server.Addr, "INTELLIDOC_ADDR")
	set(&cfg.Storage.EncryptionKey, "INTELLIDOC_ENCRYPTION_KEY")
	set(&cfg.Database.DSN, "INTELLIDOC_PG_DSN")
	set(&cfg.Database.Password, "INTELLIDOC_PG_PASSWORD")
	set(&cfg.EmbedLLM.Key, "INTELLIDOC_EMBED_KEY")
	set(&cfg.ChatLLM.Key, "INTELLIDOC_CHAT_KEY")
	set(&cfg.Reranker.BaseURL, "INTELLIDOC_RERANKER_URL")
}
