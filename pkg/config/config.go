// Package config loads readmark configuration from YAML and the environment.
package config

import "time"

// Config is the root application configuration.
type Config struct {
	DB     DBConfig     `yaml:"db"`
	Store  StoreConfig  `yaml:"store"`
	Oracle OracleConfig `yaml:"oracle"`
	Speech SpeechConfig `yaml:"speech"`
	Server ServerConfig `yaml:"server"`
	Ingest IngestConfig `yaml:"ingest"`
	Log    LogConfig    `yaml:"log"`
}

// DBConfig locates the SQLite content store.
type DBConfig struct {
	Path string `yaml:"path" env:"READMARK_DB" env-default:"readmark.db"`
}

// StoreConfig selects the key-value backend for highlights.
type StoreConfig struct {
	Backend       string `yaml:"backend"        env:"READMARK_STORE"          env-default:"sqlite"`
	Codec         string `yaml:"codec"          env:"READMARK_STORE_CODEC"    env-default:"json"`
	RedisAddr     string `yaml:"redis_addr"     env:"READMARK_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"READMARK_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db"       env:"READMARK_REDIS_DB"       env-default:"0"`
	Namespace     string `yaml:"namespace"      env:"READMARK_REDIS_NAMESPACE" env-default:"readmark"`
}

// OracleConfig selects the explanation and generation provider.
type OracleConfig struct {
	Provider       string        `yaml:"provider"        env:"READMARK_ORACLE"       env-default:"groq"`
	APIKey         string        `yaml:"api_key"         env:"READMARK_ORACLE_KEY"`
	Model          string        `yaml:"model"           env:"READMARK_ORACLE_MODEL"`
	BaseURL        string        `yaml:"base_url"        env:"READMARK_ORACLE_URL"`
	Timeout        time.Duration `yaml:"timeout"         env:"READMARK_ORACLE_TIMEOUT" env-default:"60s"`
	DictionaryPath string        `yaml:"dictionary_path" env:"READMARK_DICTIONARY"    env-default:"data/jmdict-eng-common.json"`
}

// SpeechConfig configures ElevenLabs text-to-speech. Speech is off without a key.
type SpeechConfig struct {
	APIKey  string        `yaml:"api_key"  env:"ELEVENLABS_API_KEY"`
	VoiceID string        `yaml:"voice_id" env:"ELEVENLABS_VOICE_ID"`
	ModelID string        `yaml:"model_id" env:"ELEVENLABS_MODEL_ID"`
	Timeout time.Duration `yaml:"timeout"  env:"ELEVENLABS_TIMEOUT" env-default:"30s"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"READMARK_ADDR"             env-default:"127.0.0.1:8080"`
	AllowedOrigins  []string      `yaml:"allowed_origins"  env:"READMARK_ALLOWED_ORIGINS" env-separator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"READMARK_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// IngestConfig tunes article import.
type IngestConfig struct {
	Workers   int           `yaml:"workers"    env:"READMARK_INGEST_WORKERS"    env-default:"4"`
	BatchSize int           `yaml:"batch_size" env:"READMARK_INGEST_BATCH_SIZE" env-default:"50"`
	Timeout   time.Duration `yaml:"timeout"    env:"READMARK_INGEST_TIMEOUT"    env-default:"30s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"READMARK_LOG_LEVEL" env-default:"info"`
	Mode  string `yaml:"mode"  env:"READMARK_LOG_MODE"  env-default:"development"`
}
