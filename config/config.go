package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de oods.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Lock    LockConfig    `yaml:"lock"`
	Redis   RedisConfig   `yaml:"redis"`
	Mint    MintConfig    `yaml:"mint"`
	Auth    AuthConfig    `yaml:"auth"`
	Rewards RewardsConfig `yaml:"rewards"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato, nivel y destino del logging.
type LogConfig struct {
	Level      string `yaml:"level"`       // debug | info | warn | error
	Format     string `yaml:"format"`      // text | json
	File       string `yaml:"file"`        // vacío = stderr
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotación
	MaxBackups int    `yaml:"max_backups"`
}

// LockConfig elige cómo se serializan los escritores de un lanzamiento.
type LockConfig struct {
	Backend    string `yaml:"backend"` // local | redis
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// RedisConfig se usa si lock.backend=redis o si redis.addr no está vacío (eventos).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// MintConfig apunta al servicio de minting. Sin base_url se usa el ledger en memoria.
type MintConfig struct {
	BaseURL        string  `yaml:"base_url"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Workers        int     `yaml:"workers"`
}

// AuthConfig decide si las identidades deben venir firmadas.
type AuthConfig struct {
	RequireSignatures bool `yaml:"require_signatures"`
}

// RewardsConfig controla el tope de cada claim.
type RewardsConfig struct {
	CapMode string `yaml:"cap_mode"` // pool | remaining
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Con path vacío solo se aplican el entorno y los defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// LockTTL devuelve el TTL del lock como time.Duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

// MintTimeout devuelve el timeout HTTP del cliente de minting.
func (c *Config) MintTimeout() time.Duration {
	return time.Duration(c.Mint.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("OODS_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MINT_URL"); v != "" {
		cfg.Mint.BaseURL = v
	}
	if v := os.Getenv("OODS_REWARD_CAP"); v != "" {
		cfg.Rewards.CapMode = v
	}
	if v := os.Getenv("OODS_REQUIRE_SIGNATURES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.RequireSignatures = b
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "oods.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "local"
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 30
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "oods:events"
	}
	if cfg.Mint.RatePerSec <= 0 {
		cfg.Mint.RatePerSec = 10
	}
	if cfg.Mint.TimeoutSeconds <= 0 {
		cfg.Mint.TimeoutSeconds = 10
	}
	if cfg.Mint.Workers <= 0 {
		cfg.Mint.Workers = 4
	}
	if cfg.Rewards.CapMode == "" {
		cfg.Rewards.CapMode = "pool"
	}
}

func (c *Config) validate() error {
	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("lock.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown lock.backend %q", c.Lock.Backend)
	}
	switch c.Rewards.CapMode {
	case "pool", "remaining":
	default:
		return fmt.Errorf("unknown rewards.cap_mode %q", c.Rewards.CapMode)
	}
	return nil
}
