package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the service. Settle delays are
// named here rather than buried as constants in services: they exist to respect
// the backing stores' eventual-consistency window and operators tune them.
type Config struct {
	Addr string

	// DatabaseURL is the application database (profiles, restaurants,
	// dependents, audit log).
	DatabaseURL string
	// AuthDatabaseURL is the identity store. Read and delete only; steward
	// never writes credential fields.
	AuthDatabaseURL string

	Redis RedisConfig

	KafkaBrokers []string
	KafkaTopic   string

	AdminJWTSecret    string
	AdminPasswordHash string

	BackupDir    string
	BackupBucket string

	// RepairSettle runs between items in a repair batch.
	RepairSettle time.Duration
	// PurgeSettle runs before the post-purge verification read.
	PurgeSettle time.Duration
	// MergeSettle runs between groups in a merge batch.
	MergeSettle time.Duration
}

// RedisConfig mirrors the knobs the redis client wrapper applies.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:              envOr("STEWARD_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AuthDatabaseURL:   os.Getenv("AUTH_DATABASE_URL"),
		KafkaTopic:        envOr("KAFKA_AUDIT_TOPIC", "steward.audit"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		BackupDir:         envOr("BACKUP_DIR", "backups"),
		BackupBucket:      os.Getenv("BACKUP_S3_BUCKET"),
		RepairSettle:      durationOr("REPAIR_SETTLE_MS", 300*time.Millisecond),
		PurgeSettle:       durationOr("PURGE_SETTLE_MS", 3*time.Second),
		MergeSettle:       durationOr("MERGE_SETTLE_MS", 300*time.Millisecond),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     intOr("REDIS_POOL_SIZE", 10),
		MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT_MS", 5*time.Second),
		ReadTimeout:  durationOr("REDIS_READ_TIMEOUT_MS", 3*time.Second),
		WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT_MS", 3*time.Second),
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
