package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// DatabaseURL enables the PostgreSQL stores when set; empty keeps the
	// in-memory stores (development and tests).
	DatabaseURL string

	// RedisURL enables the reminder dedupe guard when set.
	RedisURL string

	// KafkaBrokers enables the audit outbox relay when non-empty.
	KafkaBrokers []string
	AuditTopic   string

	// ReminderCron is the sweep schedule in cron syntax.
	ReminderCron string

	// NotifyQueueSize bounds the async dispatch queue.
	NotifyQueueSize int
}

// DefaultDispatchTimeout bounds a single notification delivery attempt.
var DefaultDispatchTimeout = 10 * time.Second

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("HOLDRIGHT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	reminderCron := os.Getenv("HOLDRIGHT_REMINDER_CRON")
	if reminderCron == "" {
		// Hourly sweep; the cadence math in the reminder package decides who
		// is actually due, so a frequent sweep is harmless.
		reminderCron = "0 * * * *"
	}

	auditTopic := os.Getenv("HOLDRIGHT_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "holdright.audit"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		JWTSigningKey:   jwtSigningKey,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    brokers,
		AuditTopic:      auditTopic,
		ReminderCron:    reminderCron,
		NotifyQueueSize: 256,
	}
}
