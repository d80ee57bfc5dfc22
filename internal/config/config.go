package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Supabase (remote ledger store)
	SupabaseURL string
	SupabaseKey string
	// SupabaseOwner is the authenticated user's ID for this session; empty
	// means no user context and the coordinator parks unauthenticated.
	SupabaseOwner string

	// AMQP (change-notification channel, optional)
	AMQPURL      string
	AMQPExchange string

	// ChangeResource is the notification routing key for the ledger.
	ChangeResource string

	// Snapshot cache
	SnapshotDBPath string

	// Sync
	FetchTimeout  time.Duration
	CoalesceDelay time.Duration
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8082"),

		SupabaseURL:   getEnv("SUPABASE_URL", ""),
		SupabaseKey:   getEnv("SUPABASE_KEY", ""),
		SupabaseOwner: getEnv("SUPABASE_OWNER_ID", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),

		ChangeResource: getEnv("CHANGE_RESOURCE", "transactions"),

		SnapshotDBPath: getEnv("SNAPSHOT_DB_PATH", "./data/snapshots.db"),

		FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		CoalesceDelay: getEnvDuration("COALESCE_DELAY", 150*time.Millisecond),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SupabaseURL == "" {
		errors = append(errors, "SUPABASE_URL is required")
	} else if parsedURL, err := url.Parse(c.SupabaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid Supabase URL '%s': %v", c.SupabaseURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid Supabase URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.SupabaseKey == "" {
		errors = append(errors, "SUPABASE_KEY is required")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if strings.TrimSpace(c.ChangeResource) == "" {
		errors = append(errors, "change resource cannot be empty")
	}

	if c.SnapshotDBPath != "" {
		dir := filepath.Dir(c.SnapshotDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create snapshot database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.FetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.FetchTimeout))
	} else if c.FetchTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at most 1 minute", c.FetchTimeout))
	}

	if c.CoalesceDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid coalesce delay %v: must not be negative", c.CoalesceDelay))
	} else if c.CoalesceDelay > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid coalesce delay %v: must be at most 10 seconds", c.CoalesceDelay))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
