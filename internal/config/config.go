// Package config loads the replication core's settings from the process
// environment, following the teacher's cmd/main.go getEnv/getEnvInt
// convention rather than a flags/YAML/viper layer.
package config

import (
	"os"
	"strconv"
)

// Config is the full settings surface for one replication core process.
type Config struct {
	ListenHost string
	ListenPort int

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	StoreHost     string
	StorePort     int
	StoreUser     string
	StorePassword string
	StoreDBName   string
	StoreSSLMode  string

	Debug bool

	WSCheckIntervalMs int

	SessionMaxAgeMs          int
	SessionCleanupIntervalMs int
	SessionInactiveTimeoutMs int
	MaxSessionsPerAgent      int

	DispatchWorkersPerConnection int
	DispatchGlobalSemaphoreSize  int
	DispatchMaxRows              int
	DispatchMaxResponseBytes     int

	NotifyCacheHost string
	NotifyCachePort int

	BootstrapJWTSecret string
	BootstrapJWTIssuer string

	// BootstrapOperatorKeyHash is the bcrypt hash of the long-lived operator
	// key exchanged at POST /admin/bootstrap-token for a short-lived
	// bootstrap JWT. Empty disables the exchange endpoint.
	BootstrapOperatorKeyHash string

	// RateLimitPerSecond/RateLimitBurst bound the bootstrap-token exchange
	// and WebSocket upgrade endpoints per client IP.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// RequestTimeoutMs bounds non-WebSocket REST requests.
	RequestTimeoutMs int
}

// Load reads Config from the environment, applying the same defaults the
// rest of this core already assumes (dispatch.Config, auth.Manager, etc.).
func Load() Config {
	return Config{
		ListenHost: getEnv("LISTEN_HOST", "0.0.0.0"),
		ListenPort: getEnvInt("LISTEN_PORT", 8080),

		TLSEnabled:  getEnvBool("TLS_ENABLED", false),
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		StoreHost:     getEnv("STORE_HOST", "localhost"),
		StorePort:     getEnvInt("STORE_PORT", 5432),
		StoreUser:     getEnv("STORE_USER", "vircadia"),
		StorePassword: getEnv("STORE_PASSWORD", ""),
		StoreDBName:   getEnv("STORE_DBNAME", "vircadia_world"),
		StoreSSLMode:  getEnv("STORE_SSLMODE", "disable"),

		Debug: getEnvBool("DEBUG", false),

		WSCheckIntervalMs: getEnvInt("WS_CHECK_INTERVAL_MS", 30000),

		SessionMaxAgeMs:          getEnvInt("SESSION_MAX_AGE_MS", 24*60*60*1000),
		SessionCleanupIntervalMs: getEnvInt("SESSION_CLEANUP_INTERVAL_MS", 60000),
		SessionInactiveTimeoutMs: getEnvInt("SESSION_INACTIVE_TIMEOUT_MS", 5*60*1000),
		MaxSessionsPerAgent:      getEnvInt("AUTH_MAX_SESSIONS_PER_AGENT", 1),

		DispatchWorkersPerConnection: getEnvInt("DISPATCH_WORKERS_PER_CONNECTION", 1),
		DispatchGlobalSemaphoreSize:  getEnvInt("DISPATCH_GLOBAL_SEMAPHORE_SIZE", 50),
		DispatchMaxRows:              getEnvInt("DISPATCH_MAX_ROWS", 10000),
		DispatchMaxResponseBytes:     getEnvInt("DISPATCH_MAX_RESPONSE_BYTES", 8*1024*1024),

		NotifyCacheHost: getEnv("NOTIFY_CACHE_HOST", ""),
		NotifyCachePort: getEnvInt("NOTIFY_CACHE_PORT", 6379),

		BootstrapJWTSecret: getEnv("BOOTSTRAP_JWT_SECRET", ""),
		BootstrapJWTIssuer: getEnv("BOOTSTRAP_JWT_ISSUER", "world-realtime-core"),

		BootstrapOperatorKeyHash: getEnv("BOOTSTRAP_OPERATOR_KEY_HASH", ""),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		RequestTimeoutMs: getEnvInt("REQUEST_TIMEOUT_MS", 30000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
