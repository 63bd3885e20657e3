// Package config provides application configuration management.
//
// Configuration is resolved in three layers: compiled defaults, an
// optional YAML file named by MONO_ACCESS_CONFIG_FILE, then environment
// overrides. Environment always wins over the file.
//
// # Configuration Structure
//
// Server settings:
//
//	MONO_ACCESS_HOST="0.0.0.0"
//	MONO_ACCESS_PORT="8080"
//	MONO_ACCESS_HEALTH_PORT="9090"
//	MONO_ACCESS_READ_TIMEOUT="15s"
//	MONO_ACCESS_WRITE_TIMEOUT="15s"
//	MONO_ACCESS_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	MONO_ACCESS_POSTGRES_URL="postgres://localhost/mono_access"
//	MONO_ACCESS_POSTGRES_MAX_CONNS="25"
//
// Cache settings:
//
//	MONO_ACCESS_CACHE_ENABLED="true"
//	MONO_ACCESS_REDIS_URL="redis://localhost:6379"
//	MONO_ACCESS_L1_CACHE_SIZE="4096"
//	MONO_ACCESS_CACHE_TTL="5m"
//
// Audit settings:
//
//	MONO_ACCESS_AUDIT_BACKEND="db"  # db, file, both, none
//	MONO_ACCESS_AUDIT_RETENTION_DAYS="90"
//	MONO_ACCESS_AUDIT_RETENTION_SCHEDULE="0 3 * * *"
//
// Observability settings:
//
//	MONO_ACCESS_LOG_LEVEL="info"  # debug, info, warn, error
//	MONO_ACCESS_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevelName)
package config
