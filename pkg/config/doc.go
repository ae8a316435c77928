// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	GATHER_HOST="0.0.0.0"
//	GATHER_PORT="8080"
//	GATHER_READ_TIMEOUT="15s"
//	GATHER_WRITE_TIMEOUT="15s"
//	GATHER_USER_HEADER="X-Gather-User"
//
// Storage settings:
//
//	GATHER_POSTGRES_URL="postgres://localhost/gather"
//	GATHER_POSTGRES_MAX_CONNS="20"
//	GATHER_REDIS_URL="redis://localhost:6379"
//	GATHER_REDIS_POOL_SIZE="10"
//
// Cache settings:
//
//	GATHER_CACHE_ENABLED="true"
//	GATHER_CACHE_TTL="1h"      # must not exceed 1h
//
// Access-control settings:
//
//	GATHER_WARMUP_TTL="12h"
//	GATHER_WARMUP_LIMIT="5000"
//	GATHER_INVITE_SWEEP_SCHEDULE="0 * * * *"
//	GATHER_PUBLIC_RATE_LIMIT="30"
//
// Observability settings:
//
//	GATHER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATHER_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
