// Package config loads gatehouse configuration from GATEHOUSE_* environment variables.
//
// Every setting has a default except GATEHOUSE_DATABASE_URL and
// GATEHOUSE_ADMIN_ROLE_ID. The most relevant
// authorization settings are:
//
//	GATEHOUSE_ADMIN_ROLE_ID        global admin role id, must be positive
//	GATEHOUSE_ROLE_CACHE           none | memory | redis
//	GATEHOUSE_ROLE_CACHE_TTL       e.g. 30s
//	GATEHOUSE_FILTER_CONCURRENCY   parallel checks when filtering lists
//	GATEHOUSE_AUDIT_SINKS          comma list of none, log, file, database
//	GATEHOUSE_AUDIT_DIR            directory for the file sink
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
