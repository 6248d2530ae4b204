// Package database provides PostgreSQL connection pool management.
//
// The ingestor uses a single pool for the postgres store driver. TimescaleDB
// is supported through the same pool since it is a PostgreSQL extension.
package database
