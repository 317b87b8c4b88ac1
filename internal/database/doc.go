// Package database provides connection pool management for the PostgreSQL
// history backend.
package database
