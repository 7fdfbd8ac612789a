// Package postgres implements the token store on PostgreSQL through
// database/sql and the pgx driver. The schema is managed by goose
// migrations embedded in the binary.
package postgres
