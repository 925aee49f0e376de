// Package sql provides the embedded schema for the strata storage engine.
package sql

import (
	_ "embed"
)

// SchemaSQL contains the table and index definitions for every strata
// table. Applied via CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS for idempotence.
//
// The SQL is embedded at compile time, so the application binary carries
// the full schema with no runtime dependency on external SQL files.
//
//go:embed schema.sql
var SchemaSQL string
