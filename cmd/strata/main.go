// Package main provides a CLI for managing strata storage databases.
//
// The CLI supports:
//   - migrate: Create the strata schema and seed the well-known catalogs
//   - status: Check current schema state
//   - sweep: Reclaim expired leases, once or on an interval
//
// This tool is typically run during deployment to keep the database schema
// current, and as a periodic job for lease reclamation.
//
// Usage:
//
//	strata [flags] <command>
//
// All commands except version need -db, STRATA_DATABASE_URL, or a
// database section in strata.yaml.
package main

func main() {
	Execute()
}
