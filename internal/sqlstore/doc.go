// Package sqlstore provides SQLite-backed persistence for chain-tracking
// state expressed as changesets.
//
// The package has three layers:
//   - Schema registry + migrator: a reserved chainstore_schemas table maps a
//     named logical schema to an integer version; Migrate runs only the
//     script batches not yet applied, forward-only, inside the caller's
//     transaction.
//   - Persist contract: PersistParams describes what tables a piece of state
//     needs, how to load the latest materialized changeset, and how to write
//     a new one. Params compose through Pair so independent sub-schemas share
//     one connection and one transaction boundary.
//   - Column codec: newtype wrappers implementing sql.Scanner and
//     driver.Valuer that map domain values (hashes, raw transactions,
//     scripts, amounts, networks, JSON anchors) to native column types.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The connection pool is limited to a single connection: SQLite supports one
// writer at a time, and a Persister assumes exclusive ownership of its
// connection. Callers needing concurrent writers must serialize externally
// or open separate connections against the same file.
package sqlstore
