package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SchemasTableName is the reserved registry table mapping schema name to the
// highest applied version.
const SchemasTableName = "chainstore_schemas"

// ensureSchemasTable creates the registry table if it does not exist.
func ensureSchemasTable(ctx context.Context, tx *sql.Tx) error {
	sqlStmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY NOT NULL, version INTEGER NOT NULL) STRICT",
		SchemasTableName,
	)
	if _, err := tx.ExecContext(ctx, sqlStmt); err != nil {
		return fmt.Errorf("ensure schemas table: %w", err)
	}
	return nil
}

// SchemaVersion returns the recorded version for schemaName. found is false
// when the schema has never been initialized.
func SchemaVersion(ctx context.Context, tx *sql.Tx, schemaName string) (version int, found bool, err error) {
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT version FROM %s WHERE name = ?", SchemasTableName),
		schemaName,
	)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query schema version: %w", err)
	}
	return version, true, nil
}

// setSchemaVersion records version for schemaName with upsert semantics.
func setSchemaVersion(ctx context.Context, tx *sql.Tx, schemaName string, version int) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("REPLACE INTO %s (name, version) VALUES (?, ?)", SchemasTableName),
		schemaName, version,
	)
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Migrate brings schemaName up to date by executing the script batches in
// versionedScripts that have not yet been applied, in ascending version
// order. The batch index is the version number. Scripts for version N must
// be valid against a database with exactly versions 0..N-1 applied; once a
// version is recorded it is never re-run.
//
// The version row is written before the batch executes. Migrate runs inside
// the caller's transaction, so a failure rolls back the version bump together
// with any script effects; there is no window where a half-applied version is
// recorded as applied.
//
// An empty script list only ensures the registry table exists. A script list
// shorter than the recorded version fails with ErrSchemaRegression.
func Migrate(ctx context.Context, tx *sql.Tx, schemaName string, versionedScripts [][]string) error {
	if err := ensureSchemasTable(ctx, tx); err != nil {
		return err
	}
	if len(versionedScripts) == 0 {
		return nil
	}

	current, found, err := SchemaVersion(ctx, tx, schemaName)
	if err != nil {
		return err
	}
	execFrom := 0
	if found {
		if current > len(versionedScripts)-1 {
			return fmt.Errorf("schema %q at version %d with %d known scripts: %w",
				schemaName, current, len(versionedScripts), ErrSchemaRegression)
		}
		execFrom = current + 1
	}

	for version := execFrom; version < len(versionedScripts); version++ {
		if err := setSchemaVersion(ctx, tx, schemaName, version); err != nil {
			return err
		}
		for _, statement := range versionedScripts[version] {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("migrate %q to version %d: %w", schemaName, version, err)
			}
		}
	}
	return nil
}
