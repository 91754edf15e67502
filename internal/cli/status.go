package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chainstore/internal/chain"
	"github.com/roach88/chainstore/internal/sqlstore"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report schema versions and table row counts",
		Long: `Report schema versions and table row counts.

Reads the schema registry without running migrations, so it is safe against
databases written by newer builds.

Example:
  chainstore status --db wallet.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

// SchemaStatus is one row of the schema registry.
type SchemaStatus struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// TableStatus is the row count of one table.
type TableStatus struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// StoreStatus is the full status report.
type StoreStatus struct {
	DB          string         `json:"db"`
	Initialized bool           `json:"initialized"`
	Schemas     []SchemaStatus `json:"schemas,omitempty"`
	Tables      []TableStatus  `json:"tables,omitempty"`
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	if err := opts.requireDB(); err != nil {
		return err
	}
	db, err := sqlstore.Open(opts.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := readStatus(cmd.Context(), db, opts.DB)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	if !status.Initialized {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: not initialized (run chainstore migrate)\n", status.DB)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", status.DB)
	for _, schema := range status.Schemas {
		fmt.Fprintf(cmd.OutOrStdout(), "  schema %s version %d\n", schema.Name, schema.Version)
	}
	for _, table := range status.Tables {
		fmt.Fprintf(cmd.OutOrStdout(), "  table %s rows %d\n", table.Name, table.Rows)
	}
	return nil
}

func readStatus(ctx context.Context, db *sql.DB, path string) (*StoreStatus, error) {
	status := &StoreStatus{DB: path}

	initialized, err := tableExists(ctx, db, sqlstore.SchemasTableName)
	if err != nil {
		return nil, err
	}
	status.Initialized = initialized
	if !initialized {
		return status, nil
	}

	rows, err := db.QueryContext(ctx,
		"SELECT name, version FROM "+sqlstore.SchemasTableName+" ORDER BY name ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("query schema registry: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schema SchemaStatus
		if err := rows.Scan(&schema.Name, &schema.Version); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		status.Schemas = append(status.Schemas, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema registry: %w", err)
	}

	for _, name := range chain.TableNames() {
		exists, err := tableExists(ctx, db, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		var count int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&count); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", name, err)
		}
		status.Tables = append(status.Tables, TableStatus{Name: name, Rows: count})
	}
	return status, nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return true, nil
}
