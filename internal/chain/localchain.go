package chain

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// LocalChainSchemaName is the registry name for the local-chain sub-schema.
const LocalChainSchemaName = "chainstore_localchain"

// BlocksTableName holds the best-chain view, one row per height.
const BlocksTableName = "chainstore_blocks"

var localChainMigrations = [][]string{
	// version 0
	{
		"CREATE TABLE " + BlocksTableName + " (" +
			"block_height INTEGER PRIMARY KEY NOT NULL, " +
			"block_hash TEXT NOT NULL" +
			") STRICT",
	},
}

// LocalChainChangeSet maps block heights to block hashes. A nil hash records
// a disconnection: the block at that height is no longer part of the best
// chain.
type LocalChainChangeSet map[uint32]*chainhash.Hash

// Merge implements sqlstore.ChangeSet. Entries from other win on height
// collisions; the newer observation supersedes the older one.
func (c LocalChainChangeSet) Merge(other LocalChainChangeSet) LocalChainChangeSet {
	if len(other) == 0 {
		return c
	}
	if len(c) == 0 {
		return other
	}
	merged := make(LocalChainChangeSet, len(c)+len(other))
	for height, hash := range c {
		merged[height] = hash
	}
	for height, hash := range other {
		merged[height] = hash
	}
	return merged
}

// IsEmpty implements sqlstore.ChangeSet.
func (c LocalChainChangeSet) IsEmpty() bool {
	return len(c) == 0
}

// LocalChainParams persists LocalChainChangeSet.
type LocalChainParams struct{}

// InitializeTables implements sqlstore.PersistParams.
func (LocalChainParams) InitializeTables(ctx context.Context, tx *sql.Tx) error {
	return sqlstore.Migrate(ctx, tx, LocalChainSchemaName, localChainMigrations)
}

// LoadChangeset implements sqlstore.PersistParams.
func (LocalChainParams) LoadChangeset(ctx context.Context, tx *sql.Tx) (LocalChainChangeSet, bool, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT block_height, block_hash FROM "+BlocksTableName+" ORDER BY block_height ASC",
	)
	if err != nil {
		return nil, false, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	cs := LocalChainChangeSet{}
	for rows.Next() {
		var (
			height int64
			hash   sqlstore.HashText
		)
		if err := rows.Scan(&height, &hash); err != nil {
			return nil, false, fmt.Errorf("scan block row: %w", err)
		}
		h := chainhash.Hash(hash)
		cs[uint32(height)] = &h
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate blocks: %w", err)
	}
	return cs, !cs.IsEmpty(), nil
}

// WriteChangeset implements sqlstore.PersistParams. Connected blocks upsert
// their row; disconnections delete it.
func (LocalChainParams) WriteChangeset(ctx context.Context, tx *sql.Tx, cs LocalChainChangeSet) error {
	for height, hash := range cs {
		if hash == nil {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+BlocksTableName+" WHERE block_height = ?", int64(height),
			); err != nil {
				return fmt.Errorf("delete block %d: %w", height, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+BlocksTableName+" (block_height, block_hash) VALUES (?, ?) "+
				"ON CONFLICT(block_height) DO UPDATE SET block_hash = excluded.block_hash",
			int64(height), sqlstore.HashText(*hash),
		); err != nil {
			return fmt.Errorf("write block %d: %w", height, err)
		}
	}
	return nil
}
