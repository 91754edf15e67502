package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// KeychainSchemaName is the registry name for the keychain sub-schema.
const KeychainSchemaName = "chainstore_keychain"

// Keychain table names.
const (
	WalletTableName       = "chainstore_wallet"
	LastRevealedTableName = "chainstore_last_revealed"
)

var keychainMigrations = [][]string{
	// version 0
	{
		"CREATE TABLE " + WalletTableName + " (" +
			"id INTEGER PRIMARY KEY NOT NULL CHECK (id = 0), " +
			"network TEXT, " +
			"descriptor TEXT, " +
			"change_descriptor TEXT" +
			") STRICT",
		"CREATE TABLE " + LastRevealedTableName + " (" +
			"descriptor_id TEXT PRIMARY KEY NOT NULL, " +
			"last_revealed INTEGER NOT NULL" +
			") STRICT",
	},
}

// KeychainChangeSet records mutations to wallet identity: the external and
// internal descriptors, the network, and the highest revealed derivation
// index per descriptor. Descriptor and network are set once per wallet
// lifetime; nil fields mean "no change".
type KeychainChangeSet struct {
	Descriptor       *Descriptor
	ChangeDescriptor *Descriptor
	Network          *chaincfg.Params
	LastRevealed     map[DescriptorID]uint32
}

// Merge implements sqlstore.ChangeSet. Identity fields keep the receiver's
// value when set; last-revealed indices keep the greatest index, since
// revealed indices never regress.
func (c KeychainChangeSet) Merge(other KeychainChangeSet) KeychainChangeSet {
	merged := c
	if merged.Descriptor == nil {
		merged.Descriptor = other.Descriptor
	}
	if merged.ChangeDescriptor == nil {
		merged.ChangeDescriptor = other.ChangeDescriptor
	}
	if merged.Network == nil {
		merged.Network = other.Network
	}
	merged.LastRevealed = unionMaxIndices(c.LastRevealed, other.LastRevealed)
	return merged
}

// IsEmpty implements sqlstore.ChangeSet.
func (c KeychainChangeSet) IsEmpty() bool {
	return c.Descriptor == nil && c.ChangeDescriptor == nil && c.Network == nil && len(c.LastRevealed) == 0
}

func unionMaxIndices(a, b map[DescriptorID]uint32) map[DescriptorID]uint32 {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	merged := make(map[DescriptorID]uint32, len(a)+len(b))
	for id, index := range a {
		merged[id] = index
	}
	for id, index := range b {
		if cur, ok := merged[id]; !ok || index > cur {
			merged[id] = index
		}
	}
	return merged
}

// KeychainParams persists KeychainChangeSet.
type KeychainParams struct{}

// InitializeTables implements sqlstore.PersistParams.
func (KeychainParams) InitializeTables(ctx context.Context, tx *sql.Tx) error {
	return sqlstore.Migrate(ctx, tx, KeychainSchemaName, keychainMigrations)
}

// LoadChangeset implements sqlstore.PersistParams.
func (KeychainParams) LoadChangeset(ctx context.Context, tx *sql.Tx) (KeychainChangeSet, bool, error) {
	var cs KeychainChangeSet

	row := tx.QueryRowContext(ctx,
		"SELECT network, descriptor, change_descriptor FROM "+WalletTableName+" WHERE id = 0",
	)
	var (
		network          sql.NullString
		descriptor       sql.NullString
		changeDescriptor sql.NullString
	)
	err := row.Scan(&network, &descriptor, &changeDescriptor)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Fresh store, no wallet row yet.
	case err != nil:
		return cs, false, fmt.Errorf("query wallet row: %w", err)
	default:
		if network.Valid {
			params, err := sqlstore.ParseNetwork(network.String)
			if err != nil {
				return cs, false, sqlstore.MalformedError("network", err)
			}
			cs.Network = params
		}
		if descriptor.Valid {
			parsed, err := ParseDescriptor(descriptor.String)
			if err != nil {
				return cs, false, sqlstore.MalformedError("descriptor", err)
			}
			cs.Descriptor = &parsed
		}
		if changeDescriptor.Valid {
			parsed, err := ParseDescriptor(changeDescriptor.String)
			if err != nil {
				return cs, false, sqlstore.MalformedError("descriptor", err)
			}
			cs.ChangeDescriptor = &parsed
		}
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT descriptor_id, last_revealed FROM "+LastRevealedTableName+" ORDER BY descriptor_id ASC",
	)
	if err != nil {
		return cs, false, fmt.Errorf("query last revealed: %w", err)
	}
	defer rows.Close()

	lastRevealed := map[DescriptorID]uint32{}
	for rows.Next() {
		var (
			id    DescriptorID
			index int64
		)
		if err := rows.Scan(&id, &index); err != nil {
			return cs, false, fmt.Errorf("scan last revealed row: %w", err)
		}
		lastRevealed[id] = uint32(index)
	}
	if err := rows.Err(); err != nil {
		return cs, false, fmt.Errorf("iterate last revealed: %w", err)
	}
	if len(lastRevealed) > 0 {
		cs.LastRevealed = lastRevealed
	}

	return cs, !cs.IsEmpty(), nil
}

// WriteChangeset implements sqlstore.PersistParams. The wallet row upserts
// with COALESCE so unset fields never clobber previously written identity;
// last-revealed indices only ever advance.
func (KeychainParams) WriteChangeset(ctx context.Context, tx *sql.Tx, cs KeychainChangeSet) error {
	if cs.Descriptor != nil || cs.ChangeDescriptor != nil || cs.Network != nil {
		var network, descriptor, changeDescriptor any
		if cs.Network != nil {
			network = sqlstore.NetworkText{Params: cs.Network}
		}
		if cs.Descriptor != nil {
			descriptor = *cs.Descriptor
		}
		if cs.ChangeDescriptor != nil {
			changeDescriptor = *cs.ChangeDescriptor
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+WalletTableName+" (id, network, descriptor, change_descriptor) VALUES (0, ?, ?, ?) "+
				"ON CONFLICT(id) DO UPDATE SET "+
				"network = COALESCE(excluded.network, network), "+
				"descriptor = COALESCE(excluded.descriptor, descriptor), "+
				"change_descriptor = COALESCE(excluded.change_descriptor, change_descriptor)",
			network, descriptor, changeDescriptor,
		); err != nil {
			return fmt.Errorf("write wallet row: %w", err)
		}
	}
	for id, index := range cs.LastRevealed {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+LastRevealedTableName+" (descriptor_id, last_revealed) VALUES (?, ?) "+
				"ON CONFLICT(descriptor_id) DO UPDATE SET last_revealed = MAX(last_revealed, excluded.last_revealed)",
			id, int64(index),
		); err != nil {
			return fmt.Errorf("write last revealed for %s: %w", id, err)
		}
	}
	return nil
}
