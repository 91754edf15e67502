package chain

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// TxGraphSchemaName is the registry name for the transaction-graph
// sub-schema.
const TxGraphSchemaName = "chainstore_txgraph"

// Transaction-graph table names.
const (
	TxsTableName     = "chainstore_txs"
	TxOutsTableName  = "chainstore_txouts"
	AnchorsTableName = "chainstore_anchors"
)

// Version 1 retrofits last-seen tracking onto stores created at version 0.
// Scripts are forward-only: each batch must be valid against a database with
// exactly the prior versions applied.
var txGraphMigrations = [][]string{
	// version 0
	{
		"CREATE TABLE " + TxsTableName + " (" +
			"txid TEXT PRIMARY KEY NOT NULL, " +
			"raw_tx BLOB" +
			") STRICT",
		"CREATE TABLE " + TxOutsTableName + " (" +
			"txid TEXT NOT NULL, " +
			"vout INTEGER NOT NULL, " +
			"value INTEGER NOT NULL, " +
			"script BLOB NOT NULL, " +
			"PRIMARY KEY (txid, vout)" +
			") STRICT",
		"CREATE TABLE " + AnchorsTableName + " (" +
			"txid TEXT NOT NULL, " +
			"anchor TEXT NOT NULL, " +
			"PRIMARY KEY (txid, anchor)" +
			") STRICT",
	},
	// version 1
	{
		"ALTER TABLE " + TxsTableName + " ADD COLUMN last_seen INTEGER",
	},
}

// AnchorKey ties a confirmation anchor to the transaction it anchors.
type AnchorKey[A comparable] struct {
	Anchor A
	Txid   chainhash.Hash
}

// TxGraphChangeSet records incremental mutations to the transaction graph:
// newly observed whole transactions, floating outputs, confirmation anchors,
// and last-seen times. The anchor type A is caller-supplied; it only has to
// be comparable and JSON-serializable.
type TxGraphChangeSet[A comparable] struct {
	// Txs holds whole transactions keyed by txid.
	Txs map[chainhash.Hash]*wire.MsgTx

	// TxOuts holds outputs whose spending transaction may not be known.
	TxOuts map[wire.OutPoint]*wire.TxOut

	// Anchors is the set of observed confirmations. Anchor facts are never
	// retracted.
	Anchors map[AnchorKey[A]]struct{}

	// LastSeen maps txid to the latest unix time the transaction was seen
	// unconfirmed.
	LastSeen map[chainhash.Hash]uint64
}

// Merge implements sqlstore.ChangeSet. Maps union with other winning on
// collision, except LastSeen which keeps the greatest time.
func (c TxGraphChangeSet[A]) Merge(other TxGraphChangeSet[A]) TxGraphChangeSet[A] {
	return TxGraphChangeSet[A]{
		Txs:      unionMaps(c.Txs, other.Txs),
		TxOuts:   unionMaps(c.TxOuts, other.TxOuts),
		Anchors:  unionMaps(c.Anchors, other.Anchors),
		LastSeen: unionMaxTimes(c.LastSeen, other.LastSeen),
	}
}

// IsEmpty implements sqlstore.ChangeSet.
func (c TxGraphChangeSet[A]) IsEmpty() bool {
	return len(c.Txs) == 0 && len(c.TxOuts) == 0 && len(c.Anchors) == 0 && len(c.LastSeen) == 0
}

func unionMaps[K comparable, V any](a, b map[K]V) map[K]V {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	merged := make(map[K]V, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

func unionMaxTimes(a, b map[chainhash.Hash]uint64) map[chainhash.Hash]uint64 {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	merged := make(map[chainhash.Hash]uint64, len(a)+len(b))
	for txid, t := range a {
		merged[txid] = t
	}
	for txid, t := range b {
		if cur, ok := merged[txid]; !ok || t > cur {
			merged[txid] = t
		}
	}
	return merged
}

// TxGraphParams persists TxGraphChangeSet[A].
type TxGraphParams[A comparable] struct{}

// InitializeTables implements sqlstore.PersistParams.
func (TxGraphParams[A]) InitializeTables(ctx context.Context, tx *sql.Tx) error {
	return sqlstore.Migrate(ctx, tx, TxGraphSchemaName, txGraphMigrations)
}

// LoadChangeset implements sqlstore.PersistParams.
func (TxGraphParams[A]) LoadChangeset(ctx context.Context, tx *sql.Tx) (TxGraphChangeSet[A], bool, error) {
	cs := TxGraphChangeSet[A]{
		Txs:      map[chainhash.Hash]*wire.MsgTx{},
		TxOuts:   map[wire.OutPoint]*wire.TxOut{},
		Anchors:  map[AnchorKey[A]]struct{}{},
		LastSeen: map[chainhash.Hash]uint64{},
	}
	if err := loadTxs(ctx, tx, &cs); err != nil {
		return cs, false, err
	}
	if err := loadTxOuts(ctx, tx, &cs); err != nil {
		return cs, false, err
	}
	if err := loadAnchors(ctx, tx, &cs); err != nil {
		return cs, false, err
	}
	return cs, !cs.IsEmpty(), nil
}

func loadTxs[A comparable](ctx context.Context, tx *sql.Tx, cs *TxGraphChangeSet[A]) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT txid, raw_tx, last_seen FROM "+TxsTableName+" ORDER BY txid ASC",
	)
	if err != nil {
		return fmt.Errorf("query txs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txid     sqlstore.HashText
			rawTx    []byte
			lastSeen sql.NullInt64
		)
		if err := rows.Scan(&txid, &rawTx, &lastSeen); err != nil {
			return fmt.Errorf("scan tx row: %w", err)
		}
		if len(rawTx) > 0 {
			var decoded sqlstore.TxBytes
			if err := decoded.Scan(rawTx); err != nil {
				return fmt.Errorf("decode tx %s: %w", chainhash.Hash(txid), err)
			}
			cs.Txs[chainhash.Hash(txid)] = (*wire.MsgTx)(&decoded)
		}
		if lastSeen.Valid {
			cs.LastSeen[chainhash.Hash(txid)] = uint64(lastSeen.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate txs: %w", err)
	}
	return nil
}

func loadTxOuts[A comparable](ctx context.Context, tx *sql.Tx, cs *TxGraphChangeSet[A]) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT txid, vout, value, script FROM "+TxOutsTableName+" ORDER BY txid ASC, vout ASC",
	)
	if err != nil {
		return fmt.Errorf("query txouts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txid   sqlstore.HashText
			vout   int64
			value  sqlstore.Satoshis
			script sqlstore.ScriptBytes
		)
		if err := rows.Scan(&txid, &vout, &value, &script); err != nil {
			return fmt.Errorf("scan txout row: %w", err)
		}
		outPoint := wire.OutPoint{Hash: chainhash.Hash(txid), Index: uint32(vout)}
		cs.TxOuts[outPoint] = &wire.TxOut{Value: int64(value), PkScript: script}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate txouts: %w", err)
	}
	return nil
}

func loadAnchors[A comparable](ctx context.Context, tx *sql.Tx, cs *TxGraphChangeSet[A]) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT txid, anchor FROM "+AnchorsTableName+" ORDER BY txid ASC, anchor ASC",
	)
	if err != nil {
		return fmt.Errorf("query anchors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txid   sqlstore.HashText
			anchor sqlstore.JSONText[A]
		)
		if err := rows.Scan(&txid, &anchor); err != nil {
			return fmt.Errorf("scan anchor row: %w", err)
		}
		cs.Anchors[AnchorKey[A]{Anchor: anchor.V, Txid: chainhash.Hash(txid)}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate anchors: %w", err)
	}
	return nil
}

// WriteChangeset implements sqlstore.PersistParams. All writes are additive:
// transactions and outputs upsert, anchors insert-or-ignore (the anchor set
// is append-only), last-seen only ever advances.
func (TxGraphParams[A]) WriteChangeset(ctx context.Context, tx *sql.Tx, cs TxGraphChangeSet[A]) error {
	for txid, msgTx := range cs.Txs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+TxsTableName+" (txid, raw_tx) VALUES (?, ?) "+
				"ON CONFLICT(txid) DO UPDATE SET raw_tx = excluded.raw_tx",
			sqlstore.HashText(txid), (*sqlstore.TxBytes)(msgTx),
		); err != nil {
			return fmt.Errorf("write tx %s: %w", txid, err)
		}
	}
	for txid, lastSeen := range cs.LastSeen {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+TxsTableName+" (txid, last_seen) VALUES (?, ?) "+
				"ON CONFLICT(txid) DO UPDATE SET last_seen = MAX(COALESCE(last_seen, 0), excluded.last_seen)",
			sqlstore.HashText(txid), int64(lastSeen),
		); err != nil {
			return fmt.Errorf("write last seen for %s: %w", txid, err)
		}
	}
	for outPoint, txOut := range cs.TxOuts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+TxOutsTableName+" (txid, vout, value, script) VALUES (?, ?, ?, ?) "+
				"ON CONFLICT(txid, vout) DO UPDATE SET value = excluded.value, script = excluded.script",
			sqlstore.HashText(outPoint.Hash), int64(outPoint.Index),
			sqlstore.Satoshis(txOut.Value), sqlstore.ScriptBytes(txOut.PkScript),
		); err != nil {
			return fmt.Errorf("write txout %s: %w", outPoint, err)
		}
	}
	for key := range cs.Anchors {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+AnchorsTableName+" (txid, anchor) VALUES (?, ?) "+
				"ON CONFLICT(txid, anchor) DO NOTHING",
			sqlstore.HashText(key.Txid), sqlstore.JSONText[A]{V: key.Anchor},
		); err != nil {
			return fmt.Errorf("write anchor for %s: %w", key.Txid, err)
		}
	}
	return nil
}
