package chain

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// BlockAnchor is the stock confirmation anchor: the block a transaction was
// confirmed in. Callers with richer confirmation data (e.g. confirmation
// time) supply their own anchor type instead.
type BlockAnchor struct {
	Height uint32
	Hash   chainhash.Hash
}

type blockAnchorJSON struct {
	Height uint32 `json:"height"`
	Hash   string `json:"hash"`
}

// MarshalJSON encodes the hash in its canonical hex form. The anchor column
// is part of a primary key, so the encoding must stay byte-for-byte stable.
func (a BlockAnchor) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockAnchorJSON{Height: a.Height, Hash: a.Hash.String()})
}

// UnmarshalJSON decodes the canonical form.
func (a *BlockAnchor) UnmarshalJSON(b []byte) error {
	var raw blockAnchorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	hash, err := chainhash.NewHashFromStr(raw.Hash)
	if err != nil {
		return fmt.Errorf("block anchor hash: %w", err)
	}
	a.Height = raw.Height
	a.Hash = *hash
	return nil
}

// CombinedChangeSet is the three sub-schemas composed through the pair
// combinator: local chain, then transaction graph, then keychain. Deeper
// nesting extends the composition to any arity.
type CombinedChangeSet[A comparable] = sqlstore.PairChangeSet[LocalChainChangeSet, sqlstore.PairChangeSet[TxGraphChangeSet[A], KeychainChangeSet]]

// CombinedParams persists CombinedChangeSet over one connection and one
// transaction boundary.
type CombinedParams[A comparable] = sqlstore.Pair[LocalChainChangeSet, sqlstore.PairChangeSet[TxGraphChangeSet[A], KeychainChangeSet]]

// NewCombinedParams builds the params object for the full wallet schema.
func NewCombinedParams[A comparable]() CombinedParams[A] {
	return CombinedParams[A]{
		First: LocalChainParams{},
		Second: sqlstore.Pair[TxGraphChangeSet[A], KeychainChangeSet]{
			First:  TxGraphParams[A]{},
			Second: KeychainParams{},
		},
	}
}

// NewCombinedChangeSet assembles a combined changeset from its components.
func NewCombinedChangeSet[A comparable](localChain LocalChainChangeSet, txGraph TxGraphChangeSet[A], keychain KeychainChangeSet) CombinedChangeSet[A] {
	return CombinedChangeSet[A]{
		First: localChain,
		Second: sqlstore.PairChangeSet[TxGraphChangeSet[A], KeychainChangeSet]{
			First:  txGraph,
			Second: keychain,
		},
	}
}

// LocalChainOf returns the local-chain component of a combined changeset.
func LocalChainOf[A comparable](cs CombinedChangeSet[A]) LocalChainChangeSet {
	return cs.First
}

// TxGraphOf returns the transaction-graph component of a combined changeset.
func TxGraphOf[A comparable](cs CombinedChangeSet[A]) TxGraphChangeSet[A] {
	return cs.Second.First
}

// KeychainOf returns the keychain component of a combined changeset.
func KeychainOf[A comparable](cs CombinedChangeSet[A]) KeychainChangeSet {
	return cs.Second.Second
}

// TableNames lists every table the combined schema creates, sorted by name.
func TableNames() []string {
	return []string{
		AnchorsTableName,
		BlocksTableName,
		LastRevealedTableName,
		sqlstore.SchemasTableName,
		TxOutsTableName,
		TxsTableName,
		WalletTableName,
	}
}
