package chain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainstore/internal/sqlstore"
	"github.com/roach88/chainstore/internal/testutil"
)

func TestBlockAnchor_JSONIsCanonical(t *testing.T) {
	anchor := BlockAnchor{Height: 800_000, Hash: chainhash.Hash{0xaa}}

	encoded, err := json.Marshal(anchor)
	require.NoError(t, err)
	assert.JSONEq(t, `{"height":800000,"hash":"`+anchor.Hash.String()+`"}`, string(encoded))

	var decoded BlockAnchor
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, anchor, decoded)
}

func TestBlockAnchor_UnmarshalRejectsBadHash(t *testing.T) {
	var decoded BlockAnchor
	err := json.Unmarshal([]byte(`{"height":1,"hash":"nothex"}`), &decoded)
	assert.Error(t, err)
}

func TestCombined_EmptinessIsConjunctive(t *testing.T) {
	var empty CombinedChangeSet[BlockAnchor]
	assert.True(t, empty.IsEmpty())

	withBlocks := NewCombinedChangeSet[BlockAnchor](
		LocalChainChangeSet{1: hashAt(0x01)},
		TxGraphChangeSet[BlockAnchor]{},
		KeychainChangeSet{},
	)
	assert.False(t, withBlocks.IsEmpty())

	withKeychain := NewCombinedChangeSet[BlockAnchor](
		nil,
		TxGraphChangeSet[BlockAnchor]{},
		KeychainChangeSet{Network: &chaincfg.MainNetParams},
	)
	assert.False(t, withKeychain.IsEmpty())
}

// TestCombined_BootstrapPersistRebootstrap is the end-to-end scenario: an
// empty store yields no changeset, a persisted changeset is recovered intact
// by a second persister against the same file.
func TestCombined_BootstrapPersistRebootstrap(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()
	params := NewCombinedParams[BlockAnchor]()

	persister, _, found, err := sqlstore.NewPersister(ctx, db, params)
	require.NoError(t, err)
	assert.False(t, found, "fresh store must load nothing")

	tx := testTx(t, 0)
	txid := tx.TxHash()
	desc, err := ParseDescriptor(testDescriptorPayload)
	require.NoError(t, err)

	written := NewCombinedChangeSet(
		LocalChainChangeSet{800_000: hashAt(0x44)},
		TxGraphChangeSet[BlockAnchor]{
			Txs: map[chainhash.Hash]*wire.MsgTx{txid: tx},
			Anchors: map[AnchorKey[BlockAnchor]]struct{}{
				{Anchor: BlockAnchor{Height: 800_000, Hash: chainhash.Hash{0x44}}, Txid: txid}: {},
			},
			LastSeen: map[chainhash.Hash]uint64{txid: 1700000000},
		},
		KeychainChangeSet{
			Descriptor:   &desc,
			Network:      &chaincfg.SigNetParams,
			LastRevealed: map[DescriptorID]uint32{desc.ID(): 3},
		},
	)
	require.NoError(t, persister.Persist(ctx, written))

	_, loaded, found, err := sqlstore.NewPersister(ctx, db, params)
	require.NoError(t, err)
	require.True(t, found, "second bootstrap must find the persisted state")

	assert.Equal(t, LocalChainOf(written), LocalChainOf(loaded))
	assert.Equal(t, TxGraphOf(written).Anchors, TxGraphOf(loaded).Anchors)
	assert.Equal(t, TxGraphOf(written).LastSeen, TxGraphOf(loaded).LastSeen)
	require.Contains(t, TxGraphOf(loaded).Txs, txid)
	assert.Equal(t, txid, TxGraphOf(loaded).Txs[txid].TxHash())
	assert.Equal(t, KeychainOf(written), KeychainOf(loaded))
}

func TestCombined_PersistEmptyTouchesNothing(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()
	params := NewCombinedParams[BlockAnchor]()

	persister, _, _, err := sqlstore.NewPersister(ctx, db, params)
	require.NoError(t, err)

	var empty CombinedChangeSet[BlockAnchor]
	require.NoError(t, persister.Persist(ctx, empty))

	for _, table := range TableNames() {
		if table == sqlstore.SchemasTableName {
			continue
		}
		assert.Zero(t, testutil.CountRows(t, db, table), "table %s must stay empty", table)
	}
}

func TestCombined_MergeAcrossComponents(t *testing.T) {
	a := NewCombinedChangeSet[BlockAnchor](
		LocalChainChangeSet{1: hashAt(0x01)},
		TxGraphChangeSet[BlockAnchor]{LastSeen: map[chainhash.Hash]uint64{{0x0a}: 10}},
		KeychainChangeSet{},
	)
	b := NewCombinedChangeSet[BlockAnchor](
		LocalChainChangeSet{2: hashAt(0x02)},
		TxGraphChangeSet[BlockAnchor]{LastSeen: map[chainhash.Hash]uint64{{0x0a}: 20}},
		KeychainChangeSet{Network: &chaincfg.MainNetParams},
	)

	merged := a.Merge(b)
	assert.Equal(t, LocalChainChangeSet{1: hashAt(0x01), 2: hashAt(0x02)}, LocalChainOf(merged))
	assert.Equal(t, uint64(20), TxGraphOf(merged).LastSeen[chainhash.Hash{0x0a}])
	assert.Equal(t, &chaincfg.MainNetParams, KeychainOf(merged).Network)
}
