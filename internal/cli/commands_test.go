package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainstore/internal/chain"
	"github.com/roach88/chainstore/internal/sqlstore"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrateRequiresDatabasePath(t *testing.T) {
	_, err := runCommand(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database path")
}

func TestMigrateFreshStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	out, err := runCommand(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "migrated "+dbPath)
	assert.Contains(t, out, "store is empty")
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	_, err := runCommand(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
	_, err = runCommand(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
}

func TestMigrateJSONOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	out, err := runCommand(t, "migrate", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var result migrateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, dbPath, result.DB)
	assert.False(t, result.HasState)
	assert.Zero(t, result.Blocks)
	assert.Zero(t, result.Txs)
}

func TestStatusBeforeMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	out, err := runCommand(t, "status", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "not initialized")
}

func TestStatusJSONAfterMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	_, err := runCommand(t, "migrate", "--db", dbPath)
	require.NoError(t, err)

	out, err := runCommand(t, "status", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var status StoreStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Initialized)

	versions := make(map[string]int, len(status.Schemas))
	for _, schema := range status.Schemas {
		versions[schema.Name] = schema.Version
	}
	assert.Equal(t, map[string]int{
		chain.KeychainSchemaName:   0,
		chain.LocalChainSchemaName: 0,
		chain.TxGraphSchemaName:    1,
	}, versions)

	tables := make([]string, 0, len(status.Tables))
	for _, table := range status.Tables {
		tables = append(tables, table.Name)
		if table.Name == sqlstore.SchemasTableName {
			assert.EqualValues(t, 3, table.Rows, "one registry row per sub-schema")
			continue
		}
		assert.Zero(t, table.Rows, "fresh store table %s must be empty", table.Name)
	}
	assert.Equal(t, chain.TableNames(), tables)
}

func TestStatusDoesNotMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	_, err := runCommand(t, "status", "--db", dbPath)
	require.NoError(t, err)

	out, err := runCommand(t, "status", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var status StoreStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Initialized, "status must not create the schema registry")
}

func TestDumpEmptyStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	out, err := runCommand(t, "dump", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", out)
}

func TestDumpPersistedState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")
	seedStore(t, dbPath)

	out, err := runCommand(t, "dump", "--db", dbPath)
	require.NoError(t, err)

	var state dumpState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	require.Len(t, state.Blocks, 1)
	assert.Equal(t, uint32(800_000), state.Blocks[0].Height)
	assert.Equal(t, "signet", state.Network)
	assert.NotEmpty(t, state.Descriptor)
}

func TestCommandsHonorConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "wallet.db")
	configPath := filepath.Join(tmpDir, "chainstore.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("db: "+dbPath+"\nnetwork: signet\n"), 0644))

	out, err := runCommand(t, "migrate", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "migrated "+dbPath)
}

func seedStore(t *testing.T, dbPath string) {
	t.Helper()
	db, err := sqlstore.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	params := chain.NewCombinedParams[chain.BlockAnchor]()
	persister, _, _, err := sqlstore.NewPersister(ctx, db, params)
	require.NoError(t, err)

	desc, err := chain.ParseDescriptor("wpkh(xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8/0/*)")
	require.NoError(t, err)

	cs := chain.NewCombinedChangeSet(
		chain.LocalChainChangeSet{800_000: &chainhash.Hash{0x44}},
		chain.TxGraphChangeSet[chain.BlockAnchor]{},
		chain.KeychainChangeSet{
			Descriptor: &desc,
			Network:    &chaincfg.SigNetParams,
		},
	)
	require.NoError(t, persister.Persist(ctx, cs))
}
