// Package chain defines the changesets a chain-tracking wallet persists and
// the sqlstore.PersistParams implementations that map them to tables.
//
// Three sub-schemas share one connection, each versioned independently in the
// chainstore_schemas registry:
//   - localchain: the best-chain view as block hashes by height
//   - txgraph: observed transactions, floating outputs, confirmation anchors,
//     and last-seen times
//   - keychain: wallet descriptors, network, and last-revealed derivation
//     indices
//
// Every changeset satisfies sqlstore.ChangeSet: Merge is associative, merging
// with the empty changeset is a no-op, and duplicate facts merge
// idempotently. Anchor rows are append-only; a confirmation observed once is
// never rewritten, giving an immutable ledger of historical state.
package chain
