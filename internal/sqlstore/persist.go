package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// ChangeSet is the contract every persisted state container satisfies. Merge
// must be associative, and merging with the zero-value (empty) changeset must
// be a no-op. The store never inspects a changeset's fields.
type ChangeSet[C any] interface {
	// Merge combines other into the receiver's state and returns the result.
	Merge(other C) C

	// IsEmpty reports whether the changeset carries no mutations.
	IsEmpty() bool
}

// PersistParams describes what tables a piece of state needs, how to load the
// latest materialized changeset, and how to write a new one. All methods run
// inside an open transaction owned by the caller.
//
// WriteChangeset must be additive: writing a changeset never destroys
// previously written state it does not explicitly supersede. The store
// assumes this contract, it does not enforce it.
type PersistParams[C ChangeSet[C]] interface {
	// InitializeTables creates or migrates the tables backing C.
	InitializeTables(ctx context.Context, tx *sql.Tx) error

	// LoadChangeset reads the currently materialized state. found is false
	// when the store holds no state for this sub-schema.
	LoadChangeset(ctx context.Context, tx *sql.Tx) (cs C, found bool, err error)

	// WriteChangeset persists cs into the tables.
	WriteChangeset(ctx context.Context, tx *sql.Tx, cs C) error
}

// PairChangeSet composes two changesets into one. Emptiness is conjunctive
// and Merge is component-wise, so the composition satisfies ChangeSet and
// nests to arbitrary arity.
type PairChangeSet[A ChangeSet[A], B ChangeSet[B]] struct {
	First  A
	Second B
}

// Merge implements ChangeSet.
func (p PairChangeSet[A, B]) Merge(other PairChangeSet[A, B]) PairChangeSet[A, B] {
	return PairChangeSet[A, B]{
		First:  p.First.Merge(other.First),
		Second: p.Second.Merge(other.Second),
	}
}

// IsEmpty implements ChangeSet.
func (p PairChangeSet[A, B]) IsEmpty() bool {
	return p.First.IsEmpty() && p.Second.IsEmpty()
}

// Pair composes two PersistParams over one connection and one transaction
// boundary.
type Pair[A ChangeSet[A], B ChangeSet[B]] struct {
	First  PersistParams[A]
	Second PersistParams[B]
}

// InitializeTables runs First's initialization, then Second's.
func (p Pair[A, B]) InitializeTables(ctx context.Context, tx *sql.Tx) error {
	if err := p.First.InitializeTables(ctx, tx); err != nil {
		return err
	}
	return p.Second.InitializeTables(ctx, tx)
}

// LoadChangeset loads both sides, defaulting a missing side to the empty
// changeset. found is false only when the composed result is entirely empty;
// this distinguishes "nothing in the store yet" from "store has data but one
// sub-schema happens to be empty".
func (p Pair[A, B]) LoadChangeset(ctx context.Context, tx *sql.Tx) (PairChangeSet[A, B], bool, error) {
	var cs PairChangeSet[A, B]
	first, _, err := p.First.LoadChangeset(ctx, tx)
	if err != nil {
		return cs, false, err
	}
	second, _, err := p.Second.LoadChangeset(ctx, tx)
	if err != nil {
		return cs, false, err
	}
	cs = PairChangeSet[A, B]{First: first, Second: second}
	return cs, !cs.IsEmpty(), nil
}

// WriteChangeset writes both components.
func (p Pair[A, B]) WriteChangeset(ctx context.Context, tx *sql.Tx, cs PairChangeSet[A, B]) error {
	if err := p.First.WriteChangeset(ctx, tx, cs.First); err != nil {
		return err
	}
	return p.Second.WriteChangeset(ctx, tx, cs.Second)
}

// Persister owns a database connection and a params object for the process
// lifetime, and persists changesets transactionally. It must not be shared
// across goroutines without external synchronization.
type Persister[C ChangeSet[C]] struct {
	db     *sql.DB
	params PersistParams[C]
}

// NewPersister bootstraps a Persister against db: in a single transaction it
// initializes (and migrates) the params' tables, loads whatever state is
// already materialized, and commits. found is false for a fresh store.
func NewPersister[C ChangeSet[C]](ctx context.Context, db *sql.DB, params PersistParams[C]) (p *Persister[C], cs C, found bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, cs, false, fmt.Errorf("begin bootstrap transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := params.InitializeTables(ctx, tx); err != nil {
		return nil, cs, false, err
	}
	cs, found, err = params.LoadChangeset(ctx, tx)
	if err != nil {
		return nil, cs, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, cs, false, fmt.Errorf("commit bootstrap transaction: %w", err)
	}
	return &Persister[C]{db: db, params: params}, cs, found, nil
}

// Persist writes cs in one transaction. An empty changeset succeeds
// immediately without touching the store.
func (p *Persister[C]) Persist(ctx context.Context, cs C) error {
	if cs.IsEmpty() {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist transaction: %w", err)
	}
	defer tx.Rollback()

	if err := p.params.WriteChangeset(ctx, tx, cs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist transaction: %w", err)
	}
	return nil
}

// DB returns the underlying connection for direct queries.
// Use with caution - prefer Persist when writing state.
func (p *Persister[C]) DB() *sql.DB {
	return p.db
}

// Close closes the owned connection.
func (p *Persister[C]) Close() error {
	return p.db.Close()
}
