package sqlstore

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// The wrapper types below attach column codec behavior to domain types
// without implementing Scanner/Valuer on the domain types themselves. Each
// wrapper is constructed, converted, and discarded within one column
// read/write. Encodings are byte-for-byte stable across releases: rows
// written by an older build must decode unchanged.

// HashText stores a 32-byte hash (txid or block hash) as its canonical
// 64-character hex string.
type HashText chainhash.Hash

// Value implements driver.Valuer.
func (h HashText) Value() (driver.Value, error) {
	return chainhash.Hash(h).String(), nil
}

// Scan implements sql.Scanner.
func (h *HashText) Scan(src any) error {
	s, err := asString(src, "hash")
	if err != nil {
		return err
	}
	// NewHashFromStr pads short input; the column format is exactly 64 chars.
	if len(s) != chainhash.MaxHashStringSize {
		return MalformedError("hash", fmt.Errorf("hash string length %d, want %d", len(s), chainhash.MaxHashStringSize))
	}
	parsed, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return MalformedError("hash", err)
	}
	*h = HashText(*parsed)
	return nil
}

// TxBytes stores a transaction as its consensus binary serialization in a
// BLOB column.
type TxBytes wire.MsgTx

// Value implements driver.Valuer.
func (t *TxBytes) Value() (driver.Value, error) {
	var buf bytes.Buffer
	if err := (*wire.MsgTx)(t).Serialize(&buf); err != nil {
		return nil, MalformedError("raw transaction", err)
	}
	return buf.Bytes(), nil
}

// Scan implements sql.Scanner. Decoding reads from a bounded in-memory
// reader; truncated or trailing bytes fail rather than decode ambiguously.
func (t *TxBytes) Scan(src any) error {
	b, err := asBytes(src, "raw transaction")
	if err != nil {
		return err
	}
	r := bytes.NewReader(b)
	var tx wire.MsgTx
	if err := tx.Deserialize(r); err != nil {
		return MalformedError("raw transaction", err)
	}
	if r.Len() != 0 {
		return MalformedError("raw transaction", fmt.Errorf("%d trailing bytes after transaction", r.Len()))
	}
	*t = TxBytes(tx)
	return nil
}

// ScriptBytes stores an arbitrary byte program as raw bytes, untransformed.
type ScriptBytes []byte

// Value implements driver.Valuer.
func (s ScriptBytes) Value() (driver.Value, error) {
	return []byte(s), nil
}

// Scan implements sql.Scanner. The driver's buffer is copied; it is only
// valid for the duration of the Scan call.
func (s *ScriptBytes) Scan(src any) error {
	b, err := asBytes(src, "script")
	if err != nil {
		return err
	}
	*s = append(ScriptBytes(nil), b...)
	return nil
}

// Satoshis stores a monetary amount as a signed 64-bit count of satoshis.
type Satoshis btcutil.Amount

// Value implements driver.Valuer.
func (a Satoshis) Value() (driver.Value, error) {
	if a < 0 || int64(a) > btcutil.MaxSatoshi {
		return nil, OutOfRangeError("amount", fmt.Errorf("%d satoshis outside [0, %d]", int64(a), int64(btcutil.MaxSatoshi)))
	}
	return int64(a), nil
}

// Scan implements sql.Scanner.
func (a *Satoshis) Scan(src any) error {
	v, ok := src.(int64)
	if !ok {
		return MalformedError("amount", fmt.Errorf("unexpected column type %T", src))
	}
	if v < 0 || v > btcutil.MaxSatoshi {
		return OutOfRangeError("amount", fmt.Errorf("%d satoshis outside [0, %d]", v, int64(btcutil.MaxSatoshi)))
	}
	*a = Satoshis(v)
	return nil
}

// JSONText stores any JSON-serializable value as a JSON text column. This is
// the codec's dynamic extension point: callers supply their own confirmation
// anchor types without the codec knowing their shape ahead of time.
type JSONText[T any] struct {
	V T
}

// Value implements driver.Valuer.
func (j JSONText[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, MalformedError("json", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSONText[T]) Scan(src any) error {
	s, err := asString(src, "json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), &j.V); err != nil {
		return MalformedError("json", err)
	}
	return nil
}

// NetworkText stores network parameters as their canonical name.
type NetworkText struct {
	Params *chaincfg.Params
}

// Value implements driver.Valuer.
func (n NetworkText) Value() (driver.Value, error) {
	if n.Params == nil {
		return nil, MalformedError("network", fmt.Errorf("nil network parameters"))
	}
	return n.Params.Name, nil
}

// Scan implements sql.Scanner.
func (n *NetworkText) Scan(src any) error {
	s, err := asString(src, "network")
	if err != nil {
		return err
	}
	params, err := ParseNetwork(s)
	if err != nil {
		return MalformedError("network", err)
	}
	n.Params = params
	return nil
}

// ParseNetwork resolves a canonical network name to chain parameters.
func ParseNetwork(name string) (*chaincfg.Params, error) {
	for _, params := range []*chaincfg.Params{
		&chaincfg.MainNetParams,
		&chaincfg.TestNet3Params,
		&chaincfg.SigNetParams,
		&chaincfg.SimNetParams,
		&chaincfg.RegressionNetParams,
	} {
		if params.Name == name {
			return params, nil
		}
	}
	return nil, fmt.Errorf("unknown network %q", name)
}

// asString extracts a text column value. SQLite drivers hand TEXT columns to
// Scanner implementations as either string or []byte.
func asString(src any, role string) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", MalformedError(role, fmt.Errorf("unexpected column type %T", src))
	}
}

// asBytes extracts a blob column value.
func asBytes(src any, role string) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, MalformedError(role, fmt.Errorf("unexpected column type %T", src))
	}
}
