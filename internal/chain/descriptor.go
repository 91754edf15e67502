package chain

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// checksumCharset is the output alphabet of the descriptor checksum.
const checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// inputCharset enumerates every character allowed in a descriptor payload.
// The index of a character determines its symbol value during checksum
// computation, so the ordering is fixed and must never change.
const inputCharset = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

// Descriptor is an output script descriptor in canonical form: the payload
// followed by "#" and its 8-character checksum.
type Descriptor string

// ParseDescriptor validates s and returns its canonical form. A trailing
// "#checksum" is verified when present and computed when absent.
func ParseDescriptor(s string) (Descriptor, error) {
	payload, checksum, hasChecksum := strings.Cut(s, "#")
	if payload == "" {
		return "", fmt.Errorf("empty descriptor")
	}
	computed, err := descriptorChecksum(payload)
	if err != nil {
		return "", fmt.Errorf("parse descriptor: %w", err)
	}
	if hasChecksum && checksum != computed {
		return "", fmt.Errorf("parse descriptor: checksum mismatch: have %q, want %q", checksum, computed)
	}
	return Descriptor(payload + "#" + computed), nil
}

// Payload returns the descriptor without its checksum suffix.
func (d Descriptor) Payload() string {
	payload, _, _ := strings.Cut(string(d), "#")
	return payload
}

func (d Descriptor) String() string {
	return string(d)
}

// ID returns the stable identifier of the descriptor: the SHA-256 of its
// payload. Checksums are excluded so equivalent descriptors written with and
// without a checksum share one identity.
func (d Descriptor) ID() DescriptorID {
	return DescriptorID(sha256.Sum256([]byte(d.Payload())))
}

// Value implements driver.Valuer.
func (d Descriptor) Value() (driver.Value, error) {
	return string(d), nil
}

// Scan implements sql.Scanner.
func (d *Descriptor) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		b, isBytes := src.([]byte)
		if !isBytes {
			return sqlstore.MalformedError("descriptor", fmt.Errorf("unexpected column type %T", src))
		}
		s = string(b)
	}
	parsed, err := ParseDescriptor(s)
	if err != nil {
		return sqlstore.MalformedError("descriptor", err)
	}
	*d = parsed
	return nil
}

// DescriptorID identifies a descriptor independently of its textual form.
type DescriptorID [sha256.Size]byte

func (id DescriptorID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseDescriptorID decodes the hex form of a descriptor identifier.
func ParseDescriptorID(s string) (DescriptorID, error) {
	var id DescriptorID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse descriptor id: %w", err)
	}
	if len(b) != sha256.Size {
		return id, fmt.Errorf("parse descriptor id: %d bytes, want %d", len(b), sha256.Size)
	}
	copy(id[:], b)
	return id, nil
}

// Value implements driver.Valuer.
func (id DescriptorID) Value() (driver.Value, error) {
	return id.String(), nil
}

// Scan implements sql.Scanner.
func (id *DescriptorID) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		b, isBytes := src.([]byte)
		if !isBytes {
			return sqlstore.MalformedError("descriptor id", fmt.Errorf("unexpected column type %T", src))
		}
		s = string(b)
	}
	parsed, err := ParseDescriptorID(s)
	if err != nil {
		return sqlstore.MalformedError("descriptor id", err)
	}
	*id = parsed
	return nil
}

// descriptorChecksum computes the 8-character checksum of a descriptor
// payload per the standard descriptor checksum algorithm.
func descriptorChecksum(payload string) (string, error) {
	var symbols []uint64
	cls := uint64(0)
	clsCount := 0
	for _, r := range payload {
		pos := strings.IndexRune(inputCharset, r)
		if pos < 0 {
			return "", fmt.Errorf("invalid descriptor character %q", r)
		}
		symbols = append(symbols, uint64(pos&31))
		cls = cls*3 + uint64(pos>>5)
		clsCount++
		if clsCount == 3 {
			// Group values are packed three at a time into one symbol.
			symbols = append(symbols, cls)
			cls = 0
			clsCount = 0
		}
	}
	if clsCount > 0 {
		symbols = append(symbols, cls)
	}
	for i := 0; i < 8; i++ {
		symbols = append(symbols, 0)
	}

	chk := descriptorPolymod(symbols) ^ 1
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteByte(checksumCharset[(chk>>(5*uint(7-i)))&31])
	}
	return b.String(), nil
}

// descriptorPolymod is the BCH polymod over the descriptor checksum
// generator.
func descriptorPolymod(symbols []uint64) uint64 {
	generator := [5]uint64{0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd}
	chk := uint64(1)
	for _, value := range symbols {
		top := chk >> 35
		chk = (chk&0x7ffffffff)<<5 ^ value
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}
