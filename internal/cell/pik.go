package cell

import "github.com/cockroachdb/errors"

// ErrNotUnique is returned when a Datacell of a non-hashable class is
// offered as a primary key.
var ErrNotUnique = errors.New("cell: class is not a unique (hashable) class")

// PrimaryIndexKey is a Datacell restricted to the four unique classes:
// unsigned int, signed int, str, bin. It is the key type of the
// primary index (§3).
type PrimaryIndexKey struct {
	tag   TagUnique
	qw    uint64
	bytes []byte
}

// NewFromDatacell extracts a PrimaryIndexKey from an arbitrary
// Datacell, rejecting classes that cannot be hashed/compared.
func NewFromDatacell(d Datacell) (PrimaryIndexKey, error) {
	tag, ok := FromClass(d.class)
	if !ok {
		return PrimaryIndexKey{}, ErrNotUnique
	}
	switch tag {
	case TagUniqueUnsignedInt, TagUniqueSignedInt:
		return PrimaryIndexKey{tag: tag, qw: d.qw}, nil
	default:
		return PrimaryIndexKey{tag: tag, bytes: append([]byte(nil), d.bytes...)}, nil
	}
}

// NewFromQW constructs an integer-keyed PrimaryIndexKey directly from
// an 8-byte quadword, as read off the journal wire (§4.3).
func NewFromQW(tag TagUnique, qw uint64) PrimaryIndexKey {
	return PrimaryIndexKey{tag: tag, qw: qw}
}

// NewFromBytes constructs a str/bin-keyed PrimaryIndexKey from a
// length-prefixed byte payload, as read off the journal wire.
func NewFromBytes(tag TagUnique, b []byte) PrimaryIndexKey {
	return PrimaryIndexKey{tag: tag, bytes: append([]byte(nil), b...)}
}

func (k PrimaryIndexKey) Tag() TagUnique { return k.tag }

// Datacell reconstructs the original tagged cell for this key, e.g.
// when materializing a row's field map back into a response.
func (k PrimaryIndexKey) Datacell() Datacell {
	switch k.tag {
	case TagUniqueUnsignedInt:
		return NewUint(k.qw)
	case TagUniqueSignedInt:
		return NewInt(int64(k.qw))
	case TagUniqueStr:
		return NewStr(string(k.bytes))
	case TagUniqueBin:
		return NewBin(k.bytes)
	default:
		panic("cell: unreachable tag unique")
	}
}

// Hash implements a FNV-1a style 64-bit hash consistent with Equal:
// equal keys always hash equal, independent of the underlying byte
// representation's origin (inline quadword vs heap slice).
func (k PrimaryIndexKey) Hash() uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	h ^= uint64(k.tag)
	h *= prime
	switch k.tag {
	case TagUniqueUnsignedInt, TagUniqueSignedInt:
		for i := 0; i < 8; i++ {
			h ^= (k.qw >> (8 * i)) & 0xff
			h *= prime
		}
	default:
		for _, b := range k.bytes {
			h ^= uint64(b)
			h *= prime
		}
	}
	return h
}

// Equal compares class+payload; two keys of different unique tags are
// never equal even if their underlying bits coincide.
func (k PrimaryIndexKey) Equal(other PrimaryIndexKey) bool {
	if k.tag != other.tag {
		return false
	}
	switch k.tag {
	case TagUniqueUnsignedInt, TagUniqueSignedInt:
		return k.qw == other.qw
	default:
		if len(k.bytes) != len(other.bytes) {
			return false
		}
		for i := range k.bytes {
			if k.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	}
}

// QW exposes the raw quadword for int-tagged keys, used by the
// journal writer when serializing the primary-key encoding (§4.3).
func (k PrimaryIndexKey) QW() uint64 { return k.qw }

// Bytes exposes the payload for str/bin-tagged keys.
func (k PrimaryIndexKey) Bytes() []byte { return k.bytes }
