package cell

import "math"

// Datacell is a tagged union: null, bool, unsigned/signed int, float,
// bin, str, or list. Scalars are stored inline as a raw 8-byte
// quadword; bin/str/list own a heap slice. The zero value is Null.
type Datacell struct {
	class TagClass
	qw    uint64
	bytes []byte     // bin / str payload
	list  []Datacell // list payload
}

func Null() Datacell { return Datacell{class: TagClassNull} }

func NewBool(b bool) Datacell {
	var qw uint64
	if b {
		qw = 1
	}
	return Datacell{class: TagClassBool, qw: qw}
}

func NewUint(v uint64) Datacell { return Datacell{class: TagClassUnsignedInt, qw: v} }

func NewInt(v int64) Datacell { return Datacell{class: TagClassSignedInt, qw: uint64(v)} }

func NewFloat(v float64) Datacell {
	return Datacell{class: TagClassFloat, qw: math.Float64bits(v)}
}

func NewBin(b []byte) Datacell {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Datacell{class: TagClassBin, bytes: cp}
}

func NewStr(s string) Datacell {
	return Datacell{class: TagClassStr, bytes: []byte(s)}
}

func NewList(items []Datacell) Datacell {
	return Datacell{class: TagClassList, list: items}
}

// NewQWValue builds a scalar cell directly from a raw quadword and a
// known class; used by the journal decoder, which reads the bit
// pattern off the wire and already knows the class from the dscr byte.
func NewQWValue(class TagClass, qw uint64) Datacell {
	return Datacell{class: class, qw: qw}
}

func (d Datacell) Class() TagClass { return d.class }

func (d Datacell) IsNull() bool { return d.class == TagClassNull }

func (d Datacell) Bool() (bool, bool) {
	if d.class != TagClassBool {
		return false, false
	}
	return d.qw == 1, true
}

func (d Datacell) Uint() (uint64, bool) {
	if d.class != TagClassUnsignedInt {
		return 0, false
	}
	return d.qw, true
}

func (d Datacell) Int() (int64, bool) {
	if d.class != TagClassSignedInt {
		return 0, false
	}
	return int64(d.qw), true
}

func (d Datacell) Float() (float64, bool) {
	if d.class != TagClassFloat {
		return 0, false
	}
	return math.Float64frombits(d.qw), true
}

func (d Datacell) Bin() ([]byte, bool) {
	if d.class != TagClassBin {
		return nil, false
	}
	return d.bytes, true
}

func (d Datacell) Str() (string, bool) {
	if d.class != TagClassStr {
		return "", false
	}
	return string(d.bytes), true
}

func (d Datacell) List() ([]Datacell, bool) {
	if d.class != TagClassList {
		return nil, false
	}
	return d.list, true
}

// QW exposes the raw quadword for scalar classes; used only by the
// journal writer, which serializes the bit pattern verbatim.
func (d Datacell) QW() uint64 { return d.qw }

// Clone performs a deep copy, including nested list cells. Rows never
// alias a Datacell owned by another row.
func (d Datacell) Clone() Datacell {
	out := Datacell{class: d.class, qw: d.qw}
	if d.bytes != nil {
		out.bytes = append([]byte(nil), d.bytes...)
	}
	if d.list != nil {
		out.list = make([]Datacell, len(d.list))
		for i, item := range d.list {
			out.list[i] = item.Clone()
		}
	}
	return out
}

// Equal is a deep, class-aware comparison used by round-trip tests.
func (d Datacell) Equal(other Datacell) bool {
	if d.class != other.class {
		return false
	}
	switch d.class {
	case TagClassNull:
		return true
	case TagClassBool, TagClassUnsignedInt, TagClassSignedInt, TagClassFloat:
		return d.qw == other.qw
	case TagClassBin, TagClassStr:
		if len(d.bytes) != len(other.bytes) {
			return false
		}
		for i := range d.bytes {
			if d.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	case TagClassList:
		if len(d.list) != len(other.list) {
			return false
		}
		for i := range d.list {
			if !d.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
