package journal

import (
	"unicode/utf8"

	"github.com/gridrow/dbengine/internal/cell"
	"github.com/gridrow/dbengine/internal/serr"
	"github.com/gridrow/dbengine/pkg/diskio"
)

// EncodePK writes a primary-key tag byte followed by its payload:
// 8 bytes LE for the two int tags, 8-byte length + bytes for str/bin.
func EncodePK(w *diskio.Writer, pk cell.PrimaryIndexKey) error {
	if err := w.WriteByte(byte(pk.Tag())); err != nil {
		return err
	}
	switch pk.Tag() {
	case cell.TagUniqueUnsignedInt, cell.TagUniqueSignedInt:
		return w.WriteU64LE(pk.QW())
	default:
		b := pk.Bytes()
		if err := w.WriteU64LE(uint64(len(b))); err != nil {
			return err
		}
		return w.WriteBytes(b)
	}
}

// DecodePK reads back a primary-key tag + payload pair.
func DecodePK(r *diskio.Reader) (cell.PrimaryIndexKey, error) {
	raw, err := r.ReadByte()
	if err != nil {
		return cell.PrimaryIndexKey{}, err
	}
	tag, ok := cell.TryFromRaw(raw)
	if !ok {
		return cell.PrimaryIndexKey{}, serr.Wrapf(serr.ErrCorruptedBatch, "invalid primary-key tag byte 0x%02x", raw)
	}
	switch tag {
	case cell.TagUniqueUnsignedInt, cell.TagUniqueSignedInt:
		qw, err := r.ReadU64LE()
		if err != nil {
			return cell.PrimaryIndexKey{}, err
		}
		return cell.NewFromQW(tag, qw), nil
	default:
		n, err := r.ReadU64LE()
		if err != nil {
			return cell.PrimaryIndexKey{}, err
		}
		buf := make([]byte, n)
		if err := r.ReadInto(buf); err != nil {
			return cell.PrimaryIndexKey{}, err
		}
		if tag == cell.TagUniqueStr && !utf8.Valid(buf) {
			return cell.PrimaryIndexKey{}, serr.Wrap(serr.ErrCorruptedEntry, "primary key str payload is not valid utf-8")
		}
		return cell.NewFromBytes(tag, buf), nil
	}
}

// EncodeCell writes a 1-byte dscr followed by its payload (§4.3's
// cell encoding table). dscr 8 (dict) is reserved and this function
// never emits it because ClassToDscr has no TagClassDict to map from.
func EncodeCell(w *diskio.Writer, d cell.Datacell) error {
	dscr := cell.ClassToDscr(d.Class())
	if err := w.WriteByte(byte(dscr)); err != nil {
		return err
	}
	switch dscr {
	case cell.DscrNull:
		return nil
	case cell.DscrBool:
		v, _ := d.Bool()
		b := byte(0)
		if v {
			b = 1
		}
		return w.WriteByte(b)
	case cell.DscrUnsignedInt:
		v, _ := d.Uint()
		return w.WriteU64LE(v)
	case cell.DscrSignedInt:
		v, _ := d.Int()
		return w.WriteU64LE(uint64(v))
	case cell.DscrFloat:
		return w.WriteU64LE(d.QW())
	case cell.DscrBin:
		v, _ := d.Bin()
		if err := w.WriteU64LE(uint64(len(v))); err != nil {
			return err
		}
		return w.WriteBytes(v)
	case cell.DscrStr:
		v, _ := d.Str()
		b := []byte(v)
		if err := w.WriteU64LE(uint64(len(b))); err != nil {
			return err
		}
		return w.WriteBytes(b)
	case cell.DscrList:
		v, _ := d.List()
		if err := w.WriteU64LE(uint64(len(v))); err != nil {
			return err
		}
		for _, elem := range v {
			if err := EncodeCell(w, elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return serr.Wrap(serr.ErrInternalDecodeStructureCorrupted, "attempted to encode a reserved/unknown dscr")
	}
}

// DecodeCell reads one dscr byte and its payload back into a Datacell.
func DecodeCell(r *diskio.Reader) (cell.Datacell, error) {
	raw, err := r.ReadByte()
	if err != nil {
		return cell.Datacell{}, err
	}
	var zero cell.PersistTypeDscr
	dscr, ok := zero.TryFromRaw(raw)
	if !ok {
		return cell.Datacell{}, serr.Wrapf(serr.ErrCorruptedEntry, "invalid cell dscr byte 0x%02x", raw)
	}
	switch dscr {
	case cell.DscrNull:
		return cell.Null(), nil
	case cell.DscrBool:
		b, err := r.ReadByte()
		if err != nil {
			return cell.Datacell{}, err
		}
		if b != 0 && b != 1 {
			return cell.Datacell{}, serr.Wrapf(serr.ErrCorruptedEntry, "invalid bool byte 0x%02x", b)
		}
		return cell.NewBool(b == 1), nil
	case cell.DscrUnsignedInt:
		v, err := r.ReadU64LE()
		if err != nil {
			return cell.Datacell{}, err
		}
		return cell.NewUint(v), nil
	case cell.DscrSignedInt:
		v, err := r.ReadU64LE()
		if err != nil {
			return cell.Datacell{}, err
		}
		return cell.NewInt(int64(v)), nil
	case cell.DscrFloat:
		v, err := r.ReadU64LE()
		if err != nil {
			return cell.Datacell{}, err
		}
		return cell.NewQWValue(cell.TagClassFloat, v), nil
	case cell.DscrBin:
		n, err := r.ReadU64LE()
		if err != nil {
			return cell.Datacell{}, err
		}
		buf := make([]byte, n)
		if err := r.ReadInto(buf); err != nil {
			return cell.Datacell{}, err
		}
		return cell.NewBin(buf), nil
	case cell.DscrStr:
		n, err := r.ReadU64LE()
		if err != nil {
			return cell.Datacell{}, err
		}
		buf := make([]byte, n)
		if err := r.ReadInto(buf); err != nil {
			return cell.Datacell{}, err
		}
		if !utf8.Valid(buf) {
			return cell.Datacell{}, serr.Wrap(serr.ErrCorruptedEntry, "str cell payload is not valid utf-8")
		}
		return cell.NewStr(string(buf)), nil
	case cell.DscrList:
		n, err := r.ReadU64LE()
		if err != nil {
			return cell.Datacell{}, err
		}
		elems := make([]cell.Datacell, 0, n)
		for i := uint64(0); i < n; i++ {
			elem, err := DecodeCell(r)
			if err != nil {
				return cell.Datacell{}, err
			}
			elems = append(elems, elem)
		}
		return cell.NewList(elems), nil
	default: // DscrDict
		return cell.Datacell{}, serr.Wrap(serr.ErrCorruptedEntry, "dict cells are reserved and not yet accepted")
	}
}
