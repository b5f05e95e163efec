package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"gale/internal/ir"
	"gale/internal/lir"
)

// stringTable interns strings into an image, reusing base ids in delta
// mode.
type stringTable struct {
	img  *Image
	base map[string]uint32
	ids  map[string]uint32
}

func newStringTable(img *Image, base *Image) *stringTable {
	t := &stringTable{img: img, ids: make(map[string]uint32)}
	if base != nil {
		t.base = make(map[string]uint32, len(base.StringTable))
		for i := range base.StringTable {
			id := base.BaseStrings + uint32(i)
			if s, ok := base.String(id); ok {
				if _, dup := t.base[s]; !dup {
					t.base[s] = id
				}
			}
		}
	}
	return t
}

// ErrInvalidString reports a string that is not valid UTF-8 and so has no
// UTF-16 form in the string table.
var ErrInvalidString = errors.New("string is not valid UTF-8")

// checkStrings rejects every string of f the table could not store
// losslessly.
func checkStrings(f *lir.Func) error {
	bad := func(where, s string) error {
		return fmt.Errorf("emit %s: %s %q: %w", f.Name, where, s, ErrInvalidString)
	}
	if !utf8.ValidString(f.Name) {
		return bad("function name", f.Name)
	}
	for _, b := range f.Layout {
		for i := range f.Blocks[b].Instrs {
			ins := &f.Blocks[b].Instrs[i]
			if ins.Dead {
				continue
			}
			if !utf8.ValidString(ins.Str) {
				return bad(ins.Op.String()+" operand", ins.Str)
			}
			for _, l := range ins.Labels {
				if !utf8.ValidString(l) {
					return bad("switch label", l)
				}
			}
		}
	}
	for _, buf := range f.Buffers {
		for _, vs := range [][]lir.BufValue{buf.Keys, buf.Values} {
			for _, v := range vs {
				if v.Kind == lir.BufString && !utf8.ValidString(v.Str) {
					return bad("literal buffer string", v.Str)
				}
			}
		}
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func (t *stringTable) intern(s string) uint32 {
	if id, ok := t.base[s]; ok {
		return id
	}
	if id, ok := t.ids[s]; ok {
		return id
	}
	img := t.img
	e := StringEntry{Offset: u32(len(img.StringStorage))}
	if isASCII(s) {
		e.Length = u32(len(s))
		img.StringStorage = append(img.StringStorage, s...)
	} else {
		b, err := utf16le.NewEncoder().Bytes([]byte(s))
		if err != nil {
			ir.Panicf("string table: %v", err)
		}
		e.Length, e.UTF16 = u32(len(b)/2), true
		img.StringStorage = append(img.StringStorage, b...)
	}
	id := img.BaseStrings + u32(len(img.StringTable))
	img.StringTable = append(img.StringTable, e)
	t.ids[s] = id
	return id
}

// Element tags of serialized literal buffers.
const (
	TagNull byte = iota
	TagTrue
	TagFalse
	TagUndefined
	TagNumber // float64
	TagInt    // int32
	TagString // uint32 string id
)

func (t *stringTable) serialize(vals []lir.BufValue) []byte {
	var out []byte
	for _, v := range vals {
		switch v.Kind {
		case lir.BufNull:
			out = append(out, TagNull)
		case lir.BufTrue:
			out = append(out, TagTrue)
		case lir.BufFalse:
			out = append(out, TagFalse)
		case lir.BufUndefined:
			out = append(out, TagUndefined)
		case lir.BufNumber:
			out = append(out, TagNumber)
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v.Num))
		case lir.BufInt:
			out = append(out, TagInt)
			out = binary.LittleEndian.AppendUint32(out, uint32(i32(v.Int)))
		case lir.BufString:
			out = append(out, TagString)
			out = binary.LittleEndian.AppendUint32(out, t.intern(v.Str))
		default:
			ir.Panicf("literal buffer: element kind %d", v.Kind)
		}
	}
	return out
}

type literalKey struct {
	keys, values string
	array        bool
}

// literalTable stores serialized buffers, sharing byte-identical ones.
type literalTable struct {
	img            *Image
	base           map[literalKey]uint32
	ids            map[literalKey]uint32
	keyOff, valOff map[string]uint32
}

func newLiteralTable(img *Image, base *Image) *literalTable {
	t := &literalTable{
		img:    img,
		ids:    make(map[literalKey]uint32),
		keyOff: make(map[string]uint32),
		valOff: make(map[string]uint32),
	}
	if base != nil {
		t.base = make(map[literalKey]uint32, len(base.Literals))
		for i := range base.Literals {
			id := base.BaseLiterals + uint32(i)
			keys, values, _, _ := base.Literal(id)
			k := literalKey{keys: string(keys), values: string(values), array: base.Literals[i].KeyOffset == NoOffset}
			if _, dup := t.base[k]; !dup {
				t.base[k] = id
			}
		}
	}
	return t
}

func (t *literalTable) add(keys, values []byte, array bool, count int) uint32 {
	k := literalKey{keys: string(keys), values: string(values), array: array}
	if id, ok := t.base[k]; ok {
		return id
	}
	if id, ok := t.ids[k]; ok {
		return id
	}
	img := t.img
	e := LiteralEntry{KeyOffset: NoOffset, Count: u32(count)}
	if !array {
		e.KeyOffset, e.KeyLength = place(&img.LiteralKeys, t.keyOff, keys)
	}
	e.ValueOffset, e.ValueLength = place(&img.LiteralValues, t.valOff, values)
	id := img.BaseLiterals + u32(len(img.Literals))
	img.Literals = append(img.Literals, e)
	t.ids[k] = id
	return id
}

func place(storage *[]byte, seen map[string]uint32, b []byte) (off, n uint32) {
	if off, ok := seen[string(b)]; ok {
		return off, u32(len(b))
	}
	off = u32(len(*storage))
	*storage = append(*storage, b...)
	seen[string(b)] = off
	return off, u32(len(b))
}
