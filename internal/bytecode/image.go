// Package bytecode encodes allocated LIR functions into a bytecode image
// and reads images back for inspection.
package bytecode

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Version is the image format version; bump it when the encoding changes.
const Version uint16 = 1

// NoOffset marks an absent key buffer.
const NoOffset = ^uint32(0)

// FuncHeader describes one function of an image.
type FuncHeader struct {
	ID         uint32
	Name       uint32 // string id
	ParamCount uint32
	FrameSize  uint32
	NumberRegs uint32
	NonPtrRegs uint32
	SpillSlots uint32
	CacheSlots uint32
	// Offset is absolute in the merged code stream.
	Offset     uint32
	Length     uint32
	Exceptions []ExceptionEntry
}

// ExceptionEntry routes exceptions raised in [Start, End) to Handler.
// Offsets are relative to the function start.
type ExceptionEntry struct {
	Start   uint32
	End     uint32
	Handler uint32
}

// StringEntry locates one string in StringStorage. UTF16 strings are
// stored as little-endian code units, the others as one byte per char;
// Length counts chars or code units.
type StringEntry struct {
	Offset uint32
	Length uint32
	UTF16  bool
}

// LiteralEntry is one literal buffer. Values and keys are the serialized
// element sequences in LiteralValues and LiteralKeys; arrays have no keys.
type LiteralEntry struct {
	KeyOffset   uint32
	KeyLength   uint32
	ValueOffset uint32
	ValueLength uint32
	Count       uint32
}

type SwitchCase struct {
	String uint32
	// Target is relative to the start of the StringSwitch instruction.
	Target int32
}

type SwitchTable struct {
	Cases []SwitchCase
}

// DebugEntry maps a code offset to a source position. Entries are sorted
// by offset; each applies until the next one.
type DebugEntry struct {
	Offset uint32
	Line   uint32
	Col    uint32
}

// Image is a compiled module. A delta image extends a base image: ids
// below the Base counts refer to the base tables.
type Image struct {
	Version uint16

	BaseStrings  uint32
	BaseLiterals uint32
	BaseSwitches uint32
	BaseCode     uint32

	Functions []FuncHeader
	Code      []byte

	StringTable   []StringEntry
	StringStorage []byte

	Literals      []LiteralEntry
	LiteralKeys   []byte
	LiteralValues []byte

	SwitchTables []SwitchTable
	Debug        []DebugEntry
}

// IsDelta reports whether img depends on a base image.
func (img *Image) IsDelta() bool {
	return img.BaseStrings|img.BaseLiterals|img.BaseSwitches|img.BaseCode != 0
}

// NumStrings counts the strings addressable from img, base included.
func (img *Image) NumStrings() int { return int(img.BaseStrings) + len(img.StringTable) }

// String decodes string id. ok is false for ids held by the base image.
func (img *Image) String(id uint32) (string, bool) {
	if id < img.BaseStrings || int(id-img.BaseStrings) >= len(img.StringTable) {
		return "", false
	}
	e := img.StringTable[id-img.BaseStrings]
	if !e.UTF16 {
		return string(img.StringStorage[e.Offset : e.Offset+e.Length]), true
	}
	s, err := utf16le.NewDecoder().Bytes(img.StringStorage[e.Offset : e.Offset+2*e.Length])
	if err != nil {
		return "", false
	}
	return string(s), true
}

// Literal returns the serialized sequences of literal buffer id.
func (img *Image) Literal(id uint32) (keys, values []byte, count int, ok bool) {
	if id < img.BaseLiterals || int(id-img.BaseLiterals) >= len(img.Literals) {
		return nil, nil, 0, false
	}
	e := img.Literals[id-img.BaseLiterals]
	if e.KeyOffset != NoOffset {
		keys = img.LiteralKeys[e.KeyOffset : e.KeyOffset+e.KeyLength]
	}
	return keys, img.LiteralValues[e.ValueOffset : e.ValueOffset+e.ValueLength], int(e.Count), true
}

var ErrVersion = errors.New("unsupported image version")

// WriteImage serializes img as msgpack.
func WriteImage(w io.Writer, img *Image) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(img); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// ReadImage deserializes an image written by WriteImage.
func ReadImage(r io.Reader) (*Image, error) {
	var img Image
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&img); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, img.Version)
	}
	return &img, nil
}
