package bytecode

import (
	"fmt"
	"slices"

	"gale/internal/ir"
)

// Merge applies a delta to the image it was emitted against. The result
// is a full image holding the functions of both.
func Merge(base, delta *Image) (_ *Image, err error) {
	defer ir.RecoverICE(&err)
	if base.IsDelta() {
		return nil, fmt.Errorf("merge: base image is itself a delta")
	}
	switch {
	case int(delta.BaseStrings) != len(base.StringTable):
		return nil, fmt.Errorf("merge: delta expects %d base strings, base has %d", delta.BaseStrings, len(base.StringTable))
	case int(delta.BaseLiterals) != len(base.Literals):
		return nil, fmt.Errorf("merge: delta expects %d base buffers, base has %d", delta.BaseLiterals, len(base.Literals))
	case int(delta.BaseSwitches) != len(base.SwitchTables):
		return nil, fmt.Errorf("merge: delta expects %d base switch tables, base has %d", delta.BaseSwitches, len(base.SwitchTables))
	case int(delta.BaseCode) != len(base.Code):
		return nil, fmt.Errorf("merge: delta expects %d bytes of base code, base has %d", delta.BaseCode, len(base.Code))
	}
	out := &Image{
		Version:       Version,
		Functions:     append(slices.Clone(base.Functions), delta.Functions...),
		Code:          append(slices.Clone(base.Code), delta.Code...),
		StringTable:   slices.Clone(base.StringTable),
		StringStorage: append(slices.Clone(base.StringStorage), delta.StringStorage...),
		Literals:      slices.Clone(base.Literals),
		LiteralKeys:   append(slices.Clone(base.LiteralKeys), delta.LiteralKeys...),
		LiteralValues: append(slices.Clone(base.LiteralValues), delta.LiteralValues...),
		SwitchTables:  append(slices.Clone(base.SwitchTables), delta.SwitchTables...),
		Debug:         append(slices.Clone(base.Debug), delta.Debug...),
	}
	strOff := u32(len(base.StringStorage))
	for _, e := range delta.StringTable {
		e.Offset += strOff
		out.StringTable = append(out.StringTable, e)
	}
	keyOff, valOff := u32(len(base.LiteralKeys)), u32(len(base.LiteralValues))
	for _, e := range delta.Literals {
		if e.KeyOffset != NoOffset {
			e.KeyOffset += keyOff
		}
		e.ValueOffset += valOff
		out.Literals = append(out.Literals, e)
	}
	return out, nil
}
