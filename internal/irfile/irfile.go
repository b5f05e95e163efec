// Package irfile is the on-disk form of an IR module, as handed over by the
// front end.
package irfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"gale/internal/ir"
)

// Schema is bumped whenever the encoding of ir.Module changes.
const Schema uint16 = 1

// ErrSchema reports a payload written by an incompatible version.
var ErrSchema = errors.New("irfile: unsupported schema")

// Payload is the encoded envelope of a module.
type Payload struct {
	Schema uint16
	// Funcs repeats len(Module.Funcs) so truncated payloads are caught.
	Funcs  uint32
	Module *ir.Module
}

// Write encodes m to w.
func Write(w io.Writer, m *ir.Module) error {
	n, err := safecast.Conv[uint32](len(m.Funcs))
	if err != nil {
		return fmt.Errorf("irfile: %w", err)
	}
	return msgpack.NewEncoder(w).Encode(&Payload{Schema: Schema, Funcs: n, Module: m})
}

// Read decodes a module from r and restores its derived state.
func Read(r io.Reader) (*ir.Module, error) {
	var p Payload
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("irfile: %w", err)
	}
	if p.Schema != Schema {
		return nil, fmt.Errorf("%w %d, want %d", ErrSchema, p.Schema, Schema)
	}
	if p.Module == nil {
		return nil, errors.New("irfile: payload has no module")
	}
	if int(p.Funcs) != len(p.Module.Funcs) {
		return nil, fmt.Errorf("irfile: header lists %d functions, payload has %d", p.Funcs, len(p.Module.Funcs))
	}
	p.Module.Rebuild()
	return p.Module, nil
}

// WriteFile writes m to path, replacing it atomically.
func WriteFile(path string, m *ir.Module) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".gir-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err = Write(f, m); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile reads the module stored at path.
func ReadFile(path string) (*ir.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
