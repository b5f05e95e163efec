package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"gale/internal/bytecode"
	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/irfile"
)

// Digest identifies one compilation: the input module, the tunables and
// the delta base.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool { return d == Digest{} }

// ComputeDigest hashes everything that determines the emitted image.
// base may be nil.
func ComputeDigest(m *ir.Module, cfg config.Config, base *bytecode.Image) (Digest, error) {
	h := sha256.New()
	if err := irfile.Write(h, m); err != nil {
		return Digest{}, fmt.Errorf("digest module: %w", err)
	}
	if err := msgpack.NewEncoder(h).Encode(&cfg); err != nil {
		return Digest{}, fmt.Errorf("digest config: %w", err)
	}
	if base != nil {
		if err := bytecode.WriteImage(h, base); err != nil {
			return Digest{}, fmt.Errorf("digest base: %w", err)
		}
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}
