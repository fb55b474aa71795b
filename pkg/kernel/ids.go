package kernel

import (
	"fmt"

	"github.com/google/uuid"
)

// akiNamespace roots every name-based identifier minted by the kernel.
var akiNamespace = uuid.MustParse("6f1d2c3e-8a4b-5c7d-9e0f-a1b2c3d4e5f6")

// IDMinter mints deterministic UUIDv5 identifiers scoped to one run.
type IDMinter struct {
	ns uuid.UUID
}

// NewIDMinter scopes identifiers to the run identified by its root seed and
// config hash.
func NewIDMinter(rootSeed []byte, configHash string) *IDMinter {
	name := append(append([]byte{}, rootSeed...), []byte(configHash)...)
	return &IDMinter{ns: uuid.NewSHA1(akiNamespace, name)}
}

// RunID identifies the run itself.
func (m *IDMinter) RunID() string {
	return m.ns.String()
}

// Mint returns the identifier for the n-th object of kind.
func (m *IDMinter) Mint(kind string, n int) string {
	return uuid.NewSHA1(m.ns, []byte(fmt.Sprintf("%s:%d", kind, n))).String()
}
