package artifacts

import (
	"context"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// BundleFormat versions the archived layout.
const BundleFormat = "aki-run-bundle/1"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifacts: cbor encoder: %v", err))
	}
	// Event payloads must come back as map[string]any so their canonical
	// hashes can be recomputed.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("artifacts: cbor decoder: %v", err))
	}
}

// Bundle is everything needed to audit a run offline.
type Bundle struct {
	Format     string                  `cbor:"format"`
	RunID      string                  `cbor:"run_id"`
	ConfigHash string                  `cbor:"config_hash"`
	Config     *config.Config          `cbor:"config"`
	Summary    *harness.Summary        `cbor:"summary"`
	Events     []*kernel.EventEnvelope `cbor:"events"`
}

// NewBundle assembles a bundle from a finished run.
func NewBundle(cfg *config.Config, summary *harness.Summary, events []*kernel.EventEnvelope) *Bundle {
	return &Bundle{
		Format:     BundleFormat,
		RunID:      summary.RunID,
		ConfigHash: summary.ConfigHash,
		Config:     cfg,
		Summary:    summary,
		Events:     events,
	}
}

// Marshal encodes the bundle with deterministic CBOR.
func (b *Bundle) Marshal() ([]byte, error) {
	data, err := encMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle %s: %w", b.RunID, err)
	}
	return data, nil
}

// Verify checks the event chain against the summary it was archived with.
func (b *Bundle) Verify() error {
	if b.Format != BundleFormat {
		return fmt.Errorf("unsupported bundle format %q", b.Format)
	}
	if b.Summary == nil {
		return fmt.Errorf("bundle %s has no summary", b.RunID)
	}
	if uint64(len(b.Events)) != b.Summary.EventCount {
		return fmt.Errorf("bundle %s: %d events, summary records %d", b.RunID, len(b.Events), b.Summary.EventCount)
	}
	head, err := kernel.VerifyChain(b.Events)
	if err != nil {
		return fmt.Errorf("bundle %s: %w", b.RunID, err)
	}
	if head != b.Summary.EventLogHash {
		return fmt.Errorf("bundle %s: chain head %s does not match summary %s", b.RunID, head, b.Summary.EventLogHash)
	}
	if b.Config != nil {
		h, err := b.Config.Hash()
		if err != nil {
			return fmt.Errorf("bundle %s: hash config: %w", b.RunID, err)
		}
		if h != b.ConfigHash {
			return fmt.Errorf("bundle %s: config hash mismatch", b.RunID)
		}
	}
	return nil
}

// UnmarshalBundle decodes bundle bytes without verifying them.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := decMode.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// Archive encodes and stores a bundle, returning its digest.
func Archive(ctx context.Context, store BlobStore, b *Bundle) (string, error) {
	data, err := b.Marshal()
	if err != nil {
		return "", err
	}
	return store.Put(ctx, data)
}

// Fetch loads a bundle by digest and verifies it.
func Fetch(ctx context.Context, store BlobStore, digest string) (*Bundle, error) {
	data, err := store.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	if got, _ := Digest(data); got != digest {
		return nil, fmt.Errorf("artifact %s: content digest %s", digest, got)
	}
	b, err := UnmarshalBundle(data)
	if err != nil {
		return nil, err
	}
	if err := b.Verify(); err != nil {
		return nil, err
	}
	return b, nil
}
