package encoding

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

var (
	ErrEmptyMigrationBatch     = fmt.Errorf("migration batch has no entries")
	ErrMalformedMigrationBatch = fmt.Errorf("malformed migration batch")
)

// migrationBatchVersion is bumped whenever the batch layout changes so a
// receiving registry can reject encodings it does not understand.
const migrationBatchVersion = 1

type migrationBatch struct {
	Version uint8                  `cbor:"1,keyasint"`
	Upkeeps []types.MigratedUpkeep `cbor:"2,keyasint"`
}

// EncodeMigrationBatch packs exported upkeeps for transfer to a peer
// registry. Encoding is canonical CBOR so both sides agree on bytes.
func EncodeMigrationBatch(upkeeps []types.MigratedUpkeep) ([]byte, error) {
	if len(upkeeps) == 0 {
		return nil, ErrEmptyMigrationBatch
	}

	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to construct encoder: %w", err)
	}

	bts, err := mode.Marshal(migrationBatch{
		Version: migrationBatchVersion,
		Upkeeps: upkeeps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMigrationBatch, err)
	}

	return bts, nil
}

// DecodeMigrationBatch unpacks a batch received from a peer registry.
func DecodeMigrationBatch(encoded []byte) ([]types.MigratedUpkeep, error) {
	var batch migrationBatch
	if err := cbor.Unmarshal(encoded, &batch); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMigrationBatch, err)
	}

	if batch.Version != migrationBatchVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedMigrationBatch, batch.Version)
	}
	if len(batch.Upkeeps) == 0 {
		return nil, ErrEmptyMigrationBatch
	}

	return batch.Upkeeps, nil
}
