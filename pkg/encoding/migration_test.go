package encoding

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

func TestMigrationBatchRoundTrip(t *testing.T) {
	upkeeps := []types.MigratedUpkeep{
		{
			ID:                  big.NewInt(1),
			Target:              common.BytesToAddress([]byte{0x55, 0x01}),
			ExecuteGas:          250_000,
			CheckData:           []byte("check"),
			Balance:             big.NewInt(1_000_000_000_000_000_000),
			Admin:               common.BytesToAddress([]byte{0xdd}),
			Paused:              true,
			SkipSigVerification: false,
			OffchainConfig:      []byte{0x01, 0x02},
		},
		{
			ID:         big.NewInt(2),
			Target:     common.BytesToAddress([]byte{0x55, 0x02}),
			ExecuteGas: 100_000,
			Balance:    big.NewInt(0),
			Admin:      common.BytesToAddress([]byte{0xdd}),
		},
	}

	encoded, err := EncodeMigrationBatch(upkeeps)
	require.NoError(t, err)

	decoded, err := DecodeMigrationBatch(encoded)
	require.NoError(t, err)

	assert.Equal(t, upkeeps, decoded)
}

func TestEncodeMigrationBatch_Empty(t *testing.T) {
	_, err := EncodeMigrationBatch(nil)
	assert.ErrorIs(t, err, ErrEmptyMigrationBatch)
}

func TestDecodeMigrationBatch(t *testing.T) {
	t.Run("undecodable bytes", func(t *testing.T) {
		_, err := DecodeMigrationBatch([]byte("not cbor"))
		assert.ErrorIs(t, err, ErrMalformedMigrationBatch)
	})

	t.Run("unsupported version", func(t *testing.T) {
		encoded, err := cbor.Marshal(migrationBatch{
			Version: 99,
			Upkeeps: []types.MigratedUpkeep{{ID: big.NewInt(1), Balance: big.NewInt(0)}},
		})
		require.NoError(t, err)

		_, err = DecodeMigrationBatch(encoded)
		assert.ErrorIs(t, err, ErrMalformedMigrationBatch)
	})

	t.Run("empty batch", func(t *testing.T) {
		encoded, err := cbor.Marshal(migrationBatch{Version: migrationBatchVersion})
		require.NoError(t, err)

		_, err = DecodeMigrationBatch(encoded)
		assert.ErrorIs(t, err, ErrEmptyMigrationBatch)
	})
}
