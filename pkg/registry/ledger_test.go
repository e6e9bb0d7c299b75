package registry

import (
	"io"
	"log"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

func newTestLedger() *Ledger {
	return NewLedger(log.New(io.Discard, "", 0), nil)
}

func ledgerUpkeep(id int64, balance int64) *types.Upkeep {
	return &types.Upkeep{
		ID:                  big.NewInt(id),
		Balance:             big.NewInt(balance),
		AmountSpent:         new(big.Int),
		MaxValidBlocknumber: types.UnlimitedValidBlock,
	}
}

func TestLedger_ActiveUpkeepIDs(t *testing.T) {
	ledger := newTestLedger()

	// inserted out of order; pagination must come back sorted
	for _, id := range []int64{5, 1, 9, 3, 7} {
		ledger.putUpkeep(ledgerUpkeep(id, 0))
	}

	require.Equal(t, 5, ledger.count())

	tests := []struct {
		name     string
		offset   int
		limit    int
		expected []int64
	}{
		{name: "everything", offset: 0, limit: 0, expected: []int64{1, 3, 5, 7, 9}},
		{name: "first page", offset: 0, limit: 2, expected: []int64{1, 3}},
		{name: "middle page", offset: 2, limit: 2, expected: []int64{5, 7}},
		{name: "short last page", offset: 4, limit: 10, expected: []int64{9}},
		{name: "offset past the end", offset: 10, limit: 2, expected: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := ledger.activeUpkeepIDs(tt.offset, tt.limit)
			require.Len(t, ids, len(tt.expected))
			for i, expected := range tt.expected {
				assert.Equal(t, expected, ids[i].Int64())
			}
		})
	}

	t.Run("deactivate removes from the active set only", func(t *testing.T) {
		ledger.deactivate(big.NewInt(5))

		assert.Equal(t, 4, ledger.count())
		_, ok := ledger.upkeep(big.NewInt(5))
		assert.True(t, ok)
	})

	t.Run("remove deletes the record", func(t *testing.T) {
		ledger.removeUpkeep(big.NewInt(7))

		assert.Equal(t, 3, ledger.count())
		_, ok := ledger.upkeep(big.NewInt(7))
		assert.False(t, ok)
	})
}

func TestLedger_Balances(t *testing.T) {
	ledger := newTestLedger()
	up := ledgerUpkeep(1, 100)
	ledger.putUpkeep(up)

	t.Run("credit", func(t *testing.T) {
		ledger.creditUpkeep(up, big.NewInt(50))
		assert.Equal(t, int64(150), up.Balance.Int64())
	})

	t.Run("debit", func(t *testing.T) {
		paid := ledger.debitUpkeep(up, big.NewInt(60))
		assert.Equal(t, int64(60), paid.Int64())
		assert.Equal(t, int64(90), up.Balance.Int64())
		assert.Equal(t, int64(60), up.AmountSpent.Int64())
	})

	t.Run("debit clamps at the balance", func(t *testing.T) {
		paid := ledger.debitUpkeep(up, big.NewInt(1_000))
		assert.Equal(t, int64(90), paid.Int64())
		assert.Equal(t, int64(0), up.Balance.Int64())
		assert.Equal(t, int64(150), up.AmountSpent.Int64())
	})

	t.Run("drain empties the balance", func(t *testing.T) {
		ledger.creditUpkeep(up, big.NewInt(25))
		out := ledger.drainUpkeep(up)
		assert.Equal(t, int64(25), out.Int64())
		assert.Equal(t, int64(0), up.Balance.Int64())
	})
}

func TestLedger_ApplyOracleSet(t *testing.T) {
	ledger := newTestLedger()

	signers := []common.Address{
		common.BytesToAddress([]byte{0x01}),
		common.BytesToAddress([]byte{0x02}),
	}
	transmitters := []common.Address{
		common.BytesToAddress([]byte{0x11}),
		common.BytesToAddress([]byte{0x12}),
	}

	ledger.applyOracleSet(signers, transmitters)

	first, ok := ledger.transmitterInfo(transmitters[0])
	require.True(t, ok)
	assert.True(t, first.Active)
	assert.Equal(t, uint8(0), first.Index)

	// earnings and payee assignment must survive a reconfiguration
	first.Payee = common.BytesToAddress([]byte{0xee})
	ledger.creditTransmitter(transmitters[0], big.NewInt(500))

	replacement := []common.Address{
		transmitters[0],
		common.BytesToAddress([]byte{0x13}),
	}
	ledger.applyOracleSet(
		[]common.Address{signers[0], common.BytesToAddress([]byte{0x03})},
		replacement,
	)

	t.Run("returning transmitter keeps balance and payee", func(t *testing.T) {
		kept, ok := ledger.transmitterInfo(transmitters[0])
		require.True(t, ok)
		assert.True(t, kept.Active)
		assert.Equal(t, int64(500), kept.Balance.Int64())
		assert.Equal(t, common.BytesToAddress([]byte{0xee}), kept.Payee)
	})

	t.Run("dropped transmitter is deactivated, not deleted", func(t *testing.T) {
		dropped, ok := ledger.transmitterInfo(transmitters[1])
		require.True(t, ok)
		assert.False(t, dropped.Active)
	})

	t.Run("dropped signer is deactivated", func(t *testing.T) {
		signer, ok := ledger.signerInfo(signers[1])
		require.True(t, ok)
		assert.False(t, signer.Active)
	})

	t.Run("credit to an unknown transmitter is a no-op", func(t *testing.T) {
		ledger.creditTransmitter(common.BytesToAddress([]byte{0x99}), big.NewInt(1))
		_, ok := ledger.transmitterInfo(common.BytesToAddress([]byte{0x99}))
		assert.False(t, ok)
	})
}
