package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedChain(t *testing.T) {
	blocks := NewSimulatedChain(10, []byte("salt"))

	t.Run("latest block", func(t *testing.T) {
		latest := blocks.LatestBlock()
		assert.Equal(t, uint64(10), uint64(latest.Number))
		assert.NotEqual(t, [32]byte{}, latest.Hash)
	})

	t.Run("advance moves the head", func(t *testing.T) {
		blocks.Advance(5)
		assert.Equal(t, uint64(15), uint64(blocks.LatestBlock().Number))
	})

	t.Run("hashes are stable per block", func(t *testing.T) {
		first, ok := blocks.BlockHash(12)
		require.True(t, ok)
		second, ok := blocks.BlockHash(12)
		require.True(t, ok)

		assert.Equal(t, first, second)

		other, ok := blocks.BlockHash(13)
		require.True(t, ok)
		assert.NotEqual(t, first, other)
	})

	t.Run("future blocks have no hash", func(t *testing.T) {
		_, ok := blocks.BlockHash(16)
		assert.False(t, ok)
	})

	t.Run("history is bounded", func(t *testing.T) {
		blocks.Advance(DefaultHistoryDepth + 10)
		current := uint64(blocks.LatestBlock().Number)

		_, ok := blocks.BlockHash(current - DefaultHistoryDepth)
		assert.True(t, ok)

		_, ok = blocks.BlockHash(current - DefaultHistoryDepth - 1)
		assert.False(t, ok)
	})

	t.Run("reorg changes retained hashes", func(t *testing.T) {
		current := uint64(blocks.LatestBlock().Number)
		before, ok := blocks.BlockHash(current)
		require.True(t, ok)

		blocks.Reorg([]byte("fork"))

		after, ok := blocks.BlockHash(current)
		require.True(t, ok)
		assert.NotEqual(t, before, after)
	})
}

func TestGasMeter(t *testing.T) {
	meter := NewGasMeter(1_000)

	assert.Equal(t, uint64(1_000), meter.Remaining())
	assert.Equal(t, uint64(0), meter.Used())

	assert.True(t, meter.Spend(400))
	assert.Equal(t, uint64(600), meter.Remaining())
	assert.Equal(t, uint64(400), meter.Used())

	// an overdraw leaves the meter untouched
	assert.False(t, meter.Spend(601))
	assert.Equal(t, uint64(600), meter.Remaining())

	assert.True(t, meter.Spend(600))
	assert.Equal(t, uint64(0), meter.Remaining())
	assert.False(t, meter.Spend(1))
}

func TestSimulatedToken(t *testing.T) {
	alice := common.BytesToAddress([]byte{0x01})
	bob := common.BytesToAddress([]byte{0x02})

	token := NewSimulatedToken(common.BytesToAddress([]byte{0xbb}))
	token.Mint(alice, big.NewInt(100))

	t.Run("transfer moves value", func(t *testing.T) {
		require.NoError(t, token.Transfer(alice, bob, big.NewInt(40)))
		assert.Equal(t, big.NewInt(60), token.BalanceOf(alice))
		assert.Equal(t, big.NewInt(40), token.BalanceOf(bob))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		err := token.Transfer(alice, bob, big.NewInt(1_000))
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, big.NewInt(60), token.BalanceOf(alice))
	})

	t.Run("negative amount", func(t *testing.T) {
		err := token.Transfer(alice, bob, big.NewInt(-1))
		assert.ErrorIs(t, err, ErrTransferFailed)
	})

	t.Run("unknown sender", func(t *testing.T) {
		err := token.Transfer(common.BytesToAddress([]byte{0x99}), bob, big.NewInt(1))
		assert.ErrorIs(t, err, ErrTransferFailed)
	})
}

func TestSimulatedTarget(t *testing.T) {
	t.Run("check returns perform data when needed", func(t *testing.T) {
		target := &SimulatedTarget{CheckNeeded: true, CheckGasUsed: 10_000, PerformData: []byte("pd")}

		needed, data, gasUsed, err := target.CheckUpkeep([]byte("check"), 100_000)
		require.NoError(t, err)
		assert.True(t, needed)
		assert.Equal(t, []byte("pd"), data)
		assert.Equal(t, uint64(10_000), gasUsed)
	})

	t.Run("check echoes check data without explicit payload", func(t *testing.T) {
		target := &SimulatedTarget{CheckNeeded: true}

		needed, data, _, err := target.CheckUpkeep([]byte("check"), 100_000)
		require.NoError(t, err)
		assert.True(t, needed)
		assert.Equal(t, []byte("check"), data)
	})

	t.Run("check revert", func(t *testing.T) {
		target := &SimulatedTarget{CheckReverts: true}

		_, _, _, err := target.CheckUpkeep(nil, 100_000)
		assert.Error(t, err)
	})

	t.Run("check out of gas", func(t *testing.T) {
		target := &SimulatedTarget{CheckNeeded: true, CheckGasUsed: 200_000}

		_, _, gasUsed, err := target.CheckUpkeep(nil, 100_000)
		assert.Error(t, err)
		assert.Equal(t, uint64(100_000), gasUsed)
	})

	t.Run("perform counts successes only", func(t *testing.T) {
		target := &SimulatedTarget{PerformGasUsed: 50_000}

		success, gasUsed := target.PerformUpkeep(nil, 100_000)
		assert.True(t, success)
		assert.Equal(t, uint64(50_000), gasUsed)

		target.PerformFails = true
		success, _ = target.PerformUpkeep(nil, 100_000)
		assert.False(t, success)

		assert.Equal(t, 1, target.PerformCount())
	})

	t.Run("perform exhausting its limit fails at the limit", func(t *testing.T) {
		target := &SimulatedTarget{PerformGasUsed: 200_000}

		success, gasUsed := target.PerformUpkeep(nil, 100_000)
		assert.False(t, success)
		assert.Equal(t, uint64(100_000), gasUsed)
	})
}

func TestSimulatedFeeds(t *testing.T) {
	feeds := NewSimulatedFeeds()

	_, _, err := feeds.ReadFeed(FastGasFeed)
	assert.Error(t, err)

	updatedAt := time.Now()
	feeds.SetAnswer(FastGasFeed, big.NewInt(42), updatedAt)

	answer, at, err := feeds.ReadFeed(FastGasFeed)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), answer)
	assert.Equal(t, updatedAt, at)
}
