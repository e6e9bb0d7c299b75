package registry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/encoding"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

func TestTransmit_PerformsAndSettles(t *testing.T) {
	h := newHarness(t)
	id, target := h.registerUpkeep(t, oneLink)

	require.NoError(t, h.transmit(t, id))

	t.Run("target executed once", func(t *testing.T) {
		assert.Equal(t, 1, target.PerformCount())
	})

	t.Run("perform cursor advanced", func(t *testing.T) {
		up, err := h.reg.GetUpkeep(id)
		require.NoError(t, err)
		assert.Equal(t, uint32(h.blocks.LatestBlock().Number), up.LastPerformBlockNumber)
	})

	t.Run("payment moved from upkeep to transmitter", func(t *testing.T) {
		up, err := h.reg.GetUpkeep(id)
		require.NoError(t, err)
		assert.True(t, up.Balance.Cmp(oneLink) < 0)
		assert.Equal(t, new(big.Int).Sub(oneLink, up.Balance), up.AmountSpent)

		transmitter, err := h.reg.GetTransmitterInfo(h.transmitters[0])
		require.NoError(t, err)
		assert.Equal(t, up.AmountSpent, transmitter.Balance)
	})

	t.Run("perform event emitted", func(t *testing.T) {
		performed := h.performedEvents()
		require.Len(t, performed, 1)
		assert.True(t, performed[0].Success)
		assert.Equal(t, uint64(100_000), performed[0].GasUsed)
		assert.Equal(t, h.transmitters[0], performed[0].Transmitter)
	})

	t.Run("epoch high water mark updated", func(t *testing.T) {
		assert.Equal(t, uint32(5), h.reg.LatestEpoch())
	})

	t.Run("replay rejects as stale", func(t *testing.T) {
		err := h.transmit(t, id)
		assert.ErrorIs(t, err, ErrStaleReport)
		assert.Equal(t, 1, target.PerformCount())
	})
}

func TestTransmit_WholeCallRejections(t *testing.T) {
	h := newHarness(t)
	id, _ := h.registerUpkeep(t, oneLink)

	_, raw := h.buildReport(t, id)
	reportCtx := h.reportContext()
	signatures := h.sign(t, reportCtx, raw)

	t.Run("paused registry", func(t *testing.T) {
		require.NoError(t, h.reg.PauseRegistry(testOwner))
		defer func() { require.NoError(t, h.reg.UnpauseRegistry(testOwner)) }()

		err := h.reg.Transmit(h.transmitters[0], reportCtx, raw, signatures, nil)
		assert.ErrorIs(t, err, ErrRegistryPaused)
	})

	t.Run("unknown transmitter", func(t *testing.T) {
		err := h.reg.Transmit(testAdmin, reportCtx, raw, signatures, nil)
		assert.ErrorIs(t, err, ErrOnlyActiveTransmitters)
	})

	t.Run("undecodable report", func(t *testing.T) {
		err := h.reg.Transmit(h.transmitters[0], reportCtx, []byte("garbage"), signatures, nil)
		assert.ErrorIs(t, err, encoding.ErrMalformedReport)
	})

	t.Run("superseded config digest", func(t *testing.T) {
		staleCtx := reportCtx
		h.setConfig(t, h.cfg)

		err := h.reg.Transmit(h.transmitters[0], staleCtx, raw, h.sign(t, staleCtx, raw), nil)
		assert.ErrorIs(t, err, ErrConfigDigestMismatch)
	})

	t.Run("wrong signature count", func(t *testing.T) {
		freshCtx := h.reportContext()
		short := h.sign(t, freshCtx, raw)[:1]

		err := h.reg.Transmit(h.transmitters[0], freshCtx, raw, short, nil)
		assert.ErrorIs(t, err, ErrIncorrectNumberOfSignatures)
	})

	t.Run("no mutation happened", func(t *testing.T) {
		up, err := h.reg.GetUpkeep(id)
		require.NoError(t, err)
		assert.Equal(t, oneLink, up.Balance)
		assert.Equal(t, uint32(0), up.LastPerformBlockNumber)
	})
}

func TestTransmit_SkipsKeepSiblingsAlive(t *testing.T) {
	h := newHarness(t)

	first, firstTarget := h.registerUpkeep(t, oneLink)
	paused, _ := h.registerUpkeep(t, oneLink)
	third, thirdTarget := h.registerUpkeep(t, oneLink)

	require.NoError(t, h.reg.PauseUpkeep(testAdmin, paused))

	require.NoError(t, h.transmit(t, first, paused, third))

	t.Run("live siblings performed", func(t *testing.T) {
		assert.Equal(t, 1, firstTarget.PerformCount())
		assert.Equal(t, 1, thirdTarget.PerformCount())
	})

	t.Run("paused item skipped without touching its ledger entry", func(t *testing.T) {
		up, err := h.reg.GetUpkeep(paused)
		require.NoError(t, err)
		assert.Equal(t, oneLink, up.Balance)
		assert.Zero(t, up.AmountSpent.Sign())
	})

	t.Run("skip event names the reason", func(t *testing.T) {
		skipped := h.skippedEvents()
		require.Len(t, skipped, 1)
		assert.Equal(t, paused, skipped[0].UpkeepID)
		assert.Equal(t, types.PausedReportEvent, skipped[0].Reason)
	})
}

func TestTransmit_SkipReasons(t *testing.T) {
	t.Run("unknown id screens as cancelled", func(t *testing.T) {
		h := newHarness(t)
		id, _ := h.registerUpkeep(t, oneLink)

		require.NoError(t, h.transmit(t, id, big.NewInt(9_999)))

		skipped := h.skippedEvents()
		require.Len(t, skipped, 1)
		assert.Equal(t, types.CancelledReportEvent, skipped[0].Reason)
	})

	t.Run("underfunded upkeep is skipped", func(t *testing.T) {
		h := newHarness(t)
		id, target := h.registerUpkeep(t, big.NewInt(100))

		err := h.transmit(t, id)
		assert.ErrorIs(t, err, ErrStaleReport)
		assert.Zero(t, target.PerformCount())

		skipped := h.skippedEvents()
		require.Len(t, skipped, 1)
		assert.Equal(t, types.InsufficientFundsReportEvent, skipped[0].Reason)
	})

	t.Run("reorged check block is skipped", func(t *testing.T) {
		h := newHarness(t)
		id, _ := h.registerUpkeep(t, oneLink)

		_, raw := h.buildReport(t, id)
		reportCtx := h.reportContext()
		signatures := h.sign(t, reportCtx, raw)

		h.blocks.Reorg([]byte("fork"))

		err := h.reg.Transmit(h.transmitters[0], reportCtx, raw, signatures, nil)
		assert.ErrorIs(t, err, ErrStaleReport)

		skipped := h.skippedEvents()
		require.Len(t, skipped, 1)
		assert.Equal(t, types.ReorgReportEvent, skipped[0].Reason)
	})

	t.Run("batch of only unknown ids rejects as stale", func(t *testing.T) {
		h := newHarness(t)
		h.registerUpkeep(t, oneLink)

		err := h.transmit(t, big.NewInt(9_998), big.NewInt(9_999))
		assert.ErrorIs(t, err, ErrStaleReport)
	})
}

func TestTransmit_GasBudget(t *testing.T) {
	h := newHarness(t)
	id, target := h.registerUpkeep(t, oneLink)

	_, raw := h.buildReport(t, id)
	reportCtx := h.reportContext()
	signatures := h.sign(t, reportCtx, raw)

	t.Run("whole batch preflight aborts before any mutation", func(t *testing.T) {
		err := h.reg.Transmit(h.transmitters[0], reportCtx, raw, signatures, chain.NewGasMeter(1_000))
		assert.ErrorIs(t, err, ErrInsufficientGasForExecution)

		assert.Zero(t, target.PerformCount())
		up, err := h.reg.GetUpkeep(id)
		require.NoError(t, err)
		assert.Equal(t, oneLink, up.Balance)
	})

	t.Run("sufficient budget is spent", func(t *testing.T) {
		meter := chain.NewGasMeter(1_000_000)
		require.NoError(t, h.reg.Transmit(h.transmitters[0], reportCtx, raw, signatures, meter))

		// perform gas plus the fixed item overhead
		assert.Equal(t, uint64(100_000)+Overhead(2, len([]byte("perform"))), meter.Used())
	})
}

func TestTransmit_SkipSigVerification(t *testing.T) {
	h := newHarness(t)

	target := &chain.SimulatedTarget{CheckNeeded: true, PerformGasUsed: 50_000, PerformData: []byte("pd")}
	address := common.BytesToAddress([]byte{0x56, 0x01})
	h.targets.Register(address, target)

	unsigned, err := h.reg.RegisterUpkeep(testOwner, address, 250_000, testAdmin, true, nil, nil)
	require.NoError(t, err)
	h.token.Mint(testAdmin, oneLink)
	require.NoError(t, h.reg.AddFunds(testAdmin, unsigned, oneLink))

	t.Run("no signatures required", func(t *testing.T) {
		_, raw := h.buildReport(t, unsigned)
		require.NoError(t, h.reg.Transmit(h.transmitters[0], h.reportContext(), raw, nil, nil))
		assert.Equal(t, 1, target.PerformCount())
	})

	t.Run("mixing with verified upkeeps rejects the batch", func(t *testing.T) {
		verified, _ := h.registerUpkeep(t, oneLink)

		h.blocks.Advance(1)
		_, raw := h.buildReport(t, unsigned, verified)
		reportCtx := h.reportContext()

		err := h.reg.Transmit(h.transmitters[0], reportCtx, raw, h.sign(t, reportCtx, raw), nil)
		assert.ErrorIs(t, err, encoding.ErrInvalidReport)
	})
}

func TestTransmit_FailedPerformStillBills(t *testing.T) {
	h := newHarness(t)
	id, target := h.registerUpkeep(t, oneLink)
	target.PerformFails = true

	require.NoError(t, h.transmit(t, id))

	up, err := h.reg.GetUpkeep(id)
	require.NoError(t, err)

	t.Run("payment charged", func(t *testing.T) {
		assert.True(t, up.AmountSpent.Sign() > 0)
	})

	t.Run("cursor not advanced", func(t *testing.T) {
		assert.Equal(t, uint32(0), up.LastPerformBlockNumber)
	})

	t.Run("event carries the failure", func(t *testing.T) {
		performed := h.performedEvents()
		require.Len(t, performed, 1)
		assert.False(t, performed[0].Success)
	})
}

func TestTransmit_BalanceConservation(t *testing.T) {
	h := newHarness(t)

	var ids []*big.Int
	for i := 0; i < 3; i++ {
		id, _ := h.registerUpkeep(t, oneLink)
		ids = append(ids, id)
	}

	require.NoError(t, h.transmit(t, ids...))

	held := new(big.Int)
	for _, id := range ids {
		up, err := h.reg.GetUpkeep(id)
		require.NoError(t, err)
		held.Add(held, up.Balance)
	}
	for _, transmitter := range h.transmitters {
		record, err := h.reg.GetTransmitterInfo(transmitter)
		require.NoError(t, err)
		held.Add(held, record.Balance)
	}

	state := h.reg.GetState()
	held.Add(held, state.OwnerBalance)

	assert.Equal(t, state.ExpectedBalance, held)
	assert.Equal(t, held, h.token.BalanceOf(h.reg.Address()))
}

func TestTransmit_CursorMovesToTransmitBlock(t *testing.T) {
	h := newHarness(t)
	id, target := h.registerUpkeep(t, oneLink)

	// checked at block 1, landed at block 6
	_, raw := h.buildReport(t, id)
	reportCtx := h.reportContext()
	signatures := h.sign(t, reportCtx, raw)

	h.blocks.Advance(5)
	require.NoError(t, h.reg.Transmit(h.transmitters[0], reportCtx, raw, signatures, chain.NewGasMeter(100_000_000)))

	t.Run("cursor records the landing block", func(t *testing.T) {
		up, err := h.reg.GetUpkeep(id)
		require.NoError(t, err)
		assert.Equal(t, uint32(6), up.LastPerformBlockNumber)
	})

	t.Run("report checked before the perform is stale", func(t *testing.T) {
		hash, ok := h.blocks.BlockHash(2)
		require.True(t, ok)

		stale := encoding.Report{
			FastGasWei: big.NewInt(1_000_000_000),
			LinkNative: big.NewInt(2_000_000_000_000_000_000),
			UpkeepIDs:  []*big.Int{id},
			Performs: []encoding.PerformData{{
				CheckBlockNumber: 2,
				CheckBlockhash:   hash,
				PerformData:      []byte("perform"),
			}},
		}
		rawStale, err := encoding.EncodeReport(stale)
		require.NoError(t, err)
		staleSigs := h.sign(t, reportCtx, rawStale)

		err = h.reg.Transmit(h.transmitters[0], reportCtx, rawStale, staleSigs, chain.NewGasMeter(100_000_000))
		assert.ErrorIs(t, err, ErrStaleReport)
		assert.Equal(t, 1, target.PerformCount())
	})
}

func TestPerformItem_MeterOverrunFailsItem(t *testing.T) {
	h := newHarness(t)
	id, _ := h.registerUpkeep(t, oneLink)

	up, ok := h.reg.ledger.upkeep(id)
	require.True(t, ok)

	cfg := *h.reg.config
	prices := h.reg.payments.Prices(cfg.Onchain)
	item := eligibleItem{
		upkeep: up,
		perform: encoding.PerformData{
			CheckBlockNumber: 1,
			PerformData:      []byte("perform"),
		},
	}

	meter := chain.NewGasMeter(10)
	h.reg.performItem(h.transmitters[0], cfg, prices, prices.GasWei, item, 2, 1, meter)

	performed := h.performedEvents()
	require.Len(t, performed, 1)
	assert.False(t, performed[0].Success)
	assert.Zero(t, meter.Used())
	assert.Zero(t, up.LastPerformBlockNumber)
}
