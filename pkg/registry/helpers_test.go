package registry

import (
	"crypto/rand"
	"io"
	"log"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/config"
	"github.com/smartcontractkit/automation-registry/pkg/encoding"
	"github.com/smartcontractkit/automation-registry/pkg/registry/keys"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

var (
	testOwner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testRegistry = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testAdmin    = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	testPayee    = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	oneLink = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type harness struct {
	reg     *Registry
	blocks  *chain.SimulatedChain
	feeds   *chain.SimulatedFeeds
	token   *chain.SimulatedToken
	targets *chain.SimulatedTargetRegistry
	sink    *types.EventBuffer

	keyrings     []*keys.EvmKeyring
	transmitters []common.Address
	cfg          config.OnchainConfig
}

func testOnchainConfig() config.OnchainConfig {
	return config.OnchainConfig{
		PaymentPremiumPPB:    250_000_000,
		FlatFeeMicroLink:     0,
		CheckGasLimit:        5_000_000,
		StalenessSeconds:     big.NewInt(90_000),
		GasCeilingMultiplier: 3,
		MinUpkeepSpend:       big.NewInt(0),
		MaxPerformGas:        5_000_000,
		MaxCheckDataSize:     1_000,
		MaxPerformDataSize:   1_000,
		FallbackGasPrice:     big.NewInt(200_000_000_000),
		FallbackLinkPrice:    big.NewInt(2_000_000_000_000_000_000),
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testOnchainConfig())
}

func newHarnessWithConfig(t *testing.T, cfg config.OnchainConfig) *harness {
	t.Helper()

	h := &harness{
		blocks:  chain.NewSimulatedChain(1, []byte("test-salt")),
		feeds:   chain.NewSimulatedFeeds(),
		token:   chain.NewSimulatedToken(testToken),
		targets: chain.NewSimulatedTargetRegistry(),
		sink:    &types.EventBuffer{},
		cfg:     cfg,
	}

	h.feeds.SetAnswer(chain.FastGasFeed, big.NewInt(1_000_000_000), time.Now())
	h.feeds.SetAnswer(chain.LinkNativeFeed, big.NewInt(2_000_000_000_000_000_000), time.Now())

	h.reg = NewRegistry(testRegistry, testOwner, Deps{
		Blocks:  h.blocks,
		Feeds:   h.feeds,
		Token:   h.token,
		Targets: h.targets,
		Sink:    h.sink,
		Logger:  log.New(io.Discard, "", 0),
	})

	for i := 0; i < 4; i++ {
		keyring, err := keys.NewEvmKeyring(rand.Reader)
		require.NoError(t, err)

		h.keyrings = append(h.keyrings, keyring)
		h.transmitters = append(h.transmitters, common.BytesToAddress([]byte{0x77, byte(i + 1)}))
	}

	h.setConfig(t, cfg)
	return h
}

func (h *harness) signers() []common.Address {
	out := make([]common.Address, len(h.keyrings))
	for i, keyring := range h.keyrings {
		out[i] = keyring.Address()
	}
	return out
}

func (h *harness) setConfig(t *testing.T, cfg config.OnchainConfig) {
	t.Helper()

	encoded, err := cfg.Encode()
	require.NoError(t, err)
	require.NoError(t, h.reg.SetConfig(testOwner, h.signers(), h.transmitters, 1, encoded, 2, nil))

	h.cfg = cfg
}

// registerUpkeep creates a funded upkeep backed by a fresh target that
// reports eligible by default.
func (h *harness) registerUpkeep(t *testing.T, fund *big.Int) (*big.Int, *chain.SimulatedTarget) {
	t.Helper()

	target := &chain.SimulatedTarget{
		CheckNeeded:    true,
		CheckGasUsed:   30_000,
		PerformGasUsed: 100_000,
		PerformData:    []byte("perform"),
	}
	address := common.BytesToAddress([]byte{0x55, byte(h.reg.GetState().NextID)})
	h.targets.Register(address, target)

	id, err := h.reg.RegisterUpkeep(testOwner, address, 250_000, testAdmin, false, []byte("check"), nil)
	require.NoError(t, err)

	if fund != nil && fund.Sign() > 0 {
		h.token.Mint(testAdmin, fund)
		require.NoError(t, h.reg.AddFunds(testAdmin, id, fund))
	}

	return id, target
}

// buildReport assembles a report for the given ids at the current block.
func (h *harness) buildReport(t *testing.T, ids ...*big.Int) (encoding.Report, []byte) {
	t.Helper()

	latest := h.blocks.LatestBlock()
	hash, ok := h.blocks.BlockHash(uint64(latest.Number))
	require.True(t, ok)

	report := encoding.Report{
		FastGasWei: big.NewInt(1_000_000_000),
		LinkNative: big.NewInt(2_000_000_000_000_000_000),
	}
	for _, id := range ids {
		report.UpkeepIDs = append(report.UpkeepIDs, id)
		report.Performs = append(report.Performs, encoding.PerformData{
			CheckBlockNumber: uint32(latest.Number),
			CheckBlockhash:   hash,
			PerformData:      []byte("perform"),
		})
	}

	raw, err := encoding.EncodeReport(report)
	require.NoError(t, err)

	return report, raw
}

func (h *harness) reportContext() ocrtypes.ReportContext {
	_, digest := h.reg.ConfigDetails()
	return ocrtypes.ReportContext{
		ReportTimestamp: ocrtypes.ReportTimestamp{
			ConfigDigest: digest,
			Epoch:        5,
			Round:        1,
		},
	}
}

// sign produces f+1 signatures from the first quorum of keyrings.
func (h *harness) sign(t *testing.T, reportCtx ocrtypes.ReportContext, raw []byte) [][]byte {
	t.Helper()

	signatures := make([][]byte, 0, 2)
	for _, keyring := range h.keyrings[:2] {
		signature, err := keyring.Sign(reportCtx, raw)
		require.NoError(t, err)
		signatures = append(signatures, signature)
	}

	return signatures
}

// transmit runs the full pipeline with a generous call budget.
func (h *harness) transmit(t *testing.T, ids ...*big.Int) error {
	t.Helper()

	_, raw := h.buildReport(t, ids...)
	reportCtx := h.reportContext()

	return h.reg.Transmit(h.transmitters[0], reportCtx, raw, h.sign(t, reportCtx, raw), chain.NewGasMeter(100_000_000))
}

// performedEvents filters the sink for perform events.
func (h *harness) performedEvents() []types.UpkeepPerformedEvent {
	var out []types.UpkeepPerformedEvent
	for _, event := range h.sink.Events() {
		if performed, ok := event.(types.UpkeepPerformedEvent); ok {
			out = append(out, performed)
		}
	}
	return out
}

func (h *harness) skippedEvents() []types.UpkeepSkippedEvent {
	var out []types.UpkeepSkippedEvent
	for _, event := range h.sink.Events() {
		if skipped, ok := event.(types.UpkeepSkippedEvent); ok {
			out = append(out, skipped)
		}
	}
	return out
}
