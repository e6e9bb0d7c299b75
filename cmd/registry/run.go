package main

import (
	"crypto/rand"
	"io"
	"log"
	"math/big"
	"os"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/config"
	"github.com/smartcontractkit/automation-registry/pkg/encoding"
	"github.com/smartcontractkit/automation-registry/pkg/registry"
	"github.com/smartcontractkit/automation-registry/pkg/store"
	"github.com/smartcontractkit/automation-registry/pkg/telemetry"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

const offchainConfigVersion = 2

var (
	ownerAddress    = common.HexToAddress("0x0000000000000000000000000000000000001001")
	tokenAddress    = common.HexToAddress("0x0000000000000000000000000000000000001002")
	registryAddress = common.HexToAddress("0x0000000000000000000000000000000000001003")
)

// simUpkeep ties a generated upkeep to its registered id and target.
type simUpkeep struct {
	gen    *SimulatedUpkeep
	id     *big.Int
	target *chain.SimulatedTarget
}

type performStat struct {
	Block   uint64
	Success bool
	GasUsed uint64
	Payment *big.Int
}

type runResults struct {
	Duration        uint64
	TransmitsOK     int
	TransmitsFailed int
	Performs        []performStat
	PerformsByBlock map[uint64]int
	SkipsByReason   map[string]int
}

func runSimulation(plan SimulationPlan, base *log.Logger, dbPath, outDir string, callGasLimit uint64) (*runResults, error) {
	lggr := telemetry.WrapLogger(base, "simulator")

	collector, err := openCollector(outDir)
	if err != nil {
		return nil, err
	}
	defer collector.Close()
	tlggr := telemetry.NewTelemetryLogger(lggr, collector)

	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	blocks := chain.NewSimulatedChain(plan.Blocks.Genesis, salt)
	feeds := chain.NewSimulatedFeeds()
	feeds.SetAnswer(chain.FastGasFeed, plan.Feeds.FastGasWei.Int, time.Now())
	feeds.SetAnswer(chain.LinkNativeFeed, plan.Feeds.LinkEth.Int, time.Now())

	token := chain.NewSimulatedToken(tokenAddress)
	targets := chain.NewSimulatedTargetRegistry()
	sink := &types.EventBuffer{}

	var durable registry.Store
	if dbPath != "" {
		bs, err := store.New(dbPath)
		if err != nil {
			return nil, err
		}
		defer bs.Close()
		durable = bs
	}

	reg := registry.NewRegistry(registryAddress, ownerAddress, registry.Deps{
		Blocks:  blocks,
		Feeds:   feeds,
		Token:   token,
		Targets: targets,
		Store:   durable,
		Sink:    sink,
		Logger:  base,
	})

	nodes, err := generateNodes(plan.Nodes)
	if err != nil {
		return nil, err
	}

	if err := configureRegistry(reg, plan, nodes); err != nil {
		return nil, err
	}

	upkeeps, err := registerUpkeeps(reg, token, targets, plan)
	if err != nil {
		return nil, err
	}

	lggr.Printf("running %d blocks with %d upkeeps and %d nodes", plan.Blocks.Duration, len(upkeeps), len(nodes))

	results := &runResults{
		Duration:        plan.Blocks.Duration,
		PerformsByBlock: make(map[uint64]int),
		SkipsByReason:   make(map[string]int),
	}

	for i := uint64(0); i < plan.Blocks.Duration; i++ {
		blocks.Advance(1)
		current := uint64(blocks.LatestBlock().Number)

		for _, up := range upkeeps {
			up.target.CheckNeeded = up.gen.eligibleIn(current)
		}

		batches := buildBatches(reg, blocks, plan, upkeeps)
		for _, batch := range batches {
			transmitBatch(reg, nodes, plan, batch, current, callGasLimit, results, lggr)
		}

		collectEvents(sink, tlggr, current, results)
	}

	return results, nil
}

// openCollector creates the structured telemetry sink under the output
// directory.
func openCollector(outDir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(outDir, 0750); err != nil && !os.IsExist(err) {
		return nil, err
	}

	return os.OpenFile(path.Join(outDir, "upkeep_telemetry.log"), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func configureRegistry(reg *registry.Registry, plan SimulationPlan, nodes []*simNode) error {
	onchain := config.OnchainConfig{
		PaymentPremiumPPB:    plan.Fees.PremiumPPB,
		FlatFeeMicroLink:     plan.Fees.FlatFeeMicroLink,
		CheckGasLimit:        plan.Fees.CheckGasLimit,
		StalenessSeconds:     big.NewInt(plan.Fees.StalenessSeconds),
		GasCeilingMultiplier: plan.Fees.GasCeilingMultiplier,
		MinUpkeepSpend:       plan.Fees.MinUpkeepSpend.Int,
		MaxPerformGas:        plan.Fees.MaxPerformGas,
		MaxCheckDataSize:     plan.Fees.MaxCheckDataSize,
		MaxPerformDataSize:   plan.Fees.MaxPerformDataSize,
		FallbackGasPrice:     plan.Fees.FallbackGasPrice.Int,
		FallbackLinkPrice:    plan.Fees.FallbackLinkPrice.Int,
	}

	encoded, err := onchain.Encode()
	if err != nil {
		return err
	}

	err = reg.SetConfig(
		ownerAddress,
		signerAddresses(nodes),
		transmitterAddresses(nodes),
		plan.FaultTolerance,
		encoded,
		offchainConfigVersion,
		nil,
	)
	if err != nil {
		return err
	}

	// transmitters collect their own earnings in simulation
	return reg.SetPayees(ownerAddress, transmitterAddresses(nodes))
}

func registerUpkeeps(
	reg *registry.Registry,
	token *chain.SimulatedToken,
	targets *chain.SimulatedTargetRegistry,
	plan SimulationPlan,
) ([]*simUpkeep, error) {
	generated, err := GenerateAllUpkeeps(plan)
	if err != nil {
		return nil, err
	}

	upkeeps := make([]*simUpkeep, 0, len(generated))
	for _, gen := range generated {
		target := &chain.SimulatedTarget{
			PerformGasUsed: gen.PerformGas,
			CheckGasUsed:   30_000,
			PerformData:    gen.ID.Bytes(),
		}
		address := common.BigToAddress(new(big.Int).Add(gen.ID, big.NewInt(0x10000)))
		targets.Register(address, target)

		id, err := reg.RegisterUpkeep(ownerAddress, address, gen.ExecuteGas, ownerAddress, gen.SkipSigVerification, gen.ID.Bytes(), nil)
		if err != nil {
			return nil, err
		}

		if gen.Fund.Sign() > 0 {
			token.Mint(ownerAddress, gen.Fund)
			if err := reg.AddFunds(ownerAddress, id, gen.Fund); err != nil {
				return nil, err
			}
		}

		upkeeps = append(upkeeps, &simUpkeep{gen: gen, id: id, target: target})
	}

	return upkeeps, nil
}

// buildBatches runs the read-only check for every upkeep and groups the
// eligible ones into reports. Skip-quorum upkeeps travel in their own
// batch since a report may not mix authorization paths.
func buildBatches(
	reg *registry.Registry,
	blocks *chain.SimulatedChain,
	plan SimulationPlan,
	upkeeps []*simUpkeep,
) []encoding.Report {
	latest := blocks.LatestBlock()
	hash, _ := blocks.BlockHash(uint64(latest.Number))

	var verified, unverified encoding.Report
	for _, up := range upkeeps {
		result, err := reg.CheckUpkeep(common.Address{}, up.id)
		if err != nil || !result.Eligible {
			continue
		}

		perform := encoding.PerformData{
			CheckBlockNumber: uint32(latest.Number),
			CheckBlockhash:   hash,
			PerformData:      result.PerformData,
		}

		if up.gen.SkipSigVerification {
			unverified.UpkeepIDs = append(unverified.UpkeepIDs, up.id)
			unverified.Performs = append(unverified.Performs, perform)
		} else {
			verified.UpkeepIDs = append(verified.UpkeepIDs, up.id)
			verified.Performs = append(verified.Performs, perform)
		}
	}

	batches := make([]encoding.Report, 0, 2)
	for _, report := range []encoding.Report{verified, unverified} {
		if len(report.UpkeepIDs) == 0 {
			continue
		}

		report.FastGasWei = new(big.Int).Set(plan.Feeds.FastGasWei.Int)
		report.LinkNative = new(big.Int).Set(plan.Feeds.LinkEth.Int)
		batches = append(batches, report)
	}

	return batches
}

func transmitBatch(
	reg *registry.Registry,
	nodes []*simNode,
	plan SimulationPlan,
	report encoding.Report,
	block uint64,
	callGasLimit uint64,
	results *runResults,
	lggr *log.Logger,
) {
	raw, err := encoding.EncodeReport(report)
	if err != nil {
		lggr.Printf("report encoding failed at block %d: %s", block, err)
		results.TransmitsFailed++
		return
	}

	_, digest := reg.ConfigDetails()
	reportCtx := ocrtypes.ReportContext{
		ReportTimestamp: ocrtypes.ReportTimestamp{
			ConfigDigest: digest,
			Epoch:        uint32(block),
			Round:        1,
		},
	}

	quorum := int(plan.FaultTolerance) + 1
	signatures := make([][]byte, 0, quorum)
	for _, node := range nodes[:quorum] {
		signature, err := node.Keyring.Sign(reportCtx, raw)
		if err != nil {
			lggr.Printf("signing failed at block %d: %s", block, err)
			results.TransmitsFailed++
			return
		}
		signatures = append(signatures, signature)
	}

	transmitter := nodes[block%uint64(len(nodes))].Transmitter
	meter := chain.NewGasMeter(callGasLimit)

	if err := reg.Transmit(transmitter, reportCtx, raw, signatures, meter); err != nil {
		lggr.Printf("transmit rejected at block %d: %s", block, err)
		results.TransmitsFailed++
		return
	}

	results.TransmitsOK++
}

func collectEvents(sink *types.EventBuffer, tlggr *telemetry.Logger, block uint64, results *runResults) {
	for _, event := range sink.Drain() {
		switch e := event.(type) {
		case types.UpkeepPerformedEvent:
			results.Performs = append(results.Performs, performStat{
				Block:   block,
				Success: e.Success,
				GasUsed: e.GasUsed,
				Payment: e.TotalPayment,
			})
			results.PerformsByBlock[block]++

			outcome := "performed"
			if !e.Success {
				outcome = "perform_failed"
			}
			_ = tlggr.Collect(e.UpkeepID.String(), block, outcome, e.TotalPayment.String())
		case types.UpkeepSkippedEvent:
			results.SkipsByReason[e.Reason.String()]++
			_ = tlggr.Collect(e.UpkeepID.String(), block, e.Reason.String(), "")
		default:
		}
	}
}
