package registry

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/config"
	"github.com/smartcontractkit/automation-registry/pkg/encoding"
	"github.com/smartcontractkit/automation-registry/pkg/prommetrics"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

type eligibleItem struct {
	upkeep  *types.Upkeep
	perform encoding.PerformData
}

// Transmit is the attestation entry point. The caller must be an active
// transmitter; the report must pass quorum verification against the
// latest configuration unless every upkeep in the batch opted out of
// signature checks. Items are screened individually and skipped items
// never touch the ledger, but a report with no surviving items rejects
// as stale so a fully consumed report cannot be replayed.
//
// meter is the remaining budget of the enclosing call. When the budget
// cannot cover every surviving item the whole call aborts before any
// ledger mutation; a nil meter means an unbounded budget.
func (r *Registry) Transmit(
	caller common.Address,
	reportCtx ocrtypes.ReportContext,
	rawReport []byte,
	signatures [][]byte,
	meter *chain.GasMeter,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.paused {
		return r.rejectTransmit("registry_paused", ErrRegistryPaused)
	}

	transmitter, ok := r.ledger.transmitterInfo(caller)
	if !ok || !transmitter.Active {
		return r.rejectTransmit("inactive_transmitter", ErrOnlyActiveTransmitters)
	}

	report, err := encoding.DecodeReport(rawReport)
	if err != nil {
		return r.rejectTransmit("malformed_report", err)
	}

	cfg := *r.config

	skipQuorum, err := r.batchQuorumMode(report)
	if err != nil {
		return r.rejectTransmit("mixed_batch", err)
	}

	numSignatures := len(signatures)
	if skipQuorum {
		numSignatures = 0
	} else {
		err := r.verifier.Verify(ocrtypes.ConfigDigest(cfg.Digest), cfg.F, reportCtx, rawReport, signatures)
		if err != nil {
			return r.rejectTransmit("quorum", err)
		}
	}

	if reportCtx.Epoch > r.latestEpoch {
		r.latestEpoch = reportCtx.Epoch
	}

	// prices are read once so every item in the batch bills against
	// the same view of the feeds
	prices := r.payments.Prices(cfg.Onchain)
	ceiling := new(big.Int).Mul(prices.GasWei, big.NewInt(int64(cfg.Onchain.GasCeilingMultiplier)))
	maxOverhead := Overhead(int(cfg.F)+1, int(cfg.Onchain.MaxPerformDataSize))
	current := uint64(r.blocks.LatestBlock().Number)

	eligible := make([]eligibleItem, 0, len(report.UpkeepIDs))
	for i, id := range report.UpkeepIDs {
		up, _ := r.ledger.upkeep(id)

		var minBalance *big.Int
		if up != nil {
			minBalance = r.payments.bill(cfg.Onchain, prices, ceiling, uint64(up.ExecuteGas), maxOverhead).Total
		}

		reason, ok := r.guard.Screen(up, report.Performs[i], current, minBalance)
		if !ok {
			r.emitSkip(id, reason)
			continue
		}

		eligible = append(eligible, eligibleItem{upkeep: up, perform: report.Performs[i]})
	}

	if len(eligible) == 0 {
		return r.rejectTransmit("stale_report", ErrStaleReport)
	}

	// the whole batch must fit the remaining call budget before any
	// item executes; metering half a batch would corrupt accounting
	if meter != nil {
		var required uint64
		for _, item := range eligible {
			required += uint64(item.upkeep.ExecuteGas) + Overhead(numSignatures, len(item.perform.PerformData))
		}
		if required > meter.Remaining() {
			return r.rejectTransmit("gas_budget", ErrInsufficientGasForExecution)
		}
	}

	for _, item := range eligible {
		r.performItem(caller, cfg, prices, report.FastGasWei, item, numSignatures, current, meter)
	}

	prommetrics.RegistryTransmitsAccepted.Inc()
	r.persistState()
	return nil
}

// batchQuorumMode reports whether signature verification is skipped for
// this batch. Skip-quorum upkeeps and regular upkeeps follow different
// authorization paths and may not share a report. Ids with no ledger
// record do not vote; they are screened out later.
func (r *Registry) batchQuorumMode(report encoding.Report) (bool, error) {
	var sawSkip, sawRegular bool

	for _, id := range report.UpkeepIDs {
		up, ok := r.ledger.upkeep(id)
		if !ok {
			continue
		}
		if up.SkipSigVerification {
			sawSkip = true
		} else {
			sawRegular = true
		}
	}

	if sawSkip && sawRegular {
		return false, encoding.ErrInvalidReport
	}

	return sawSkip, nil
}

func (r *Registry) performItem(
	caller common.Address,
	cfg config.Config,
	prices FeedPrices,
	reportedGasWei *big.Int,
	item eligibleItem,
	numSignatures int,
	current uint64,
	meter *chain.GasMeter,
) {
	up := item.upkeep
	overhead := Overhead(numSignatures, len(item.perform.PerformData))

	var success bool
	var gasUsed uint64
	if target, ok := r.targets.Target(up.Target); ok {
		success, gasUsed = target.PerformUpkeep(item.perform.PerformData, uint64(up.ExecuteGas))
	}

	// the preflight reserved the worst case for every item; an item
	// that still cannot cover its metered cost is recorded as failed
	if meter != nil && !meter.Spend(gasUsed+overhead) {
		success = false
	}

	breakdown := r.payments.Calculate(cfg.Onchain, prices, reportedGasWei, gasUsed, overhead)
	payment := r.ledger.debitUpkeep(up, breakdown.Total)
	r.ledger.creditTransmitter(caller, payment)

	if success {
		// the cursor moves to the height the perform landed at, not the
		// height the report was checked at, so every report checked
		// before this perform is stale from here on
		up.LastPerformBlockNumber = uint32(current)
		r.ledger.persistUpkeep(up)
	}

	juels, _ := new(big.Float).SetInt(payment).Float64()
	prommetrics.RegistryPaymentJuels.Add(juels)
	prommetrics.RegistryUpkeepsPerformed.WithLabelValues(strconv.FormatBool(success)).Inc()

	r.sink.Emit(types.UpkeepPerformedEvent{
		UpkeepID:         new(big.Int).Set(up.ID),
		Success:          success,
		CheckBlockNumber: item.perform.CheckBlockNumber,
		GasUsed:          gasUsed,
		GasOverhead:      overhead,
		TotalPayment:     payment,
		Transmitter:      caller,
	})
}

func (r *Registry) rejectTransmit(reason string, err error) error {
	prommetrics.RegistryTransmitsRejected.WithLabelValues(reason).Inc()
	return err
}

// LatestEpoch returns the highest epoch seen across accepted reports.
func (r *Registry) LatestEpoch() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.latestEpoch
}
