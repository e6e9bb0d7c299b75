package registry

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ocr2keepers "github.com/smartcontractkit/chainlink-common/pkg/types/automation"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// CheckUpkeep runs the read-only eligibility simulation for one upkeep.
// Only the simulation caller (the zero address) may invoke it; nodes
// run it off the record to decide what to report, and it never mutates
// the ledger. An ineligible upkeep comes back with Eligible false and
// the reason set rather than an error; errors are reserved for calls
// that could not be evaluated at all.
func (r *Registry) CheckUpkeep(caller common.Address, id *big.Int) (ocr2keepers.CheckResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.authorize(OpCheckUpkeep, caller, nil); err != nil {
		return ocr2keepers.CheckResult{}, err
	}

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ocr2keepers.CheckResult{}, ErrUpkeepNotFound
	}

	cfg := *r.config
	latest := r.blocks.LatestBlock()
	uid := ocr2keepers.UpkeepIdentifier{}
	uid.FromBigInt(id)
	trigger := ocr2keepers.NewTrigger(latest.Number, latest.Hash)

	result := ocr2keepers.CheckResult{
		UpkeepID:   uid,
		Trigger:    trigger,
		WorkID:     upkeepWorkID(uid),
		FastGasWei: new(big.Int),
		LinkNative: new(big.Int),
	}

	if r.paused {
		result.IneligibilityReason = uint8(types.CheckFailureRegistryPaused)
		return result, nil
	}
	if up.Cancelled(uint64(latest.Number)) {
		result.IneligibilityReason = uint8(types.CheckFailureUpkeepCancelled)
		return result, nil
	}
	if up.Paused {
		result.IneligibilityReason = uint8(types.CheckFailureUpkeepPaused)
		return result, nil
	}

	target, ok := r.targets.Target(up.Target)
	if !ok {
		return ocr2keepers.CheckResult{}, ErrNotAContract
	}

	needed, performData, _, err := target.CheckUpkeep(up.CheckData, uint64(cfg.Onchain.CheckGasLimit))
	if err != nil {
		result.IneligibilityReason = uint8(types.CheckFailureTargetCheckReverted)
		return result, nil
	}
	if !needed {
		result.IneligibilityReason = uint8(types.CheckFailureUpkeepNotNeeded)
		return result, nil
	}
	if len(performData) > int(cfg.Onchain.MaxPerformDataSize) {
		result.IneligibilityReason = uint8(types.CheckFailurePerformDataExceedsLimit)
		return result, nil
	}

	prices := r.payments.Prices(cfg.Onchain)
	result.FastGasWei = prices.GasWei
	result.LinkNative = prices.LinkEth

	if up.Balance.Cmp(r.payments.MaxPayment(cfg.Onchain, cfg.F, up.ExecuteGas)) < 0 {
		result.IneligibilityReason = uint8(types.CheckFailureInsufficientBalance)
		return result, nil
	}

	result.Eligible = true
	result.GasAllocated = uint64(up.ExecuteGas)
	result.PerformData = performData
	return result, nil
}

// upkeepWorkID derives the dedup key for one unit of work. Conditional
// upkeeps carry no trigger extension, so the id alone determines it.
func upkeepWorkID(uid ocr2keepers.UpkeepIdentifier) string {
	return hex.EncodeToString(crypto.Keccak256(uid[:]))
}
