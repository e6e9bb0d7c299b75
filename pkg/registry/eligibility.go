package registry

import (
	"math/big"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/encoding"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// EligibilityGuard screens batch items before execution. A failing item
// is removed from the batch with a skip reason; it never aborts the
// call and never reaches the ledger.
type EligibilityGuard struct {
	blocks chain.BlockSource
}

func NewEligibilityGuard(blocks chain.BlockSource) *EligibilityGuard {
	return &EligibilityGuard{blocks: blocks}
}

// Screen decides one item. ok=false carries the skip reason. The
// registry-wide pause is checked by the caller before any item is
// screened, since that aborts the whole call rather than skipping.
func (g *EligibilityGuard) Screen(
	up *types.Upkeep,
	perform encoding.PerformData,
	currentBlock uint64,
	minBalance *big.Int,
) (types.TransmitEventType, bool) {
	if up == nil || up.Cancelled(currentBlock) {
		return types.CancelledReportEvent, false
	}

	if up.Paused {
		return types.PausedReportEvent, false
	}

	// replay protection: the check block must be newer than the last
	// successful perform
	if uint64(perform.CheckBlockNumber) <= uint64(up.LastPerformBlockNumber) {
		return types.StaleReportEvent, false
	}

	// a check block outside the retained history cannot be validated
	// against a hash, so it reads as stale rather than trusted blindly
	actual, ok := g.blocks.BlockHash(uint64(perform.CheckBlockNumber))
	if !ok {
		return types.StaleReportEvent, false
	}

	// hash mismatch means the chain reorganized between check time and
	// transmit time
	if actual != perform.CheckBlockhash {
		return types.ReorgReportEvent, false
	}

	if up.Balance.Cmp(minBalance) < 0 {
		return types.InsufficientFundsReportEvent, false
	}

	return types.PerformEvent, true
}
