package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// Operation names an externally callable registry operation for the
// authorization policy.
type Operation int

const (
	OpRegisterUpkeep Operation = iota
	OpCancelUpkeep
	OpPauseUpkeep
	OpUnpauseUpkeep
	OpUpdateCheckData
	OpSetUpkeepGasLimit
	OpSetUpkeepOffchainConfig
	OpTransferUpkeepAdmin
	OpAcceptUpkeepAdmin
	OpWithdrawFunds
	OpMigrateUpkeeps
	OpSetConfig
	OpSetPayees
	OpPauseRegistry
	OpUnpauseRegistry
	OpWithdrawOwnerFunds
	OpSetMigrationPermission
	OpCheckUpkeep
)

// authorize is the single policy point for caller-identity checks. It
// keeps the rejection taxonomy consistent across operations: every rule
// maps to exactly one sentinel error.
func (r *Registry) authorize(op Operation, caller common.Address, up *types.Upkeep) error {
	switch op {
	case OpSetConfig, OpSetPayees, OpPauseRegistry, OpUnpauseRegistry,
		OpWithdrawOwnerFunds, OpSetMigrationPermission:
		if caller != r.owner {
			return ErrOnlyCallableByOwner
		}

	case OpRegisterUpkeep:
		if caller != r.owner && caller != r.config.Onchain.Registrar {
			return ErrOnlyCallableByOwnerOrRegistrar
		}

	case OpCancelUpkeep:
		if caller != r.owner && (up == nil || caller != up.Admin) {
			return ErrOnlyCallableByOwnerOrAdmin
		}

	case OpPauseUpkeep, OpUnpauseUpkeep, OpUpdateCheckData, OpSetUpkeepGasLimit,
		OpSetUpkeepOffchainConfig, OpTransferUpkeepAdmin, OpWithdrawFunds, OpMigrateUpkeeps:
		if up == nil || caller != up.Admin {
			return ErrOnlyCallableByAdmin
		}

	case OpCheckUpkeep:
		if caller != (common.Address{}) {
			return ErrOnlySimulatedCaller
		}
	}

	return nil
}
