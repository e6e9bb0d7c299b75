package chain

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SimulatedTarget is a configurable upkeep target. Eligibility, perform
// outcome and gas appetite are all settable so pipeline branches can be
// driven precisely from tests and simulation plans.
type SimulatedTarget struct {
	mu sync.Mutex

	// CheckNeeded controls the eligibility answer.
	CheckNeeded bool
	// CheckReverts makes the eligibility check fail outright.
	CheckReverts bool
	// PerformData is returned on an eligible check.
	PerformData []byte
	// CheckGasUsed and PerformGasUsed are the metered appetites.
	CheckGasUsed   uint64
	PerformGasUsed uint64
	// PerformFails forces success=false while still consuming gas.
	PerformFails bool

	performCount int
}

func (t *SimulatedTarget) CheckUpkeep(checkData []byte, gasLimit uint64) (bool, []byte, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.CheckReverts {
		return false, nil, t.CheckGasUsed, fmt.Errorf("target check reverted")
	}
	if t.CheckGasUsed > gasLimit {
		return false, nil, gasLimit, fmt.Errorf("check ran out of gas")
	}
	if !t.CheckNeeded {
		return false, nil, t.CheckGasUsed, nil
	}

	data := t.PerformData
	if data == nil {
		data = checkData
	}

	return true, append([]byte(nil), data...), t.CheckGasUsed, nil
}

func (t *SimulatedTarget) PerformUpkeep(performData []byte, gasLimit uint64) (bool, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// exhaustion at the target's own limit is the target's failure, not
	// the batch's
	if t.PerformGasUsed > gasLimit {
		return false, gasLimit
	}
	if t.PerformFails {
		return false, t.PerformGasUsed
	}

	t.performCount++
	return true, t.PerformGasUsed
}

// PerformCount returns how many successful performs ran.
func (t *SimulatedTarget) PerformCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.performCount
}

// SimulatedTargetRegistry resolves target handles for the simulated
// substrate.
type SimulatedTargetRegistry struct {
	mu      sync.RWMutex
	targets map[common.Address]Target
}

func NewSimulatedTargetRegistry() *SimulatedTargetRegistry {
	return &SimulatedTargetRegistry{targets: make(map[common.Address]Target)}
}

func (r *SimulatedTargetRegistry) Register(address common.Address, target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.targets[address] = target
}

func (r *SimulatedTargetRegistry) Target(address common.Address) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target, ok := r.targets[address]
	return target, ok
}
