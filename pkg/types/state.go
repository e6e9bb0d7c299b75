package types

import "math/big"

// State is the registry-wide accounting snapshot exposed on the read
// surface and persisted between runs.
type State struct {
	Paused bool
	// OwnerBalance is the owner reserve accumulated from cancellation
	// shortfall fees and reconciliation surpluses.
	OwnerBalance *big.Int
	// ExpectedBalance is the sum of all upkeep balances, transmitter
	// balances and the owner reserve; used for cross-registry
	// reconciliation.
	ExpectedBalance *big.Int
	// NumUpkeeps is the live (non-deleted) upkeep count.
	NumUpkeeps uint64
	// NextID feeds the monotonic id counter. Never reset.
	NextID                  uint64
	ConfigCount             uint64
	LatestConfigBlockNumber uint64
	LatestConfigDigest      [32]byte
	LatestEpoch             uint32
}

// Clone returns a deep copy of the state snapshot.
func (s *State) Clone() *State {
	cp := *s
	cp.OwnerBalance = new(big.Int).Set(s.OwnerBalance)
	cp.ExpectedBalance = new(big.Int).Set(s.ExpectedBalance)
	return &cp
}
