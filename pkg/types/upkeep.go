package types

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UnlimitedValidBlock marks an upkeep that has not been cancelled. A
// cancellation moves MaxValidBlocknumber down to a concrete height; it
// never moves back up.
const UnlimitedValidBlock = uint64(math.MaxUint64)

// Upkeep is a single registered job. Balance, AmountSpent and
// LastPerformBlockNumber are only mutated through the ledger so the
// accounting invariants hold.
type Upkeep struct {
	// ID uniquely identifies the upkeep. IDs are assigned from a
	// monotonic counter and are never reused, even after deletion.
	ID *big.Int
	// Target is the handle of the action performed for this upkeep.
	Target common.Address
	// ExecuteGas is the resource ceiling given to the target on perform.
	ExecuteGas uint32
	// CheckData is passed to the target's eligibility check.
	CheckData []byte
	// Balance is the prepaid amount earmarked for this upkeep, in juels.
	Balance *big.Int
	// Admin may fund, pause, cancel and reconfigure the upkeep.
	Admin common.Address
	// MaxValidBlocknumber is the height after which the upkeep is
	// permanently invalid. UnlimitedValidBlock while not cancelled.
	MaxValidBlocknumber uint64
	// LastPerformBlockNumber is the height of the last successful perform.
	LastPerformBlockNumber uint32
	// AmountSpent accumulates every payment debited from the upkeep.
	AmountSpent *big.Int
	// Paused blocks eligibility while set.
	Paused bool
	// SkipSigVerification opts the upkeep out of quorum verification.
	// Transmissions still require an active transmitter.
	SkipSigVerification bool
	// OffchainConfig is an opaque blob carried for off-chain consumers.
	OffchainConfig []byte
}

// Cancelled reports whether the upkeep is past, or scheduled for, a
// terminal height at the given block.
func (u *Upkeep) Cancelled(block uint64) bool {
	return u.MaxValidBlocknumber <= block
}

// CancelPending reports whether a cancellation deadline is set but has
// not elapsed yet.
func (u *Upkeep) CancelPending(block uint64) bool {
	return u.MaxValidBlocknumber != UnlimitedValidBlock && u.MaxValidBlocknumber > block
}

// Clone returns a deep copy so ledger internals never leak to callers.
func (u *Upkeep) Clone() *Upkeep {
	cp := *u
	cp.ID = new(big.Int).Set(u.ID)
	cp.Balance = new(big.Int).Set(u.Balance)
	cp.AmountSpent = new(big.Int).Set(u.AmountSpent)
	cp.CheckData = append([]byte(nil), u.CheckData...)
	cp.OffchainConfig = append([]byte(nil), u.OffchainConfig...)
	return &cp
}

// MigratedUpkeep is the wire representation of an upkeep exported to a
// peer registry. Paused state, balance, check data and admin survive the
// move; spend history and the perform cursor reset on the destination.
type MigratedUpkeep struct {
	ID                  *big.Int       `cbor:"1,keyasint"`
	Target              common.Address `cbor:"2,keyasint"`
	ExecuteGas          uint32         `cbor:"3,keyasint"`
	CheckData           []byte         `cbor:"4,keyasint"`
	Balance             *big.Int       `cbor:"5,keyasint"`
	Admin               common.Address `cbor:"6,keyasint"`
	Paused              bool           `cbor:"7,keyasint"`
	SkipSigVerification bool           `cbor:"8,keyasint"`
	OffchainConfig      []byte         `cbor:"9,keyasint"`
}
