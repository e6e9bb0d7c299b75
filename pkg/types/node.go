package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Signer is a node identity whose signature counts toward quorum.
type Signer struct {
	Active bool
	// Index is the position within the configuration that activated the
	// signer. Stable across reconfigurations that keep the address.
	Index uint8
}

// Transmitter is a node identity that submits reports and accrues
// payment. Deactivated transmitters keep their balance and payee so
// historical earnings stay claimable.
type Transmitter struct {
	Active bool
	Index  uint8
	// Balance is the accrued, unwithdrawn payment in juels.
	Balance *big.Int
	// Payee receives withdrawals for this transmitter.
	Payee common.Address
	// ProposedPayee is the pending half of the payee handoff.
	ProposedPayee common.Address
}

// Clone returns a deep copy of the transmitter record.
func (t *Transmitter) Clone() *Transmitter {
	cp := *t
	cp.Balance = new(big.Int).Set(t.Balance)
	return &cp
}

// MigrationPermission controls which directions upkeeps may move between
// a pair of registries. Both sides must agree before a migration runs.
type MigrationPermission uint8

const (
	MigrationPermissionNone MigrationPermission = iota
	MigrationPermissionOutgoing
	MigrationPermissionIncoming
	MigrationPermissionBidirectional
)

// AllowsOutgoing reports whether upkeeps may leave through this permission.
func (p MigrationPermission) AllowsOutgoing() bool {
	return p == MigrationPermissionOutgoing || p == MigrationPermissionBidirectional
}

// AllowsIncoming reports whether upkeeps may arrive through this permission.
func (p MigrationPermission) AllowsIncoming() bool {
	return p == MigrationPermissionIncoming || p == MigrationPermissionBidirectional
}
