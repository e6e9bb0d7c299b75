package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransmitEventType classifies the per-item outcome of a transmit call.
// Skipped items never reach the ledger; their event is the only trace.
type TransmitEventType int

const (
	PerformEvent TransmitEventType = iota
	StaleReportEvent
	ReorgReportEvent
	InsufficientFundsReportEvent
	CancelledReportEvent
	PausedReportEvent
)

func (t TransmitEventType) String() string {
	switch t {
	case PerformEvent:
		return "performed"
	case StaleReportEvent:
		return "stale"
	case ReorgReportEvent:
		return "reorged"
	case InsufficientFundsReportEvent:
		return "insufficient funds"
	case CancelledReportEvent:
		return "cancelled"
	case PausedReportEvent:
		return "paused"
	default:
		return "unknown"
	}
}

// UpkeepPerformedEvent is emitted once per executed batch item, success
// or failure.
type UpkeepPerformedEvent struct {
	UpkeepID         *big.Int
	Success          bool
	CheckBlockNumber uint32
	GasUsed          uint64
	GasOverhead      uint64
	TotalPayment     *big.Int
	Transmitter      common.Address
}

// UpkeepSkippedEvent is emitted for a batch item removed before
// execution. The offending item is dropped; siblings proceed.
type UpkeepSkippedEvent struct {
	UpkeepID *big.Int
	Reason   TransmitEventType
}

// UpkeepRegisteredEvent is emitted when a new upkeep enters the ledger.
type UpkeepRegisteredEvent struct {
	UpkeepID   *big.Int
	ExecuteGas uint32
	Admin      common.Address
}

// UpkeepCanceledEvent carries the terminal height set by a cancellation.
type UpkeepCanceledEvent struct {
	UpkeepID      *big.Int
	AtBlockHeight uint64
}

// UpkeepMigratedEvent is emitted on the source side of a migration.
type UpkeepMigratedEvent struct {
	UpkeepID         *big.Int
	RemainingBalance *big.Int
	Destination      common.Address
}

// UpkeepReceivedEvent is emitted on the destination side of a migration.
type UpkeepReceivedEvent struct {
	UpkeepID        *big.Int
	StartingBalance *big.Int
	ImportedFrom    common.Address
}

// FundsEvent covers additions and withdrawals of upkeep balances.
type FundsEvent struct {
	UpkeepID *big.Int
	Amount   *big.Int
	Added    bool
}

// ConfigSetEvent is emitted when a configuration becomes active.
type ConfigSetEvent struct {
	ConfigCount  uint64
	ConfigDigest [32]byte
}

// EventSink receives registry events. Implementations must not block.
type EventSink interface {
	Emit(event interface{})
}

// EventBuffer is an in-memory sink used by tests and the simulator.
type EventBuffer struct {
	events []interface{}
}

func (b *EventBuffer) Emit(event interface{}) {
	b.events = append(b.events, event)
}

// Drain returns all collected events and resets the buffer.
func (b *EventBuffer) Drain() []interface{} {
	out := b.events
	b.events = nil
	return out
}

// Events returns collected events without resetting.
func (b *EventBuffer) Events() []interface{} {
	return b.events
}
