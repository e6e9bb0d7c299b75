package registry

import (
	"log"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// Store is the optional durable sink behind the ledger. Writes are
// best-effort mirrors of committed in-memory state; a store failure is
// logged but never rejects the call that caused it.
type Store interface {
	PutUpkeep(upkeep *types.Upkeep) error
	DeleteUpkeep(id *big.Int) error
	PutTransmitter(address common.Address, record *types.Transmitter) error
	PutSigner(address common.Address, record *types.Signer) error
	PutState(state *types.State) error
}

// Ledger is the authoritative store of upkeep records and the
// signer/transmitter directories. All balance movement goes through it
// so the accounting invariants hold in one place: balances never go
// negative and AmountSpent is append-only.
//
// The ledger is not safe for concurrent use; the owning Registry
// serializes access, mirroring the substrate's serial execution.
type Ledger struct {
	lggr  *log.Logger
	store Store

	upkeeps map[string]*types.Upkeep
	// activeIDs holds live (non-deleted) upkeep ids in ascending order
	// for stable pagination.
	activeIDs []*big.Int

	signers         map[common.Address]*types.Signer
	transmitters    map[common.Address]*types.Transmitter
	signerList      []common.Address
	transmitterList []common.Address
}

func NewLedger(lggr *log.Logger, store Store) *Ledger {
	return &Ledger{
		lggr:         lggr,
		store:        store,
		upkeeps:      make(map[string]*types.Upkeep),
		signers:      make(map[common.Address]*types.Signer),
		transmitters: make(map[common.Address]*types.Transmitter),
	}
}

func (l *Ledger) upkeep(id *big.Int) (*types.Upkeep, bool) {
	up, ok := l.upkeeps[id.String()]
	return up, ok
}

func (l *Ledger) putUpkeep(up *types.Upkeep) {
	key := up.ID.String()
	if _, exists := l.upkeeps[key]; !exists {
		idx := sort.Search(len(l.activeIDs), func(i int) bool {
			return l.activeIDs[i].Cmp(up.ID) >= 0
		})
		l.activeIDs = append(l.activeIDs, nil)
		copy(l.activeIDs[idx+1:], l.activeIDs[idx:])
		l.activeIDs[idx] = up.ID
	}
	l.upkeeps[key] = up
	l.persistUpkeep(up)
}

// removeUpkeep deletes the record entirely. Ids are never reused, so
// removal is terminal for the id on this registry.
func (l *Ledger) removeUpkeep(id *big.Int) {
	key := id.String()
	if _, ok := l.upkeeps[key]; !ok {
		return
	}

	delete(l.upkeeps, key)
	idx := sort.Search(len(l.activeIDs), func(i int) bool {
		return l.activeIDs[i].Cmp(id) >= 0
	})
	if idx < len(l.activeIDs) && l.activeIDs[idx].Cmp(id) == 0 {
		l.activeIDs = append(l.activeIDs[:idx], l.activeIDs[idx+1:]...)
	}

	if l.store != nil {
		if err := l.store.DeleteUpkeep(id); err != nil {
			l.lggr.Printf("store delete failed for upkeep %s: %s", id, err)
		}
	}
}

// count is the live upkeep count: registered, not cancelled, not
// migrated away. Cancelled records are retained but not live.
func (l *Ledger) count() int {
	return len(l.activeIDs)
}

// deactivate drops an id from the active set while keeping the record,
// the shape a cancellation leaves behind.
func (l *Ledger) deactivate(id *big.Int) {
	idx := sort.Search(len(l.activeIDs), func(i int) bool {
		return l.activeIDs[i].Cmp(id) >= 0
	})
	if idx < len(l.activeIDs) && l.activeIDs[idx].Cmp(id) == 0 {
		l.activeIDs = append(l.activeIDs[:idx], l.activeIDs[idx+1:]...)
	}
}

// activeUpkeepIDs pages through live ids. A zero limit means the rest
// of the list.
func (l *Ledger) activeUpkeepIDs(offset, limit int) []*big.Int {
	if offset >= len(l.activeIDs) {
		return []*big.Int{}
	}

	end := len(l.activeIDs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*big.Int, end-offset)
	for i := range out {
		out[i] = new(big.Int).Set(l.activeIDs[offset+i])
	}
	return out
}

// creditUpkeep adds funds to an upkeep's prepaid balance.
func (l *Ledger) creditUpkeep(up *types.Upkeep, amount *big.Int) {
	up.Balance.Add(up.Balance, amount)
	l.persistUpkeep(up)
}

// debitUpkeep moves payment out of an upkeep. The debit clamps at the
// available balance so the balance can never go negative, and the
// clamped amount is what lands in AmountSpent. Returns the amount
// actually debited.
func (l *Ledger) debitUpkeep(up *types.Upkeep, amount *big.Int) *big.Int {
	debit := new(big.Int).Set(amount)
	if debit.Cmp(up.Balance) > 0 {
		debit.Set(up.Balance)
	}

	up.Balance.Sub(up.Balance, debit)
	up.AmountSpent.Add(up.AmountSpent, debit)
	l.persistUpkeep(up)
	return debit
}

// drainUpkeep empties the remaining balance, returning what was held.
func (l *Ledger) drainUpkeep(up *types.Upkeep) *big.Int {
	out := new(big.Int).Set(up.Balance)
	up.Balance.SetInt64(0)
	l.persistUpkeep(up)
	return out
}

func (l *Ledger) persistUpkeep(up *types.Upkeep) {
	if l.store == nil {
		return
	}
	if err := l.store.PutUpkeep(up); err != nil {
		l.lggr.Printf("store write failed for upkeep %s: %s", up.ID, err)
	}
}

func (l *Ledger) signerInfo(address common.Address) (*types.Signer, bool) {
	signer, ok := l.signers[address]
	return signer, ok
}

func (l *Ledger) transmitterInfo(address common.Address) (*types.Transmitter, bool) {
	transmitter, ok := l.transmitters[address]
	return transmitter, ok
}

// creditTransmitter accrues payment to a transmitter's withdrawable
// balance.
func (l *Ledger) creditTransmitter(address common.Address, amount *big.Int) {
	transmitter, ok := l.transmitters[address]
	if !ok {
		return
	}

	transmitter.Balance.Add(transmitter.Balance, amount)
	l.persistTransmitter(address, transmitter)
}

func (l *Ledger) persistTransmitter(address common.Address, record *types.Transmitter) {
	if l.store == nil {
		return
	}
	if err := l.store.PutTransmitter(address, record); err != nil {
		l.lggr.Printf("store write failed for transmitter %s: %s", address, err)
	}
}

// applyOracleSet replaces the active signer/transmitter directories.
// Dropped identities are deactivated, never deleted, so accrued
// transmitter balances stay claimable. Returning addresses keep their
// payee and balance.
func (l *Ledger) applyOracleSet(signers, transmitters []common.Address) {
	for _, signer := range l.signers {
		signer.Active = false
	}
	for _, transmitter := range l.transmitters {
		transmitter.Active = false
	}

	for i, address := range signers {
		record, ok := l.signers[address]
		if !ok {
			record = &types.Signer{}
			l.signers[address] = record
		}
		record.Active = true
		record.Index = uint8(i)

		if l.store != nil {
			if err := l.store.PutSigner(address, record); err != nil {
				l.lggr.Printf("store write failed for signer %s: %s", address, err)
			}
		}
	}

	for i, address := range transmitters {
		record, ok := l.transmitters[address]
		if !ok {
			record = &types.Transmitter{Balance: new(big.Int)}
			l.transmitters[address] = record
		}
		record.Active = true
		record.Index = uint8(i)
		l.persistTransmitter(address, record)
	}

	l.signerList = append([]common.Address(nil), signers...)
	l.transmitterList = append([]common.Address(nil), transmitters...)
}
