package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/automation-registry/pkg/config"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// CancellationDelay is the number of blocks an admin-initiated
// cancellation stays pending before it takes effect. Owner-initiated
// cancellation is immediate.
const CancellationDelay = 50

// RegisterUpkeep creates a new upkeep with a zero balance. Only the
// owner or the configured registrar may register.
func (r *Registry) RegisterUpkeep(
	caller common.Address,
	target common.Address,
	gasLimit uint32,
	admin common.Address,
	skipSigVerification bool,
	checkData []byte,
	offchainConfig []byte,
) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.paused {
		return nil, ErrRegistryPaused
	}
	if err := r.authorize(OpRegisterUpkeep, caller, nil); err != nil {
		return nil, err
	}
	if _, ok := r.targets.Target(target); !ok {
		return nil, ErrNotAContract
	}
	if gasLimit < config.MinUpkeepGas || gasLimit > r.config.Onchain.MaxPerformGas {
		return nil, ErrGasLimitOutsideRange
	}
	if len(checkData) > int(r.config.Onchain.MaxCheckDataSize) {
		return nil, ErrCheckDataExceedsLimit
	}

	id := new(big.Int).SetUint64(r.nextID)
	r.nextID++

	up := &types.Upkeep{
		ID:                  id,
		Target:              target,
		ExecuteGas:          gasLimit,
		CheckData:           append([]byte(nil), checkData...),
		Balance:             new(big.Int),
		Admin:               admin,
		MaxValidBlocknumber: types.UnlimitedValidBlock,
		AmountSpent:         new(big.Int),
		SkipSigVerification: skipSigVerification,
		OffchainConfig:      append([]byte(nil), offchainConfig...),
	}

	r.ledger.putUpkeep(up)
	r.updateActiveUpkeepGauge()
	r.persistState()

	r.sink.Emit(types.UpkeepRegisteredEvent{UpkeepID: new(big.Int).Set(id), ExecuteGas: gasLimit, Admin: admin})
	r.lggr.Printf("upkeep %s registered for target %s with gas limit %d", id, target, gasLimit)

	return id, nil
}

// AddFunds moves tokens from the caller into an upkeep's prepaid
// balance. Funding is open to anyone while the upkeep is not cancelled.
func (r *Registry) AddFunds(caller common.Address, id *big.Int, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if up.MaxValidBlocknumber != types.UnlimitedValidBlock {
		return ErrUpkeepCancelled
	}

	if err := r.token.Transfer(caller, r.address, amount); err != nil {
		return errors.Wrap(err, "failed to collect funds")
	}

	r.ledger.creditUpkeep(up, amount)
	r.expectedBalance.Add(r.expectedBalance, amount)
	r.persistState()

	r.sink.Emit(types.FundsEvent{UpkeepID: new(big.Int).Set(id), Amount: new(big.Int).Set(amount), Added: true})
	return nil
}

// WithdrawFunds sends an upkeep's remaining balance to the recipient.
// Only callable by the admin, and only once the cancellation height has
// passed.
func (r *Registry) WithdrawFunds(caller common.Address, id *big.Int, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpWithdrawFunds, caller, up); err != nil {
		return err
	}

	current := uint64(r.blocks.LatestBlock().Number)
	if up.MaxValidBlocknumber > current {
		return ErrUpkeepNotCancelled
	}

	amount := r.ledger.drainUpkeep(up)
	if err := r.token.Transfer(r.address, to, amount); err != nil {
		// refund the ledger so the books match the tokens we still hold
		r.ledger.creditUpkeep(up, amount)
		return errors.Wrap(err, "failed to withdraw funds")
	}

	r.expectedBalance.Sub(r.expectedBalance, amount)
	r.persistState()

	r.sink.Emit(types.FundsEvent{UpkeepID: new(big.Int).Set(id), Amount: amount, Added: false})
	return nil
}

// PauseUpkeep blocks eligibility for the upkeep. Rejected if already
// paused or cancelled.
func (r *Registry) PauseUpkeep(caller common.Address, id *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpPauseUpkeep, caller, up); err != nil {
		return err
	}
	if up.MaxValidBlocknumber != types.UnlimitedValidBlock {
		return ErrUpkeepCancelled
	}
	if up.Paused {
		return ErrOnlyUnpausedUpkeep
	}

	up.Paused = true
	r.ledger.persistUpkeep(up)
	r.lggr.Printf("upkeep %s paused", id)
	return nil
}

// UnpauseUpkeep restores eligibility. Rejected if not paused.
func (r *Registry) UnpauseUpkeep(caller common.Address, id *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpUnpauseUpkeep, caller, up); err != nil {
		return err
	}
	if up.MaxValidBlocknumber != types.UnlimitedValidBlock {
		return ErrUpkeepCancelled
	}
	if !up.Paused {
		return ErrOnlyPausedUpkeep
	}

	up.Paused = false
	r.ledger.persistUpkeep(up)
	r.lggr.Printf("upkeep %s unpaused", id)
	return nil
}

// CancelUpkeep schedules the upkeep's terminal height. The owner
// cancels immediately; an admin's cancellation takes effect after
// CancellationDelay blocks. Deadlines only ever tighten: an owner
// cancelling over a pending admin cancellation moves the deadline
// earlier, never later. An admin-initiated cancel below the minimum
// spend threshold forfeits the shortfall to the owner reserve.
func (r *Registry) CancelUpkeep(caller common.Address, id *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpCancelUpkeep, caller, up); err != nil {
		return err
	}

	current := uint64(r.blocks.LatestBlock().Number)
	byOwner := caller == r.owner

	if up.Cancelled(current) {
		return ErrUpkeepCancelled
	}
	if !byOwner && up.CancelPending(current) {
		return ErrCannotCancel
	}

	height := current
	if !byOwner {
		height = current + CancellationDelay
	}
	// monotonic tightening only
	if height < up.MaxValidBlocknumber {
		up.MaxValidBlocknumber = height
	}

	r.ledger.deactivate(id)

	if !byOwner {
		r.chargeCancellationFee(up)
	}

	r.ledger.persistUpkeep(up)
	r.updateActiveUpkeepGauge()
	r.persistState()

	r.sink.Emit(types.UpkeepCanceledEvent{UpkeepID: new(big.Int).Set(id), AtBlockHeight: up.MaxValidBlocknumber})
	r.lggr.Printf("upkeep %s cancelled effective at block %d", id, up.MaxValidBlocknumber)

	return nil
}

// chargeCancellationFee moves the minimum-spend shortfall from the
// upkeep balance to the owner reserve, capped at what the upkeep still
// holds. No fee when the threshold was already met.
func (r *Registry) chargeCancellationFee(up *types.Upkeep) {
	minSpend := r.config.Onchain.MinUpkeepSpend
	if minSpend.Sign() == 0 || up.AmountSpent.Cmp(minSpend) >= 0 {
		return
	}

	fee := new(big.Int).Sub(minSpend, up.AmountSpent)
	if fee.Cmp(up.Balance) > 0 {
		fee.Set(up.Balance)
	}

	up.Balance.Sub(up.Balance, fee)
	r.ownerBalance.Add(r.ownerBalance, fee)
}

// UpdateCheckData replaces the bytes handed to eligibility checks.
func (r *Registry) UpdateCheckData(caller common.Address, id *big.Int, checkData []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpUpdateCheckData, caller, up); err != nil {
		return err
	}
	if up.MaxValidBlocknumber != types.UnlimitedValidBlock {
		return ErrUpkeepCancelled
	}
	if len(checkData) > int(r.config.Onchain.MaxCheckDataSize) {
		return ErrCheckDataExceedsLimit
	}

	up.CheckData = append([]byte(nil), checkData...)
	r.ledger.persistUpkeep(up)
	r.lggr.Printf("upkeep %s check data updated (%d bytes)", id, len(checkData))
	return nil
}

// SetUpkeepGasLimit adjusts the execute gas ceiling within the global
// bounds.
func (r *Registry) SetUpkeepGasLimit(caller common.Address, id *big.Int, gasLimit uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpSetUpkeepGasLimit, caller, up); err != nil {
		return err
	}
	if up.MaxValidBlocknumber != types.UnlimitedValidBlock {
		return ErrUpkeepCancelled
	}
	if gasLimit < config.MinUpkeepGas || gasLimit > r.config.Onchain.MaxPerformGas {
		return ErrGasLimitOutsideRange
	}

	up.ExecuteGas = gasLimit
	r.ledger.persistUpkeep(up)
	return nil
}

// SetUpkeepOffchainConfig replaces the opaque off-chain blob.
func (r *Registry) SetUpkeepOffchainConfig(caller common.Address, id *big.Int, offchainConfig []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpSetUpkeepOffchainConfig, caller, up); err != nil {
		return err
	}

	up.OffchainConfig = append([]byte(nil), offchainConfig...)
	r.ledger.persistUpkeep(up)
	return nil
}

// TransferUpkeepAdmin starts the two-step admin handoff. Proposing the
// already-pending target again is a silent no-op.
func (r *Registry) TransferUpkeepAdmin(caller common.Address, id *big.Int, proposed common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if err := r.authorize(OpTransferUpkeepAdmin, caller, up); err != nil {
		return err
	}
	if proposed == up.Admin {
		return ErrValueNotChanged
	}

	if r.proposedAdmins[id.String()] == proposed {
		return nil
	}

	r.proposedAdmins[id.String()] = proposed
	r.lggr.Printf("upkeep %s admin transfer proposed to %s", id, proposed)
	return nil
}

// AcceptUpkeepAdmin completes the handoff. Only the proposed admin may
// accept.
func (r *Registry) AcceptUpkeepAdmin(caller common.Address, id *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if proposed, pending := r.proposedAdmins[id.String()]; !pending || caller != proposed {
		return ErrOnlyCallableByProposedAdmin
	}

	up.Admin = caller
	delete(r.proposedAdmins, id.String())
	r.ledger.persistUpkeep(up)
	r.lggr.Printf("upkeep %s admin transferred to %s", id, caller)
	return nil
}

// TransferPayeeship starts the two-step payee handoff for a
// transmitter. Only the current payee may propose.
func (r *Registry) TransferPayeeship(caller, transmitter, proposed common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.ledger.transmitterInfo(transmitter)
	if !ok {
		return ErrTransmitterNotFound
	}
	if caller != record.Payee {
		return ErrOnlyCallableByPayee
	}
	if proposed == record.Payee {
		return ErrValueNotChanged
	}

	if record.ProposedPayee == proposed {
		return nil
	}

	record.ProposedPayee = proposed
	r.ledger.persistTransmitter(transmitter, record)
	return nil
}

// AcceptPayeeship completes the payee handoff.
func (r *Registry) AcceptPayeeship(caller, transmitter common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.ledger.transmitterInfo(transmitter)
	if !ok {
		return ErrTransmitterNotFound
	}
	if record.ProposedPayee == (common.Address{}) || caller != record.ProposedPayee {
		return ErrOnlyCallableByProposedPayee
	}

	record.Payee = caller
	record.ProposedPayee = common.Address{}
	r.ledger.persistTransmitter(transmitter, record)
	return nil
}

// WithdrawPayment sends a transmitter's accrued earnings to the
// recipient. Only the transmitter's payee may withdraw.
func (r *Registry) WithdrawPayment(caller, transmitter, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}

	record, ok := r.ledger.transmitterInfo(transmitter)
	if !ok {
		return ErrTransmitterNotFound
	}
	if caller != record.Payee {
		return ErrOnlyCallableByPayee
	}

	amount := new(big.Int).Set(record.Balance)
	if err := r.token.Transfer(r.address, to, amount); err != nil {
		return errors.Wrap(err, "failed to withdraw payment")
	}

	record.Balance.SetInt64(0)
	r.ledger.persistTransmitter(transmitter, record)
	r.expectedBalance.Sub(r.expectedBalance, amount)
	r.persistState()

	return nil
}

// WithdrawOwnerFunds empties the owner reserve.
func (r *Registry) WithdrawOwnerFunds(caller, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(OpWithdrawOwnerFunds, caller, nil); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}

	amount := new(big.Int).Set(r.ownerBalance)
	if err := r.token.Transfer(r.address, to, amount); err != nil {
		return errors.Wrap(err, "failed to withdraw owner funds")
	}

	r.ownerBalance.SetInt64(0)
	r.expectedBalance.Sub(r.expectedBalance, amount)
	r.persistState()

	return nil
}

// PauseRegistry halts transmissions and registrations globally.
func (r *Registry) PauseRegistry(caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(OpPauseRegistry, caller, nil); err != nil {
		return err
	}
	if r.paused {
		return ErrValueNotChanged
	}

	r.paused = true
	r.persistState()
	r.lggr.Printf("registry paused")
	return nil
}

// UnpauseRegistry resumes normal operation.
func (r *Registry) UnpauseRegistry(caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(OpUnpauseRegistry, caller, nil); err != nil {
		return err
	}
	if !r.paused {
		return ErrValueNotChanged
	}

	r.paused = false
	r.persistState()
	r.lggr.Printf("registry unpaused")
	return nil
}
