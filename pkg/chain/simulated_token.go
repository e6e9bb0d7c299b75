package chain

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SimulatedToken is an in-memory fungible balance with the
// transfer-and-call funding hook the registry's inbound funding uses.
type SimulatedToken struct {
	mu       sync.Mutex
	address  common.Address
	balances map[common.Address]*big.Int
}

func NewSimulatedToken(address common.Address) *SimulatedToken {
	return &SimulatedToken{
		address:  address,
		balances: make(map[common.Address]*big.Int),
	}
}

func (t *SimulatedToken) Address() common.Address {
	return t.address
}

// Mint credits an account out of thin air. Test and simulation setup only.
func (t *SimulatedToken) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(to, amount)
}

func (t *SimulatedToken) BalanceOf(account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if balance, ok := t.balances[account]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

func (t *SimulatedToken) Transfer(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.move(from, to, amount)
}

// TransferAndCall moves value and then invokes the receiver's funding
// hook with the token as the caller identity, mirroring the callback-on-
// transfer primitive of the ledger token.
func (t *SimulatedToken) TransferAndCall(from common.Address, receiver TokenReceiver, to common.Address, amount *big.Int, data []byte) error {
	t.mu.Lock()
	if err := t.move(from, to, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	return receiver.OnTokenTransfer(t.address, from, amount, data)
}

func (t *SimulatedToken) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrTransferFailed)
	}

	balance, ok := t.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient balance for %s", ErrTransferFailed, from)
	}

	balance.Sub(balance, amount)
	t.credit(to, amount)
	return nil
}

func (t *SimulatedToken) credit(to common.Address, amount *big.Int) {
	if balance, ok := t.balances[to]; ok {
		balance.Add(balance, amount)
		return
	}
	t.balances[to] = new(big.Int).Set(amount)
}
