// Package registry implements the upkeep registry core: the ledger of
// scheduled jobs, the quorum-verified transmission pipeline that
// executes them, the payment accounting that settles each perform, and
// the lifecycle operations that manage records over time.
//
// The substrate serializes every state-mutating call, so the registry's
// concern is call-level atomicity and partial-failure containment
// within one call, not thread safety. A single mutex mirrors that
// serial order for in-process callers.
package registry

import (
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/config"
	"github.com/smartcontractkit/automation-registry/pkg/prommetrics"
	"github.com/smartcontractkit/automation-registry/pkg/telemetry"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// TypeAndVersion identifies this registry implementation to tooling.
const TypeAndVersion = "UpkeepRegistry 2.0.0"

// UpkeepReceiver is the inbound half of cross-registry migration.
type UpkeepReceiver interface {
	Address() common.Address
	ReceiveUpkeeps(source common.Address, encoded []byte) error
}

// PeerResolver maps a destination address to a reachable registry.
type PeerResolver interface {
	Peer(address common.Address) (UpkeepReceiver, bool)
}

// PeerMap is a static PeerResolver for tests and simulation.
type PeerMap map[common.Address]UpkeepReceiver

func (m PeerMap) Peer(address common.Address) (UpkeepReceiver, bool) {
	peer, ok := m[address]
	return peer, ok
}

// Registry is the single owned aggregate holding all registry state.
// Collaborators are injected; no ambient globals.
type Registry struct {
	mu sync.RWMutex

	address common.Address
	owner   common.Address
	lggr    *log.Logger
	sink    types.EventSink

	blocks  chain.BlockSource
	feeds   chain.FeedSource
	token   chain.Token
	targets chain.TargetResolver
	peers   PeerResolver

	ledger   *Ledger
	verifier *QuorumVerifier
	guard    *EligibilityGuard
	payments *PaymentEngine

	// config is an atomically swapped snapshot; verification always
	// reads the latest value, never a cached one.
	config            *config.Config
	configCount       uint64
	latestConfigBlock uint64
	latestEpoch       uint32

	paused          bool
	ownerBalance    *big.Int
	expectedBalance *big.Int
	nextID          uint64

	migrationPermissions map[common.Address]types.MigrationPermission
	// proposedAdmins holds pending admin handoffs keyed by upkeep id.
	proposedAdmins map[string]common.Address

	store Store
}

// Deps bundles the collaborators a registry needs.
type Deps struct {
	Blocks  chain.BlockSource
	Feeds   chain.FeedSource
	Token   chain.Token
	Targets chain.TargetResolver
	Peers   PeerResolver
	Store   Store
	Sink    types.EventSink
	Logger  *log.Logger
}

func NewRegistry(address, owner common.Address, deps Deps) *Registry {
	lggr := telemetry.WrapLogger(deps.Logger, "registry")
	sink := deps.Sink
	if sink == nil {
		sink = &types.EventBuffer{}
	}

	r := &Registry{
		address:              address,
		owner:                owner,
		lggr:                 lggr,
		sink:                 sink,
		blocks:               deps.Blocks,
		feeds:                deps.Feeds,
		token:                deps.Token,
		targets:              deps.Targets,
		peers:                deps.Peers,
		ledger:               NewLedger(lggr, deps.Store),
		config:               &config.Config{Onchain: config.OnchainConfig{StalenessSeconds: new(big.Int), MinUpkeepSpend: new(big.Int), FallbackGasPrice: new(big.Int), FallbackLinkPrice: new(big.Int)}},
		ownerBalance:         new(big.Int),
		expectedBalance:      new(big.Int),
		nextID:               1,
		migrationPermissions: make(map[common.Address]types.MigrationPermission),
		proposedAdmins:       make(map[string]common.Address),
		store:                deps.Store,
	}

	r.verifier = NewQuorumVerifier(signerDirectory{r})
	r.guard = NewEligibilityGuard(deps.Blocks)
	r.payments = NewPaymentEngine(deps.Feeds)

	return r
}

// signerDirectory adapts the ledger to the verifier without exposing
// ledger internals.
type signerDirectory struct {
	r *Registry
}

func (d signerDirectory) SignerInfo(address common.Address) (types.Signer, bool) {
	signer, ok := d.r.ledger.signerInfo(address)
	if !ok {
		return types.Signer{}, false
	}
	return *signer, true
}

func (r *Registry) Address() common.Address {
	return r.address
}

func (r *Registry) Owner() common.Address {
	return r.owner
}

// GetUpkeep returns a copy of the record for the id.
func (r *Registry) GetUpkeep(id *big.Int) (*types.Upkeep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	up, ok := r.ledger.upkeep(id)
	if !ok {
		return nil, ErrUpkeepNotFound
	}
	return up.Clone(), nil
}

// GetActiveUpkeepIDs pages through live upkeep ids in ascending order.
// A zero limit returns everything from offset on.
func (r *Registry) GetActiveUpkeepIDs(offset, limit int) []*big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ledger.activeUpkeepIDs(offset, limit)
}

// GetTransmitterInfo returns a copy of the transmitter record.
func (r *Registry) GetTransmitterInfo(address common.Address) (*types.Transmitter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transmitter, ok := r.ledger.transmitterInfo(address)
	if !ok {
		return nil, ErrUpkeepNotFound
	}
	return transmitter.Clone(), nil
}

// GetSignerInfo returns the signer record for an address.
func (r *Registry) GetSignerInfo(address common.Address) (types.Signer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	signer, ok := r.ledger.signerInfo(address)
	if !ok {
		return types.Signer{}, false
	}
	return *signer, true
}

// GetState returns the registry-wide accounting snapshot.
func (r *Registry) GetState() *types.State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stateSnapshot()
}

func (r *Registry) stateSnapshot() *types.State {
	return &types.State{
		Paused:                  r.paused,
		OwnerBalance:            new(big.Int).Set(r.ownerBalance),
		ExpectedBalance:         new(big.Int).Set(r.expectedBalance),
		NumUpkeeps:              uint64(r.ledger.count()),
		NextID:                  r.nextID,
		ConfigCount:             r.configCount,
		LatestConfigBlockNumber: r.latestConfigBlock,
		LatestConfigDigest:      r.config.Digest,
		LatestEpoch:             r.latestEpoch,
	}
}

// ConfigDetails returns the count and digest of the active config.
func (r *Registry) ConfigDetails() (uint64, ocrtypes.ConfigDigest) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.configCount, ocrtypes.ConfigDigest(r.config.Digest)
}

// OnTokenTransfer is the inbound funding hook: the token collaborator
// calls back with the sender, amount, and an encoded upkeep id.
func (r *Registry) OnTokenTransfer(caller, from common.Address, amount *big.Int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.token.Address() {
		return ErrOnlyCallableByToken
	}
	if len(data) != 32 {
		return ErrInvalidDataLength
	}

	id := new(big.Int).SetBytes(data)
	up, ok := r.ledger.upkeep(id)
	if !ok {
		return ErrUpkeepNotFound
	}
	if up.MaxValidBlocknumber != types.UnlimitedValidBlock {
		return ErrUpkeepCancelled
	}

	r.ledger.creditUpkeep(up, amount)
	r.expectedBalance.Add(r.expectedBalance, amount)
	r.persistState()

	r.sink.Emit(types.FundsEvent{UpkeepID: new(big.Int).Set(id), Amount: new(big.Int).Set(amount), Added: true})
	r.lggr.Printf("upkeep %s funded with %s by %s via token callback", id, amount, from)

	return nil
}

func (r *Registry) persistState() {
	if r.store == nil {
		return
	}
	if err := r.store.PutState(r.stateSnapshot()); err != nil {
		r.lggr.Printf("store write failed for registry state: %s", err)
	}
}

func (r *Registry) emitSkip(id *big.Int, reason types.TransmitEventType) {
	prommetrics.RegistryUpkeepsSkipped.WithLabelValues(reason.String()).Inc()
	r.sink.Emit(types.UpkeepSkippedEvent{UpkeepID: new(big.Int).Set(id), Reason: reason})
}
