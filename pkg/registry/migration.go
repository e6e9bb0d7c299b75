package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/automation-registry/pkg/encoding"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// SetPeerRegistryMigrationPermission records this registry's side of
// the bidirectional opt-in required before upkeeps can move to or from
// a peer.
func (r *Registry) SetPeerRegistryMigrationPermission(
	caller common.Address,
	peer common.Address,
	permission types.MigrationPermission,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(OpSetMigrationPermission, caller, nil); err != nil {
		return err
	}

	if permission == types.MigrationPermissionNone {
		delete(r.migrationPermissions, peer)
	} else {
		r.migrationPermissions[peer] = permission
	}

	return nil
}

// MigrationPermissionFor returns the permission recorded for a peer.
func (r *Registry) MigrationPermissionFor(peer common.Address) types.MigrationPermission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.migrationPermissions[peer]
}

// MigrateUpkeeps exports the named upkeeps to a destination registry:
// the records and their balances leave this ledger atomically and are
// recreated on the destination with id, balance, check data, paused
// state and admin preserved. The caller must be admin of every id, the
// source owner must have granted outgoing permission for the peer, and
// the destination enforces its own incoming permission on receipt.
func (r *Registry) MigrateUpkeeps(caller common.Address, ids []*big.Int, destination common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) == 0 {
		return ErrArrayHasNoEntries
	}
	if !r.migrationPermissions[destination].AllowsOutgoing() {
		return ErrMigrationNotPermitted
	}

	peer, ok := r.peers.Peer(destination)
	if !ok {
		return ErrUnknownDestination
	}

	current := uint64(r.blocks.LatestBlock().Number)
	exported := make([]types.MigratedUpkeep, len(ids))
	upkeeps := make([]*types.Upkeep, len(ids))
	total := new(big.Int)

	for i, id := range ids {
		up, ok := r.ledger.upkeep(id)
		if !ok {
			return ErrUpkeepNotFound
		}
		if err := r.authorize(OpMigrateUpkeeps, caller, up); err != nil {
			return err
		}
		if up.Cancelled(current) {
			return ErrUpkeepCancelled
		}

		upkeeps[i] = up
		total.Add(total, up.Balance)
		exported[i] = types.MigratedUpkeep{
			ID:                  new(big.Int).Set(up.ID),
			Target:              up.Target,
			ExecuteGas:          up.ExecuteGas,
			CheckData:           append([]byte(nil), up.CheckData...),
			Balance:             new(big.Int).Set(up.Balance),
			Admin:               up.Admin,
			Paused:              up.Paused,
			SkipSigVerification: up.SkipSigVerification,
			OffchainConfig:      append([]byte(nil), up.OffchainConfig...),
		}
	}

	encoded, err := encoding.EncodeMigrationBatch(exported)
	if err != nil {
		return err
	}

	// delete source records first so a receiving peer observing this
	// registry mid-call never sees the upkeep twice
	for _, up := range upkeeps {
		up.Balance.SetInt64(0)
		r.ledger.removeUpkeep(up.ID)
	}
	r.expectedBalance.Sub(r.expectedBalance, total)

	if err := peer.ReceiveUpkeeps(r.address, encoded); err != nil {
		// restore the exported records so a rejecting peer cannot
		// strand their balances
		for i, up := range upkeeps {
			up.Balance.Set(exported[i].Balance)
			r.ledger.putUpkeep(up)
		}
		r.expectedBalance.Add(r.expectedBalance, total)

		return errors.Wrap(err, "destination rejected migration batch")
	}

	for i, up := range upkeeps {
		delete(r.proposedAdmins, up.ID.String())

		r.sink.Emit(types.UpkeepMigratedEvent{
			UpkeepID:         new(big.Int).Set(ids[i]),
			RemainingBalance: new(big.Int).Set(exported[i].Balance),
			Destination:      destination,
		})
	}

	r.updateActiveUpkeepGauge()
	r.persistState()

	if err := r.token.Transfer(r.address, destination, total); err != nil {
		return errors.Wrap(err, "failed to move migrated balances")
	}

	r.lggr.Printf("migrated %d upkeeps to %s with total balance %s", len(ids), destination, total)
	return nil
}

// ReceiveUpkeeps is the inbound half of migration. The source registry
// must have been granted incoming permission by this registry's owner.
// Imported upkeeps keep their id, balance, check data, paused state and
// admin; spend history and the perform cursor start fresh here.
func (r *Registry) ReceiveUpkeeps(source common.Address, encoded []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.migrationPermissions[source].AllowsIncoming() {
		return ErrMigrationNotPermitted
	}

	imported, err := encoding.DecodeMigrationBatch(encoded)
	if err != nil {
		return err
	}

	// every collision must be caught before the first record lands so a
	// rejected batch never leaves a partial import behind
	seen := make(map[string]struct{}, len(imported))
	for _, in := range imported {
		if _, dup := seen[in.ID.String()]; dup {
			return ErrUpkeepAlreadyExists
		}
		seen[in.ID.String()] = struct{}{}

		if _, exists := r.ledger.upkeep(in.ID); exists {
			return ErrUpkeepAlreadyExists
		}
	}

	total := new(big.Int)
	for _, in := range imported {
		up := &types.Upkeep{
			ID:                  new(big.Int).Set(in.ID),
			Target:              in.Target,
			ExecuteGas:          in.ExecuteGas,
			CheckData:           append([]byte(nil), in.CheckData...),
			Balance:             new(big.Int).Set(in.Balance),
			Admin:               in.Admin,
			MaxValidBlocknumber: types.UnlimitedValidBlock,
			AmountSpent:         new(big.Int),
			Paused:              in.Paused,
			SkipSigVerification: in.SkipSigVerification,
			OffchainConfig:      append([]byte(nil), in.OffchainConfig...),
		}

		r.ledger.putUpkeep(up)
		total.Add(total, in.Balance)

		r.sink.Emit(types.UpkeepReceivedEvent{
			UpkeepID:        new(big.Int).Set(in.ID),
			StartingBalance: new(big.Int).Set(in.Balance),
			ImportedFrom:    source,
		})
	}

	r.expectedBalance.Add(r.expectedBalance, total)
	r.updateActiveUpkeepGauge()
	r.persistState()

	r.lggr.Printf("received %d upkeeps from %s with total balance %s", len(imported), source, total)
	return nil
}
