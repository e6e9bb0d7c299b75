package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/automation-registry/pkg/config"
	"github.com/smartcontractkit/automation-registry/pkg/prommetrics"
	"github.com/smartcontractkit/automation-registry/pkg/types"
)

// SetConfig activates a new configuration: oracle directories, fault
// tolerance and fee model, replacing the previous one atomically. The
// config digest changes with every activation, so any transmit verified
// against a superseded configuration is rejected by digest mismatch.
func (r *Registry) SetConfig(
	caller common.Address,
	signers []common.Address,
	transmitters []common.Address,
	f uint8,
	encodedOnchainConfig []byte,
	offchainConfigVersion uint64,
	offchainConfig []byte,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(OpSetConfig, caller, nil); err != nil {
		return err
	}

	if err := config.Validate(signers, transmitters, f); err != nil {
		return err
	}

	onchain, err := config.DecodeOnchainConfig(encodedOnchainConfig)
	if err != nil {
		return err
	}

	// max size parameters only ever increase so previously accepted
	// records can never become invalid under a new configuration
	if onchain.MaxCheckDataSize < r.config.Onchain.MaxCheckDataSize {
		return ErrMaxCheckDataSizeCanOnlyIncrease
	}
	if onchain.MaxPerformDataSize < r.config.Onchain.MaxPerformDataSize {
		return ErrMaxPerformDataSizeCanOnlyIncrease
	}

	r.ledger.applyOracleSet(signers, transmitters)

	r.configCount++
	block := uint64(r.blocks.LatestBlock().Number)

	digest, err := config.Digest(
		r.address,
		r.configCount,
		signers,
		transmitters,
		f,
		encodedOnchainConfig,
		offchainConfigVersion,
		offchainConfig,
	)
	if err != nil {
		return err
	}

	r.config = &config.Config{
		Signers:               append([]common.Address(nil), signers...),
		Transmitters:          append([]common.Address(nil), transmitters...),
		F:                     f,
		Onchain:               onchain,
		OffchainConfigVersion: offchainConfigVersion,
		OffchainConfig:        append([]byte(nil), offchainConfig...),
		ConfigCount:           r.configCount,
		BlockNumber:           block,
		Digest:                [32]byte(digest),
	}
	r.latestConfigBlock = block
	r.persistState()

	r.sink.Emit(types.ConfigSetEvent{ConfigCount: r.configCount, ConfigDigest: [32]byte(digest)})
	r.lggr.Printf("config %d activated with digest %x, %d oracles, f=%d", r.configCount, digest, len(signers), f)

	return nil
}

// SetPayees assigns the payment recipient for each transmitter by
// configuration index. A payee, once set, can only change through the
// two-step payeeship handshake.
func (r *Registry) SetPayees(caller common.Address, payees []common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(OpSetPayees, caller, nil); err != nil {
		return err
	}

	if len(payees) != len(r.ledger.transmitterList) {
		return config.ErrParameterLength
	}

	for i, transmitterAddr := range r.ledger.transmitterList {
		transmitter, ok := r.ledger.transmitterInfo(transmitterAddr)
		if !ok {
			continue
		}

		current := transmitter.Payee
		if current != (common.Address{}) && current != payees[i] {
			return ErrInvalidPayee
		}

		transmitter.Payee = payees[i]
		r.ledger.persistTransmitter(transmitterAddr, transmitter)
	}

	return nil
}

// ActiveConfig returns a copy of the active configuration.
func (r *Registry) ActiveConfig() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return *r.config
}

func (r *Registry) updateActiveUpkeepGauge() {
	prommetrics.RegistryActiveUpkeeps.Set(float64(r.ledger.count()))
}
