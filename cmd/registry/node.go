package main

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/smartcontractkit/automation-registry/pkg/registry/keys"
)

// simNode is one simulated oracle: a signer keyring paired with a
// transmitter identity at the same configuration index.
type simNode struct {
	ID          string
	Keyring     *keys.EvmKeyring
	Offchain    *keys.OffchainKeyring
	Transmitter common.Address
}

func generateNodes(count int) ([]*simNode, error) {
	nodes := make([]*simNode, count)

	for i := range nodes {
		keyring, err := keys.NewEvmKeyring(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signer key: %w", err)
		}

		offchain, err := keys.NewOffchainKeyring(rand.Reader, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate offchain key: %w", err)
		}

		transmitterKey, err := keys.NewEvmKeyring(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate transmitter key: %w", err)
		}

		nodes[i] = &simNode{
			ID:          uuid.New().String(),
			Keyring:     keyring,
			Offchain:    offchain,
			Transmitter: transmitterKey.Address(),
		}
	}

	return nodes, nil
}

func signerAddresses(nodes []*simNode) []common.Address {
	out := make([]common.Address, len(nodes))
	for i, node := range nodes {
		out[i] = node.Keyring.Address()
	}
	return out
}

func transmitterAddresses(nodes []*simNode) []common.Address {
	out := make([]common.Address, len(nodes))
	for i, node := range nodes {
		out[i] = node.Transmitter
	}
	return out
}
