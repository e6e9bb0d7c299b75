package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ocrtypes "github.com/smartcontractkit/libocr/offchainreporting2plus/types"
)

// digestPrefix tags the digest scheme in the first two bytes so a digest
// can never be confused with one produced under different rules.
var digestPrefix = [2]byte{0x00, 0x01}

var digestArguments abi.Arguments

func init() {
	mustType := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("failed to construct digest argument type %q: %s", t, err))
		}
		return typ
	}

	digestArguments = abi.Arguments{
		{Name: "registryAddress", Type: mustType("address")},
		{Name: "configCount", Type: mustType("uint64")},
		{Name: "signers", Type: mustType("address[]")},
		{Name: "transmitters", Type: mustType("address[]")},
		{Name: "f", Type: mustType("uint8")},
		{Name: "onchainConfig", Type: mustType("bytes")},
		{Name: "offchainConfigVersion", Type: mustType("uint64")},
		{Name: "offchainConfig", Type: mustType("bytes")},
	}
}

// Digest computes the deterministic digest for a configuration. Every
// transmission is verified against the digest of the latest active
// configuration, so any difference in the inputs yields a rejection.
func Digest(
	registry common.Address,
	configCount uint64,
	signers []common.Address,
	transmitters []common.Address,
	f uint8,
	encodedOnchainConfig []byte,
	offchainConfigVersion uint64,
	offchainConfig []byte,
) (ocrtypes.ConfigDigest, error) {
	packed, err := digestArguments.Pack(
		registry,
		configCount,
		signers,
		transmitters,
		f,
		encodedOnchainConfig,
		offchainConfigVersion,
		offchainConfig,
	)
	if err != nil {
		return ocrtypes.ConfigDigest{}, fmt.Errorf("failed to pack config for digest: %w", err)
	}

	var digest ocrtypes.ConfigDigest
	copy(digest[:], crypto.Keccak256(packed))
	digest[0] = digestPrefix[0]
	digest[1] = digestPrefix[1]

	return digest, nil
}
