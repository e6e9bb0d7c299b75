package config

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxOracles bounds the signer and transmitter sets. The pairing
	// index is a single byte so the cap also protects the directories.
	MaxOracles = 31
	// MinUpkeepGas is the floor for a registered upkeep's execute gas.
	MinUpkeepGas = 2300
)

var (
	ErrParameterLength          = fmt.Errorf("length mismatch between signers and transmitters")
	ErrTooManyOracles           = fmt.Errorf("too many oracles")
	ErrIncorrectNumberOfSigners = fmt.Errorf("incorrect number of signers")
	ErrIncorrectFaultyOracles   = fmt.Errorf("incorrect number of faulty oracles")
	ErrRepeatedSigner           = fmt.Errorf("repeated signer address")
	ErrRepeatedTransmitter      = fmt.Errorf("repeated transmitter address")
	ErrInvalidOnchainConfig     = fmt.Errorf("invalid onchain config")
)

// OnchainConfig is the fee-model and bounds half of a configuration. It
// is exchanged as a single ABI-encoded tuple so every node digests the
// exact same bytes.
type OnchainConfig struct {
	// PaymentPremiumPPB is the proportional premium, parts per billion.
	PaymentPremiumPPB uint32
	// FlatFeeMicroLink is a fixed per-perform fee in micro units.
	FlatFeeMicroLink uint32
	// CheckGasLimit bounds the read-only eligibility simulation.
	CheckGasLimit uint32
	// StalenessSeconds is the feed age beyond which fallback prices apply.
	StalenessSeconds *big.Int
	// GasCeilingMultiplier caps the billed unit price at a multiple of
	// the feed price, shielding upkeeps from reporter price spikes.
	GasCeilingMultiplier uint16
	// MinUpkeepSpend is the spend threshold under which an early
	// cancellation forfeits the shortfall to the owner reserve.
	MinUpkeepSpend *big.Int
	// MaxPerformGas bounds ExecuteGas for registered upkeeps.
	MaxPerformGas uint32
	// MaxCheckDataSize only increases across reconfigurations.
	MaxCheckDataSize uint32
	// MaxPerformDataSize only increases across reconfigurations.
	MaxPerformDataSize uint32
	// FallbackGasPrice applies when the gas feed is stale or non-positive.
	FallbackGasPrice *big.Int
	// FallbackLinkPrice applies when the conversion feed is stale or
	// non-positive.
	FallbackLinkPrice *big.Int
	// Registrar may register upkeeps in addition to the owner.
	Registrar common.Address
}

var onchainConfigArguments abi.Arguments

func init() {
	onchainConfigType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "paymentPremiumPPB", Type: "uint32"},
		{Name: "flatFeeMicroLink", Type: "uint32"},
		{Name: "checkGasLimit", Type: "uint32"},
		{Name: "stalenessSeconds", Type: "uint256"},
		{Name: "gasCeilingMultiplier", Type: "uint16"},
		{Name: "minUpkeepSpend", Type: "uint256"},
		{Name: "maxPerformGas", Type: "uint32"},
		{Name: "maxCheckDataSize", Type: "uint32"},
		{Name: "maxPerformDataSize", Type: "uint32"},
		{Name: "fallbackGasPrice", Type: "uint256"},
		{Name: "fallbackLinkPrice", Type: "uint256"},
		{Name: "registrar", Type: "address"},
	})
	if err != nil {
		panic(fmt.Sprintf("failed to construct onchain config type: %s", err))
	}

	onchainConfigArguments = abi.Arguments{{Name: "onchainConfig", Type: onchainConfigType}}
}

// Encode packs the config into its canonical tuple encoding.
func (c OnchainConfig) Encode() ([]byte, error) {
	packable := struct {
		PaymentPremiumPPB    uint32
		FlatFeeMicroLink     uint32
		CheckGasLimit        uint32
		StalenessSeconds     *big.Int
		GasCeilingMultiplier uint16
		MinUpkeepSpend       *big.Int
		MaxPerformGas        uint32
		MaxCheckDataSize     uint32
		MaxPerformDataSize   uint32
		FallbackGasPrice     *big.Int
		FallbackLinkPrice    *big.Int
		Registrar            common.Address
	}(c)

	bts, err := onchainConfigArguments.Pack(packable)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack onchain config", ErrInvalidOnchainConfig)
	}

	return bts, nil
}

// DecodeOnchainConfig unpacks a canonical tuple encoding.
func DecodeOnchainConfig(encoded []byte) (OnchainConfig, error) {
	values, err := onchainConfigArguments.Unpack(encoded)
	if err != nil {
		return OnchainConfig{}, fmt.Errorf("%w: undecodable bytes", ErrInvalidOnchainConfig)
	}

	decoded, ok := values[0].(struct {
		PaymentPremiumPPB    uint32         `json:"paymentPremiumPPB"`
		FlatFeeMicroLink     uint32         `json:"flatFeeMicroLink"`
		CheckGasLimit        uint32         `json:"checkGasLimit"`
		StalenessSeconds     *big.Int       `json:"stalenessSeconds"`
		GasCeilingMultiplier uint16         `json:"gasCeilingMultiplier"`
		MinUpkeepSpend       *big.Int       `json:"minUpkeepSpend"`
		MaxPerformGas        uint32         `json:"maxPerformGas"`
		MaxCheckDataSize     uint32         `json:"maxCheckDataSize"`
		MaxPerformDataSize   uint32         `json:"maxPerformDataSize"`
		FallbackGasPrice     *big.Int       `json:"fallbackGasPrice"`
		FallbackLinkPrice    *big.Int       `json:"fallbackLinkPrice"`
		Registrar            common.Address `json:"registrar"`
	})
	if !ok {
		return OnchainConfig{}, fmt.Errorf("%w: unexpected tuple structure", ErrInvalidOnchainConfig)
	}

	return OnchainConfig(decoded), nil
}

// Config is one full versioned configuration: the oracle directories,
// the fault tolerance parameter and the fee model, plus the digest that
// transmissions must reference. Configs are immutable once active; a
// reconfiguration swaps in a whole new value.
type Config struct {
	Signers               []common.Address
	Transmitters          []common.Address
	F                     uint8
	Onchain               OnchainConfig
	OffchainConfigVersion uint64
	OffchainConfig        []byte

	ConfigCount uint64
	BlockNumber uint64
	Digest      [32]byte
}

// Validate enforces the structural rules for an oracle set:
// equal-length signer/transmitter arrays, at most MaxOracles entries,
// f >= 1 and at least 3f+1 signers, no repeated addresses.
func Validate(signers, transmitters []common.Address, f uint8) error {
	if len(signers) != len(transmitters) {
		return ErrParameterLength
	}
	if len(signers) > MaxOracles {
		return ErrTooManyOracles
	}
	if f == 0 {
		return ErrIncorrectFaultyOracles
	}
	if len(signers) < 3*int(f)+1 {
		return ErrIncorrectNumberOfSigners
	}

	seenSigners := make(map[common.Address]struct{}, len(signers))
	for _, signer := range signers {
		if _, ok := seenSigners[signer]; ok {
			return ErrRepeatedSigner
		}
		seenSigners[signer] = struct{}{}
	}

	seenTransmitters := make(map[common.Address]struct{}, len(transmitters))
	for _, transmitter := range transmitters {
		if _, ok := seenTransmitters[transmitter]; ok {
			return ErrRepeatedTransmitter
		}
		seenTransmitters[transmitter] = struct{}{}
	}

	return nil
}

// Equal compares two encoded onchain configs byte for byte.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
