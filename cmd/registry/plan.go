package main

import (
	"fmt"
	"io"
	"math/big"

	"github.com/goccy/go-json"
)

// bigIntStr is a base-10 big integer carried as a JSON string so plan
// files can express juel amounts beyond float precision.
type bigIntStr struct {
	*big.Int
}

func (b *bigIntStr) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("'%s' is not a base-10 integer", raw)
	}

	b.Int = value
	return nil
}

func (b bigIntStr) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return json.Marshal("0")
	}
	return json.Marshal(b.String())
}

// SimulationPlan is the full input to one simulation run.
type SimulationPlan struct {
	// Nodes is the oracle count. Signer and transmitter identities are
	// generated fresh per run, paired by index.
	Nodes int `json:"nodes"`
	// FaultTolerance is the f the configuration is validated against.
	FaultTolerance uint8     `json:"faultTolerance"`
	Blocks         BlockPlan `json:"blocks"`
	Feeds          FeedPlan  `json:"feeds"`
	Fees           FeePlan   `json:"fees"`
	// Upkeeps describes the upkeep populations to generate.
	Upkeeps []GenerateUpkeepEvent `json:"upkeeps"`
}

type BlockPlan struct {
	Genesis  uint64 `json:"genesis"`
	Duration uint64 `json:"duration"`
}

type FeedPlan struct {
	FastGasWei bigIntStr `json:"fastGasWei"`
	LinkEth    bigIntStr `json:"linkEth"`
}

type FeePlan struct {
	PremiumPPB           uint32    `json:"premiumPPB"`
	FlatFeeMicroLink     uint32    `json:"flatFeeMicroLink"`
	CheckGasLimit        uint32    `json:"checkGasLimit"`
	StalenessSeconds     int64     `json:"stalenessSeconds"`
	GasCeilingMultiplier uint16    `json:"gasCeilingMultiplier"`
	MinUpkeepSpend       bigIntStr `json:"minUpkeepSpend"`
	MaxPerformGas        uint32    `json:"maxPerformGas"`
	MaxCheckDataSize     uint32    `json:"maxCheckDataSize"`
	MaxPerformDataSize   uint32    `json:"maxPerformDataSize"`
	FallbackGasPrice     bigIntStr `json:"fallbackGasPrice"`
	FallbackLinkPrice    bigIntStr `json:"fallbackLinkPrice"`
}

// GenerateUpkeepEvent describes one generated upkeep population.
type GenerateUpkeepEvent struct {
	Count      int       `json:"count"`
	StartID    int64     `json:"startId"`
	ExecuteGas uint32    `json:"executeGas"`
	PerformGas uint64    `json:"performGas"`
	Fund       bigIntStr `json:"fund"`
	// EligibilityFunc is "always", "never", or an expression in x
	// producing the offsets at which the upkeep becomes eligible.
	EligibilityFunc string `json:"eligibilityFunc"`
	// OffsetFunc staggers each upkeep's genesis within the population.
	OffsetFunc          string `json:"offsetFunc"`
	SkipSigVerification bool   `json:"skipSigVerification"`
}

// DecodeSimulationPlan reads a plan and fills gaps with runnable
// defaults.
func DecodeSimulationPlan(r io.Reader) (SimulationPlan, error) {
	plan := defaultPlan()

	if err := json.NewDecoder(r).Decode(&plan); err != nil {
		return plan, fmt.Errorf("failed to decode simulation plan: %w", err)
	}

	if plan.Nodes < 3*int(plan.FaultTolerance)+1 {
		return plan, fmt.Errorf("plan needs at least %d nodes for f=%d", 3*plan.FaultTolerance+1, plan.FaultTolerance)
	}
	if plan.Blocks.Duration == 0 {
		return plan, fmt.Errorf("plan needs a non-zero block duration")
	}

	return plan, nil
}

func defaultPlan() SimulationPlan {
	return SimulationPlan{
		Nodes:          4,
		FaultTolerance: 1,
		Blocks: BlockPlan{
			Genesis:  1,
			Duration: 100,
		},
		Feeds: FeedPlan{
			FastGasWei: bigIntStr{big.NewInt(1_000_000_000)},
			LinkEth:    bigIntStr{big.NewInt(2_000_000_000_000_000_000)},
		},
		Fees: FeePlan{
			PremiumPPB:           250_000_000,
			FlatFeeMicroLink:     100,
			CheckGasLimit:        5_000_000,
			StalenessSeconds:     90_000,
			GasCeilingMultiplier: 3,
			MinUpkeepSpend:       bigIntStr{big.NewInt(0)},
			MaxPerformGas:        5_000_000,
			MaxCheckDataSize:     2_000,
			MaxPerformDataSize:   2_000,
			FallbackGasPrice:     bigIntStr{big.NewInt(200_000_000_000)},
			FallbackLinkPrice:    bigIntStr{big.NewInt(2_000_000_000_000_000_000)},
		},
		Upkeeps: []GenerateUpkeepEvent{
			{
				Count:           10,
				StartID:         0,
				ExecuteGas:      250_000,
				PerformGas:      100_000,
				Fund:            bigIntStr{new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000))},
				EligibilityFunc: "10x",
				OffsetFunc:      "2x",
			},
		},
	}
}
