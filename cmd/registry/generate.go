package main

import (
	"fmt"
	"math/big"

	"github.com/Maldris/mathparse"
	"github.com/shopspring/decimal"
)

var ErrUpkeepGeneration = fmt.Errorf("failed to generate upkeep")

// SimulatedUpkeep is one generated upkeep plus its eligibility
// schedule over the simulated block range.
type SimulatedUpkeep struct {
	ID                  *big.Int
	ExecuteGas          uint32
	PerformGas          uint64
	Fund                *big.Int
	SkipSigVerification bool
	AlwaysEligible      bool
	EligibleAt          []*big.Int
}

// GenerateAllUpkeeps expands every population in the plan into concrete
// upkeeps with per-block eligibility schedules.
func GenerateAllUpkeeps(plan SimulationPlan) ([]*SimulatedUpkeep, error) {
	generated := make([]*SimulatedUpkeep, 0)
	genesis := new(big.Int).SetUint64(plan.Blocks.Genesis)
	limit := new(big.Int).SetUint64(plan.Blocks.Genesis + plan.Blocks.Duration)

	for idx, event := range plan.Upkeeps {
		simulated, err := generateSimulatedUpkeeps(event, genesis, limit)
		if err != nil {
			return nil, fmt.Errorf("%w at index %d", err, idx)
		}

		generated = append(generated, simulated...)
	}

	return generated, nil
}

func generateSimulatedUpkeeps(event GenerateUpkeepEvent, start, limit *big.Int) ([]*SimulatedUpkeep, error) {
	if event.EligibilityFunc == "always" || event.EligibilityFunc == "never" {
		return generateBasicSimulatedUpkeeps(event, event.EligibilityFunc == "always"), nil
	}

	return generateFuncSimulatedUpkeeps(event, start, limit)
}

func generateBasicSimulatedUpkeeps(event GenerateUpkeepEvent, alwaysEligible bool) []*SimulatedUpkeep {
	generated := make([]*SimulatedUpkeep, 0, event.Count)

	for y := 1; y <= event.Count; y++ {
		generated = append(generated, &SimulatedUpkeep{
			ID:                  big.NewInt(event.StartID + int64(y)),
			ExecuteGas:          event.ExecuteGas,
			PerformGas:          event.PerformGas,
			Fund:                fundOrZero(event),
			SkipSigVerification: event.SkipSigVerification,
			AlwaysEligible:      alwaysEligible,
			EligibleAt:          make([]*big.Int, 0),
		})
	}

	return generated
}

func generateFuncSimulatedUpkeeps(event GenerateUpkeepEvent, start, limit *big.Int) ([]*SimulatedUpkeep, error) {
	generated := make([]*SimulatedUpkeep, 0, event.Count)
	offset := mathparse.NewParser(event.OffsetFunc)

	offset.Resolve()

	for y := 1; y <= event.Count; y++ {
		sym := &SimulatedUpkeep{
			ID:                  big.NewInt(event.StartID + int64(y)),
			ExecuteGas:          event.ExecuteGas,
			PerformGas:          event.PerformGas,
			Fund:                fundOrZero(event),
			SkipSigVerification: event.SkipSigVerification,
			EligibleAt:          make([]*big.Int, 0),
		}

		var genesis *big.Int
		if offset.FoundResult() {
			genesis = big.NewInt(int64(offset.GetValueResult()))
		} else {
			// stagger each upkeep's genesis by its index
			g, err := calcFromTokens(offset.GetTokens(), big.NewInt(int64(y)))
			if err != nil {
				return nil, err
			}

			genesis = new(big.Int).Add(start, g.BigInt())
		}

		if err := generateEligibles(sym, genesis, limit, event.EligibilityFunc); err != nil {
			return nil, err
		}

		generated = append(generated, sym)
	}

	return generated, nil
}

func generateEligibles(upkeep *SimulatedUpkeep, genesis, limit *big.Int, f string) error {
	p := mathparse.NewParser(f)
	p.Resolve()

	if p.FoundResult() {
		return fmt.Errorf("%w: eligibility must be a function of x", ErrUpkeepGeneration)
	}

	var i int64
	nextValue := big.NewInt(0)
	tokens := p.GetTokens()

	for nextValue.Cmp(limit) < 0 {
		if nextValue.Cmp(genesis) >= 0 {
			upkeep.EligibleAt = append(upkeep.EligibleAt, nextValue)
		}

		value, err := calcFromTokens(tokens, big.NewInt(i))
		if err != nil {
			return err
		}

		next := new(big.Int).Add(genesis, value.Round(0).BigInt())
		if next.Cmp(nextValue) <= 0 {
			return fmt.Errorf("%w: eligibility function must increase in x", ErrUpkeepGeneration)
		}

		nextValue = next
		i++
	}

	return nil
}

func calcFromTokens(tokens []mathparse.Token, x *big.Int) (decimal.Decimal, error) {
	value := decimal.NewFromInt(0)
	action := "+"

	for _, token := range tokens {
		switch token.Type {
		case 2, 3:
			var tVal decimal.Decimal

			if token.Value == "x" {
				tVal = decimal.NewFromBigInt(x, 0)
			} else {
				tVal = decimal.NewFromFloat(token.ParseValue)
			}

			value = operate(value, tVal, action)
		case 4:
			action = token.Value
		default:
		}
	}

	return value, nil
}

func operate(a, b decimal.Decimal, op string) decimal.Decimal {
	switch op {
	case "+":
		return a.Add(b)
	case "*":
		return a.Mul(b)
	case "-":
		return a.Sub(b)
	default:
	}

	return decimal.Zero
}

func fundOrZero(event GenerateUpkeepEvent) *big.Int {
	if event.Fund.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(event.Fund.Int)
}

func (u *SimulatedUpkeep) eligibleIn(block uint64) bool {
	if u.AlwaysEligible {
		return true
	}

	target := new(big.Int).SetUint64(block)
	for _, at := range u.EligibleAt {
		if at.Cmp(target) == 0 {
			return true
		}
	}

	return false
}
