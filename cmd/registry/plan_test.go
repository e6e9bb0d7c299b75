package main

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSimulationPlan(t *testing.T) {
	t.Run("defaults fill unset fields", func(t *testing.T) {
		plan, err := DecodeSimulationPlan(strings.NewReader(`{}`))

		require.NoError(t, err)
		assert.Equal(t, 4, plan.Nodes)
		assert.Equal(t, uint8(1), plan.FaultTolerance)
		assert.Equal(t, uint64(100), plan.Blocks.Duration)
		assert.Equal(t, big.NewInt(1_000_000_000), plan.Feeds.FastGasWei.Int)
		require.Len(t, plan.Upkeeps, 1)
		assert.Equal(t, "10x", plan.Upkeeps[0].EligibilityFunc)
	})

	t.Run("explicit fields override defaults", func(t *testing.T) {
		raw := `{
			"nodes": 7,
			"faultTolerance": 2,
			"blocks": {"genesis": 500, "duration": 20},
			"fees": {"premiumPPB": 100, "minUpkeepSpend": "1000000000000000000"},
			"upkeeps": [{"count": 2, "fund": "5000", "eligibilityFunc": "always"}]
		}`

		plan, err := DecodeSimulationPlan(strings.NewReader(raw))

		require.NoError(t, err)
		assert.Equal(t, 7, plan.Nodes)
		assert.Equal(t, uint64(500), plan.Blocks.Genesis)
		assert.Equal(t, uint32(100), plan.Fees.PremiumPPB)
		assert.Equal(t, big.NewInt(1_000_000_000_000_000_000), plan.Fees.MinUpkeepSpend.Int)
		require.Len(t, plan.Upkeeps, 1)
		assert.Equal(t, big.NewInt(5000), plan.Upkeeps[0].Fund.Int)
	})

	t.Run("too few nodes for fault tolerance", func(t *testing.T) {
		_, err := DecodeSimulationPlan(strings.NewReader(`{"nodes": 6, "faultTolerance": 2}`))

		assert.Error(t, err)
	})

	t.Run("zero duration", func(t *testing.T) {
		_, err := DecodeSimulationPlan(strings.NewReader(`{"blocks": {"genesis": 1, "duration": 0}}`))

		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeSimulationPlan(strings.NewReader(`{"nodes": `))

		assert.Error(t, err)
	})
}

func TestBigIntStrJSON(t *testing.T) {
	var decoded bigIntStr

	require.NoError(t, json.Unmarshal([]byte(`"123456789012345678901234567890"`), &decoded))
	expected, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, expected, decoded.Int)

	encoded, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, `"123456789012345678901234567890"`, string(encoded))

	assert.Error(t, json.Unmarshal([]byte(`"not a number"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`42`), &decoded))

	zero, err := json.Marshal(bigIntStr{})
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte(`"0"`), zero))
}
