package registry

import (
	"math/big"
	"time"

	"github.com/smartcontractkit/automation-registry/pkg/chain"
	"github.com/smartcontractkit/automation-registry/pkg/config"
)

// Fixed resource overheads billed on top of what the target consumed.
// The registry and signature verification portions approximate the cost
// of the surrounding bookkeeping; the per-byte surcharge covers the
// execution environment's cost of carrying the payload.
const (
	// RegistryGasOverhead is the fixed per-item bookkeeping cost.
	RegistryGasOverhead = 80_000
	// VerifySigGasOverhead is billed once per signature, per item.
	// Charging every item the full verification overhead in a batch
	// over-charges slightly; that is the intended accounting.
	VerifySigGasOverhead = 7_500
	// EnvSurchargePerByte is the execution-environment surcharge per
	// payload byte.
	EnvSurchargePerByte = 16
)

var (
	oneBillion = big.NewInt(1_000_000_000)
	microToWei = big.NewInt(1_000_000_000_000)
	nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// PaymentBreakdown itemizes one computed payment in juels.
type PaymentBreakdown struct {
	GasUsed     uint64
	GasOverhead uint64
	// GasPayment is the base: billed units times effective unit price,
	// converted to fee units.
	GasPayment *big.Int
	// Premium is the proportional parts-per-billion cut.
	Premium *big.Int
	// FlatFee is the fixed per-perform fee.
	FlatFee *big.Int
	// Total is GasPayment + Premium + FlatFee.
	Total *big.Int
}

// PaymentEngine converts metered resource consumption into fees. It
// reads the price feeds once per transmit call so every item in a batch
// bills under the same prices.
type PaymentEngine struct {
	feeds chain.FeedSource
	now   func() time.Time
}

func NewPaymentEngine(feeds chain.FeedSource) *PaymentEngine {
	return &PaymentEngine{feeds: feeds, now: time.Now}
}

// FeedPrices is a per-call snapshot of the two feeds after staleness
// fallback has been applied.
type FeedPrices struct {
	GasWei  *big.Int
	LinkEth *big.Int
}

// Prices reads both feeds, substituting the configured fallbacks when a
// feed is stale or reports a non-positive answer.
func (p *PaymentEngine) Prices(cfg config.OnchainConfig) FeedPrices {
	staleAfter := time.Duration(cfg.StalenessSeconds.Int64()) * time.Second

	gasWei := p.readWithFallback(chain.FastGasFeed, staleAfter, cfg.FallbackGasPrice)
	linkEth := p.readWithFallback(chain.LinkNativeFeed, staleAfter, cfg.FallbackLinkPrice)

	return FeedPrices{GasWei: gasWei, LinkEth: linkEth}
}

func (p *PaymentEngine) readWithFallback(feed chain.Feed, staleAfter time.Duration, fallback *big.Int) *big.Int {
	answer, updatedAt, err := p.feeds.ReadFeed(feed)
	if err != nil || answer.Sign() <= 0 {
		return new(big.Int).Set(fallback)
	}
	if staleAfter > 0 && p.now().Sub(updatedAt) > staleAfter {
		return new(big.Int).Set(fallback)
	}
	return answer
}

// Overhead computes the fixed portion billed for one batch item.
func Overhead(numSignatures int, payloadSize int) uint64 {
	return RegistryGasOverhead +
		VerifySigGasOverhead*uint64(numSignatures) +
		EnvSurchargePerByte*uint64(payloadSize)
}

// Calculate bills one executed item. reportedGasWei is the unit price
// the reporter claims; it is capped at the feed price times the ceiling
// multiplier so a malicious reporter cannot inflate the bill.
func (p *PaymentEngine) Calculate(
	cfg config.OnchainConfig,
	prices FeedPrices,
	reportedGasWei *big.Int,
	gasUsed uint64,
	overhead uint64,
) PaymentBreakdown {
	ceiling := new(big.Int).Mul(prices.GasWei, big.NewInt(int64(cfg.GasCeilingMultiplier)))
	effective := reportedGasWei
	if effective == nil || effective.Sign() <= 0 || effective.Cmp(ceiling) > 0 {
		effective = ceiling
	}

	return p.bill(cfg, prices, effective, gasUsed, overhead)
}

// MaxPayment is the conservative upper bound used as the funding floor:
// the bill for the full gas limit at the ceiling price with maximum
// overhead. The eligibility guard holding balances to this bound is why
// the actual debit can never be blocked by insufficient funds.
func (p *PaymentEngine) MaxPayment(cfg config.OnchainConfig, f uint8, gasLimit uint32) *big.Int {
	prices := p.Prices(cfg)
	ceiling := new(big.Int).Mul(prices.GasWei, big.NewInt(int64(cfg.GasCeilingMultiplier)))
	overhead := Overhead(int(f)+1, int(cfg.MaxPerformDataSize))

	breakdown := p.bill(cfg, prices, ceiling, uint64(gasLimit), overhead)
	return breakdown.Total
}

func (p *PaymentEngine) bill(
	cfg config.OnchainConfig,
	prices FeedPrices,
	gasWei *big.Int,
	gasUsed uint64,
	overhead uint64,
) PaymentBreakdown {
	linkEth := prices.LinkEth
	if linkEth.Sign() <= 0 {
		linkEth = cfg.FallbackLinkPrice
	}

	billedUnits := new(big.Int).SetUint64(gasUsed + overhead)

	// billedUnits * gasWei * 1e18 / linkEth
	gasPayment := new(big.Int).Mul(billedUnits, gasWei)
	gasPayment.Mul(gasPayment, nativeUnit)
	gasPayment.Div(gasPayment, linkEth)

	premium := new(big.Int).Mul(gasPayment, big.NewInt(int64(cfg.PaymentPremiumPPB)))
	premium.Div(premium, oneBillion)

	flatFee := new(big.Int).Mul(big.NewInt(int64(cfg.FlatFeeMicroLink)), microToWei)

	total := new(big.Int).Add(gasPayment, premium)
	total.Add(total, flatFee)

	return PaymentBreakdown{
		GasUsed:     gasUsed,
		GasOverhead: overhead,
		GasPayment:  gasPayment,
		Premium:     premium,
		FlatFee:     flatFee,
		Total:       total,
	}
}
