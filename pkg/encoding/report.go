package encoding

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	ErrEmptyReport     = fmt.Errorf("stale report: no upkeeps in batch")
	ErrInvalidReport   = fmt.Errorf("invalid report")
	ErrMalformedReport = fmt.Errorf("malformed report encoding")
)

// PerformData is one batch item: the block the eligibility check was
// made against and the payload to hand to the target.
type PerformData struct {
	CheckBlockNumber uint32
	CheckBlockhash   [32]byte
	PerformData      []byte
}

// Report is a batch attestation naming upkeeps claimed due. FastGasWei
// and LinkNative are the reporter-observed prices; the payment engine
// caps them against the feed ceiling before billing.
type Report struct {
	FastGasWei *big.Int
	LinkNative *big.Int
	UpkeepIDs  []*big.Int
	Performs   []PerformData
}

var reportArguments abi.Arguments

func init() {
	mustType := func(t string, components []abi.ArgumentMarshaling) abi.Type {
		typ, err := abi.NewType(t, "", components)
		if err != nil {
			panic(fmt.Sprintf("failed to construct report argument type %q: %s", t, err))
		}
		return typ
	}

	performDataComponents := []abi.ArgumentMarshaling{
		{Name: "checkBlockNumber", Type: "uint32"},
		{Name: "checkBlockhash", Type: "bytes32"},
		{Name: "performData", Type: "bytes"},
	}

	reportArguments = abi.Arguments{
		{Name: "fastGasWei", Type: mustType("uint256", nil)},
		{Name: "linkNative", Type: mustType("uint256", nil)},
		{Name: "upkeepIds", Type: mustType("uint256[]", nil)},
		{Name: "wrappedPerformDatas", Type: mustType("tuple(uint32,bytes32,bytes)[]", performDataComponents)},
	}
}

// EncodeReport packs a report into its wire form.
func EncodeReport(report Report) ([]byte, error) {
	if len(report.UpkeepIDs) == 0 {
		return nil, ErrEmptyReport
	}
	if len(report.UpkeepIDs) != len(report.Performs) {
		return nil, fmt.Errorf("%w: id and perform data lengths differ", ErrInvalidReport)
	}

	performs := make([]struct {
		CheckBlockNumber uint32   `json:"checkBlockNumber"`
		CheckBlockhash   [32]byte `json:"checkBlockhash"`
		PerformData      []byte   `json:"performData"`
	}, len(report.Performs))
	for i, perform := range report.Performs {
		performs[i] = struct {
			CheckBlockNumber uint32   `json:"checkBlockNumber"`
			CheckBlockhash   [32]byte `json:"checkBlockhash"`
			PerformData      []byte   `json:"performData"`
		}(perform)
	}

	bts, err := reportArguments.Pack(report.FastGasWei, report.LinkNative, report.UpkeepIDs, performs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack report data", ErrMalformedReport)
	}

	return bts, nil
}

// DecodeReport unpacks a wire report and applies the shape rules: the
// batch must be non-empty, id and perform arrays must pair up, and no
// upkeep id may appear twice.
func DecodeReport(encoded []byte) (Report, error) {
	m := make(map[string]interface{})
	if err := reportArguments.UnpackIntoMap(m, encoded); err != nil {
		return Report{}, fmt.Errorf("%w: %s", ErrMalformedReport, err)
	}

	fastGasWei, ok := m["fastGasWei"].(*big.Int)
	if !ok {
		return Report{}, fmt.Errorf("%w: missing fast gas value", ErrMalformedReport)
	}

	linkNative, ok := m["linkNative"].(*big.Int)
	if !ok {
		return Report{}, fmt.Errorf("%w: missing conversion value", ErrMalformedReport)
	}

	upkeepIDs, ok := m["upkeepIds"].([]*big.Int)
	if !ok {
		return Report{}, fmt.Errorf("%w: missing upkeep ids", ErrMalformedReport)
	}

	rawPerforms, ok := m["wrappedPerformDatas"].([]struct {
		CheckBlockNumber uint32   `json:"checkBlockNumber"`
		CheckBlockhash   [32]byte `json:"checkBlockhash"`
		PerformData      []byte   `json:"performData"`
	})
	if !ok {
		return Report{}, fmt.Errorf("%w: missing wrapped perform data", ErrMalformedReport)
	}

	if len(upkeepIDs) == 0 {
		return Report{}, ErrEmptyReport
	}
	if len(upkeepIDs) != len(rawPerforms) {
		return Report{}, fmt.Errorf("%w: id and perform data lengths differ", ErrInvalidReport)
	}

	seen := make(map[string]struct{}, len(upkeepIDs))
	performs := make([]PerformData, len(rawPerforms))
	for i, id := range upkeepIDs {
		if _, dup := seen[id.String()]; dup {
			return Report{}, fmt.Errorf("%w: duplicate upkeep id %s", ErrInvalidReport, id)
		}
		seen[id.String()] = struct{}{}

		performs[i] = PerformData(rawPerforms[i])
	}

	return Report{
		FastGasWei: fastGasWei,
		LinkNative: linkNative,
		UpkeepIDs:  upkeepIDs,
		Performs:   performs,
	}, nil
}
