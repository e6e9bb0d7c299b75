// Package chain defines the narrow contracts the registry core has with
// its execution substrate: a serialized block sequence with bounded hash
// history, read-only price feeds, an opaque fungible token, and the
// capability-typed targets that upkeeps execute against. Simulated
// implementations back the tests and the simulator binary.
package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ocr2keepers "github.com/smartcontractkit/chainlink-common/pkg/types/automation"
)

// BlockSource exposes the substrate's monotonically increasing block
// sequence. BlockHash only answers within a bounded retained history;
// anything older reads as unavailable and must be treated as stale.
type BlockSource interface {
	LatestBlock() ocr2keepers.BlockKey
	BlockHash(number uint64) ([32]byte, bool)
	HistoryDepth() uint64
}

// Feed identifies one of the price feeds the payment engine reads.
type Feed uint8

const (
	// FastGasFeed is the unit price of execution resources.
	FastGasFeed Feed = iota
	// LinkNativeFeed converts native-denominated cost into fee units.
	LinkNativeFeed
)

// FeedSource is a read-only oracle collaborator. Callers apply their own
// staleness policy to the returned update time.
type FeedSource interface {
	ReadFeed(feed Feed) (answer *big.Int, updatedAt time.Time, err error)
}

// Token is the opaque fungible balance primitive. The registry only
// moves value; it never inspects supply or allowances.
type Token interface {
	Address() common.Address
	Transfer(from, to common.Address, amount *big.Int) error
}

// TokenReceiver is implemented by contracts that accept direct funding
// through the token's transfer-and-call hook.
type TokenReceiver interface {
	OnTokenTransfer(caller, from common.Address, amount *big.Int, data []byte) error
}

// Target is the capability handed to the registry at the execution
// boundary. The core assumes nothing about a target beyond this
// contract: a read-only eligibility check and a metered perform.
type Target interface {
	CheckUpkeep(checkData []byte, gasLimit uint64) (needed bool, performData []byte, gasUsed uint64, err error)
	PerformUpkeep(performData []byte, gasLimit uint64) (success bool, gasUsed uint64)
}

// TargetResolver maps a stored target handle to its capability.
type TargetResolver interface {
	Target(address common.Address) (Target, bool)
}

// ErrTransferFailed wraps token movement failures at the boundary.
var ErrTransferFailed = fmt.Errorf("token transfer failed")
