package chain

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	ocr2keepers "github.com/smartcontractkit/chainlink-common/pkg/types/automation"
)

// DefaultHistoryDepth mirrors the substrate's bounded hash lookback.
const DefaultHistoryDepth = 256

// SimulatedChain produces a deterministic block sequence with a bounded
// hash history. Hashes are derived from the block number and a salt so
// reorganizations can be simulated by changing the salt.
type SimulatedChain struct {
	mu      sync.RWMutex
	number  uint64
	salt    []byte
	history uint64
}

func NewSimulatedChain(genesis uint64, salt []byte) *SimulatedChain {
	return &SimulatedChain{
		number:  genesis,
		salt:    append([]byte(nil), salt...),
		history: DefaultHistoryDepth,
	}
}

func (c *SimulatedChain) hashAt(number uint64) [32]byte {
	buf := make([]byte, 8, 8+len(c.salt))
	binary.BigEndian.PutUint64(buf, number)

	var hash [32]byte
	copy(hash[:], crypto.Keccak256(append(buf, c.salt...)))
	return hash
}

func (c *SimulatedChain) LatestBlock() ocr2keepers.BlockKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ocr2keepers.BlockKey{
		Number: ocr2keepers.BlockNumber(c.number),
		Hash:   c.hashAt(c.number),
	}
}

func (c *SimulatedChain) BlockHash(number uint64) ([32]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if number > c.number {
		return [32]byte{}, false
	}
	if c.number-number > c.history {
		return [32]byte{}, false
	}

	return c.hashAt(number), true
}

func (c *SimulatedChain) HistoryDepth() uint64 {
	return c.history
}

// Advance moves the chain head forward by n blocks.
func (c *SimulatedChain) Advance(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.number += n
}

// Reorg replaces the hash derivation salt, invalidating every
// previously observed hash while keeping block numbers.
func (c *SimulatedChain) Reorg(salt []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.salt = append([]byte(nil), salt...)
}
