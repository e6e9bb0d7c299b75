package chain

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// SimulatedFeeds serves settable feed answers with update timestamps so
// staleness fallback paths can be exercised.
type SimulatedFeeds struct {
	mu      sync.RWMutex
	answers map[Feed]feedRound
}

type feedRound struct {
	answer    *big.Int
	updatedAt time.Time
}

func NewSimulatedFeeds() *SimulatedFeeds {
	return &SimulatedFeeds{answers: make(map[Feed]feedRound)}
}

// SetAnswer records a new round for the feed.
func (f *SimulatedFeeds) SetAnswer(feed Feed, answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.answers[feed] = feedRound{
		answer:    new(big.Int).Set(answer),
		updatedAt: updatedAt,
	}
}

func (f *SimulatedFeeds) ReadFeed(feed Feed) (*big.Int, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	round, ok := f.answers[feed]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("no round recorded for feed %d", feed)
	}

	return new(big.Int).Set(round.answer), round.updatedAt, nil
}
