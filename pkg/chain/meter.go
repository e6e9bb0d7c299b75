package chain

// GasMeter tracks the resource budget of one top-level call. The
// substrate guarantees a deterministic consumed counter mid-execution;
// the meter is that counter's local mirror.
type GasMeter struct {
	limit uint64
	used  uint64
}

func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Remaining returns the unspent portion of the call budget.
func (m *GasMeter) Remaining() uint64 {
	if m.used >= m.limit {
		return 0
	}
	return m.limit - m.used
}

// Used returns the units consumed so far.
func (m *GasMeter) Used() uint64 {
	return m.used
}

// Spend consumes units from the budget, returning false without
// mutation when the budget cannot cover them.
func (m *GasMeter) Spend(units uint64) bool {
	if units > m.Remaining() {
		return false
	}
	m.used += units
	return true
}
