package types

// CheckFailureReason explains why a read-only eligibility check found an
// upkeep not performable. Carried on the CheckResult surface as uint8.
type CheckFailureReason uint8

const (
	CheckFailureNone CheckFailureReason = iota
	CheckFailureUpkeepCancelled
	CheckFailureUpkeepPaused
	CheckFailureTargetCheckReverted
	CheckFailureUpkeepNotNeeded
	CheckFailurePerformDataExceedsLimit
	CheckFailureInsufficientBalance
	CheckFailureRegistryPaused
)

func (r CheckFailureReason) String() string {
	switch r {
	case CheckFailureNone:
		return "none"
	case CheckFailureUpkeepCancelled:
		return "upkeep cancelled"
	case CheckFailureUpkeepPaused:
		return "upkeep paused"
	case CheckFailureTargetCheckReverted:
		return "target check reverted"
	case CheckFailureUpkeepNotNeeded:
		return "upkeep not needed"
	case CheckFailurePerformDataExceedsLimit:
		return "perform data exceeds limit"
	case CheckFailureInsufficientBalance:
		return "insufficient balance"
	case CheckFailureRegistryPaused:
		return "registry paused"
	default:
		return "unknown"
	}
}
