package registry

import "fmt"

// Rejection taxonomy. Whole-call aborts surface one of these; per-item
// skips inside a transmit batch never do.
var (
	// authorization
	ErrOnlyCallableByOwner            = fmt.Errorf("only callable by owner")
	ErrOnlyCallableByAdmin            = fmt.Errorf("only callable by upkeep admin")
	ErrOnlyCallableByOwnerOrAdmin     = fmt.Errorf("only callable by owner or upkeep admin")
	ErrOnlyCallableByOwnerOrRegistrar = fmt.Errorf("only callable by owner or registrar")
	ErrOnlyCallableByProposedAdmin    = fmt.Errorf("only callable by proposed admin")
	ErrOnlyCallableByPayee            = fmt.Errorf("only callable by payee")
	ErrOnlyCallableByProposedPayee    = fmt.Errorf("only callable by proposed payee")
	ErrOnlyCallableByToken            = fmt.Errorf("only callable by ledger token")
	ErrOnlySimulatedCaller            = fmt.Errorf("only callable by simulation caller")
	ErrOnlyActiveTransmitters         = fmt.Errorf("only callable by active transmitters")

	// quorum
	ErrConfigDigestMismatch        = fmt.Errorf("config digest mismatch")
	ErrIncorrectNumberOfSignatures = fmt.Errorf("incorrect number of signatures")
	ErrOnlyActiveSigners           = fmt.Errorf("signature from inactive signer")
	ErrDuplicateSigners            = fmt.Errorf("duplicate signer in signature set")
	ErrInvalidSignature            = fmt.Errorf("unrecoverable signature")

	// report shape / staleness
	ErrStaleReport = fmt.Errorf("stale report")

	// funding
	ErrInsufficientFunds = fmt.Errorf("insufficient funds")

	// state
	ErrRegistryPaused                    = fmt.Errorf("registry is paused")
	ErrUpkeepNotFound                    = fmt.Errorf("upkeep does not exist")
	ErrUpkeepAlreadyExists               = fmt.Errorf("upkeep already exists")
	ErrUpkeepCancelled                   = fmt.Errorf("upkeep is cancelled")
	ErrUpkeepNotCancelled                = fmt.Errorf("upkeep is not cancelled")
	ErrTransmitterNotFound               = fmt.Errorf("transmitter does not exist")
	ErrCannotCancel                      = fmt.Errorf("cancellation already pending")
	ErrOnlyPausedUpkeep                  = fmt.Errorf("upkeep is not paused")
	ErrOnlyUnpausedUpkeep                = fmt.Errorf("upkeep is already paused")
	ErrGasLimitOutsideRange              = fmt.Errorf("gas limit outside allowed range")
	ErrCheckDataExceedsLimit             = fmt.Errorf("check data exceeds size limit")
	ErrMaxCheckDataSizeCanOnlyIncrease   = fmt.Errorf("max check data size can only increase")
	ErrMaxPerformDataSizeCanOnlyIncrease = fmt.Errorf("max perform data size can only increase")
	ErrNotAContract                      = fmt.Errorf("target does not resolve to a contract")
	ErrInvalidRecipient                  = fmt.Errorf("invalid recipient")
	ErrInvalidPayee                      = fmt.Errorf("invalid payee")
	ErrInvalidDataLength                 = fmt.Errorf("invalid data length")
	ErrValueNotChanged                   = fmt.Errorf("value not changed")
	ErrArrayHasNoEntries                 = fmt.Errorf("array has no entries")

	// execution budget
	ErrInsufficientGasForExecution = fmt.Errorf("insufficient call budget to attempt execution")

	// migration
	ErrMigrationNotPermitted = fmt.Errorf("migration not permitted")
	ErrUnknownDestination    = fmt.Errorf("unknown destination registry")
)
