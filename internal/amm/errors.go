package amm

import "errors"

// Every mutating operation either commits in full or returns one of these and
// leaves no partial state behind. ErrAlreadyMigrated is the one exception at the
// caller level: it reports a no-op, not a failure.
var (
	ErrValidation            = errors.New("amm: validation failed")
	ErrArithmeticOverflow    = errors.New("amm: arithmetic overflow")
	ErrInvariantViolation    = errors.New("amm: constant-product invariant violated")
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrInvalidDirection      = errors.New("amm: invalid trade direction")
	ErrOracleDeviation       = errors.New("amm: oracle deviation exceeded")
	ErrStaleOracle           = errors.New("amm: oracle snapshot too old")
	ErrInsufficientHistory   = errors.New("amm: oracle history shorter than window")
	ErrNothingToClaim        = errors.New("amm: nothing to claim")
	ErrAlreadyMigrated       = errors.New("amm: reward record already migrated")
)
