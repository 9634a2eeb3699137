package scale

import "errors"

// Errors returned by the scaling registry and driver.
var (
	// ErrDuplicateStrategy indicates a strategy name is already registered.
	ErrDuplicateStrategy = errors.New("scaling strategy already registered")

	// ErrUnknownStrategy indicates a strategy name is not registered.
	ErrUnknownStrategy = errors.New("unknown scaling strategy")

	// ErrRegistrySealed indicates registration after the registry was
	// first used.
	ErrRegistrySealed = errors.New("scaling registry is sealed")

	// ErrEmptyPipeline indicates scaling was needed but no strategies are
	// configured.
	ErrEmptyPipeline = errors.New("no auto scaling methods configured")

	// ErrReferenceMutated indicates a strategy changed the reference world
	// size itself.
	ErrReferenceMutated = errors.New("scaling strategy changed the reference world size")

	// ErrInvalidWorldSize indicates a non-positive target world size.
	ErrInvalidWorldSize = errors.New("world size must be positive")
)
