package factory

import "errors"

var (
	// ErrContractNotFound is returned when no contract was deployed at an address.
	ErrContractNotFound = errors.New("contract not found")

	// ErrInvalidAddress is returned when a string is not a 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidCreator is returned when the creating account is the zero address.
	ErrInvalidCreator = errors.New("creator must be a non-zero address")

	// ErrInvalidArgument is returned when a name or symbol exceeds MaxLabelLength.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateAddress is returned by a store when a derived address is already taken.
	// With a fixed factory address and strictly increasing nonces this indicates
	// the store was reset without changing factory.address.
	ErrDuplicateAddress = errors.New("contract address already deployed")
)
