package factory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a hex account address, with or without the 0x prefix.
// Checksum casing is not enforced.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Addresses returns the deployed addresses of contracts, preserving order.
// The result is never nil.
func Addresses(contracts []*Contract) []common.Address {
	out := make([]common.Address, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, c.Address())
	}
	return out
}

// HexAddresses renders addresses in EIP-55 checksum form. The result is never nil.
func HexAddresses(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}
	return out
}
