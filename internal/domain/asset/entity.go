package asset

import "strings"

// ID identifies a fungible asset class across chains, independent of the
// token contract that represents it on any particular chain.
type ID uint32

// Address is a chain-local token contract address in hex form.
type Address string

// IsZero reports whether the address is empty or the all-zero address.
func (a Address) IsZero() bool {
	s := strings.TrimPrefix(strings.ToLower(string(a)), "0x")
	if s == "" {
		return true
	}
	for _, c := range s {
		if c != '0' {
			return false
		}
	}
	return true
}

// Normalized returns the address in canonical lowercase form.
func (a Address) Normalized() Address {
	return Address(strings.ToLower(string(a)))
}

// Asset describes an asset class. Immutable once referenced by a fund.
type Asset struct {
	ID       ID     `db:"id"`
	Symbol   string `db:"symbol"`
	Decimals uint8  `db:"decimals"`
}
