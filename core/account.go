package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Account is an Ethereum address in EIP-55 checksum form.
type Account string

// ParseAccount validates a hex address as returned by a signing agent and
// normalises it to its checksum form.
func ParseAccount(s string) (Account, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return Account(common.HexToAddress(s).Hex()), nil
}

// Address returns the account as a go-ethereum address.
func (a Account) Address() common.Address {
	return common.HexToAddress(string(a))
}

func (a Account) String() string {
	return string(a)
}

// Short renders the account the way wallet UIs do: 0xAbCd...1234.
func (a Account) Short() string {
	if len(a) < 10 {
		return string(a)
	}
	return string(a[:6]) + "..." + string(a[len(a)-4:])
}
