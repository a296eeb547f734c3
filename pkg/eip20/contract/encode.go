package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Amount arguments below must lie in [0, 2^256-1]; a nil amount encodes as
// zero. Out of range amounts panic, as they can never form a valid call.

// BalanceOf encodes balanceOf(owner).
func BalanceOf(owner common.Address) []byte {
	return pack(MethodBalanceOf, owner)
}

// Allowance encodes allowance(owner, spender).
func Allowance(owner, spender common.Address) []byte {
	return pack(MethodAllowance, owner, spender)
}

// Transfer encodes transfer(to, amount).
func Transfer(to common.Address, amount *big.Int) []byte {
	return pack(MethodTransfer, to, uint256Arg(amount))
}

// Approve encodes approve(spender, amount).
func Approve(spender common.Address, amount *big.Int) []byte {
	return pack(MethodApprove, spender, uint256Arg(amount))
}

// Name encodes name().
func Name() []byte {
	return pack(MethodName)
}

// Symbol encodes symbol().
func Symbol() []byte {
	return pack(MethodSymbol)
}

// Decimals encodes decimals().
func Decimals() []byte {
	return pack(MethodDecimals)
}
