// Package contract encodes EIP-20 method calls and decodes their results.
//
// Payloads follow the Solidity ABI: a 4 byte selector (first bytes of the
// keccak256 hash of the canonical signature) followed by 32 byte aligned
// arguments, addresses left-padded and integers big-endian.
package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Standard EIP-20 ABI
const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

const (
	MethodName      = "name"
	MethodSymbol    = "symbol"
	MethodDecimals  = "decimals"
	MethodBalanceOf = "balanceOf"
	MethodAllowance = "allowance"
	MethodTransfer  = "transfer"
	MethodApprove   = "approve"
)

var (
	parsedABI = mustParseABI()

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// TransferEventTopic is the topic of Transfer(address,address,uint256).
	TransferEventTopic = parsedABI.Events["Transfer"].ID
	// ApprovalEventTopic is the topic of Approval(address,address,uint256).
	ApprovalEventTopic = parsedABI.Events["Approval"].ID
)

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}

// ABI returns the parsed EIP-20 ABI.
func ABI() abi.ABI {
	return parsedABI
}

// Selector returns the 4 byte selector of the named method.
func Selector(method string) []byte {
	m, ok := parsedABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("unknown EIP-20 method %q", method))
	}
	return common.CopyBytes(m.ID)
}

// pack encodes a call. Arguments are validated by the exported constructors,
// so a pack failure is a programming error.
func pack(method string, args ...any) []byte {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("failed to pack %s: %v", method, err))
	}
	return data
}

func uint256Arg(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		panic(fmt.Sprintf("amount %s out of uint256 range", amount))
	}
	return amount
}
