package eip20

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
)

// AllowanceManager answers allowance queries for one owner. Nothing is cached.
type AllowanceManager struct {
	caller   Caller
	contract common.Address
	owner    common.Address
}

func NewAllowanceManager(caller Caller, contract, owner common.Address) *AllowanceManager {
	return &AllowanceManager{
		caller:   caller,
		contract: contract,
		owner:    owner,
	}
}

// Allowance reads allowance(owner, spender) at block.
func (m *AllowanceManager) Allowance(ctx context.Context, spender common.Address, block rpc.BlockNumber) (*big.Int, error) {
	out, err := call(ctx, m.caller, m.contract, contract.Allowance(m.owner, spender), block, contract.MethodAllowance)
	if err != nil {
		return nil, err
	}
	return contract.DecodeUint256(out)
}

// ApproveTransactionData builds approve(spender, amount) calldata for the
// contract.
func (m *AllowanceManager) ApproveTransactionData(spender common.Address, amount *big.Int) ethereum.TransactionData {
	return ethereum.NewTransactionData(m.contract, contract.Approve(spender, amount))
}
