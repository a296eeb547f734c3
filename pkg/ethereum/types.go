package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// TransactionData is an unsigned contract call ready to be signed and sent.
type TransactionData struct {
	To    common.Address
	Value *big.Int
	Input []byte
}

// NewTransactionData builds a call to contract carrying no native value.
func NewTransactionData(contract common.Address, input []byte) TransactionData {
	return TransactionData{
		To:    contract,
		Value: new(big.Int),
		Input: input,
	}
}

// blockNumberArg maps a block reference onto the argument ethclient expects:
// nil for latest, a negative rpc.BlockNumber for the other tags.
func blockNumberArg(block rpc.BlockNumber) *big.Int {
	if block == rpc.LatestBlockNumber {
		return nil
	}
	return big.NewInt(int64(block))
}
