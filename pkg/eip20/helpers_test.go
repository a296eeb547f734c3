package eip20

import (
	"bytes"
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
)

var (
	testContract = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testAccount  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testOther    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func isCall(data []byte, method string) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], contract.Selector(method))
}

// balanceCaller answers balanceOf with balance and counts the calls.
func balanceCaller(balance *big.Int, calls *int32Counter) func(context.Context, common.Address, []byte, rpc.BlockNumber) ([]byte, error) {
	return func(_ context.Context, _ common.Address, data []byte, _ rpc.BlockNumber) ([]byte, error) {
		if isCall(data, contract.MethodBalanceOf) {
			if calls != nil {
				calls.Inc()
			}
			return word(balance), nil
		}
		return nil, nil
	}
}

// drain collects everything delivered on c until it stays quiet for a while.
func drain[T any](c <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-c:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-time.After(150 * time.Millisecond):
			return out
		}
	}
}

type int32Counter struct{ n atomic.Int32 }

func (c *int32Counter) Inc()        { c.n.Add(1) }
func (c *int32Counter) Load() int32 { return c.n.Load() }
