package eip20

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// call runs a contract call and tags failures that carry no category yet as
// transport errors.
func call(ctx context.Context, caller Caller, addr common.Address, data []byte, block rpc.BlockNumber, what string) ([]byte, error) {
	out, err := caller.Call(ctx, addr, data, block)
	if err == nil {
		return out, nil
	}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return nil, fmt.Errorf("failed to call %s: %w", what, err)
	}
	return nil, apperrors.TransportError(err, fmt.Sprintf("failed to call %s", what))
}

// FetchBalance reads balanceOf(owner) at the latest block.
func FetchBalance(ctx context.Context, caller Caller, addr, owner common.Address) (*big.Int, error) {
	out, err := call(ctx, caller, addr, contract.BalanceOf(owner), rpc.LatestBlockNumber, contract.MethodBalanceOf)
	if err != nil {
		return nil, err
	}
	return contract.DecodeUint256(out)
}

// FetchName reads the token name.
func FetchName(ctx context.Context, caller Caller, addr common.Address) (string, error) {
	out, err := call(ctx, caller, addr, contract.Name(), rpc.LatestBlockNumber, contract.MethodName)
	if err != nil {
		return "", err
	}
	return contract.DecodeString(out)
}

// FetchSymbol reads the token symbol.
func FetchSymbol(ctx context.Context, caller Caller, addr common.Address) (string, error) {
	out, err := call(ctx, caller, addr, contract.Symbol(), rpc.LatestBlockNumber, contract.MethodSymbol)
	if err != nil {
		return "", err
	}
	return contract.DecodeString(out)
}

// FetchDecimals reads the token decimals.
func FetchDecimals(ctx context.Context, caller Caller, addr common.Address) (int, error) {
	out, err := call(ctx, caller, addr, contract.Decimals(), rpc.LatestBlockNumber, contract.MethodDecimals)
	if err != nil {
		return 0, err
	}
	d, err := contract.DecodeUint8(out)
	if err != nil {
		return 0, err
	}
	return int(d), nil
}

// FetchTokenInfo reads name, symbol and decimals concurrently.
func FetchTokenInfo(ctx context.Context, caller Caller, addr common.Address) (*token.Info, error) {
	var info token.Info
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info.Name, err = FetchName(gctx, caller, addr)
		return err
	})
	g.Go(func() (err error) {
		info.Symbol, err = FetchSymbol(gctx, caller, addr)
		return err
	})
	g.Go(func() (err error) {
		info.Decimals, err = FetchDecimals(gctx, caller, addr)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &info, nil
}
