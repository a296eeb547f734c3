package eip20

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// Caller executes read-only contract calls.
type Caller interface {
	Call(ctx context.Context, contract common.Address, data []byte, block rpc.BlockNumber) ([]byte, error)
}

// SyncStateSource reports the ledger client's own sync state.
type SyncStateSource interface {
	SyncState() token.SyncState
	SubscribeSyncState() *pubsub.Subscription[token.SyncState]
}

// Ledger is the node connection a Kit is built on.
type Ledger interface {
	Caller
	SyncStateSource
}

// Sender signs and broadcasts transactions.
type Sender interface {
	SendTransaction(ctx context.Context, tx ethereum.TransactionData) (common.Hash, error)
}

// Indexer lists historical token transfers involving an account.
type Indexer interface {
	// FetchTransfers returns transfers of contract involving account with
	// block number >= startBlock, oldest first.
	FetchTransfers(ctx context.Context, contract, account common.Address, startBlock uint64) ([]token.Transfer, error)
}

// TransferQuery selects stored transfers newest first.
type TransferQuery struct {
	Contract common.Address
	// FromHash restricts the result to records strictly older than this one.
	FromHash *common.Hash
	// Limit caps the number of records; zero or negative means unbounded.
	Limit int
}

// BalanceStorage persists the last fetched balance.
type BalanceStorage interface {
	SaveBalance(ctx context.Context, contract common.Address, balance *big.Int) error
	// LoadBalance returns a NotFoundError when nothing was saved yet.
	LoadBalance(ctx context.Context, contract common.Address) (*big.Int, error)
}

// TransferStorage persists transfer records.
type TransferStorage interface {
	// SaveTransfers upserts records by hash. A stored pending record is
	// replaced by its confirmed counterpart; a confirmed record is never
	// downgraded.
	SaveTransfers(ctx context.Context, transfers []token.Transfer) error
	// LastTransfer returns the confirmed record with the highest block
	// number, or a NotFoundError.
	LastTransfer(ctx context.Context, contract common.Address) (*token.Transfer, error)
	Transfers(ctx context.Context, query TransferQuery) ([]token.Transfer, error)
	PendingTransfers(ctx context.Context, contract common.Address) ([]token.Transfer, error)
}

// Storage is the account-scoped persistence a Kit needs.
type Storage interface {
	BalanceStorage
	TransferStorage
}

// TransferFeed carries batches of newly imported transfers.
type TransferFeed interface {
	Subscribe() *pubsub.Subscription[[]token.Transfer]
	Publish(batch []token.Transfer)
}
