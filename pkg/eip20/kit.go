// Package eip20 tracks the balance, allowances and transfer history of one
// account on one EIP-20 token contract.
package eip20

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/chainsafe/eip20-kit/internal/metrics"
	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
	"github.com/chainsafe/eip20-kit/pkg/eip20/state"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// Kit reconciles the ledger's sync state, balance refreshes and imported
// transfers into a single observable account state.
type Kit struct {
	contract common.Address
	account  common.Address
	ledger   SyncStateSource
	sender   Sender
	logger   *zap.Logger

	balances     *BalanceManager
	allowances   *AllowanceManager
	transactions *TransactionManager
	state        *state.Store

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New wires already constructed managers. The state is seeded from the
// ledger's current sync state and the cached balance.
func New(
	contract, account common.Address,
	ledger SyncStateSource,
	sender Sender,
	balances *BalanceManager,
	allowances *AllowanceManager,
	transactions *TransactionManager,
	opts ...Option,
) *Kit {
	s := applyOptions(opts)
	k := &Kit{
		contract:     contract,
		account:      account,
		ledger:       ledger,
		sender:       sender,
		logger:       s.logger.With(zap.String("contract", contract.Hex()), zap.String("account", account.Hex())),
		balances:     balances,
		allowances:   allowances,
		transactions: transactions,
		state:        state.New(),
		stopCh:       make(chan struct{}),
	}
	k.state.SetSyncState(seedSyncState(ledger.SyncState()))
	k.state.SetBalance(balances.Balance())
	balances.SetDelegate(k)
	return k
}

// Instance builds a Kit and its managers for one (account, contract) pair.
// The ledger doubles as Sender when it implements it.
func Instance(
	ctx context.Context,
	ledger Ledger,
	storage Storage,
	feed TransferFeed,
	contract, account common.Address,
	opts ...Option,
) (*Kit, error) {
	balances, err := NewBalanceManager(ctx, ledger, storage, contract, account, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance manager: %w", err)
	}
	var sender Sender
	if s, ok := ledger.(Sender); ok {
		sender = s
	}
	return New(
		contract, account, ledger, sender,
		balances,
		NewAllowanceManager(ledger, contract, account),
		NewTransactionManager(storage, feed, contract, account, opts...),
		opts...,
	), nil
}

// TransferImporter is a syncer the scheduler drives.
type TransferImporter interface {
	ContractAddress() common.Address
	AccountAddress() common.Address
	ImportNewTransfers(ctx context.Context) ([]token.Transfer, bool)
}

// SyncerRegistry accepts at most one importer per (account, contract).
type SyncerRegistry interface {
	AddTransactionSyncer(importer TransferImporter) error
}

// AddTransactionSyncer creates a syncer for the pair and registers it.
func AddTransactionSyncer(
	registry SyncerRegistry,
	indexer Indexer,
	storage TransferStorage,
	contract, account common.Address,
	opts ...Option,
) (*TransactionSyncer, error) {
	syncer := NewTransactionSyncer(indexer, storage, contract, account, opts...)
	if err := registry.AddTransactionSyncer(syncer); err != nil {
		return nil, err
	}
	return syncer, nil
}

// seedSyncState maps a ledger state onto the account state before any
// balance is fetched.
func seedSyncState(ledger token.SyncState) token.SyncState {
	switch ledger.Kind {
	case token.KindNotSynced:
		return ledger
	case token.KindSyncing:
		return token.Syncing(ledger.Progress)
	default:
		return token.Syncing(nil)
	}
}

// Start begins reacting to ledger and transfer events. A balance refresh is
// scheduled right away when the ledger is already synced.
func (k *Kit) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started || k.stopped {
		return
	}
	k.started = true

	syncStates := k.ledger.SubscribeSyncState()
	transfers := k.transactions.Subscribe()

	k.onLedgerSyncState(k.ledger.SyncState())

	k.wg.Add(1)
	go k.run(syncStates, transfers)
	k.logger.Info("Kit started")
}

func (k *Kit) run(syncStates *pubsub.Subscription[token.SyncState], transfers *pubsub.Subscription[[]token.Transfer]) {
	defer k.wg.Done()
	defer syncStates.Cancel()
	defer transfers.Cancel()

	stateC, transferC := syncStates.C, transfers.C
	for {
		select {
		case <-k.stopCh:
			return
		case st, ok := <-stateC:
			if !ok {
				stateC = nil
				continue
			}
			k.onLedgerSyncState(st)
		case batch, ok := <-transferC:
			if !ok {
				transferC = nil
				continue
			}
			if len(batch) > 0 {
				k.logger.Debug("Transfers received, refreshing balance", zap.Int("count", len(batch)))
				k.balances.Sync()
			}
		}
	}
}

func (k *Kit) onLedgerSyncState(st token.SyncState) {
	switch st.Kind {
	case token.KindSynced:
		k.setSyncState(token.Syncing(nil))
		k.balances.Sync()
	case token.KindSyncing:
		k.setSyncState(token.Syncing(st.Progress))
	case token.KindNotSynced:
		k.setSyncState(st)
	}
}

func (k *Kit) setSyncState(st token.SyncState) {
	k.state.SetSyncState(st)
	metrics.ObserveSyncState(k.contract.Hex(), k.state.SyncState())
}

// OnBalanceSynced implements BalanceDelegate.
func (k *Kit) OnBalanceSynced(balance *big.Int) {
	k.setSyncState(token.Synced())
	k.state.SetBalance(balance)
}

// OnBalanceSyncFailed implements BalanceDelegate.
func (k *Kit) OnBalanceSyncFailed(err error) {
	k.setSyncState(token.NotSynced(err))
}

// Stop cancels subscriptions and waits for in-flight work. A stopped Kit
// cannot be restarted.
func (k *Kit) Stop() {
	k.stopOnce.Do(func() {
		k.mu.Lock()
		k.stopped = true
		k.mu.Unlock()

		close(k.stopCh)
		k.wg.Wait()
		k.balances.Close()
		k.transactions.Close()
		k.state.Close()
		k.logger.Info("Kit stopped")
	})
}

// Refresh schedules a balance refresh.
func (k *Kit) Refresh() {
	k.balances.Sync()
}

func (k *Kit) ContractAddress() common.Address { return k.contract }

func (k *Kit) AccountAddress() common.Address { return k.account }

// SyncState returns the current account sync state.
func (k *Kit) SyncState() token.SyncState { return k.state.SyncState() }

// SubscribeSyncState streams sync state changes.
func (k *Kit) SubscribeSyncState() *pubsub.Subscription[token.SyncState] {
	return k.state.SubscribeSyncState()
}

// Balance returns the last known balance, or nil before the first refresh.
func (k *Kit) Balance() *big.Int { return k.state.Balance() }

// SubscribeBalance streams balance changes.
func (k *Kit) SubscribeBalance() *pubsub.Subscription[*big.Int] {
	return k.state.SubscribeBalance()
}

// Transfers returns stored transfers newest first.
func (k *Kit) Transfers(ctx context.Context, fromHash *common.Hash, limit int) ([]token.Transfer, error) {
	return k.transactions.Transfers(ctx, fromHash, limit)
}

// PendingTransfers returns broadcast transfers not yet confirmed.
func (k *Kit) PendingTransfers(ctx context.Context) ([]token.Transfer, error) {
	return k.transactions.PendingTransfers(ctx)
}

// SubscribeTransfers streams batches of new transfers.
func (k *Kit) SubscribeTransfers() *pubsub.Subscription[[]token.Transfer] {
	return k.transactions.Subscribe()
}

// Allowance reads the allowance granted to spender at block.
func (k *Kit) Allowance(ctx context.Context, spender common.Address, block rpc.BlockNumber) (*big.Int, error) {
	return k.allowances.Allowance(ctx, spender, block)
}

func (k *Kit) ApproveTransactionData(spender common.Address, amount *big.Int) ethereum.TransactionData {
	return k.allowances.ApproveTransactionData(spender, amount)
}

func (k *Kit) TransferTransactionData(to common.Address, amount *big.Int) ethereum.TransactionData {
	return k.transactions.TransferTransactionData(to, amount)
}

// SendTransfer signs and broadcasts transfer(to, amount) and records it as
// pending.
func (k *Kit) SendTransfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	hash, _, err := k.SendTransaction(ctx, k.TransferTransactionData(to, amount))
	return hash, err
}

// SendApprove signs and broadcasts approve(spender, amount).
func (k *Kit) SendApprove(ctx context.Context, spender common.Address, amount *big.Int) (common.Hash, error) {
	hash, _, err := k.SendTransaction(ctx, k.ApproveTransactionData(spender, amount))
	return hash, err
}

// SendTransaction signs and broadcasts a transfer or approve call on the
// kit's contract and returns the tags it carries. Transfers are recorded as
// pending.
func (k *Kit) SendTransaction(ctx context.Context, tx ethereum.TransactionData) (common.Hash, []token.Tag, error) {
	if k.sender == nil {
		return common.Hash{}, nil, apperrors.NoSignerError("no signer configured")
	}
	method, tags, ok := k.DecorateTransaction(tx)
	if !ok {
		return common.Hash{}, nil, apperrors.BadRequestError(nil, "not a transfer or approve call on "+k.contract.Hex())
	}

	hash, err := k.sender.SendTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to send %s: %w", method.Name(), err)
	}

	switch m := method.(type) {
	case contract.TransferMethod:
		if _, err := k.transactions.RecordPending(ctx, hash, m.To, m.Value); err != nil {
			k.logger.Warn("Transfer sent but not recorded", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}
	case contract.ApproveMethod:
		k.logger.Info("Approval sent",
			zap.String("tx_hash", hash.Hex()),
			zap.String("spender", m.Spender.Hex()),
			zap.String("amount", m.Value.String()))
	}
	return hash, tags, nil
}

// DecorateTransaction decodes tx as a call on the kit's contract sent by the
// account.
func (k *Kit) DecorateTransaction(tx ethereum.TransactionData) (contract.Method, []token.Tag, bool) {
	return DecorateTransaction(k.contract, k.account, tx)
}

// DecorateLogs tags the contract's Transfer and Approval events that involve
// the account.
func (k *Kit) DecorateLogs(logs []*types.Log) []token.Tag {
	return DecorateLogs(k.contract, k.account, logs)
}
