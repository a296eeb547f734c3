package eip20

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// TransactionManager reads stored transfer history and re-emits live batches
// that concern its contract and account.
type TransactionManager struct {
	storage  TransferStorage
	feed     TransferFeed
	contract common.Address
	account  common.Address
	logger   *zap.Logger

	out  *pubsub.Broadcaster[[]token.Transfer]
	sub  *pubsub.Subscription[[]token.Transfer]
	wg   sync.WaitGroup
	once sync.Once
}

// NewTransactionManager subscribes to feed immediately.
func NewTransactionManager(storage TransferStorage, feed TransferFeed, contract, account common.Address, opts ...Option) *TransactionManager {
	s := applyOptions(opts)
	m := &TransactionManager{
		storage:  storage,
		feed:     feed,
		contract: contract,
		account:  account,
		logger:   s.logger.With(zap.String("contract", contract.Hex())),
		out:      pubsub.New[[]token.Transfer](),
		sub:      feed.Subscribe(),
	}

	m.wg.Add(1)
	go m.forward()
	return m
}

func (m *TransactionManager) forward() {
	defer m.wg.Done()
	for batch := range m.sub.C {
		relevant := make([]token.Transfer, 0, len(batch))
		for _, t := range batch {
			if t.ContractAddress == m.contract && t.Involves(m.account) {
				relevant = append(relevant, t)
			}
		}
		if len(relevant) == 0 {
			continue
		}
		m.out.Publish(relevant)
	}
}

// Subscribe streams non-empty batches of transfers for this contract.
func (m *TransactionManager) Subscribe() *pubsub.Subscription[[]token.Transfer] {
	return m.out.Subscribe()
}

// Transfers returns stored transfers newest first. fromHash, when set,
// restricts the page to records strictly older than that record.
func (m *TransactionManager) Transfers(ctx context.Context, fromHash *common.Hash, limit int) ([]token.Transfer, error) {
	transfers, err := m.storage.Transfers(ctx, TransferQuery{
		Contract: m.contract,
		FromHash: fromHash,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transfers: %w", err)
	}
	return transfers, nil
}

// PendingTransfers returns locally broadcast transfers not yet confirmed.
func (m *TransactionManager) PendingTransfers(ctx context.Context) ([]token.Transfer, error) {
	transfers, err := m.storage.PendingTransfers(ctx, m.contract)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transfers: %w", err)
	}
	return transfers, nil
}

// TransferTransactionData builds transfer(to, amount) calldata for the
// contract.
func (m *TransactionManager) TransferTransactionData(to common.Address, amount *big.Int) ethereum.TransactionData {
	return ethereum.NewTransactionData(m.contract, contract.Transfer(to, amount))
}

// RecordPending stores a pending record for a transfer broadcast from the
// account and publishes it on the feed.
func (m *TransactionManager) RecordPending(ctx context.Context, hash common.Hash, to common.Address, amount *big.Int) (*token.Transfer, error) {
	value := new(big.Int)
	if amount != nil {
		value.Set(amount)
	}
	t := token.Transfer{
		Hash:            hash,
		ContractAddress: m.contract,
		From:            m.account,
		To:              to,
		Value:           value,
		Timestamp:       time.Now().UTC(),
		Pending:         true,
	}
	if err := m.storage.SaveTransfers(ctx, []token.Transfer{t}); err != nil {
		return nil, fmt.Errorf("failed to save pending transfer: %w", err)
	}
	m.logger.Info("Recorded pending transfer", zap.String("tx_hash", hash.Hex()))
	m.feed.Publish([]token.Transfer{t})
	return &t, nil
}

// Close stops forwarding and ends all subscriptions.
func (m *TransactionManager) Close() {
	m.once.Do(func() {
		m.sub.Cancel()
		m.wg.Wait()
		m.out.Close()
	})
}
