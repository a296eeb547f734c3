package eip20

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/mock"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// MockLedger is a func-backed Ledger and Sender.
type MockLedger struct {
	CallFunc            func(ctx context.Context, contract common.Address, data []byte, block rpc.BlockNumber) ([]byte, error)
	SendTransactionFunc func(ctx context.Context, tx ethereum.TransactionData) (common.Hash, error)

	mu     sync.Mutex
	state  token.SyncState
	states *pubsub.Broadcaster[token.SyncState]
}

func NewMockLedger(initial token.SyncState) *MockLedger {
	return &MockLedger{
		state:  initial,
		states: pubsub.New[token.SyncState](),
	}
}

func (m *MockLedger) Call(ctx context.Context, contract common.Address, data []byte, block rpc.BlockNumber) ([]byte, error) {
	if m.CallFunc != nil {
		return m.CallFunc(ctx, contract, data, block)
	}
	return nil, nil
}

func (m *MockLedger) SendTransaction(ctx context.Context, tx ethereum.TransactionData) (common.Hash, error) {
	if m.SendTransactionFunc != nil {
		return m.SendTransactionFunc(ctx, tx)
	}
	return common.Hash{}, apperrors.NoSignerError("no key")
}

func (m *MockLedger) SyncState() token.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockLedger) SubscribeSyncState() *pubsub.Subscription[token.SyncState] {
	return m.states.Subscribe()
}

func (m *MockLedger) SetSyncState(st token.SyncState) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	m.states.Publish(st)
}

// MockIndexer is a testify mock for Indexer.
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) FetchTransfers(ctx context.Context, contract, account common.Address, startBlock uint64) ([]token.Transfer, error) {
	args := m.Called(ctx, contract, account, startBlock)
	transfers, _ := args.Get(0).([]token.Transfer)
	return transfers, args.Error(1)
}

// memStorage is an in-memory Storage with the same upsert and ordering rules
// as the persistent stores.
type memStorage struct {
	mu        sync.Mutex
	balances  map[common.Address]*big.Int
	transfers map[common.Hash]token.Transfer

	SaveBalanceErr   error
	SaveTransfersErr error
	LastTransferErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{
		balances:  make(map[common.Address]*big.Int),
		transfers: make(map[common.Hash]token.Transfer),
	}
}

func (s *memStorage) SaveBalance(_ context.Context, contract common.Address, balance *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveBalanceErr != nil {
		return s.SaveBalanceErr
	}
	s.balances[contract] = new(big.Int).Set(balance)
	return nil
}

func (s *memStorage) LoadBalance(_ context.Context, contract common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[contract]
	if !ok {
		return nil, apperrors.NotFoundError(nil, "balance not found")
	}
	return new(big.Int).Set(b), nil
}

func (s *memStorage) SaveTransfers(_ context.Context, transfers []token.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveTransfersErr != nil {
		return s.SaveTransfersErr
	}
	for _, t := range transfers {
		if old, ok := s.transfers[t.Hash]; ok && !old.Pending && t.Pending {
			continue
		}
		s.transfers[t.Hash] = t
	}
	return nil
}

func (s *memStorage) LastTransfer(_ context.Context, contract common.Address) (*token.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LastTransferErr != nil {
		return nil, s.LastTransferErr
	}
	var last *token.Transfer
	for _, t := range s.sorted(contract) {
		if !t.Pending {
			last = &t
			break
		}
	}
	if last == nil {
		return nil, apperrors.NotFoundError(nil, "no transfers")
	}
	return last, nil
}

func (s *memStorage) Transfers(_ context.Context, q TransferQuery) ([]token.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(q.Contract)
	if q.FromHash != nil {
		for i, t := range all {
			if t.Hash == *q.FromHash {
				all = all[i+1:]
				break
			}
		}
	}
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func (s *memStorage) PendingTransfers(_ context.Context, contract common.Address) ([]token.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []token.Transfer
	for _, t := range s.sorted(contract) {
		if t.Pending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}

func (s *memStorage) sorted(contract common.Address) []token.Transfer {
	var out []token.Transfer
	for _, t := range s.transfers {
		if t.ContractAddress == contract {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pending != out[j].Pending {
			return out[i].Pending
		}
		if out[i].Pending {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].TransactionIndex > out[j].TransactionIndex
	})
	return out
}
