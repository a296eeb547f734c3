package eip20

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/eip20-kit/internal/metrics"
	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
)

// BalanceDelegate receives the outcome of every balance refresh.
type BalanceDelegate interface {
	OnBalanceSynced(balance *big.Int)
	OnBalanceSyncFailed(err error)
}

// BalanceDelegateFuncs adapts a pair of funcs to BalanceDelegate. Nil funcs
// are skipped.
type BalanceDelegateFuncs struct {
	Synced func(balance *big.Int)
	Failed func(err error)
}

func (f BalanceDelegateFuncs) OnBalanceSynced(balance *big.Int) {
	if f.Synced != nil {
		f.Synced(balance)
	}
}

func (f BalanceDelegateFuncs) OnBalanceSyncFailed(err error) {
	if f.Failed != nil {
		f.Failed(err)
	}
}

// BalanceManager caches the owner's balance and refreshes it from the
// contract in the background.
type BalanceManager struct {
	caller   Caller
	storage  BalanceStorage
	contract common.Address
	owner    common.Address
	logger   *zap.Logger
	tasks    *taskGroup

	mu       sync.RWMutex
	balance  *big.Int
	delegate BalanceDelegate
}

// NewBalanceManager loads the cached balance from storage. A missing value
// leaves the cache empty.
func NewBalanceManager(
	ctx context.Context,
	caller Caller,
	storage BalanceStorage,
	contract, owner common.Address,
	opts ...Option,
) (*BalanceManager, error) {
	s := applyOptions(opts)

	cached, err := storage.LoadBalance(ctx, contract)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load cached balance: %w", err)
	}

	return &BalanceManager{
		caller:   caller,
		storage:  storage,
		contract: contract,
		owner:    owner,
		logger:   s.logger.With(zap.String("contract", contract.Hex())),
		tasks:    newTaskGroup(s.maxConcurrentSyncs, s.callTimeout),
		balance:  cached,
	}, nil
}

// SetDelegate installs the receiver of refresh outcomes.
func (m *BalanceManager) SetDelegate(d BalanceDelegate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = d
}

// Balance returns a copy of the cached balance, or nil if none is known.
func (m *BalanceManager) Balance() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.balance == nil {
		return nil
	}
	return new(big.Int).Set(m.balance)
}

// Sync schedules a refresh and returns immediately. Refreshes beyond the
// concurrency limit wait for a slot; none are dropped.
func (m *BalanceManager) Sync() {
	syncID := uuid.NewString()
	queued := m.tasks.Go(func(ctx context.Context) {
		m.sync(ctx, syncID)
	})
	if !queued {
		m.logger.Debug("Balance refresh skipped, manager closed",
			zap.String("sync_id", syncID))
	}
}

func (m *BalanceManager) sync(ctx context.Context, syncID string) {
	logger := m.logger.With(zap.String("sync_id", syncID))
	start := time.Now()

	balance, err := m.fetch(ctx)
	metrics.BalanceSyncDuration.WithLabelValues(m.contract.Hex()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BalanceSyncs.WithLabelValues(m.contract.Hex(), "failed").Inc()
		logger.Warn("Balance refresh failed", zap.Error(err))
		if d := m.getDelegate(); d != nil {
			d.OnBalanceSyncFailed(err)
		}
		return
	}

	m.mu.Lock()
	m.balance = new(big.Int).Set(balance)
	m.mu.Unlock()

	metrics.BalanceSyncs.WithLabelValues(m.contract.Hex(), "success").Inc()
	logger.Debug("Balance refreshed", zap.String("balance", balance.String()))
	if d := m.getDelegate(); d != nil {
		d.OnBalanceSynced(new(big.Int).Set(balance))
	}
}

func (m *BalanceManager) fetch(ctx context.Context) (*big.Int, error) {
	balance, err := FetchBalance(ctx, m.caller, m.contract, m.owner)
	if err != nil {
		return nil, err
	}
	if err := m.storage.SaveBalance(ctx, m.contract, balance); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}
	return balance, nil
}

func (m *BalanceManager) getDelegate() BalanceDelegate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delegate
}

// Close cancels in-flight refreshes and waits for them.
func (m *BalanceManager) Close() {
	m.tasks.Close()
}
