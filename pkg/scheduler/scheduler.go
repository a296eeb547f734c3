// Package scheduler drives registered transfer importers on an interval and
// fans their batches out to kits through a shared feed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/eip20-kit/pkg/eip20"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

type syncerKey struct {
	account  common.Address
	contract common.Address
}

// Scheduler owns at most one importer per (account, contract).
type Scheduler struct {
	mu        sync.Mutex
	importers map[syncerKey]eip20.TransferImporter
	order     []syncerKey

	feed    *pubsub.Broadcaster[[]token.Transfer]
	logger  *zap.Logger
	timeout time.Duration

	// serializes sync rounds
	roundMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

var _ eip20.SyncerRegistry = (*Scheduler)(nil)

// New creates a scheduler. timeout bounds each sync round; zero means no bound.
func New(logger *zap.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		importers: make(map[syncerKey]eip20.TransferImporter),
		feed:      pubsub.New[[]token.Transfer](),
		logger:    logger,
		timeout:   timeout,
		stopCh:    make(chan struct{}),
	}
}

// Feed returns the transfer feed kits subscribe to.
func (s *Scheduler) Feed() eip20.TransferFeed {
	return s.feed
}

// AddTransactionSyncer registers importer. A second importer for the same
// account and contract is rejected.
func (s *Scheduler) AddTransactionSyncer(importer eip20.TransferImporter) error {
	key := syncerKey{account: importer.AccountAddress(), contract: importer.ContractAddress()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.importers[key]; ok {
		return fmt.Errorf("transaction syncer already registered for account %s contract %s",
			key.account.Hex(), key.contract.Hex())
	}
	s.importers[key] = importer
	s.order = append(s.order, key)

	s.logger.Info("Registered transaction syncer",
		zap.String("account", key.account.Hex()),
		zap.String("contract", key.contract.Hex()))
	return nil
}

// Len returns the number of registered importers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// SyncOnce runs every importer once, in registration order, and publishes
// each non-empty batch to the feed. It returns the number of imported records.
func (s *Scheduler) SyncOnce(ctx context.Context) int {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	s.mu.Lock()
	importers := make([]eip20.TransferImporter, 0, len(s.order))
	for _, key := range s.order {
		importers = append(importers, s.importers[key])
	}
	s.mu.Unlock()

	var total int
	for _, importer := range importers {
		if ctx.Err() != nil {
			break
		}
		batch, initial := importer.ImportNewTransfers(ctx)
		if initial {
			s.logger.Info("Initial transfer import",
				zap.String("account", importer.AccountAddress().Hex()),
				zap.String("contract", importer.ContractAddress().Hex()),
				zap.Int("count", len(batch)))
		}
		if len(batch) == 0 {
			continue
		}
		total += len(batch)
		s.feed.Publish(batch)
	}
	return total
}

// Start runs a sync round immediately and then every interval.
func (s *Scheduler) Start(interval time.Duration) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				select {
				case <-s.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			s.logger.Info("Started periodic transfer sync", zap.Duration("interval", interval))

			s.round(ctx)
			for {
				select {
				case <-ticker.C:
					s.round(ctx)
				case <-s.stopCh:
					s.logger.Info("Stopping periodic transfer sync")
					return
				}
			}
		}()
	})
}

func (s *Scheduler) round(parent context.Context) {
	ctx, cancel := parent, context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.timeout)
	}
	defer cancel()

	start := time.Now()
	n := s.SyncOnce(ctx)
	s.logger.Debug("Transfer sync round completed",
		zap.Int("imported", n),
		zap.Duration("duration", time.Since(start)))
}

// Stop halts the periodic sync and closes the feed.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.feed.Close()
	})
}
