package eip20

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/eip20-kit/internal/metrics"
	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// TransactionSyncer imports transfer history from an indexer into storage,
// resuming after the highest stored block.
type TransactionSyncer struct {
	indexer  Indexer
	storage  TransferStorage
	contract common.Address
	account  common.Address
	logger   *zap.Logger

	imported atomic.Bool
	errs     chan error
}

func NewTransactionSyncer(indexer Indexer, storage TransferStorage, contract, account common.Address, opts ...Option) *TransactionSyncer {
	s := applyOptions(opts)
	return &TransactionSyncer{
		indexer:  indexer,
		storage:  storage,
		contract: contract,
		account:  account,
		logger: s.logger.With(
			zap.String("contract", contract.Hex()),
			zap.String("account", account.Hex()),
		),
		errs: make(chan error, s.errorBuffer),
	}
}

// ContractAddress returns the token contract this syncer imports for.
func (s *TransactionSyncer) ContractAddress() common.Address { return s.contract }

// AccountAddress returns the account this syncer imports for.
func (s *TransactionSyncer) AccountAddress() common.Address { return s.account }

// Errors delivers import failures for embedders and tests that want more than
// the empty batch. Failures are already logged and counted, and are dropped
// from this channel when its buffer is full. The daemon does not read it.
func (s *TransactionSyncer) Errors() <-chan error { return s.errs }

// ImportNewTransfers fetches and persists transfers after the last stored
// block. It returns the newly stored records and whether this was the initial
// import. Failures yield an empty batch and are reported on Errors.
func (s *TransactionSyncer) ImportNewTransfers(ctx context.Context) ([]token.Transfer, bool) {
	var (
		startBlock uint64
		stored     bool
	)
	last, err := s.storage.LastTransfer(ctx, s.contract)
	switch {
	case err == nil:
		stored = true
		startBlock = last.BlockNumber + 1
	case apperrors.IsNotFound(err):
	default:
		// The flag is not consumed: whether storage is empty is unknown.
		s.report(fmt.Errorf("failed to read import cursor: %w", err))
		return nil, !s.imported.Load()
	}
	initial := !s.imported.Swap(true) && !stored

	transfers, err := s.indexer.FetchTransfers(ctx, s.contract, s.account, startBlock)
	if err != nil {
		s.report(fmt.Errorf("failed to fetch transfers from block %d: %w", startBlock, err))
		return nil, initial
	}

	batch := make([]token.Transfer, 0, len(transfers))
	var highest uint64
	for _, t := range transfers {
		if t.BlockNumber < startBlock {
			continue
		}
		if t.ContractAddress == (common.Address{}) {
			t.ContractAddress = s.contract
		}
		if t.ContractAddress != s.contract {
			continue
		}
		if t.BlockNumber > highest {
			highest = t.BlockNumber
		}
		batch = append(batch, t)
	}
	if len(batch) == 0 {
		return nil, initial
	}

	if err := s.storage.SaveTransfers(ctx, batch); err != nil {
		s.report(fmt.Errorf("failed to save %d transfers: %w", len(batch), err))
		return nil, initial
	}

	metrics.TransfersImported.WithLabelValues(s.contract.Hex()).Add(float64(len(batch)))
	metrics.LastImportedBlock.WithLabelValues(s.contract.Hex()).Set(float64(highest))
	s.logger.Info("Imported transfers",
		zap.Int("count", len(batch)),
		zap.Uint64("from_block", startBlock),
		zap.Uint64("to_block", highest),
		zap.Bool("initial", initial))

	return batch, initial
}

func (s *TransactionSyncer) report(err error) {
	s.logger.Warn("Transfer import failed", zap.Error(err))
	metrics.ErrorsTotal.WithLabelValues("transaction_syncer", errorType(err)).Inc()
	select {
	case s.errs <- err:
	default:
	}
}

func errorType(err error) string {
	switch {
	case apperrors.IsTransport(err):
		return "transport"
	case apperrors.IsDecode(err):
		return "decode"
	default:
		return "storage"
	}
}
