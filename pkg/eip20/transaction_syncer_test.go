package eip20

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

func transferAt(block uint64, index uint, from, to common.Address, value int64) token.Transfer {
	return token.Transfer{
		Hash:             common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		BlockNumber:      block,
		TransactionIndex: index,
		ContractAddress:  testContract,
		From:             from,
		To:               to,
		Value:            big.NewInt(value),
	}
}

func TestTransactionSyncer_InitialImport(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	indexer := &MockIndexer{}
	records := []token.Transfer{
		transferAt(100, 0, testOther, testAccount, 10),
		transferAt(105, 2, testAccount, testOther, 3),
	}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).Return(records, nil).Once()
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(106)).Return(nil, nil).Once()

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)

	got, initial := s.ImportNewTransfers(ctx)
	assert.True(t, initial)
	require.Len(t, got, 2)
	assert.Equal(t, 2, store.count())

	last, err := store.LastTransfer(ctx, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), last.BlockNumber)

	got, initial = s.ImportNewTransfers(ctx)
	assert.False(t, initial)
	assert.Empty(t, got)
	indexer.AssertExpectations(t)
}

func TestTransactionSyncer_EmptyHistoryIsInitialOnce(t *testing.T) {
	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).Return([]token.Transfer{}, nil)

	s := NewTransactionSyncer(indexer, newMemStorage(), testContract, testAccount)

	_, initial := s.ImportNewTransfers(context.Background())
	assert.True(t, initial)
	_, initial = s.ImportNewTransfers(context.Background())
	assert.False(t, initial)
}

func TestTransactionSyncer_ResumesAfterStoredRecords(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	require.NoError(t, store.SaveTransfers(ctx, []token.Transfer{transferAt(50, 0, testOther, testAccount, 1)}))

	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(51)).
		Return([]token.Transfer{transferAt(60, 1, testOther, testAccount, 2)}, nil)

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)
	got, initial := s.ImportNewTransfers(ctx)

	assert.False(t, initial)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(60), got[0].BlockNumber)
}

func TestTransactionSyncer_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	records := []token.Transfer{transferAt(10, 0, testOther, testAccount, 1)}

	// An indexer that ignores the start block keeps returning the same record.
	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, mock.Anything).Return(records, nil)

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)
	s.ImportNewTransfers(ctx)
	got, _ := s.ImportNewTransfers(ctx)

	assert.Empty(t, got)
	assert.Equal(t, 1, store.count())
}

func TestTransactionSyncer_PendingRecordDoesNotMoveCursor(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	pending := transferAt(0, 0, testAccount, testOther, 5)
	pending.Pending = true
	require.NoError(t, store.SaveTransfers(ctx, []token.Transfer{pending}))

	confirmed := pending
	confirmed.Pending = false
	confirmed.BlockNumber = 200

	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).
		Return([]token.Transfer{confirmed}, nil)

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)
	got, initial := s.ImportNewTransfers(ctx)

	assert.True(t, initial)
	require.Len(t, got, 1)
	assert.Equal(t, 1, store.count())
	stillPending, err := store.PendingTransfers(ctx, testContract)
	require.NoError(t, err)
	assert.Empty(t, stillPending)
}

func TestTransactionSyncer_FetchFailure(t *testing.T) {
	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).
		Return(nil, apperrors.TransportError(errors.New("timeout"), "indexer unavailable"))

	s := NewTransactionSyncer(indexer, newMemStorage(), testContract, testAccount)
	got, initial := s.ImportNewTransfers(context.Background())

	assert.Empty(t, got)
	assert.True(t, initial)

	select {
	case err := <-s.Errors():
		assert.True(t, apperrors.IsTransport(err))
	default:
		t.Fatal("expected a diagnostic error")
	}
}

func TestTransactionSyncer_SaveFailureKeepsCursor(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	store.SaveTransfersErr = errors.New("constraint violation")
	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).
		Return([]token.Transfer{transferAt(1, 0, testOther, testAccount, 1)}, nil)

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)
	got, _ := s.ImportNewTransfers(ctx)
	assert.Empty(t, got)
	require.Len(t, s.Errors(), 1)

	store.SaveTransfersErr = nil
	got, _ = s.ImportNewTransfers(ctx)
	assert.Len(t, got, 1)
	indexer.AssertNumberOfCalls(t, "FetchTransfers", 2)
}

func TestTransactionSyncer_ErrorsDoNotBlock(t *testing.T) {
	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("boom"))

	s := NewTransactionSyncer(indexer, newMemStorage(), testContract, testAccount, WithErrorBuffer(1))
	for i := 0; i < 5; i++ {
		s.ImportNewTransfers(context.Background())
	}
	assert.Len(t, s.Errors(), 1)
}

func TestTransactionSyncer_DropsOtherContracts(t *testing.T) {
	foreign := transferAt(5, 0, testOther, testAccount, 1)
	foreign.ContractAddress = testOther
	unlabeled := transferAt(6, 0, testOther, testAccount, 1)
	unlabeled.ContractAddress = common.Address{}

	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).
		Return([]token.Transfer{foreign, unlabeled}, nil)

	s := NewTransactionSyncer(indexer, newMemStorage(), testContract, testAccount)
	got, _ := s.ImportNewTransfers(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, testContract, got[0].ContractAddress)
	assert.Equal(t, uint64(6), got[0].BlockNumber)
}

func TestTransactionSyncer_CursorFailureKeepsInitialFlag(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	store.LastTransferErr = errors.New("connection refused")
	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(0)).Return([]token.Transfer{}, nil)

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)

	got, initial := s.ImportNewTransfers(ctx)
	assert.Empty(t, got)
	assert.True(t, initial)
	indexer.AssertNotCalled(t, "FetchTransfers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	store.mu.Lock()
	store.LastTransferErr = nil
	store.mu.Unlock()

	_, initial = s.ImportNewTransfers(ctx)
	assert.True(t, initial)
	_, initial = s.ImportNewTransfers(ctx)
	assert.False(t, initial)
}

func TestTransactionSyncer_FailureLeavesStoredStateIntact(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	pending := transferAt(0, 0, testAccount, testOther, 5)
	pending.Hash = common.HexToHash("0xfeed")
	pending.Pending = true
	require.NoError(t, store.SaveTransfers(ctx, []token.Transfer{
		transferAt(40, 0, testOther, testAccount, 1),
		transferAt(42, 3, testAccount, testOther, 2),
		pending,
	}))

	before, err := store.Transfers(ctx, TransferQuery{Contract: testContract})
	require.NoError(t, err)
	pendingBefore, err := store.PendingTransfers(ctx, testContract)
	require.NoError(t, err)

	indexer := &MockIndexer{}
	indexer.On("FetchTransfers", mock.Anything, testContract, testAccount, uint64(43)).
		Return(nil, apperrors.TransportError(errors.New("502"), "indexer unavailable")).Twice()

	s := NewTransactionSyncer(indexer, store, testContract, testAccount)
	for i := 0; i < 2; i++ {
		got, initial := s.ImportNewTransfers(ctx)
		assert.Empty(t, got)
		assert.False(t, initial)
	}

	after, err := store.Transfers(ctx, TransferQuery{Contract: testContract})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	pendingAfter, err := store.PendingTransfers(ctx, testContract)
	require.NoError(t, err)
	assert.Equal(t, pendingBefore, pendingAfter)

	last, err := store.LastTransfer(ctx, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), last.BlockNumber)

	// Both attempts asked for the block after the stored cursor.
	indexer.AssertExpectations(t)
	indexer.AssertNumberOfCalls(t, "FetchTransfers", 2)
}
