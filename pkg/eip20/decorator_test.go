package eip20

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestDecorateTransaction(t *testing.T) {
	tests := []struct {
		name   string
		tx     ethereum.TransactionData
		ok     bool
		method string
		tags   []token.Tag
	}{
		{
			name:   "transfer",
			tx:     ethereum.NewTransactionData(testContract, contract.Transfer(testOther, big.NewInt(3))),
			ok:     true,
			method: contract.MethodTransfer,
			tags: []token.Tag{
				{Type: token.TagOutgoing, ContractAddress: testContract, Addresses: []string{testOther.Hex()}},
			},
		},
		{
			name:   "transfer to self",
			tx:     ethereum.NewTransactionData(testContract, contract.Transfer(testAccount, big.NewInt(3))),
			ok:     true,
			method: contract.MethodTransfer,
			tags: []token.Tag{
				{Type: token.TagOutgoing, ContractAddress: testContract, Addresses: []string{testAccount.Hex()}},
				{Type: token.TagIncoming, ContractAddress: testContract, Addresses: []string{testAccount.Hex()}},
			},
		},
		{
			name:   "approve",
			tx:     ethereum.NewTransactionData(testContract, contract.Approve(testSpender, big.NewInt(9))),
			ok:     true,
			method: contract.MethodApprove,
			tags:   []token.Tag{token.ApprovalTag(testContract, testSpender)},
		},
		{
			name: "other contract",
			tx:   ethereum.NewTransactionData(testOther, contract.Transfer(testOther, big.NewInt(3))),
		},
		{
			name: "read-only call",
			tx:   ethereum.NewTransactionData(testContract, contract.BalanceOf(testAccount)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, tags, ok := DecorateTransaction(testContract, testAccount, tt.tx)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Nil(t, method)
				assert.Nil(t, tags)
				return
			}
			assert.Equal(t, tt.method, method.Name())
			assert.Equal(t, tt.tags, tags)
		})
	}
}

func TestDecorateLogs(t *testing.T) {
	amount := word(big.NewInt(10))
	logs := []*types.Log{
		{
			Address: testContract,
			Topics:  []common.Hash{contract.TransferEventTopic, addressTopic(testOther), addressTopic(testAccount)},
			Data:    amount,
		},
		{
			Address: testContract,
			Topics:  []common.Hash{contract.ApprovalEventTopic, addressTopic(testAccount), addressTopic(testSpender)},
			Data:    amount,
		},
		// Approval granted by someone else.
		{
			Address: testContract,
			Topics:  []common.Hash{contract.ApprovalEventTopic, addressTopic(testOther), addressTopic(testAccount)},
			Data:    amount,
		},
		// Same event from another token.
		{
			Address: testOther,
			Topics:  []common.Hash{contract.TransferEventTopic, addressTopic(testAccount), addressTopic(testOther)},
			Data:    amount,
		},
		// Malformed: missing amount.
		{
			Address: testContract,
			Topics:  []common.Hash{contract.TransferEventTopic, addressTopic(testAccount), addressTopic(testOther)},
		},
		nil,
	}

	tags := DecorateLogs(testContract, testAccount, logs)
	assert.Equal(t, []token.Tag{
		{Type: token.TagIncoming, ContractAddress: testContract, Addresses: []string{testOther.Hex()}},
		token.ApprovalTag(testContract, testSpender),
	}, tags)
}

func TestKit_SendApprove(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xa11ce")
	ledger := NewMockLedger(token.Syncing(nil))
	ledger.SendTransactionFunc = func(_ context.Context, tx ethereum.TransactionData) (common.Hash, error) {
		assert.Equal(t, contract.Approve(testSpender, big.NewInt(50)), tx.Input)
		return hash, nil
	}
	store := newMemStorage()

	kit := newTestKit(t, ledger, store, pubsub.New[[]token.Transfer]())
	got, err := kit.SendApprove(ctx, testSpender, big.NewInt(50))
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	// Approvals move no tokens and leave no transfer record.
	assert.Equal(t, 0, store.count())
}

func TestKit_SendTransactionTags(t *testing.T) {
	ctx := context.Background()
	ledger := NewMockLedger(token.Syncing(nil))
	ledger.SendTransactionFunc = func(context.Context, ethereum.TransactionData) (common.Hash, error) {
		return common.HexToHash("0xbeef"), nil
	}
	kit := newTestKit(t, ledger, newMemStorage(), pubsub.New[[]token.Transfer]())

	_, tags, err := kit.SendTransaction(ctx, kit.TransferTransactionData(testOther, big.NewInt(2)))
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, token.TagOutgoing, tags[0].Type)

	_, tags, err = kit.SendTransaction(ctx, kit.ApproveTransactionData(testSpender, big.NewInt(2)))
	require.NoError(t, err)
	assert.Equal(t, []token.Tag{token.ApprovalTag(testContract, testSpender)}, tags)

	_, _, err = kit.SendTransaction(ctx, ethereum.NewTransactionData(testContract, contract.BalanceOf(testAccount)))
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError), "unexpected error %v", err)
}
