package eip20

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsafe/eip20-kit/pkg/eip20/contract"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// MethodTags returns the tags of a decoded call on tokenContract as seen by
// account, the sender of the call.
func MethodTags(tokenContract, account common.Address, method contract.Method) []token.Tag {
	switch m := method.(type) {
	case contract.TransferMethod:
		t := token.Transfer{ContractAddress: tokenContract, From: account, To: m.To}
		return t.Tags(account)
	case contract.ApproveMethod:
		return []token.Tag{token.ApprovalTag(tokenContract, m.Spender)}
	default:
		return nil
	}
}

// DecorateTransaction decodes tx as a call on tokenContract sent by account.
// ok is false when tx targets another contract or carries calldata other than
// transfer or approve.
func DecorateTransaction(tokenContract, account common.Address, tx ethereum.TransactionData) (contract.Method, []token.Tag, bool) {
	if tx.To != tokenContract {
		return nil, nil, false
	}
	method, err := contract.DecodeMethod(tx.Input)
	if err != nil {
		return nil, nil, false
	}
	return method, MethodTags(tokenContract, account, method), true
}

// DecorateLogs tags the Transfer and Approval events emitted by tokenContract
// that involve account. Other logs are skipped.
func DecorateLogs(tokenContract, account common.Address, logs []*types.Log) []token.Tag {
	var tags []token.Tag
	for _, log := range logs {
		if log == nil || log.Address != tokenContract {
			continue
		}
		event, err := contract.DecodeEvent(log)
		if err != nil {
			continue
		}
		switch e := event.(type) {
		case contract.TransferEvent:
			t := token.Transfer{ContractAddress: tokenContract, From: e.From, To: e.To}
			tags = append(tags, t.Tags(account)...)
		case contract.ApprovalEvent:
			if e.Owner == account {
				tags = append(tags, token.ApprovalTag(tokenContract, e.Spender))
			}
		}
	}
	return tags
}
