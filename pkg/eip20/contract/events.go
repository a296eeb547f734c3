package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
)

// Event is a decoded EIP-20 log.
type Event interface {
	EventName() string
}

// TransferEvent is a decoded Transfer(from, to, value) log.
type TransferEvent struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

func (TransferEvent) EventName() string { return "Transfer" }

// ApprovalEvent is a decoded Approval(owner, spender, value) log.
type ApprovalEvent struct {
	Owner   common.Address
	Spender common.Address
	Value   *big.Int
}

func (ApprovalEvent) EventName() string { return "Approval" }

// DecodeEvent recognizes Transfer and Approval logs. Both carry two indexed
// addresses and the amount in data.
func DecodeEvent(log *types.Log) (Event, error) {
	if log == nil || len(log.Topics) == 0 {
		return nil, apperrors.DecodeError(nil, "log has no topics")
	}
	topic := log.Topics[0]
	if topic != TransferEventTopic && topic != ApprovalEventTopic {
		return nil, apperrors.DecodeError(nil, "unknown event topic "+topic.Hex())
	}
	if len(log.Topics) != 3 {
		return nil, apperrors.DecodeError(nil, fmt.Sprintf("expected 3 topics, got %d", len(log.Topics)))
	}
	value, err := DecodeUint256(log.Data)
	if err != nil {
		return nil, err
	}

	first := common.BytesToAddress(log.Topics[1].Bytes())
	second := common.BytesToAddress(log.Topics[2].Bytes())
	if topic == TransferEventTopic {
		return TransferEvent{From: first, To: second, Value: value}, nil
	}
	return ApprovalEvent{Owner: first, Spender: second, Value: value}, nil
}
