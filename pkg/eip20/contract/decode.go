package contract

import (
	"bytes"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
)

const wordSize = 32

// DecodeUint256 decodes a single 32 byte scalar. Bytes past the first word are
// ignored.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return nil, apperrors.DecodeError(nil, "empty response")
	}
	if len(data) < wordSize {
		return nil, apperrors.DecodeError(nil, fmt.Sprintf("response too short: %d bytes", len(data)))
	}
	return new(big.Int).SetBytes(data[:wordSize]), nil
}

// DecodeUint8 decodes a uint8 result, as returned by decimals().
func DecodeUint8(data []byte) (uint8, error) {
	v, err := DecodeUint256(data)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, apperrors.DecodeError(nil, fmt.Sprintf("value %s overflows uint8", v))
	}
	return uint8(v.Uint64()), nil
}

// DecodeString decodes a dynamic ABI string. A response of exactly one word is
// treated as a right zero-padded bytes32, which some early tokens return from
// name() and symbol().
func DecodeString(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.DecodeError(nil, "empty response")
	}

	var s string
	if len(data) == wordSize {
		s = string(bytes.TrimRight(data, "\x00"))
	} else {
		values, err := parsedABI.Methods[MethodName].Outputs.Unpack(data)
		if err != nil {
			return "", apperrors.DecodeError(err, "malformed string response")
		}
		if len(values) != 1 {
			return "", apperrors.DecodeError(nil, "unexpected number of values")
		}
		var ok bool
		if s, ok = values[0].(string); !ok {
			return "", apperrors.DecodeError(nil, fmt.Sprintf("unexpected type %T", values[0]))
		}
	}

	if !utf8.ValidString(s) {
		return "", apperrors.DecodeError(nil, "string is not valid UTF-8")
	}
	return s, nil
}

// Method is a decoded outgoing EIP-20 call.
type Method interface {
	Name() string
}

// TransferMethod is a decoded transfer(to, value) call.
type TransferMethod struct {
	To    common.Address
	Value *big.Int
}

func (TransferMethod) Name() string { return MethodTransfer }

// ApproveMethod is a decoded approve(spender, value) call.
type ApproveMethod struct {
	Spender common.Address
	Value   *big.Int
}

func (ApproveMethod) Name() string { return MethodApprove }

// DecodeMethod recognizes transfer and approve calldata.
func DecodeMethod(input []byte) (Method, error) {
	if len(input) < 4 {
		return nil, apperrors.DecodeError(nil, "input shorter than a selector")
	}
	method, err := parsedABI.MethodById(input[:4])
	if err != nil {
		return nil, apperrors.DecodeError(err, "unknown method selector")
	}

	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, apperrors.DecodeError(err, "malformed "+method.Name+" arguments")
	}

	switch method.Name {
	case MethodTransfer:
		to, value, err := addressAmount(args)
		if err != nil {
			return nil, err
		}
		return TransferMethod{To: to, Value: value}, nil
	case MethodApprove:
		spender, value, err := addressAmount(args)
		if err != nil {
			return nil, err
		}
		return ApproveMethod{Spender: spender, Value: value}, nil
	default:
		return nil, apperrors.DecodeError(nil, "unsupported method "+method.Name)
	}
}

func addressAmount(args []any) (common.Address, *big.Int, error) {
	if len(args) != 2 {
		return common.Address{}, nil, apperrors.DecodeError(nil, "unexpected number of arguments")
	}
	addr, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, apperrors.DecodeError(nil, fmt.Sprintf("unexpected type %T", args[0]))
	}
	value, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, apperrors.DecodeError(nil, fmt.Sprintf("unexpected type %T", args[1]))
	}
	return addr, value, nil
}
