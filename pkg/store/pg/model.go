package pg

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/eip20-kit/pkg/token"
)

// BalanceDao maps to the 'balances' table: one row per (account, contract).
type BalanceDao struct {
	bun.BaseModel `bun:"table:balances,alias:b"`
	Account       string    `bun:"account,pk,type:varchar(42)"`
	Contract      string    `bun:"contract,pk,type:varchar(42)"`
	Value         string    `bun:"value,notnull,type:numeric(78,0)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// TransferDao maps to the 'transfers' table. Rows are unique per
// (account, contract, hash).
type TransferDao struct {
	bun.BaseModel    `bun:"table:transfers,alias:t"`
	Account          string     `bun:"account,pk,type:varchar(42)"`
	Contract         string     `bun:"contract,pk,type:varchar(42)"`
	Hash             string     `bun:"hash,pk,type:varchar(66)"`
	BlockNumber      int64      `bun:"block_number,notnull"`
	TransactionIndex int32      `bun:"transaction_index,notnull"`
	FromAddress      string     `bun:"from_address,notnull,type:varchar(42)"`
	ToAddress        string     `bun:"to_address,notnull,type:varchar(42)"`
	Value            string     `bun:"value,notnull,type:numeric(78,0)"`
	TokenName        *string    `bun:"token_name,type:varchar(255)"`
	TokenSymbol      *string    `bun:"token_symbol,type:varchar(64)"`
	TokenDecimals    *int16     `bun:"token_decimals"`
	BlockTime        *time.Time `bun:"block_time"`
	Pending          bool       `bun:"pending,notnull,default:false"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func toTransferDao(account common.Address, t *token.Transfer) *TransferDao {
	value := "0"
	if t.Value != nil {
		value = t.Value.String()
	}
	dao := &TransferDao{
		Account:          account.Hex(),
		Contract:         t.ContractAddress.Hex(),
		Hash:             t.Hash.Hex(),
		BlockNumber:      int64(t.BlockNumber),
		TransactionIndex: int32(t.TransactionIndex),
		FromAddress:      t.From.Hex(),
		ToAddress:        t.To.Hex(),
		Value:            value,
		Pending:          t.Pending,
	}
	if !t.Timestamp.IsZero() {
		ts := t.Timestamp.UTC()
		dao.BlockTime = &ts
	}
	if t.TokenInfo != nil {
		dao.TokenName = &t.TokenInfo.Name
		dao.TokenSymbol = &t.TokenInfo.Symbol
		decimals := int16(t.TokenInfo.Decimals)
		dao.TokenDecimals = &decimals
	}
	return dao
}

func fromTransferDao(dao *TransferDao) (*token.Transfer, error) {
	value, ok := new(big.Int).SetString(dao.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid transfer value %q", dao.Value)
	}
	t := &token.Transfer{
		Hash:             common.HexToHash(dao.Hash),
		BlockNumber:      uint64(dao.BlockNumber),
		TransactionIndex: uint(dao.TransactionIndex),
		ContractAddress:  common.HexToAddress(dao.Contract),
		From:             common.HexToAddress(dao.FromAddress),
		To:               common.HexToAddress(dao.ToAddress),
		Value:            value,
		Pending:          dao.Pending,
	}
	if dao.BlockTime != nil {
		t.Timestamp = dao.BlockTime.UTC()
	}
	if dao.TokenName != nil || dao.TokenSymbol != nil || dao.TokenDecimals != nil {
		t.TokenInfo = &token.Info{}
		if dao.TokenName != nil {
			t.TokenInfo.Name = *dao.TokenName
		}
		if dao.TokenSymbol != nil {
			t.TokenInfo.Symbol = *dao.TokenSymbol
		}
		if dao.TokenDecimals != nil {
			t.TokenInfo.Decimals = int(*dao.TokenDecimals)
		}
	}
	return t, nil
}
