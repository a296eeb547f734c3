// Package pg implements kit storage on PostgreSQL through bun.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/eip20"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// History lists pending rows first, newest recorded first, then confirmed
// rows by chain position. The same key drives cursor paging.
const (
	pendingSinceExpr = "CASE WHEN pending THEN created_at ELSE 'epoch'::timestamptz END"
	historyKeyExpr   = "(pending, " + pendingSinceExpr + ", block_number, transaction_index, hash)"
	historyOrderExpr = "pending DESC, " + pendingSinceExpr + " DESC, block_number DESC, transaction_index DESC, hash DESC"
)

// Store persists balances and transfers of one account.
type Store struct {
	db      bun.IDB
	account common.Address
}

var _ eip20.Storage = (*Store)(nil)

// NewStore creates a postgres store scoped to account.
func NewStore(db bun.IDB, account common.Address) *Store {
	return &Store{db: db, account: account}
}

func (s *Store) SaveBalance(ctx context.Context, contract common.Address, balance *big.Int) error {
	dao := &BalanceDao{
		Account:   s.account.Hex(),
		Contract:  contract.Hex(),
		Value:     balance.String(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (account, contract) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func (s *Store) LoadBalance(ctx context.Context, contract common.Address) (*big.Int, error) {
	dao := new(BalanceDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("account = ?", s.account.Hex()).
		Where("contract = ?", contract.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError(nil, "balance not found")
		}
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(dao.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored balance %q", dao.Value)
	}
	return balance, nil
}

// SaveTransfers upserts by hash. A confirmed row is never replaced by a
// pending one.
func (s *Store) SaveTransfers(ctx context.Context, transfers []token.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	// A single INSERT ... ON CONFLICT cannot touch the same row twice.
	byHash := make(map[common.Hash]int, len(transfers))
	daos := make([]*TransferDao, 0, len(transfers))
	for i := range transfers {
		t := &transfers[i]
		if j, ok := byHash[t.Hash]; ok {
			if !t.Pending || daos[j].Pending {
				daos[j] = toTransferDao(s.account, t)
			}
			continue
		}
		byHash[t.Hash] = len(daos)
		daos = append(daos, toTransferDao(s.account, t))
	}

	_, err := s.db.NewInsert().
		Model(&daos).
		On("CONFLICT (account, contract, hash) DO UPDATE").
		Set("block_number = EXCLUDED.block_number").
		Set("transaction_index = EXCLUDED.transaction_index").
		Set("from_address = EXCLUDED.from_address").
		Set("to_address = EXCLUDED.to_address").
		Set("value = EXCLUDED.value").
		Set("token_name = EXCLUDED.token_name").
		Set("token_symbol = EXCLUDED.token_symbol").
		Set("token_decimals = EXCLUDED.token_decimals").
		Set("block_time = EXCLUDED.block_time").
		Set("pending = EXCLUDED.pending").
		Where("EXCLUDED.pending = FALSE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save transfers: %w", err)
	}
	return nil
}

func (s *Store) LastTransfer(ctx context.Context, contract common.Address) (*token.Transfer, error) {
	dao := new(TransferDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("account = ?", s.account.Hex()).
		Where("contract = ?", contract.Hex()).
		Where("pending = FALSE").
		OrderExpr("block_number DESC, transaction_index DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError(nil, "no stored transfers")
		}
		return nil, fmt.Errorf("failed to get last transfer: %w", err)
	}
	return fromTransferDao(dao)
}

func (s *Store) Transfers(ctx context.Context, q eip20.TransferQuery) ([]token.Transfer, error) {
	query := s.db.NewSelect().
		Model((*TransferDao)(nil)).
		Where("account = ?", s.account.Hex()).
		Where("contract = ?", q.Contract.Hex())

	if q.FromHash != nil {
		cursor := new(TransferDao)
		err := s.db.NewSelect().
			Model(cursor).
			Where("account = ?", s.account.Hex()).
			Where("contract = ?", q.Contract.Hex()).
			Where("hash = ?", q.FromHash.Hex()).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperrors.NotFoundError(nil, fmt.Sprintf("transfer %s not found", q.FromHash.Hex()))
			}
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
		since := time.Unix(0, 0).UTC()
		if cursor.Pending {
			since = cursor.CreatedAt
		}
		query = query.Where(historyKeyExpr+" < (?, ?::timestamptz, ?, ?, ?)",
			cursor.Pending, since, cursor.BlockNumber, cursor.TransactionIndex, cursor.Hash)
	}

	query = query.OrderExpr(historyOrderExpr)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var daos []TransferDao
	if err := query.Scan(ctx, &daos); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return fromTransferDaos(daos)
}

func (s *Store) PendingTransfers(ctx context.Context, contract common.Address) ([]token.Transfer, error) {
	var daos []TransferDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("account = ?", s.account.Hex()).
		Where("contract = ?", contract.Hex()).
		Where("pending = TRUE").
		OrderExpr("created_at DESC, hash DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transfers: %w", err)
	}
	return fromTransferDaos(daos)
}

func fromTransferDaos(daos []TransferDao) ([]token.Transfer, error) {
	out := make([]token.Transfer, 0, len(daos))
	for i := range daos {
		t, err := fromTransferDao(&daos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
