// Package leveldb implements kit storage on an embedded goleveldb database.
package leveldb

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/eip20"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// Key layout, all scoped by account and contract:
//
//	bal:<account><contract>                          -> decimal balance
//	tx:<account><contract><hash>                     -> JSON record
//	idx:<account><contract><block><txindex><hash>    -> pending flag
//	idx:<account><contract><max><nanos><hash>        -> pending flag
//	pend:<account><contract><hash>                   -> unix nanos
//
// Pending records are indexed in the block slot past every real block, by
// the time they were recorded, so they list ahead of confirmed ones.
var (
	balancePrefix = []byte("bal:")
	recordPrefix  = []byte("tx:")
	indexPrefix   = []byte("idx:")
	pendingPrefix = []byte("pend:")
)

const (
	flagConfirmed byte = 0
	flagPending   byte = 1
)

// Store persists balances and transfers of one account.
type Store struct {
	db      *leveldb.DB
	account common.Address

	// serializes read-modify-write of records and their index entries
	mu sync.Mutex
}

var _ eip20.Storage = (*Store)(nil)

// Open opens (or creates) a LevelDB database at path.
func Open(path string, account common.Address) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb store: %w", err)
	}
	return &Store{db: db, account: account}, nil
}

// OpenMemory opens a store backed by memory only.
func OpenMemory(account common.Address) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb memory store: %w", err)
	}
	return &Store{db: db, account: account}, nil
}

// Close releases the underlying LevelDB resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type record struct {
	Hash             string      `json:"hash"`
	BlockNumber      uint64      `json:"block_number"`
	TransactionIndex uint        `json:"transaction_index"`
	Contract         string      `json:"contract"`
	From             string      `json:"from"`
	To               string      `json:"to"`
	Value            string      `json:"value"`
	TokenInfo        *token.Info `json:"token_info,omitempty"`
	Timestamp        int64       `json:"timestamp,omitempty"`
	Pending          bool        `json:"pending"`
	PendingSince     int64       `json:"pending_since,omitempty"`
}

func toRecord(t *token.Transfer) record {
	value := "0"
	if t.Value != nil {
		value = t.Value.String()
	}
	r := record{
		Hash:             t.Hash.Hex(),
		BlockNumber:      t.BlockNumber,
		TransactionIndex: t.TransactionIndex,
		Contract:         t.ContractAddress.Hex(),
		From:             t.From.Hex(),
		To:               t.To.Hex(),
		Value:            value,
		TokenInfo:        t.TokenInfo,
		Pending:          t.Pending,
	}
	if !t.Timestamp.IsZero() {
		r.Timestamp = t.Timestamp.Unix()
	}
	return r
}

func (r *record) transfer() (token.Transfer, error) {
	value, ok := new(big.Int).SetString(r.Value, 10)
	if !ok {
		return token.Transfer{}, fmt.Errorf("invalid transfer value %q", r.Value)
	}
	t := token.Transfer{
		Hash:             common.HexToHash(r.Hash),
		BlockNumber:      r.BlockNumber,
		TransactionIndex: r.TransactionIndex,
		ContractAddress:  common.HexToAddress(r.Contract),
		From:             common.HexToAddress(r.From),
		To:               common.HexToAddress(r.To),
		Value:            value,
		TokenInfo:        r.TokenInfo,
		Pending:          r.Pending,
	}
	if r.Timestamp != 0 {
		t.Timestamp = time.Unix(r.Timestamp, 0).UTC()
	}
	return t, nil
}

func (s *Store) scope(prefix []byte, contract common.Address) []byte {
	key := make([]byte, 0, len(prefix)+2*common.AddressLength+48)
	key = append(key, prefix...)
	key = append(key, s.account.Bytes()...)
	return append(key, contract.Bytes()...)
}

func (s *Store) recordKey(contract common.Address, hash common.Hash) []byte {
	return append(s.scope(recordPrefix, contract), hash.Bytes()...)
}

func (s *Store) pendingKey(contract common.Address, hash common.Hash) []byte {
	return append(s.scope(pendingPrefix, contract), hash.Bytes()...)
}

func (s *Store) indexKey(contract common.Address, r *record, hash common.Hash) []byte {
	key := s.scope(indexPrefix, contract)
	if r.Pending {
		key = binary.BigEndian.AppendUint64(key, math.MaxUint64)
		key = binary.BigEndian.AppendUint64(key, uint64(r.PendingSince))
	} else {
		key = binary.BigEndian.AppendUint64(key, r.BlockNumber)
		key = binary.BigEndian.AppendUint32(key, uint32(r.TransactionIndex))
	}
	return append(key, hash.Bytes()...)
}

func hashFromIndexKey(key []byte) common.Hash {
	return common.BytesToHash(key[len(key)-common.HashLength:])
}

func (s *Store) SaveBalance(_ context.Context, contract common.Address, balance *big.Int) error {
	if err := s.db.Put(s.scope(balancePrefix, contract), []byte(balance.String()), nil); err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

func (s *Store) LoadBalance(_ context.Context, contract common.Address) (*big.Int, error) {
	raw, err := s.db.Get(s.scope(balancePrefix, contract), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, apperrors.NotFoundError(nil, "balance not found")
		}
		return nil, fmt.Errorf("load balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored balance %q", raw)
	}
	return balance, nil
}

func (s *Store) getRecord(contract common.Address, hash common.Hash) (*record, error) {
	raw, err := s.db.Get(s.recordKey(contract, hash), nil)
	if err != nil {
		return nil, err
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode transfer %s: %w", hash.Hex(), err)
	}
	return &r, nil
}

// SaveTransfers upserts by hash in a single atomic write. A confirmed record
// is never replaced by a pending one.
func (s *Store) SaveTransfers(_ context.Context, transfers []token.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type write struct {
		contract common.Address
		old      *record
		next     record
	}
	writes := make(map[common.Hash]*write, len(transfers))
	order := make([]common.Hash, 0, len(transfers))
	now := time.Now().UnixNano()

	for i := range transfers {
		t := &transfers[i]
		w, seen := writes[t.Hash]
		if !seen {
			old, err := s.getRecord(t.ContractAddress, t.Hash)
			switch {
			case errors.Is(err, leveldb.ErrNotFound):
			case err != nil:
				return fmt.Errorf("load transfer: %w", err)
			}
			w = &write{contract: t.ContractAddress, old: old}
		}

		current := w.old
		if seen {
			current = &w.next
		}
		if current != nil && !current.Pending && t.Pending {
			continue
		}

		next := toRecord(t)
		if next.Pending {
			next.PendingSince = now
			if current != nil && current.Pending {
				next.PendingSince = current.PendingSince
			}
		}
		w.next = next
		if !seen {
			writes[t.Hash] = w
			order = append(order, t.Hash)
		}
	}

	batch := new(leveldb.Batch)
	for _, hash := range order {
		w := writes[hash]
		raw, err := json.Marshal(w.next)
		if err != nil {
			return fmt.Errorf("encode transfer %s: %w", hash.Hex(), err)
		}
		if w.old != nil {
			batch.Delete(s.indexKey(w.contract, w.old, hash))
		}
		flag := flagConfirmed
		if w.next.Pending {
			flag = flagPending
			batch.Put(s.pendingKey(w.contract, hash), binary.BigEndian.AppendUint64(nil, uint64(w.next.PendingSince)))
		} else {
			batch.Delete(s.pendingKey(w.contract, hash))
		}
		batch.Put(s.recordKey(w.contract, hash), raw)
		batch.Put(s.indexKey(w.contract, &w.next, hash), []byte{flag})
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("save transfers: %w", err)
	}
	return nil
}

func (s *Store) LastTransfer(_ context.Context, contract common.Address) (*token.Transfer, error) {
	iter := s.db.NewIterator(util.BytesPrefix(s.scope(indexPrefix, contract)), nil)
	defer iter.Release()

	for ok := iter.Last(); ok; ok = iter.Prev() {
		if v := iter.Value(); len(v) == 1 && v[0] == flagPending {
			continue
		}
		r, err := s.getRecord(contract, hashFromIndexKey(iter.Key()))
		if err != nil {
			return nil, fmt.Errorf("load last transfer: %w", err)
		}
		t, err := r.transfer()
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return nil, apperrors.NotFoundError(nil, "no stored transfers")
}

func (s *Store) Transfers(ctx context.Context, q eip20.TransferQuery) ([]token.Transfer, error) {
	iter := s.db.NewIterator(util.BytesPrefix(s.scope(indexPrefix, q.Contract)), nil)
	defer iter.Release()

	var ok bool
	if q.FromHash != nil {
		cursor, err := s.getRecord(q.Contract, *q.FromHash)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				return nil, apperrors.NotFoundError(nil, fmt.Sprintf("transfer %s not found", q.FromHash.Hex()))
			}
			return nil, err
		}
		if !iter.Seek(s.indexKey(q.Contract, cursor, *q.FromHash)) {
			return []token.Transfer{}, iter.Error()
		}
		ok = iter.Prev()
	} else {
		ok = iter.Last()
	}

	out := make([]token.Transfer, 0)
	for ; ok; ok = iter.Prev() {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.getRecord(q.Contract, hashFromIndexKey(iter.Key()))
		if err != nil {
			return nil, fmt.Errorf("load transfer: %w", err)
		}
		t, err := r.transfer()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

func (s *Store) PendingTransfers(_ context.Context, contract common.Address) ([]token.Transfer, error) {
	iter := s.db.NewIterator(util.BytesPrefix(s.scope(pendingPrefix, contract)), nil)
	defer iter.Release()

	type entry struct {
		t  token.Transfer
		at uint64
	}
	var entries []entry
	for iter.Next() {
		key := iter.Key()
		r, err := s.getRecord(contract, common.BytesToHash(key[len(key)-common.HashLength:]))
		if err != nil {
			return nil, fmt.Errorf("load pending transfer: %w", err)
		}
		t, err := r.transfer()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{t: t, at: binary.BigEndian.Uint64(iter.Value())})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate pending transfers: %w", err)
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(b.at, a.at)
	})
	out := make([]token.Transfer, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.t)
	}
	return out, nil
}
