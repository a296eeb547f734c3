// Package api exposes a read-only HTTP view of a kit: state, transfer
// history, allowances and token metadata.
package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	apphttp "github.com/chainsafe/eip20-kit/pkg/app/http"
	"github.com/chainsafe/eip20-kit/pkg/eip20"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultPageSize       = 50
	maxPageSize           = 500
	maxDecorateBody       = 1 << 20
)

// Kit is the subset of *eip20.Kit served over HTTP.
type Kit interface {
	ContractAddress() common.Address
	AccountAddress() common.Address
	SyncState() token.SyncState
	Balance() *big.Int
	Transfers(ctx context.Context, fromHash *common.Hash, limit int) ([]token.Transfer, error)
	PendingTransfers(ctx context.Context) ([]token.Transfer, error)
	Allowance(ctx context.Context, spender common.Address, block rpc.BlockNumber) (*big.Int, error)
}

type handler struct {
	kit    Kit
	caller eip20.Caller
	logger *zap.Logger

	mu   sync.RWMutex
	info *token.Info
}

// NewRouter builds the HTTP surface for kit. caller serves token metadata
// lookups; /metrics is mounted when withMetrics is set.
func NewRouter(kit Kit, caller eip20.Caller, logger *zap.Logger, withMetrics bool) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{kit: kit, caller: caller, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if withMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", apphttp.HandleError(h.state))
		r.Get("/token", apphttp.HandleError(h.token))
		r.Get("/transfers", apphttp.HandleError(h.transfers))
		r.Get("/transfers/pending", apphttp.HandleError(h.pendingTransfers))
		r.Get("/allowance/{spender}", apphttp.HandleError(h.allowance))
		r.Post("/decorate", apphttp.HandleError(h.decorate))
	})

	return r
}

// tokenInfo returns the token metadata, caching the first successful lookup.
// Lookups run outside the lock; concurrent misses may each fetch.
func (h *handler) tokenInfo(ctx context.Context) (*token.Info, error) {
	h.mu.RLock()
	info := h.info
	h.mu.RUnlock()
	if info != nil {
		return info, nil
	}

	info, err := eip20.FetchTokenInfo(ctx, h.caller, h.kit.ContractAddress())
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.info == nil {
		h.info = info
	}
	return h.info, nil
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) error {
	resp := stateResponse{
		Contract:  h.kit.ContractAddress().Hex(),
		Account:   h.kit.AccountAddress().Hex(),
		SyncState: newSyncStateView(h.kit.SyncState()),
	}

	if balance := h.kit.Balance(); balance != nil {
		raw := balance.String()
		resp.Balance = &raw
		if info, err := h.tokenInfo(r.Context()); err != nil {
			h.logger.Debug("Token metadata unavailable", zap.Error(err))
		} else {
			formatted := decimal.NewFromBigInt(balance, -int32(info.Decimals)).String()
			resp.FormattedBalance = &formatted
			resp.Symbol = info.Symbol
		}
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handler) token(w http.ResponseWriter, r *http.Request) error {
	info, err := h.tokenInfo(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, tokenResponse{
		Contract: h.kit.ContractAddress().Hex(),
		Name:     info.Name,
		Symbol:   info.Symbol,
		Decimals: info.Decimals,
	})
	return nil
}

func (h *handler) transfers(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	limit := defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageSize {
			return apperrors.BadRequestError(err, "limit must be between 1 and 500")
		}
		limit = n
	}

	var from *common.Hash
	if raw := q.Get("from"); raw != "" {
		hash, err := parseHash(raw)
		if err != nil {
			return err
		}
		from = &hash
	}

	transfers, err := h.kit.Transfers(r.Context(), from, limit)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, h.transferViews(transfers))
	return nil
}

func (h *handler) pendingTransfers(w http.ResponseWriter, r *http.Request) error {
	transfers, err := h.kit.PendingTransfers(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, h.transferViews(transfers))
	return nil
}

func (h *handler) allowance(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "spender")
	if !common.IsHexAddress(raw) {
		return apperrors.BadRequestError(nil, "invalid spender address")
	}
	spender := common.HexToAddress(raw)

	block, err := parseBlock(r.URL.Query().Get("block"))
	if err != nil {
		return err
	}

	allowance, err := h.kit.Allowance(r.Context(), spender, block)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, allowanceResponse{
		Owner:     h.kit.AccountAddress().Hex(),
		Spender:   spender.Hex(),
		Block:     block.String(),
		Allowance: allowance.String(),
	})
	return nil
}

// decorate tags a transaction built for the kit's contract and, optionally,
// the logs of its receipt. Nothing is signed or sent.
func (h *handler) decorate(w http.ResponseWriter, r *http.Request) error {
	var req decorateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDecorateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid decorate request")
	}

	contractAddr, account := h.kit.ContractAddress(), h.kit.AccountAddress()
	resp := decorateResponse{Tags: []tagView{}, LogTags: []tagView{}}

	if req.To != nil {
		method, tags, ok := eip20.DecorateTransaction(contractAddr, account, ethereum.NewTransactionData(*req.To, req.Input))
		if ok {
			resp.Method = method.Name()
			resp.Tags = newTagViews(tags)
		}
	}

	if len(req.Logs) > 0 {
		logs := make([]*types.Log, 0, len(req.Logs))
		for _, l := range req.Logs {
			logs = append(logs, &types.Log{Address: l.Address, Topics: l.Topics, Data: l.Data})
		}
		resp.LogTags = newTagViews(eip20.DecorateLogs(contractAddr, account, logs))
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handler) transferViews(transfers []token.Transfer) []transferView {
	account := h.kit.AccountAddress()
	out := make([]transferView, 0, len(transfers))
	for i := range transfers {
		out = append(out, newTransferView(&transfers[i], account))
	}
	return out
}

func parseHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, apperrors.BadRequestError(err, "invalid transaction hash")
	}
	return common.BytesToHash(b), nil
}

// parseBlock accepts a tag (latest, pending, earliest, safe, finalized), a
// hex quantity or a decimal number. Empty means latest.
func parseBlock(raw string) (rpc.BlockNumber, error) {
	if raw == "" {
		return rpc.LatestBlockNumber, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
		return rpc.BlockNumber(n), nil
	}
	var block rpc.BlockNumber
	if err := block.UnmarshalJSON([]byte(strconv.Quote(raw))); err != nil {
		return 0, apperrors.BadRequestError(err, "invalid block reference")
	}
	return block, nil
}
