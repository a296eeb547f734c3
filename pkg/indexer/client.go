// Package indexer fetches token transfer history from an Etherscan-compatible
// account API.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/config"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

const noTransactionsFound = "No transactions found"

// Client implements eip20.Indexer over the tokentx action.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds an indexer client from cfg.
func NewClient(cfg *config.IndexerConfig, opts ...Option) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTx struct {
	BlockNumber      string `json:"blockNumber"`
	TimeStamp        string `json:"timeStamp"`
	Hash             string `json:"hash"`
	From             string `json:"from"`
	To               string `json:"to"`
	ContractAddress  string `json:"contractAddress"`
	Value            string `json:"value"`
	TokenName        string `json:"tokenName"`
	TokenSymbol      string `json:"tokenSymbol"`
	TokenDecimal     string `json:"tokenDecimal"`
	TransactionIndex string `json:"transactionIndex"`
}

// FetchTransfers returns transfers of contract involving account from
// startBlock onwards, oldest first.
func (c *Client) FetchTransfers(ctx context.Context, contract, account common.Address, startBlock uint64) ([]token.Transfer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.TransportError(err, "indexer rate limiter")
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("contractaddress", contract.Hex())
	q.Set("address", account.Hex())
	q.Set("startblock", strconv.FormatUint(startBlock, 10))
	q.Set("sort", "asc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build indexer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.TransportError(err, "indexer request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.TransportError(
			fmt.Errorf("status=%d body=%q", resp.StatusCode, strings.TrimSpace(string(body))),
			"indexer request failed")
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.DecodeError(err, "invalid indexer response")
	}

	if payload.Status != "1" {
		if strings.HasPrefix(payload.Message, noTransactionsFound) {
			return []token.Transfer{}, nil
		}
		var detail string
		_ = json.Unmarshal(payload.Result, &detail)
		return nil, apperrors.TransportError(
			fmt.Errorf("message=%q result=%q", payload.Message, detail),
			"indexer returned an error")
	}

	var rows []tokenTx
	if err := json.Unmarshal(payload.Result, &rows); err != nil {
		return nil, apperrors.DecodeError(err, "invalid indexer result")
	}

	out := make([]token.Transfer, 0, len(rows))
	for i := range rows {
		t, err := rows[i].transfer()
		if err != nil {
			return nil, apperrors.DecodeError(err, fmt.Sprintf("invalid transfer %s", rows[i].Hash))
		}
		out = append(out, t)
	}

	c.logger.Debug("Fetched transfers from indexer",
		zap.String("contract", contract.Hex()),
		zap.String("account", account.Hex()),
		zap.Uint64("start_block", startBlock),
		zap.Int("count", len(out)))

	return out, nil
}

func (r *tokenTx) transfer() (token.Transfer, error) {
	block, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return token.Transfer{}, fmt.Errorf("block number: %w", err)
	}
	index, err := strconv.ParseUint(r.TransactionIndex, 10, 32)
	if err != nil {
		return token.Transfer{}, fmt.Errorf("transaction index: %w", err)
	}
	ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return token.Transfer{}, fmt.Errorf("timestamp: %w", err)
	}
	value, ok := new(big.Int).SetString(r.Value, 10)
	if !ok || value.Sign() < 0 {
		return token.Transfer{}, fmt.Errorf("value %q", r.Value)
	}
	for _, addr := range []string{r.From, r.To, r.ContractAddress} {
		if !common.IsHexAddress(addr) {
			return token.Transfer{}, fmt.Errorf("address %q", addr)
		}
	}
	hash, err := parseHash(r.Hash)
	if err != nil {
		return token.Transfer{}, err
	}

	t := token.Transfer{
		Hash:             hash,
		BlockNumber:      block,
		TransactionIndex: uint(index),
		ContractAddress:  common.HexToAddress(r.ContractAddress),
		From:             common.HexToAddress(r.From),
		To:               common.HexToAddress(r.To),
		Value:            value,
		Timestamp:        time.Unix(ts, 0).UTC(),
	}
	if r.TokenSymbol != "" || r.TokenName != "" {
		decimals, err := strconv.Atoi(r.TokenDecimal)
		if err != nil || decimals < 0 || decimals > 255 {
			return token.Transfer{}, fmt.Errorf("token decimals %q", r.TokenDecimal)
		}
		t.TokenInfo = &token.Info{Name: r.TokenName, Symbol: r.TokenSymbol, Decimals: decimals}
	}
	return t, nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("hash %q", s)
	}
	return common.BytesToHash(b), nil
}
