package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/eip20-kit/pkg/app/errors"
	"github.com/chainsafe/eip20-kit/pkg/config"
)

var (
	contract = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	account  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

const twoTransfers = `{
  "status": "1",
  "message": "OK",
  "result": [
    {
      "blockNumber": "100",
      "timeStamp": "1700000000",
      "hash": "0x00000000000000000000000000000000000000000000000000000000000000aa",
      "from": "0x3333333333333333333333333333333333333333",
      "to": "0x1111111111111111111111111111111111111111",
      "contractAddress": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
      "value": "1000000",
      "tokenName": "USD Coin",
      "tokenSymbol": "USDC",
      "tokenDecimal": "6",
      "transactionIndex": "3"
    },
    {
      "blockNumber": "105",
      "timeStamp": "1700000060",
      "hash": "0x00000000000000000000000000000000000000000000000000000000000000bb",
      "from": "0x1111111111111111111111111111111111111111",
      "to": "0x3333333333333333333333333333333333333333",
      "contractAddress": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
      "value": "250000",
      "tokenName": "USD Coin",
      "tokenSymbol": "USDC",
      "tokenDecimal": "6",
      "transactionIndex": "0"
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.IndexerConfig{
		URL:       srv.URL + "/api",
		APIKey:    "secret",
		RateLimit: 100,
		Timeout:   time.Second,
	})
}

func TestClient_FetchTransfers(t *testing.T) {
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(twoTransfers))
	})

	got, err := c.FetchTransfers(context.Background(), contract, account, 42)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"module":          "account",
		"action":          "tokentx",
		"contractaddress": contract.Hex(),
		"address":         account.Hex(),
		"startblock":      "42",
		"sort":            "asc",
		"apikey":          "secret",
	}, query)

	require.Len(t, got, 2)
	first := got[0]
	assert.Equal(t, common.HexToHash("0xaa"), first.Hash)
	assert.Equal(t, uint64(100), first.BlockNumber)
	assert.Equal(t, uint(3), first.TransactionIndex)
	assert.Equal(t, contract, first.ContractAddress)
	assert.Equal(t, account, first.To)
	assert.Equal(t, int64(1_000_000), first.Value.Int64())
	assert.Equal(t, int64(1_700_000_000), first.Timestamp.Unix())
	require.NotNil(t, first.TokenInfo)
	assert.Equal(t, 6, first.TokenInfo.Decimals)
	assert.False(t, first.Pending)
	assert.Equal(t, uint64(105), got[1].BlockNumber)
}

func TestClient_NoTransactionsFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	})

	got, err := c.FetchTransfers(context.Background(), contract, account, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"api error", http.StatusOK, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`, apperrors.IsTransport},
		{"http status", http.StatusBadGateway, `bad gateway`, apperrors.IsTransport},
		{"not json", http.StatusOK, `<html>`, apperrors.IsDecode},
		{"bad block", http.StatusOK, `{"status":"1","message":"OK","result":[{"blockNumber":"x","timeStamp":"1","hash":"0x00000000000000000000000000000000000000000000000000000000000000aa","from":"0x3333333333333333333333333333333333333333","to":"0x1111111111111111111111111111111111111111","contractAddress":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","value":"1","transactionIndex":"0"}]}`, apperrors.IsDecode},
		{"bad value", http.StatusOK, `{"status":"1","message":"OK","result":[{"blockNumber":"1","timeStamp":"1","hash":"0x00000000000000000000000000000000000000000000000000000000000000aa","from":"0x3333333333333333333333333333333333333333","to":"0x1111111111111111111111111111111111111111","contractAddress":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","value":"1.5","transactionIndex":"0"}]}`, apperrors.IsDecode},
		{"bad hash", http.StatusOK, `{"status":"1","message":"OK","result":[{"blockNumber":"1","timeStamp":"1","hash":"0xaa","from":"0x3333333333333333333333333333333333333333","to":"0x1111111111111111111111111111111111111111","contractAddress":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","value":"1","transactionIndex":"0"}]}`, apperrors.IsDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.FetchTransfers(context.Background(), contract, account, 0)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error category: %v", err)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(&config.IndexerConfig{URL: srv.URL, RateLimit: 100, Timeout: 50 * time.Millisecond})
	_, err := c.FetchTransfers(context.Background(), contract, account, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
}
