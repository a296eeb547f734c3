package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainsafe/eip20-kit/pkg/token"
)

type syncStateView struct {
	State    string   `json:"state"`
	Progress *float64 `json:"progress,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func newSyncStateView(st token.SyncState) syncStateView {
	v := syncStateView{State: st.Kind.String(), Progress: st.Progress}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

type stateResponse struct {
	Contract         string        `json:"contract"`
	Account          string        `json:"account"`
	SyncState        syncStateView `json:"sync_state"`
	Balance          *string       `json:"balance"`
	FormattedBalance *string       `json:"formatted_balance,omitempty"`
	Symbol           string        `json:"symbol,omitempty"`
}

type tokenResponse struct {
	Contract string `json:"contract"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type allowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Block     string `json:"block"`
	Allowance string `json:"allowance"`
}

type tagView struct {
	Type      token.TagType `json:"type"`
	Addresses []string      `json:"addresses"`
}

type transferView struct {
	Hash             string     `json:"hash"`
	BlockNumber      uint64     `json:"block_number"`
	TransactionIndex uint       `json:"transaction_index"`
	From             string     `json:"from"`
	To               string     `json:"to"`
	Value            string     `json:"value"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
	Pending          bool       `json:"pending"`
	Tags             []tagView  `json:"tags"`
}

func newTransferView(t *token.Transfer, account common.Address) transferView {
	v := transferView{
		Hash:             t.Hash.Hex(),
		BlockNumber:      t.BlockNumber,
		TransactionIndex: t.TransactionIndex,
		From:             t.From.Hex(),
		To:               t.To.Hex(),
		Value:            "0",
		Pending:          t.Pending,
	}
	if t.Value != nil {
		v.Value = t.Value.String()
	}
	if !t.Timestamp.IsZero() {
		ts := t.Timestamp.UTC()
		v.Timestamp = &ts
	}
	v.Tags = newTagViews(t.Tags(account))
	return v
}

func newTagViews(tags []token.Tag) []tagView {
	out := make([]tagView, 0, len(tags))
	for _, tag := range tags {
		addresses := tag.Addresses
		if addresses == nil {
			addresses = []string{}
		}
		out = append(out, tagView{Type: tag.Type, Addresses: addresses})
	}
	return out
}

type logView struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

type decorateRequest struct {
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Logs  []logView       `json:"logs"`
}

type decorateResponse struct {
	Method  string    `json:"method,omitempty"`
	Tags    []tagView `json:"tags"`
	LogTags []tagView `json:"log_tags"`
}
