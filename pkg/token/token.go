// Package token holds the domain model shared by the eip20 engine, its storage
// collaborators and the indexer client.
package token

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Info is the static metadata of an EIP-20 token contract.
type Info struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Transfer is a single token movement imported from the indexer, or sent
// locally and not yet confirmed on-chain.
type Transfer struct {
	Hash             common.Hash
	BlockNumber      uint64
	TransactionIndex uint
	ContractAddress  common.Address
	From             common.Address
	To               common.Address
	Value            *big.Int
	// TokenInfo is the metadata reported by the indexer at transfer time. Nil
	// for locally recorded transfers.
	TokenInfo *Info
	Timestamp time.Time
	Pending   bool
}

// TagType classifies a transfer relative to the account that observes it.
type TagType string

const (
	TagIncoming TagType = "incoming"
	TagOutgoing TagType = "outgoing"
	TagApprove  TagType = "approve"
)

// Tag marks a transfer as relevant to an account. Addresses holds the
// counterparties in canonical hex form.
type Tag struct {
	Type            TagType
	ContractAddress common.Address
	Addresses       []string
}

// Tags returns the tags of t as seen by account. A transfer to self carries
// both an outgoing and an incoming tag.
func (t *Transfer) Tags(account common.Address) []Tag {
	var tags []Tag
	if t.From == account {
		tags = append(tags, Tag{
			Type:            TagOutgoing,
			ContractAddress: t.ContractAddress,
			Addresses:       []string{t.To.Hex()},
		})
	}
	if t.To == account {
		tags = append(tags, Tag{
			Type:            TagIncoming,
			ContractAddress: t.ContractAddress,
			Addresses:       []string{t.From.Hex()},
		})
	}
	return tags
}

// Involves reports whether account is the sender or the recipient of t.
func (t *Transfer) Involves(account common.Address) bool {
	return t.From == account || t.To == account
}

// ApprovalTag returns the tag attached to approvals of spender on contract.
func ApprovalTag(contract, spender common.Address) Tag {
	return Tag{
		Type:            TagApprove,
		ContractAddress: contract,
		Addresses:       []string{spender.Hex()},
	}
}
